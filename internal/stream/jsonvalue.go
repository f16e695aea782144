package stream

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// reencodeJSON prints a JSON value the way JSON.stringify prints the result
// of JSON.parse: no whitespace, keys in their original order, strings
// re-escaped (so "caf\u00e9" becomes "café") and numbers in shortest form.
// Invalid input is returned unchanged.
func reencodeJSON(raw json.RawMessage) json.RawMessage {
	if !gjson.ValidBytes(raw) {
		return raw
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, gjson.ParseBytes(raw)); err != nil {
		return raw
	}
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, v gjson.Result) error {
	switch {
	case v.Type == gjson.String:
		return writeString(buf, v.Str)
	case v.Type == gjson.Number:
		buf.WriteString(formatNumber(v.Num))
	case v.IsArray():
		buf.WriteByte('[')
		for i, el := range v.Array() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case v.IsObject():
		buf.WriteByte('{')
		var err error
		first := true
		v.ForEach(func(key, val gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err = writeString(buf, key.Str); err != nil {
				return false
			}
			buf.WriteByte(':')
			err = writeValue(buf, val)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		buf.WriteString(v.Raw)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	data, err := MarshalJSON(s)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// formatNumber follows JavaScript's Number#toString.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	n, _ := strconv.Atoi(exp[1:])
	return mant + "e" + sign + strconv.Itoa(n)
}

// unescapeSeparators undoes encoding/json's escaping of U+2028 and U+2029,
// which JSON.stringify leaves as literal characters.
func unescapeSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+6 <= len(data) {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		// any other escape is copied whole so "\\u2028" text survives
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
