// Package stream bridges the backend's NDJSON token stream to Server-Sent
// Events in the OpenAI delta-chat-completion shape.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Frame is one decoded NDJSON line from the backend. It is exactly one of
// ErrorFrame, DoneFrame or TokenFrame.
type Frame interface {
	isFrame()
}

// ErrorFrame reports a backend failure for the current token. It is not
// terminal; more tokens or a done frame may follow.
type ErrorFrame struct {
	// Raw is the error value exactly as the backend sent it.
	Raw json.RawMessage
}

// DoneFrame ends generation.
type DoneFrame struct{}

// TokenFrame carries one incremental piece of assistant text. Content may be
// empty, in which case nothing is forwarded.
type TokenFrame struct {
	Content string
}

func (ErrorFrame) isFrame() {}
func (DoneFrame) isFrame()  {}
func (TokenFrame) isFrame() {}

// Message renders the error value as text.
func (f ErrorFrame) Message() string {
	var s string
	if err := json.Unmarshal(f.Raw, &s); err == nil {
		return s
	}
	return string(f.Raw)
}

var (
	errNotObject   = errors.New("frame is not a JSON object")
	errInvalidJSON = errors.New("frame is not valid JSON")
)

// ParseFrame decodes a single trimmed NDJSON line. An error means the line
// is noise and should be dropped. Keys match exactly: "Done" is not "done".
func ParseFrame(line []byte) (Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, errNotObject
	}
	if !gjson.ValidBytes(line) {
		return nil, errInvalidJSON
	}

	frame := gjson.ParseBytes(line)
	if e := frame.Get("error"); truthy(e) {
		return ErrorFrame{Raw: json.RawMessage(e.Raw)}, nil
	}
	if truthy(frame.Get("done")) {
		return DoneFrame{}, nil
	}

	var content string
	if msg := frame.Get("message"); msg.IsObject() {
		if c := msg.Get("content"); c.Type == gjson.String {
			content = c.Str
		}
	}
	return TokenFrame{Content: content}, nil
}

// truthy applies JavaScript truthiness to a JSON value: absent, null, false,
// 0 and "" are false, everything else is true.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	default:
		return true
	}
}
