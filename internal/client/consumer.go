// Package client consumes the relay's SSE chat stream and keeps the
// conversation state of a single chat session.
package client

import (
	"io"
	"strings"

	"github.com/RichardoC/relaychat/internal/linesplit"
	"github.com/RichardoC/relaychat/internal/stream"
	"github.com/tidwall/gjson"
)

const dataPrefix = "data:"

// Consume reads SSE frames from r until the [DONE] sentinel or the end of
// the stream. Delta content is passed to onDelta in arrival order; in-band
// error frames are passed to onError and reading continues. Payloads that
// are not valid JSON are ignored. Only a failure of r itself is returned.
func Consume(r io.Reader, onDelta func(string), onError func(string)) error {
	for line, err := range linesplit.Lines(r) {
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(trimmed[len(dataPrefix):])
		if payload == stream.DoneSentinel {
			return nil
		}
		if !gjson.Valid(payload) {
			// keep-alive or noise
			continue
		}

		parsed := gjson.Parse(payload)
		if e := parsed.Get("error"); e.Exists() && e.Type != gjson.Null {
			if onError != nil {
				onError(errorText(e))
			}
			continue
		}

		content := parsed.Get("choices.0.delta.content")
		if content.Type == gjson.String && content.Str != "" && onDelta != nil {
			onDelta(content.Str)
		}
	}
	return nil
}

func errorText(e gjson.Result) string {
	if e.Type == gjson.String {
		return e.Str
	}
	if msg := e.Get("message"); msg.Type == gjson.String {
		return msg.Str
	}
	return e.Raw
}
