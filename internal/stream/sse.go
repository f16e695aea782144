package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DoneSentinel terminates every SSE stream we produce.
const DoneSentinel = "[DONE]"

var ErrClosed = errors.New("stream: write to closed event stream")

// Sink receives transcoded events. Close must tolerate repeated calls.
type Sink interface {
	Delta(content string) error
	Error(raw json.RawMessage) error
	Done() error
	Close() error
}

type deltaPayload struct {
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

type errorPayload struct {
	Error json.RawMessage `json:"error"`
}

// Writer frames events as "data: <payload>\n\n" and flushes after each one.
// It is owned by a single transcoding loop and is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	flush  func() error
	closed bool
}

// NewWriter wraps w. flush is called after every frame and may be nil.
func NewWriter(w io.Writer, flush func() error) *Writer {
	return &Writer{w: w, flush: flush}
}

func (sw *Writer) Delta(content string) error {
	p := deltaPayload{Choices: make([]deltaChoice, 1)}
	p.Choices[0].Delta.Content = content
	return sw.writeJSON(p)
}

// Error sends an in-band error. raw is re-encoded so escapes in the
// backend's JSON do not leak through.
func (sw *Writer) Error(raw json.RawMessage) error {
	return sw.writeJSON(errorPayload{Error: reencodeJSON(raw)})
}

// ErrorText sends a plain-text error message.
func (sw *Writer) ErrorText(msg string) error {
	return sw.Error(TextValue(msg))
}

func (sw *Writer) Done() error {
	return sw.writeData([]byte(DoneSentinel))
}

// Close marks the stream finished. Later writes fail with ErrClosed.
func (sw *Writer) Close() error {
	sw.closed = true
	return nil
}

func (sw *Writer) writeJSON(v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return sw.writeData(data)
}

func (sw *Writer) writeData(data []byte) error {
	if sw.closed {
		return ErrClosed
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 8)
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")

	if _, err := sw.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if sw.flush != nil {
		return sw.flush()
	}
	return nil
}

// MarshalJSON encodes v compactly without HTML escaping, so payloads match
// what a browser's JSON.stringify would produce.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// TextValue encodes s as a raw JSON string value.
func TextValue(s string) json.RawMessage {
	data, err := MarshalJSON(s)
	if err != nil {
		return json.RawMessage(`"stream error"`)
	}
	return data
}
