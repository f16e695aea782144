// Package linesplit turns an incrementally delivered byte stream into a
// sequence of complete text lines.
//
// Network reads arrive at arbitrary byte offsets, so a line may span several
// reads. The splitter buffers the unterminated tail until its '\n' shows up.
// Splitting happens on raw bytes before any decoding; '\n' never occurs inside
// a multi-byte UTF-8 sequence, so runes cut by a read boundary are rejoined
// before the line is handed out.
package linesplit

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"strings"
)

// Lines yields every '\n'-terminated line of r without its terminator.
//
// The sequence is lazy and can be ranged over only once; a second range
// yields nothing. When r reaches EOF a non-empty trailing segment is yielded
// as a final line. Any other read error is yielded once as ("", err) and ends
// the sequence; the unterminated segment read before it is dropped.
func Lines(r io.Reader) iter.Seq2[string, error] {
	br := bufio.NewReader(r)
	consumed := false

	return func(yield func(string, error) bool) {
		if consumed {
			return
		}
		consumed = true

		for {
			line, err := br.ReadString('\n')
			switch {
			case err == nil:
				if !yield(strings.TrimSuffix(line, "\n"), nil) {
					return
				}
			case errors.Is(err, io.EOF):
				if line != "" {
					yield(line, nil)
				}
				return
			default:
				yield("", err)
				return
			}
		}
	}
}
