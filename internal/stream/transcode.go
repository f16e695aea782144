package stream

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/RichardoC/relaychat/internal/linesplit"
)

// Summary describes one finished transcoding run.
type Summary struct {
	// Content is the concatenation of every forwarded token.
	Content string
	// Tokens counts forwarded delta frames.
	Tokens int
	// Errors holds in-band backend errors, in arrival order.
	Errors []string
	// Discarded counts lines that did not parse.
	Discarded int
	// Done is set when the backend sent an explicit done frame.
	Done bool
	// Err is the read or write failure that ended the run early, if any.
	Err error
}

// Transcode reads NDJSON frames from src and writes SSE events to dst until
// the backend says done, src ends or something fails.
//
// Every path ends with dst closed. A clean end of input always yields the
// [DONE] sentinel, even when the backend never sent a done frame. A read
// failure instead yields a single error event. Failures are reported in the
// returned Summary and never escape as panics.
func Transcode(ctx context.Context, src io.Reader, dst Sink) (sum Summary) {
	var content strings.Builder

	defer func() {
		if r := recover(); r != nil {
			sum.Err = fmt.Errorf("transcode: %v", r)
			_ = dst.Error(TextValue(sum.Err.Error()))
		}
		sum.Content = content.String()
		_ = dst.Close()
	}()

	for line, err := range linesplit.Lines(src) {
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			sum.Err = err
			_ = dst.Error(TextValue(err.Error()))
			return sum
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		frame, perr := ParseFrame([]byte(trimmed))
		if perr != nil {
			sum.Discarded++
			continue
		}

		var werr error
		switch f := frame.(type) {
		case ErrorFrame:
			sum.Errors = append(sum.Errors, f.Message())
			werr = dst.Error(f.Raw)
		case DoneFrame:
			sum.Done = true
			if werr = dst.Done(); werr != nil {
				sum.Err = fmt.Errorf("write done: %w", werr)
			}
			return sum
		case TokenFrame:
			if f.Content == "" {
				continue
			}
			content.WriteString(f.Content)
			sum.Tokens++
			werr = dst.Delta(f.Content)
		default:
			panic(fmt.Sprintf("unhandled frame type %T", frame))
		}

		if werr != nil {
			sum.Err = fmt.Errorf("write event: %w", werr)
			return sum
		}
	}

	if err := dst.Done(); err != nil {
		sum.Err = fmt.Errorf("write done: %w", err)
	}
	return sum
}
