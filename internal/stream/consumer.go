package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/mentora-labs/mentora/internal/domain"
)

// User-facing messages for stream outcomes.
const (
	MsgNoContent      = "No analysis was produced. Please try again."
	MsgStreamFailed   = "The response stream was interrupted. Please try again."
	MsgStreamTimedOut = "The response took too long. Please retry."
)

// ErrRemoteStream indicates the worker emitted its explicit error marker.
var ErrRemoteStream = errors.New("remote stream reported an error")

// maxLineSize bounds a single frame; generation backends emit paragraphs,
// not megabytes.
const maxLineSize = 256 * 1024

// Result is the terminal outcome of consuming one stream.
type Result struct {
	Status  domain.TaskStatus
	Content string
	// Message is the user-facing explanation for non-Completed outcomes.
	Message string
}

// Consumer reads newline-framed fragments, discards status chatter, and
// accumulates accepted content.
type Consumer struct {
	classifier Classifier
	logger     *slog.Logger

	// OnDiscard, when set, observes every discarded status line.
	OnDiscard func(line string)
}

// NewConsumer creates a stream consumer with the given classifier.
func NewConsumer(classifier Classifier, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{classifier: classifier, logger: logger}
}

// Frames returns a lazy, finite sequence of accepted content fragments. The
// sequence ends on the explicit end marker, the error marker, stream close,
// or ctx cancellation. Each call restarts consumption from the reader's
// current position.
func (c *Consumer) Frames(ctx context.Context, r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}

			line := scanner.Text()
			switch c.classifier.Classify(line) {
			case ClassEnd:
				return
			case ClassError:
				yield("", ErrRemoteStream)
				return
			case ClassStatus:
				c.logger.Debug("discarded status frame", "line", line)
				if c.OnDiscard != nil {
					c.OnDiscard(line)
				}
			case ClassContent:
				if !yield(line, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			yield("", err)
		}
	}
}

// Run drives the stream to completion, appending accepted fragments into buf.
// onGrow, when non-nil, observes each new snapshot so callers can re-render
// the in-progress message. The buffer is sealed before Run returns; fragments
// arriving after cancellation never mutate it.
func (c *Consumer) Run(ctx context.Context, r io.Reader, buf *Buffer, onGrow func(snapshot string)) Result {
	defer buf.Finish()

	var streamErr error
	for fragment, err := range c.Frames(ctx, r) {
		if err != nil {
			streamErr = err
			break
		}
		if !buf.Append(fragment) {
			// Buffer sealed by cancellation; stop reading.
			return Result{Status: domain.StatusCanceled}
		}
		if onGrow != nil {
			onGrow(buf.Snapshot())
		}
	}

	content := buf.Snapshot()

	switch {
	case errors.Is(streamErr, context.DeadlineExceeded):
		return Result{Status: domain.StatusTimedOut, Content: content, Message: MsgStreamTimedOut}
	case errors.Is(streamErr, context.Canceled):
		return Result{Status: domain.StatusCanceled, Content: content}
	case streamErr != nil:
		c.logger.Warn("stream ended with error", "error", streamErr)
		return Result{Status: domain.StatusFailed, Content: content, Message: MsgStreamFailed}
	case buf.Len() == 0:
		// A finished stream with no accepted content is a failure, not a
		// silent empty success.
		return Result{Status: domain.StatusFailed, Message: MsgNoContent}
	}

	return Result{Status: domain.StatusCompleted, Content: content}
}
