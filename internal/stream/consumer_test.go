package stream

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
)

func TestBufferAppendAndSnapshot(t *testing.T) {
	buf := NewBuffer(nil)

	if !buf.Append("first") {
		t.Error("Expected append to succeed on open buffer")
	}
	if !buf.Append("second") {
		t.Error("Expected append to succeed on open buffer")
	}

	want := "first\nsecond"
	if got := buf.Snapshot(); got != want {
		t.Errorf("Expected snapshot %q, got %q", want, got)
	}
	// Repeated reads are idempotent.
	if got := buf.Snapshot(); got != want {
		t.Errorf("Expected repeated snapshot %q, got %q", want, got)
	}
}

func TestBufferRefusesAppendsAfterFinish(t *testing.T) {
	buf := NewBuffer(nil)
	buf.Append("kept")
	buf.Finish()

	if buf.Append("dropped") {
		t.Error("Expected append after finish to be refused")
	}
	if got := buf.Snapshot(); got != "kept" {
		t.Errorf("Expected snapshot %q, got %q", "kept", got)
	}
}

func TestBufferCancelIdempotent(t *testing.T) {
	calls := 0
	buf := NewBuffer(func() { calls++ })

	buf.Cancel()
	buf.Cancel()
	buf.Cancel()

	if calls != 1 {
		t.Errorf("Expected abort hook to run once, got %d", calls)
	}
	if !buf.Done() {
		t.Error("Expected buffer done after cancel")
	}
	if buf.Append("late") {
		t.Error("Expected append after cancel to be refused")
	}
}

func TestRunDiscardsStatusAndMarkers(t *testing.T) {
	input := "🔍 starting\nThe capital of France is Paris.\n[END]\n"
	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(nil)

	result := consumer.Run(context.Background(), strings.NewReader(input), buf, nil)

	if result.Status != domain.StatusCompleted {
		t.Errorf("Expected Completed, got %s (%s)", result.Status, result.Message)
	}
	if result.Content != "The capital of France is Paris." {
		t.Errorf("Expected accumulated content %q, got %q", "The capital of France is Paris.", result.Content)
	}
	if !buf.Done() {
		t.Error("Expected buffer sealed after run")
	}
}

func TestRunEmptyStreamIsFailure(t *testing.T) {
	input := "🔍 starting\nusing model summarizer\n[END]\n"
	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(nil)

	result := consumer.Run(context.Background(), strings.NewReader(input), buf, nil)

	if result.Status != domain.StatusFailed {
		t.Errorf("Expected Failed for empty stream, got %s", result.Status)
	}
	if result.Message != MsgNoContent {
		t.Errorf("Expected message %q, got %q", MsgNoContent, result.Message)
	}
}

func TestRunErrorMarker(t *testing.T) {
	input := "Partial sentence before the worker died.\n[ERROR]\n"
	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(nil)

	result := consumer.Run(context.Background(), strings.NewReader(input), buf, nil)

	if result.Status != domain.StatusFailed {
		t.Errorf("Expected Failed, got %s", result.Status)
	}
	if result.Content != "Partial sentence before the worker died." {
		t.Errorf("Expected partial content preserved, got %q", result.Content)
	}
}

func TestRunStreamCloseWithoutMarker(t *testing.T) {
	// Transport close without an explicit marker still finishes the stream.
	input := "All done here.\n"
	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(nil)

	result := consumer.Run(context.Background(), strings.NewReader(input), buf, nil)

	if result.Status != domain.StatusCompleted {
		t.Errorf("Expected Completed, got %s", result.Status)
	}
}

// chunkedReader delivers the underlying data in fixed-size chunks to exercise
// arbitrary byte boundaries.
type chunkedReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.chunk
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func TestRunIdempotentUnderRechunking(t *testing.T) {
	input := "🔍 starting\nFirst useful sentence.\nSecond useful sentence.\n[END]\n"

	var results []string
	for _, chunk := range []int{1, 3, 7, 1024} {
		consumer := NewConsumer(Classifier{}, nil)
		buf := NewBuffer(nil)
		result := consumer.Run(context.Background(), &chunkedReader{data: []byte(input), chunk: chunk}, buf, nil)
		if result.Status != domain.StatusCompleted {
			t.Fatalf("Expected Completed with chunk size %d, got %s", chunk, result.Status)
		}
		results = append(results, result.Content)
	}

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Expected identical content across chunkings, got %q vs %q", results[0], results[i])
		}
	}
}

func TestRunObservesGrowth(t *testing.T) {
	input := "First piece arrives.\nSecond piece arrives.\n[END]\n"
	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(nil)

	var snapshots []string
	consumer.Run(context.Background(), strings.NewReader(input), buf, func(snapshot string) {
		snapshots = append(snapshots, snapshot)
	})

	if len(snapshots) != 2 {
		t.Fatalf("Expected 2 growth notifications, got %d", len(snapshots))
	}
	if snapshots[0] != "First piece arrives." {
		t.Errorf("Expected first snapshot %q, got %q", "First piece arrives.", snapshots[0])
	}
	if snapshots[1] != "First piece arrives.\nSecond piece arrives." {
		t.Errorf("Expected second snapshot to grow monotonically, got %q", snapshots[1])
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that never returns EOF on its own.
	pr, pw := io.Pipe()
	defer pw.Close()

	go func() {
		pw.Write([]byte("Some content line here.\n"))
	}()

	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(func() { pr.Close() })

	done := make(chan Result, 1)
	go func() {
		done <- consumer.Run(ctx, pr, buf, nil)
	}()

	select {
	case result := <-done:
		if result.Status != domain.StatusCanceled {
			t.Errorf("Expected Canceled, got %s", result.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected run to return promptly after cancellation")
	}
}

func TestRunDeadlineIsTimedOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	input := "Line that arrives too late.\nmore\n"
	consumer := NewConsumer(Classifier{}, nil)
	buf := NewBuffer(nil)

	result := consumer.Run(ctx, strings.NewReader(input), buf, nil)

	if result.Status != domain.StatusTimedOut {
		t.Errorf("Expected TimedOut, got %s", result.Status)
	}
}
