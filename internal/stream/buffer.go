package stream

import (
	"strings"
	"sync"
)

// delimiter joins accepted fragments into the accumulated snapshot.
const delimiter = "\n"

// Buffer accumulates accepted stream fragments. The snapshot grows
// monotonically and repeated reads are idempotent, so consumers can re-render
// from the latest snapshot at any time. Once the buffer is done no fragment
// mutates it again, including late arrivals after cancellation.
type Buffer struct {
	mu       sync.Mutex
	parts    []string
	done     bool
	onCancel func()
}

// NewBuffer creates an empty buffer. onCancel, when non-nil, aborts the
// underlying transport; it runs at most once.
func NewBuffer(onCancel func()) *Buffer {
	return &Buffer{onCancel: onCancel}
}

// Append adds an accepted fragment. Returns false when the buffer is already
// done and the fragment was discarded.
func (b *Buffer) Append(fragment string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return false
	}
	b.parts = append(b.parts, fragment)
	return true
}

// Snapshot returns the accumulated content so far.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.parts, delimiter)
}

// Len returns the number of accepted fragments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.parts)
}

// Finish marks the buffer done after a terminal marker or stream close.
func (b *Buffer) Finish() {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
}

// Done reports whether the buffer is sealed.
func (b *Buffer) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Cancel seals the buffer and aborts the underlying transport. Safe to call
// multiple times; only the first call runs the abort hook.
func (b *Buffer) Cancel() {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	onCancel := b.onCancel
	b.mu.Unlock()

	if onCancel != nil {
		onCancel()
	}
}
