package retry

import (
	"errors"

	"github.com/mentora-labs/mentora/internal/remote"
)

// Retryable reports whether a status observation warrants another poll.
// "Not ready" and "still running" mean the worker is busy, not broken.
func Retryable(state remote.TaskState) bool {
	return state == remote.StateNotReady || state == remote.StateRunning
}

// IsTransport reports whether the error is a transport-level failure. These
// are surfaced immediately rather than retried: an unreachable worker will
// not become reachable within a polling window, and retrying hides the
// connectivity problem from the user.
func IsTransport(err error) bool {
	return errors.Is(err, remote.ErrUnreachable)
}
