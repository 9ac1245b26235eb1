// Package transcript provides the ordered, deduplicated per-session message
// log and its persistence backends.
package transcript

import (
	"context"
	"errors"

	"github.com/mentora-labs/mentora/internal/domain"
)

// ErrMessageNotFound indicates an update targeted a message id that does not
// exist in the session.
var ErrMessageNotFound = errors.New("message not found")

// Patch describes an in-place update to one message. Nil fields are left
// untouched. Streaming growth replaces Content with the latest buffer
// snapshot, which keeps repeated updates idempotent.
type Patch struct {
	Content   *string
	IsLoading *bool
	IsError   *bool
}

// Store is the transcript log. Append order is preserved; UpdateByID mutates
// a message in place, used both for streaming growth and for collapsing a
// loading placeholder into its terminal result.
type Store interface {
	// Append adds a message to the end of the session's transcript.
	Append(ctx context.Context, msg *domain.Message) error

	// UpdateByID patches the message with the given id within the session.
	UpdateByID(ctx context.Context, sessionID, messageID string, patch Patch) error

	// ListOrdered returns the session's messages in append order.
	ListOrdered(ctx context.Context, sessionID string) ([]domain.Message, error)

	// AppendNoticeOnce appends a system notice tied to a task at most once.
	// Re-invocations for the same task are no-ops; it reports whether the
	// notice was actually appended.
	AppendNoticeOnce(ctx context.Context, sessionID, taskID, content string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }
