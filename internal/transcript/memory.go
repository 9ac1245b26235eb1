package transcript

import (
	"context"
	"fmt"
	"sync"

	"github.com/mentora-labs/mentora/internal/domain"
)

// MemoryStore is the in-memory transcript backend used for interactive
// sessions and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]*domain.Message
	// notices tracks which tasks already received a system notice.
	notices map[string]struct{}
}

// NewMemory creates an empty in-memory transcript store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]*domain.Message),
		notices:  make(map[string]struct{}),
	}
}

// Append adds a message to the end of the session's transcript.
func (s *MemoryStore) Append(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions[msg.SessionID] {
		if existing.ID == msg.ID {
			return fmt.Errorf("duplicate message id %s in session %s", msg.ID, msg.SessionID)
		}
	}

	cp := *msg
	s.sessions[msg.SessionID] = append(s.sessions[msg.SessionID], &cp)
	return nil
}

// UpdateByID patches a message in place.
func (s *MemoryStore) UpdateByID(_ context.Context, sessionID, messageID string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range s.sessions[sessionID] {
		if msg.ID != messageID {
			continue
		}
		if patch.Content != nil {
			msg.Content = *patch.Content
		}
		if patch.IsLoading != nil {
			msg.IsLoading = *patch.IsLoading
		}
		if patch.IsError != nil {
			msg.IsError = *patch.IsError
		}
		return nil
	}
	return ErrMessageNotFound
}

// ListOrdered returns the session's messages in append order.
func (s *MemoryStore) ListOrdered(_ context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[sessionID]
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out, nil
}

// AppendNoticeOnce appends a system notice for a task at most once.
func (s *MemoryStore) AppendNoticeOnce(_ context.Context, sessionID, taskID, content string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionID + ":" + taskID
	if _, seen := s.notices[key]; seen {
		return false, nil
	}
	s.notices[key] = struct{}{}

	notice := domain.NewSystemNotice(sessionID, taskID, content)
	s.sessions[sessionID] = append(s.sessions[sessionID], notice)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
