// Package domain contains core domain types for the Mentora engine.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind identifies the type of remote computation a task performs.
type TaskKind string

const (
	// KindChatReply is a conversational reply streamed from the assistant.
	KindChatReply TaskKind = "chat-reply"
	// KindDocumentAnalysis is a document or image analysis streamed back incrementally.
	KindDocumentAnalysis TaskKind = "document-analysis"
	// KindLessonGeneration is a generated lesson tracked via status polling.
	KindLessonGeneration TaskKind = "lesson-generation"
	// KindSimulationRun is a multi-period simulation tracked via status polling.
	KindSimulationRun TaskKind = "simulation-run"
)

// IsStreaming reports whether results for this kind arrive as an incremental
// text stream rather than through the status endpoint.
func (k TaskKind) IsStreaming() bool {
	return k == KindChatReply || k == KindDocumentAnalysis
}

// Valid reports whether the kind is one of the known task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case KindChatReply, KindDocumentAnalysis, KindLessonGeneration, KindSimulationRun:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusTimedOut  TaskStatus = "timed_out"
	StatusCanceled  TaskStatus = "canceled"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCanceled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a valid step in the
// task state machine. Terminal states never transition again.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusCanceled || next == StatusFailed
	case StatusRunning:
		return next.Terminal()
	}
	return false
}

// Task is one dispatched unit of asynchronous remote work.
type Task struct {
	ID string `json:"id"`
	// RemoteID is the identifier issued by the remote worker at dispatch,
	// used for status and stream lookups. Empty for immediate results.
	RemoteID      string     `json:"remote_id,omitempty"`
	Kind          TaskKind   `json:"kind"`
	Status        TaskStatus `json:"status"`
	Attempt       int        `json:"attempt"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
}

// NewTask creates a queued task with a client-generated id.
func NewTask(kind TaskKind) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusQueued,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
}

// Transition moves the task to the next status, enforcing the state machine.
// Transitioning out of a terminal state is rejected.
func (t *Task) Transition(next TaskStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("invalid task transition %s -> %s for task %s", t.Status, next, t.ID)
	}
	t.Status = next
	return nil
}

// RecordAttempt bumps the attempt counter and stamps the attempt time.
func (t *Task) RecordAttempt(now time.Time) {
	t.Attempt++
	t.LastAttemptAt = now
}
