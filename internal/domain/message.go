package domain

import (
	"time"

	"github.com/google/uuid"
)

// SenderRole identifies who produced a transcript message.
type SenderRole string

const (
	RoleUser   SenderRole = "user"
	RoleAgent  SenderRole = "agent"
	RoleSystem SenderRole = "system"
)

// Message is one entry in a session transcript. A message is created as a
// loading placeholder when its owning task is dispatched, grows in place while
// streaming, and becomes immutable once the task reaches a terminal state.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	TaskID    string     `json:"task_id,omitempty"`
	Role      SenderRole `json:"role"`
	AgentID   string     `json:"agent_id,omitempty"`
	Content   string     `json:"content"`
	IsLoading bool       `json:"is_loading"`
	IsError   bool       `json:"is_error"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewUserMessage creates a finalized message authored by the user.
func NewUserMessage(sessionID, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAgentPlaceholder creates the loading placeholder for a dispatched task.
// Exactly one placeholder exists per task; it is collapsed into the terminal
// result rather than duplicated.
func NewAgentPlaceholder(sessionID, agentID, taskID string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TaskID:    taskID,
		Role:      RoleAgent,
		AgentID:   agentID,
		IsLoading: true,
		Timestamp: time.Now(),
	}
}

// NewSystemNotice creates a system-level notice tied to a task, such as a
// completion announcement.
func NewSystemNotice(sessionID, taskID, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TaskID:    taskID,
		Role:      RoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}
