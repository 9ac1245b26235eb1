package domain

import (
	"time"
)

// AgentType is the persona an agent session embodies.
type AgentType string

const (
	AgentTutoring  AgentType = "tutoring"
	AgentFinancial AgentType = "financial"
	AgentWellness  AgentType = "wellness"
)

// SessionStatus is the activation state of an agent session.
type SessionStatus string

const (
	SessionIdle   SessionStatus = "idle"
	SessionActive SessionStatus = "active"
)

// AgentSession is one of the mutually exclusive interactive personas the user
// can engage. At most one session is active at a time; the registry enforces
// that invariant.
type AgentSession struct {
	AgentID     string        `json:"agent_id"`
	Type        AgentType     `json:"type"`
	Status      SessionStatus `json:"status"`
	ActivatedAt time.Time     `json:"activated_at,omitempty"`
}
