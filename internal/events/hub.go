// Package events carries structured outcome events from the engine to the
// presentation layer. The engine publishes; transports subscribe. Nothing in
// the engine depends on a UI construct.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
)

// Severity grades an outcome for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Outcome is one structured event emitted by the engine: a task reached a
// terminal state, or a simulation made visible progress.
type Outcome struct {
	TaskID   string            `json:"task_id"`
	AgentID  string            `json:"agent_id"`
	Kind     domain.TaskKind   `json:"kind"`
	Status   domain.TaskStatus `json:"status"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message,omitempty"`
	// AvailablePeriods accompanies simulation progress events so the UI can
	// extend its period navigation as partials land.
	AvailablePeriods []int     `json:"available_periods,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// SeverityFor maps a terminal task status to its presentation severity.
// TimedOut is a warning, not an error: the message invites a retry rather
// than implying a permanent failure.
func SeverityFor(status domain.TaskStatus) Severity {
	switch status {
	case domain.StatusFailed:
		return SeverityError
	case domain.StatusTimedOut:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// subscriberBuffer bounds each subscriber channel. Slow subscribers drop
// events rather than block the engine.
const subscriberBuffer = 32

// Hub fans outcome events out to subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[int64]chan Outcome
	nextID int64
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[int64]chan Outcome),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (h *Hub) Subscribe() (int64, <-chan Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan Outcome, subscriberBuffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers the outcome to every subscriber without blocking. Events
// for a full subscriber are dropped; the transcript remains the durable
// record.
func (h *Hub) Publish(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- o:
		default:
			h.logger.Debug("dropping outcome event for slow subscriber", "subscriber", id, "task_id", o.TaskID)
		}
	}
}
