// Package session owns the set of agent sessions and is the single source of
// truth for which agent is active and whether it has a task in flight. Every
// dispatch path consults the registry before starting work; no component
// starts a task around it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
)

var (
	// ErrUnknownAgent indicates the agent id is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrAgentNotActive indicates a dispatch for an agent that is not the
	// active session.
	ErrAgentNotActive = errors.New("agent is not active")
	// ErrTaskInFlight indicates the agent already owns a non-terminal task.
	// Callers must cancel or await completion before re-dispatching.
	ErrTaskInFlight = errors.New("agent already has a task in flight")
)

// Handle is the registry's grip on one outstanding task: the task itself plus
// the cancellation of its worker goroutine. Cancel is idempotent and
// propagates to the underlying transport through the context.
type Handle struct {
	Task    *domain.Task
	AgentID string

	cancel context.CancelFunc
	once   sync.Once

	// mu serializes Cancel against sections run through Guard, so a write
	// performed on the task's behalf either finishes before Cancel returns
	// or never runs at all.
	mu       sync.Mutex
	canceled bool
}

// Cancel aborts the task's work. Safe to call multiple times. A section
// already running under Guard finishes first; once Cancel returns, no
// further guarded section runs.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.canceled = true
	h.mu.Unlock()
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}

// Guard runs fn unless the task has been canceled, holding the handle's
// lock for the duration. Reports whether fn ran. Writers of shared state
// route their mutations through Guard so cancellation can fence them.
func (h *Handle) Guard(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return false
	}
	fn()
	return true
}

// Registry tracks agent sessions and their in-flight tasks.
type Registry struct {
	mu       sync.Mutex
	agents   map[string]*domain.AgentSession
	inflight map[string]*Handle // agentID -> outstanding task
	// exclusive cancels an agent's in-flight task when another agent is
	// activated over it.
	exclusive bool
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. With exclusive set, activating one
// agent cancels any task still in flight for the agents being deactivated.
func NewRegistry(exclusive bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents:    make(map[string]*domain.AgentSession),
		inflight:  make(map[string]*Handle),
		exclusive: exclusive,
		logger:    logger,
	}
}

// Register adds an agent session in the Idle state. Re-registering an
// existing id is a no-op.
func (r *Registry) Register(agentID string, agentType domain.AgentType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agentID]; ok {
		return
	}
	r.agents[agentID] = &domain.AgentSession{
		AgentID: agentID,
		Type:    agentType,
		Status:  domain.SessionIdle,
	}
}

// Agents returns a stable snapshot of all sessions, ordered by agent id.
func (r *Registry) Agents() []domain.AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AgentSession, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Activate makes the agent the single active session, deactivating every
// other agent. In exclusive mode, tasks in flight for deactivated agents are
// canceled as part of the transition.
func (r *Registry) Activate(agentID string) error {
	r.mu.Lock()
	target, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownAgent
	}

	var toCancel []*Handle
	for id, a := range r.agents {
		if id == agentID {
			continue
		}
		if a.Status == domain.SessionActive {
			a.Status = domain.SessionIdle
			if r.exclusive {
				if h, hasTask := r.inflight[id]; hasTask {
					toCancel = append(toCancel, h)
					delete(r.inflight, id)
				}
			}
		}
	}
	target.Status = domain.SessionActive
	target.ActivatedAt = time.Now()
	r.mu.Unlock()

	// Cancel outside the lock; cancellation may fan out to transports.
	for _, h := range toCancel {
		r.logger.Info("canceling task for deactivated agent", "agent_id", h.AgentID, "task_id", h.Task.ID)
		h.Cancel()
	}
	return nil
}

// Deactivate returns the agent to Idle. Its in-flight task, if any, is
// canceled.
func (r *Registry) Deactivate(agentID string) error {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownAgent
	}
	a.Status = domain.SessionIdle
	h := r.inflight[agentID]
	delete(r.inflight, agentID)
	r.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	return nil
}

// CurrentActive returns the id of the active agent, if any.
func (r *Registry) CurrentActive() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.agents {
		if a.Status == domain.SessionActive {
			return id, true
		}
	}
	return "", false
}

// Dispatch claims the single in-flight slot for the agent and returns a
// handle bound to cancel. It refuses when the agent is not active or already
// owns a non-terminal task.
func (r *Registry) Dispatch(agentID string, task *domain.Task, cancel context.CancelFunc) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return nil, ErrUnknownAgent
	}
	if a.Status != domain.SessionActive {
		return nil, ErrAgentNotActive
	}
	if existing, hasTask := r.inflight[agentID]; hasTask && !existing.Task.Status.Terminal() {
		return nil, ErrTaskInFlight
	}

	h := &Handle{Task: task, AgentID: agentID, cancel: cancel}
	r.inflight[agentID] = h
	return h, nil
}

// Complete releases the in-flight slot once the task reached a terminal
// state. A stale task id is ignored so a late completion cannot release a
// newer task's slot.
func (r *Registry) Complete(agentID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.inflight[agentID]; ok && h.Task.ID == taskID {
		delete(r.inflight, agentID)
	}
}

// FindTask locates the handle owning the given task id.
func (r *Registry) FindTask(taskID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.inflight {
		if h.Task.ID == taskID {
			return h, true
		}
	}
	return nil, false
}

// Reset clears all sessions to Idle and cancels every in-flight task. Used
// when the user explicitly restarts a simulation.
func (r *Registry) Reset() {
	r.mu.Lock()
	var toCancel []*Handle
	for _, h := range r.inflight {
		toCancel = append(toCancel, h)
	}
	r.inflight = make(map[string]*Handle)
	for _, a := range r.agents {
		a.Status = domain.SessionIdle
	}
	r.mu.Unlock()

	for _, h := range toCancel {
		h.Cancel()
	}
}
