// Package engine orchestrates asynchronous remote tasks: it dispatches work
// through the session registry, routes tracking to the poller or the stream
// consumer by task kind, reconciles results into the transcript store and the
// period aggregator, and emits structured outcome events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
	"github.com/mentora-labs/mentora/internal/events"
	"github.com/mentora-labs/mentora/internal/metrics"
	"github.com/mentora-labs/mentora/internal/periods"
	"github.com/mentora-labs/mentora/internal/poller"
	"github.com/mentora-labs/mentora/internal/remote"
	"github.com/mentora-labs/mentora/internal/retry"
	"github.com/mentora-labs/mentora/internal/session"
	"github.com/mentora-labs/mentora/internal/stream"
	"github.com/mentora-labs/mentora/internal/transcript"
)

var (
	// ErrTaskNotFound indicates a cancel request for a task that is not in
	// flight.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidKind indicates a dispatch with an unknown task kind.
	ErrInvalidKind = errors.New("invalid task kind")
)

// simulationReadyNotice is the system-level completion notice inserted at
// most once per simulation task.
const simulationReadyNotice = "Simulation results are ready."

// RemoteClient is the slice of the backend client the engine depends on.
type RemoteClient interface {
	Dispatch(ctx context.Context, kind domain.TaskKind, payload map[string]any) (*remote.DispatchResult, error)
	CheckStatus(ctx context.Context, taskID string) (*remote.StatusResult, error)
	OpenStream(ctx context.Context, taskID string) (io.ReadCloser, error)
}

// Request describes one unit of work to dispatch for an agent.
type Request struct {
	SessionID string
	Kind      domain.TaskKind
	// Prompt is the user's input; appended to the transcript when non-empty.
	Prompt string
	// Payload carries kind-specific request fields forwarded to the worker.
	Payload map[string]any
	// RTL marks the requested output language as right-to-left script,
	// which tightens the stream classifier.
	RTL bool
}

// Config tunes per-kind behavior.
type Config struct {
	// StreamTimeouts is the wall-clock ceiling per streaming kind.
	StreamTimeouts map[domain.TaskKind]time.Duration
	// PolicyFor selects the polling policy per kind.
	PolicyFor func(domain.TaskKind) retry.Policy
}

// DefaultConfig keeps chat replies on a short ceiling and resource-intensive
// analysis on a long one.
func DefaultConfig() Config {
	return Config{
		StreamTimeouts: map[domain.TaskKind]time.Duration{
			domain.KindChatReply:        45 * time.Second,
			domain.KindDocumentAnalysis: 5 * time.Minute,
		},
		PolicyFor: retry.ForKind,
	}
}

// Engine drives tasks from dispatch to terminal state.
type Engine struct {
	registry    *session.Registry
	transcripts transcript.Store
	sims        *periods.Aggregator
	remote      RemoteClient
	hub         *events.Hub
	metrics     *metrics.Metrics
	cfg         Config
	logger      *slog.Logger

	wg sync.WaitGroup
}

// New wires an engine from its collaborators. metrics may be nil.
func New(registry *session.Registry, transcripts transcript.Store, sims *periods.Aggregator,
	client RemoteClient, hub *events.Hub, m *metrics.Metrics, cfg Config, logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PolicyFor == nil {
		cfg.PolicyFor = retry.ForKind
	}
	return &Engine{
		registry:    registry,
		transcripts: transcripts,
		sims:        sims,
		remote:      client,
		hub:         hub,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
	}
}

// Registry exposes the session registry for activation and listing.
func (e *Engine) Registry() *session.Registry { return e.registry }

// Transcripts exposes the transcript store for read paths.
func (e *Engine) Transcripts() transcript.Store { return e.transcripts }

// Periods exposes the simulation aggregator for read paths.
func (e *Engine) Periods() *periods.Aggregator { return e.sims }

// Dispatch starts one task for the given agent. It consults the registry
// first: the agent must be active and must not already own a non-terminal
// task. On success the transcript gains the user message (when present) and
// exactly one loading placeholder, and tracking proceeds in the background.
func (e *Engine) Dispatch(ctx context.Context, agentID string, req Request) (*domain.Task, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	task := domain.NewTask(req.Kind)
	// Tracking outlives the dispatching HTTP request, so the worker context
	// detaches from ctx; cancellation flows through the registry handle.
	runCtx, cancel := context.WithCancel(context.Background())

	handle, err := e.registry.Dispatch(agentID, task, cancel)
	if err != nil {
		cancel()
		if e.metrics != nil {
			e.metrics.DispatchRefusals.Inc()
		}
		return nil, err
	}

	if req.Prompt != "" {
		if err := e.transcripts.Append(ctx, domain.NewUserMessage(req.SessionID, req.Prompt)); err != nil {
			e.logger.Error("failed to append user message", "session_id", req.SessionID, "error", err)
		}
	}

	placeholder := domain.NewAgentPlaceholder(req.SessionID, agentID, task.ID)
	if err := e.transcripts.Append(ctx, placeholder); err != nil {
		handle.Cancel()
		e.registry.Complete(agentID, task.ID)
		return nil, fmt.Errorf("append placeholder: %w", err)
	}

	if e.metrics != nil {
		e.metrics.TasksDispatched.WithLabelValues(string(req.Kind)).Inc()
	}
	e.logger.Info("task dispatched", "task_id", task.ID, "kind", task.Kind, "agent_id", agentID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(runCtx, handle, req, placeholder)
	}()

	return task, nil
}

// Cancel aborts an in-flight task. Idempotent per task; unknown ids return
// ErrTaskNotFound.
func (e *Engine) Cancel(taskID string) error {
	handle, ok := e.registry.FindTask(taskID)
	if !ok {
		return ErrTaskNotFound
	}
	handle.Cancel()
	return nil
}

// Reset returns every session to Idle, cancels all in-flight tasks, and
// discards merged simulation data.
func (e *Engine) Reset() {
	e.registry.Reset()
	e.sims.Reset()
	e.logger.Info("engine reset")
}

// Shutdown waits for in-flight task goroutines to finish after canceling
// them, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.registry.Reset()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run tracks one dispatched task to its terminal state.
func (e *Engine) run(ctx context.Context, handle *session.Handle, req Request, placeholder *domain.Message) {
	task := handle.Task

	payload := map[string]any{}
	for k, v := range req.Payload {
		payload[k] = v
	}
	if req.Prompt != "" {
		payload["prompt"] = req.Prompt
	}

	disp, err := e.remote.Dispatch(ctx, task.Kind, payload)
	switch {
	case ctx.Err() != nil:
		e.finalize(ctx, handle, req, placeholder, poller.Result{Status: domain.StatusCanceled})
		return
	case err != nil && retry.IsTransport(err):
		e.finalize(ctx, handle, req, placeholder, poller.Result{Status: domain.StatusFailed, Message: poller.MsgUnreachable})
		return
	case err != nil:
		e.logger.Warn("dispatch rejected by worker", "task_id", task.ID, "error", err)
		e.finalize(ctx, handle, req, placeholder, poller.Result{Status: domain.StatusFailed, Message: poller.MsgGenericFailure})
		return
	}

	if disp.Immediate {
		if transitionErr := task.Transition(domain.StatusRunning); transitionErr != nil {
			e.logger.Error("immediate result on non-queued task", "task_id", task.ID, "status", task.Status)
		}
		if disp.Content == "" {
			e.finalize(ctx, handle, req, placeholder, poller.Result{Status: domain.StatusFailed, Message: poller.MsgEmptyResult})
			return
		}
		e.finalize(ctx, handle, req, placeholder, poller.Result{Status: domain.StatusCompleted, Content: disp.Content})
		return
	}

	task.RemoteID = disp.TaskID

	var result poller.Result
	if task.Kind.IsStreaming() {
		result = e.runStream(ctx, handle, req, placeholder)
	} else {
		result = e.runPoll(ctx, handle)
	}
	e.finalize(ctx, handle, req, placeholder, result)
}

// runPoll tracks the task through the status endpoint.
func (e *Engine) runPoll(ctx context.Context, handle *session.Handle) poller.Result {
	task := handle.Task
	p := poller.New(e.remote, e.cfg.PolicyFor(task.Kind), e.logger)

	if task.Kind == domain.KindSimulationRun {
		p.OnProgress(func(res *remote.StatusResult) {
			// The guard fences the merges against Cancel: a canceled task
			// touches the aggregator no further.
			handle.Guard(func() {
				for _, partial := range res.Periods {
					e.sims.Merge(partial)
					if e.metrics != nil {
						e.metrics.PeriodsMerged.Inc()
					}
				}
				if res.Complete {
					e.sims.Merge(domain.PeriodPartial{Complete: true})
				}
				if len(res.Periods) > 0 {
					// Progress event so the UI can extend period navigation
					// before the run finishes.
					e.hub.Publish(events.Outcome{
						TaskID:           task.ID,
						AgentID:          handle.AgentID,
						Kind:             task.Kind,
						Status:           domain.StatusRunning,
						Severity:         events.SeverityInfo,
						AvailablePeriods: e.sims.AvailablePeriods(),
					})
				}
			})
		})
	}

	result := p.Poll(ctx, task)
	if e.metrics != nil {
		e.metrics.RetryAttempts.WithLabelValues(string(task.Kind)).Add(float64(task.Attempt))
	}
	return result
}

// runStream tracks the task through the streaming endpoint, growing the
// placeholder message in place as content arrives.
func (e *Engine) runStream(ctx context.Context, handle *session.Handle, req Request, placeholder *domain.Message) poller.Result {
	task := handle.Task

	streamCtx := ctx
	if ceiling, ok := e.cfg.StreamTimeouts[task.Kind]; ok && ceiling > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, ceiling)
		defer cancel()
	}

	remoteID := task.RemoteID
	if remoteID == "" {
		remoteID = task.ID
	}

	body, err := e.remote.OpenStream(streamCtx, remoteID)
	if err != nil {
		if ctx.Err() != nil {
			return poller.Result{Status: domain.StatusCanceled}
		}
		e.logger.Warn("failed to open stream", "task_id", task.ID, "error", err)
		return poller.Result{Status: domain.StatusFailed, Message: poller.MsgUnreachable}
	}
	defer body.Close()

	if err := task.Transition(domain.StatusRunning); err != nil {
		return poller.Result{Status: domain.StatusFailed, Message: poller.MsgGenericFailure}
	}

	buf := stream.NewBuffer(func() {
		body.Close()
	})
	// Cancellation or the wall-clock ceiling seals the buffer and aborts the
	// transport through the buffer's hook, unblocking a stalled read.
	stopAbort := context.AfterFunc(streamCtx, buf.Cancel)
	defer stopAbort()

	consumer := stream.NewConsumer(stream.Classifier{RTL: req.RTL}, e.logger)
	if e.metrics != nil {
		consumer.OnDiscard = func(string) {
			e.metrics.StreamFrames.WithLabelValues("discarded").Inc()
		}
	}

	result := consumer.Run(streamCtx, body, buf, func(snapshot string) {
		// The guard fences the transcript write against Cancel: either the
		// write lands before Cancel returns or it never happens.
		handle.Guard(func() {
			if e.metrics != nil {
				e.metrics.StreamFrames.WithLabelValues("accepted").Inc()
			}
			patch := transcript.Patch{Content: transcript.String(snapshot)}
			if err := e.transcripts.UpdateByID(context.Background(), req.SessionID, placeholder.ID, patch); err != nil {
				e.logger.Warn("failed to grow streaming message", "message_id", placeholder.ID, "error", err)
			}
		})
	})

	return poller.Result{Status: result.Status, Content: result.Content, Message: result.Message}
}

// finalize resolves the task at its boundary: exactly one terminal update
// collapses the placeholder, the registry releases the in-flight slot, and
// one outcome event is published. A canceled task performs no transcript
// writes at all.
func (e *Engine) finalize(ctx context.Context, handle *session.Handle, req Request, placeholder *domain.Message, result poller.Result) {
	task := handle.Task

	if !task.Status.Terminal() {
		if err := task.Transition(result.Status); err != nil {
			// Queued tasks that never started still need a terminal state.
			if task.Status == domain.StatusQueued && task.Transition(domain.StatusRunning) == nil {
				_ = task.Transition(result.Status)
			}
		}
	}

	e.registry.Complete(handle.AgentID, task.ID)

	if e.metrics != nil {
		e.metrics.TasksTerminal.WithLabelValues(string(task.Kind), string(task.Status)).Inc()
	}

	if result.Status == domain.StatusCanceled || ctx.Err() == context.Canceled {
		e.publishCanceled(handle)
		return
	}

	content := result.Content
	isError := result.Status == domain.StatusFailed
	switch {
	case result.Status == domain.StatusCompleted && content == "":
		content = simulationReadyNotice
	case result.Status != domain.StatusCompleted:
		// Failed and TimedOut placeholders hold the user-facing explanation.
		content = result.Message
	}

	wrote := handle.Guard(func() {
		patch := transcript.Patch{
			Content:   transcript.String(content),
			IsLoading: transcript.Bool(false),
			IsError:   transcript.Bool(isError),
		}
		if err := e.transcripts.UpdateByID(context.Background(), req.SessionID, placeholder.ID, patch); err != nil {
			e.logger.Error("failed to finalize message", "message_id", placeholder.ID, "error", err)
		}

		if task.Kind == domain.KindSimulationRun && result.Status == domain.StatusCompleted {
			if _, err := e.transcripts.AppendNoticeOnce(context.Background(), req.SessionID, task.ID, simulationReadyNotice); err != nil {
				e.logger.Error("failed to append completion notice", "task_id", task.ID, "error", err)
			}
		}
	})
	if !wrote {
		// Cancel landed between tracking and finalization. The transcript
		// stays untouched; subscribers still learn the task ended.
		e.publishCanceled(handle)
		return
	}

	e.hub.Publish(events.Outcome{
		TaskID:   task.ID,
		AgentID:  handle.AgentID,
		Kind:     task.Kind,
		Status:   task.Status,
		Severity: events.SeverityFor(task.Status),
		Message:  result.Message,
	})
	e.logger.Info("task finished", "task_id", task.ID, "kind", task.Kind, "status", task.Status)
}

// publishCanceled announces a canceled task so every subscriber, not just the
// tab that requested the cancel, sees it reach a terminal state.
func (e *Engine) publishCanceled(handle *session.Handle) {
	task := handle.Task
	e.hub.Publish(events.Outcome{
		TaskID:   task.ID,
		AgentID:  handle.AgentID,
		Kind:     task.Kind,
		Status:   domain.StatusCanceled,
		Severity: events.SeverityFor(domain.StatusCanceled),
	})
	e.logger.Info("task canceled", "task_id", task.ID, "kind", task.Kind)
}
