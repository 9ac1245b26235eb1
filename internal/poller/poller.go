// Package poller drives a task to completion by repeated status checks
// against the remote worker, applying the retry policy between checks.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
	"github.com/mentora-labs/mentora/internal/remote"
	"github.com/mentora-labs/mentora/internal/retry"
)

// User-facing fallback messages per outcome class.
const (
	MsgStillProcessing = "This is taking longer than expected. The task is still processing — please retry in a moment."
	MsgUnreachable     = "Could not reach the assistant service. Please check your connection and try again."
	MsgEmptyResult     = "The task finished but produced no result."
	MsgGenericFailure  = "The task failed. Please try again."
)

// StatusChecker is the slice of the remote client the poller needs.
type StatusChecker interface {
	CheckStatus(ctx context.Context, taskID string) (*remote.StatusResult, error)
}

// Result is the terminal outcome of a polling run. Every run ends in exactly
// one Result; no error escapes untranslated.
type Result struct {
	Status  domain.TaskStatus
	Content string
	// Message is the user-facing explanation for non-Completed outcomes.
	Message string
}

// Poller polls the status endpoint for one task at a time.
type Poller struct {
	checker StatusChecker
	policy  retry.Policy
	logger  *slog.Logger

	// onProgress, when set, observes every non-terminal status result.
	// Simulations use it to merge partial period data as it arrives.
	onProgress func(*remote.StatusResult)
}

// New creates a poller with the given checker and policy.
func New(checker StatusChecker, policy retry.Policy, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		checker: checker,
		policy:  policy,
		logger:  logger,
	}
}

// OnProgress registers a callback invoked with each status observation that
// carries data, including the terminal one. Must be set before Poll.
func (p *Poller) OnProgress(fn func(*remote.StatusResult)) {
	p.onProgress = fn
}

// Poll drives the task to a terminal status. It transitions the task
// Queued -> Running, then checks status until the worker reports a terminal
// outcome, the policy is exhausted, or ctx is canceled. Delays between checks
// are timer-scheduled, never busy-waited. On ctx cancellation the task is
// marked Canceled and no further checks are issued.
func (p *Poller) Poll(ctx context.Context, task *domain.Task) Result {
	if task.Status == domain.StatusQueued {
		if err := task.Transition(domain.StatusRunning); err != nil {
			return p.terminal(task, domain.StatusFailed, "", MsgGenericFailure)
		}
	}

	// The worker tracks the task under its own id when dispatch was
	// asynchronous; fall back to the client id otherwise.
	remoteID := task.RemoteID
	if remoteID == "" {
		remoteID = task.ID
	}

	for {
		if ctx.Err() != nil {
			return p.terminal(task, domain.StatusCanceled, "", "")
		}

		task.RecordAttempt(time.Now())
		res, err := p.checker.CheckStatus(ctx, remoteID)

		switch {
		case ctx.Err() != nil:
			return p.terminal(task, domain.StatusCanceled, "", "")

		case err != nil && retry.IsTransport(err):
			p.logger.Warn("status check transport failure", "task_id", task.ID, "attempt", task.Attempt, "error", err)
			return p.terminal(task, domain.StatusFailed, "", MsgUnreachable)

		case err != nil:
			p.logger.Warn("status check failed", "task_id", task.ID, "attempt", task.Attempt, "error", err)
			return p.terminal(task, domain.StatusFailed, "", MsgGenericFailure)

		case res.State == remote.StateCompleted:
			if p.onProgress != nil {
				p.onProgress(res)
			}
			if res.Content == "" && len(res.Periods) == 0 {
				// An empty completion is a failure, never a silent success.
				return p.terminal(task, domain.StatusFailed, "", MsgEmptyResult)
			}
			return p.terminal(task, domain.StatusCompleted, res.Content, "")

		case res.State == remote.StateFailed:
			msg := res.Err
			if msg == "" {
				msg = MsgGenericFailure
			}
			return p.terminal(task, domain.StatusFailed, "", msg)

		case retry.Retryable(res.State):
			if p.onProgress != nil && (len(res.Periods) > 0 || res.Complete) {
				p.onProgress(res)
			}
			if p.policy.Exhausted(task.Attempt) {
				p.logger.Info("polling exhausted", "task_id", task.ID, "attempts", task.Attempt)
				return p.terminal(task, domain.StatusTimedOut, "", MsgStillProcessing)
			}
			if !p.sleep(ctx, p.policy.NextDelay(task.Attempt)) {
				return p.terminal(task, domain.StatusCanceled, "", "")
			}

		default:
			return p.terminal(task, domain.StatusFailed, "", MsgGenericFailure)
		}
	}
}

// sleep waits for the backoff delay or until ctx is canceled. Returns false
// when canceled.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Poller) terminal(task *domain.Task, status domain.TaskStatus, content, message string) Result {
	if !task.Status.Terminal() {
		if err := task.Transition(status); err != nil {
			p.logger.Error("invalid terminal transition", "task_id", task.ID, "from", task.Status, "to", status)
		}
	}
	return Result{Status: status, Content: content, Message: message}
}
