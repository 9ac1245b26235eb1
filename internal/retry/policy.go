// Package retry provides the backoff policy used when polling remote tasks.
package retry

import (
	"errors"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
)

// Policy defines retry behavior for one task kind.
type Policy struct {
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Cap for the computed delay
	Multiplier  float64       // Backoff growth factor per retry
	MaxAttempts int           // Hard attempt ceiling; exceeding it means TimedOut
}

// SimulationPolicy returns the polling policy for long-running simulation
// tasks. Simulations take minutes, so the ceiling is generous.
func SimulationPolicy() Policy {
	return Policy{
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 60,
	}
}

// LessonPolicy returns the polling policy for lesson generation tasks.
func LessonPolicy() Policy {
	return Policy{
		BaseDelay:   1200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 8,
	}
}

// ChatPolicy returns the polling policy for chat replies that fall back to
// status polling instead of streaming.
func ChatPolicy() Policy {
	return Policy{
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 5,
	}
}

// ForKind returns the default policy for a task kind.
func ForKind(kind domain.TaskKind) Policy {
	switch kind {
	case domain.KindSimulationRun:
		return SimulationPolicy()
	case domain.KindLessonGeneration:
		return LessonPolicy()
	default:
		return ChatPolicy()
	}
}

// NextDelay computes the delay before the given retry attempt. Attempts are
// 1-based; the first retry waits BaseDelay and each subsequent retry grows by
// Multiplier, capped at MaxDelay. The result never drops below BaseDelay.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if time.Duration(delay) >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	return time.Duration(delay)
}

// Exhausted reports whether the attempt count has reached the ceiling.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Validate checks if the policy configuration is valid.
func (p Policy) Validate() error {
	if p.BaseDelay <= 0 {
		return errors.New("BaseDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.Multiplier < 1.0 {
		return errors.New("Multiplier must be at least 1.0")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("MaxAttempts must be positive")
	}
	if p.BaseDelay > p.MaxDelay {
		return errors.New("BaseDelay cannot be greater than MaxDelay")
	}
	return nil
}
