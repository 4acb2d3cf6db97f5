package services

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

// RetryAction is what should happen to a task after a delivery.
type RetryAction string

// Retry actions.
const (
	ActionComplete RetryAction = "complete"
	ActionRetry    RetryAction = "retry"
	ActionExhaust  RetryAction = "exhaust"

	// ActionFail ends a dry-run task that hit a fatal error. Nothing was
	// written, so there is nothing to dead-letter.
	ActionFail RetryAction = "fail"
)

// Decision is the verdict of the retry policy.
type Decision struct {
	Action RetryAction
	Delay  time.Duration
}

// RetryPolicy decides whether a delivery is retried, and after how long.
// Delays grow exponentially from RetryDelay and are capped by MaxRetryDelay.
type RetryPolicy struct {
	settings *domain.SettingsProvider
}

// NewRetryPolicy creates a policy reading its budget from settings.
func NewRetryPolicy(settings *domain.SettingsProvider) *RetryPolicy {
	return &RetryPolicy{settings: settings}
}

// Decide returns the action for a delivery. fatal is the task-fatal error
// returned by the processor, if any.
func (p *RetryPolicy) Decide(task domain.Task, outcome domain.BatchOutcome, fatal error) Decision {
	switch {
	case fatal != nil && task.DryRun:
		return Decision{Action: ActionFail}
	case fatal != nil:
		return Decision{Action: ActionExhaust}
	case !outcome.Failed(), task.DryRun:
		return Decision{Action: ActionComplete}
	}

	s := p.settings.Load()
	if task.Attempt >= s.MaxRetries {
		return Decision{Action: ActionExhaust}
	}
	return Decision{Action: ActionRetry, Delay: p.Delay(task.Attempt)}
}

// Delay returns the wait before the delivery following attempt.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	s := p.settings.Load()
	if s.RetryDelay <= 0 {
		return 0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.RetryDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = s.MaxRetryDelay
	if policy.MaxInterval < s.RetryDelay {
		policy.MaxInterval = s.RetryDelay
	}
	policy.MaxElapsedTime = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}
