// Package speech implements the Speech-Detection Controller (§4.F): a
// per-session task that polls the Results Aggregator until meaningful
// speech is observed, then hands off to the Conversation Controller.
package speech

import (
	"context"
	"time"

	"chronicle/server/modules/transcription/domain/streaming"
)

// Thresholds holds the configurable meaningful-speech parameters from
// §4.F. Zero values are never valid; Defaults() supplies the spec's
// stated defaults.
type Thresholds struct {
	WMin int
	CMin float64
	DMin time.Duration
}

// Defaults returns the spec's stated default thresholds.
func Defaults() Thresholds {
	return Thresholds{WMin: 5, CMin: 0.5, DMin: 10 * time.Second}
}

// IsMeaningful applies §4.F's qualification test to an aggregate.
//
// If word-level data is available, it counts words at or above CMin
// confidence and checks both a minimum count and a minimum duration span
// between the first and last qualifying word. Otherwise it falls back to
// a plain word count over the aggregate text.
func IsMeaningful(agg streaming.Aggregate, t Thresholds) bool {
	if len(agg.Words) > 0 {
		var first, last time.Duration
		haveFirst := false
		count := 0
		for _, w := range agg.Words {
			if w.Confidence < t.CMin {
				continue
			}
			count++
			if !haveFirst {
				first = w.End
				haveFirst = true
			}
			last = w.End
		}
		return count >= t.WMin && haveFirst && (last-first) >= t.DMin
	}
	return agg.WordCount() >= t.WMin
}

// SessionStatus is the minimal view of session state the controller
// needs to decide when to stop polling (§4.F's cancellation rule).
type SessionStatus interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// Aggregator computes the current merged transcript view for a session
// (§4.E), used here as a narrow seam so tests can substitute a stub
// without constructing a real bus.
type Aggregator interface {
	Compute(ctx context.Context, sessionID string) (streaming.Aggregate, error)
}

// OnQualified is invoked exactly once, the moment a session's aggregate
// first satisfies IsMeaningful. Implementations create the Conversation
// and enqueue the Conversation Controller (§4.G).
type OnQualified func(ctx context.Context, sessionID string, agg streaming.Aggregate) error

// Controller runs the WAITING -> LAUNCHED -> EXIT state machine for one
// session.
type Controller struct {
	Aggregator Aggregator
	Status     SessionStatus
	Thresholds Thresholds
	PollEvery  time.Duration
	OnQualify  OnQualified
}

// NewController builds a Controller with the spec's default poll
// interval (~1s, matching the Conversation Controller's tick rate).
func NewController(agg Aggregator, status SessionStatus, thresholds Thresholds, onQualify OnQualified) *Controller {
	return &Controller{
		Aggregator: agg,
		Status:     status,
		Thresholds: thresholds,
		PollEvery:  time.Second,
		OnQualify:  onQualify,
	}
}

// Run blocks until the session qualifies, ends, or ctx is cancelled. It
// never re-enters LAUNCHED for the same invocation — the caller (the
// Conversation Controller, on its own exit) is responsible for spawning
// a fresh Controller for the session's next conversation.
func (c *Controller) Run(ctx context.Context, sessionID string) error {
	ticker := time.NewTicker(c.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			active, err := c.Status.IsActive(ctx, sessionID)
			if err != nil {
				return err
			}
			if !active {
				return nil
			}

			agg, err := c.Aggregator.Compute(ctx, sessionID)
			if err != nil {
				return err
			}
			if IsMeaningful(agg, c.Thresholds) {
				return c.OnQualify(ctx, sessionID, agg)
			}
		}
	}
}
