package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
	"github.com/custodia-labs/derivex/internal/core/ports/driving"
)

// Ensure Monitor implements the interface.
var _ driving.Monitor = (*Monitor)(nil)

// Monitor tracks progress by counting documents that still match a query,
// e.g. "-category:*" while a classify pass runs.
type Monitor struct {
	store driven.DocumentStore
	now   func() time.Time
}

// NewMonitor creates a monitor over store.
func NewMonitor(store driven.DocumentStore) *Monitor {
	return &Monitor{store: store, now: time.Now}
}

// Sample counts the matching and total documents once.
func (m *Monitor) Sample(ctx context.Context, namespace string, q domain.Query, prev *driving.Progress, start time.Time) (driving.Progress, error) {
	matching, err := m.store.Count(ctx, namespace, q)
	if err != nil {
		return driving.Progress{}, fmt.Errorf("count matching: %w", err)
	}
	total, err := m.store.Count(ctx, namespace, domain.MatchAll())
	if err != nil {
		return driving.Progress{}, fmt.Errorf("count total: %w", err)
	}

	p := driving.Progress{At: m.now(), Matching: matching, Total: total}
	if prev == nil {
		return p, nil
	}

	p.Delta = prev.Matching - matching
	p.Processed = prev.Processed + p.Delta
	if elapsed := p.At.Sub(start).Seconds(); elapsed > 0 && p.Processed > 0 {
		p.Rate = float64(p.Processed) / elapsed
		p.ETA = time.Duration(float64(matching) / p.Rate * float64(time.Second))
	}
	return p, nil
}

// Watch samples immediately and then every interval. Both channels are
// closed when ctx ends or a sample fails.
func (m *Monitor) Watch(ctx context.Context, namespace string, q domain.Query, interval time.Duration) (<-chan driving.Progress, <-chan error) {
	out := make(chan driving.Progress)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		start := m.now()
		var prev *driving.Progress
		for {
			p, err := m.Sample(ctx, namespace, q, prev, start)
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
			prev = &p

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, errs
}
