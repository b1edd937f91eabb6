package http

import (
	"context"
	"sync/atomic"

	"gagyebu/internal/services"
)

// SchedulerMetrics counts recurring-rule outcomes for /metrics.
// It is registered on the processor with services.WithObserver.
type SchedulerMetrics struct {
	matched      atomic.Int64
	created      atomic.Int64
	skipped      atomic.Int64
	failed       atomic.Int64
	unrecognized atomic.Int64
}

func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{}
}

var _ services.OutcomeObserver = (*SchedulerMetrics)(nil)

func (m *SchedulerMetrics) Observe(_ context.Context, ev services.OutcomeEvent) {
	switch ev.Outcome {
	case services.OutcomeMatched:
		m.matched.Add(1)
	case services.OutcomeCreated:
		m.created.Add(1)
	case services.OutcomeDuplicateSkipped:
		m.skipped.Add(1)
	case services.OutcomeError:
		m.failed.Add(1)
	case services.OutcomeUnrecognized:
		m.unrecognized.Add(1)
	}
}

// SchedulerSnapshot is a point-in-time copy of the counters.
type SchedulerSnapshot struct {
	Matched      int64
	Created      int64
	Skipped      int64
	Failed       int64
	Unrecognized int64
}

func (m *SchedulerMetrics) Snapshot() SchedulerSnapshot {
	return SchedulerSnapshot{
		Matched:      m.matched.Load(),
		Created:      m.created.Load(),
		Skipped:      m.skipped.Load(),
		Failed:       m.failed.Load(),
		Unrecognized: m.unrecognized.Load(),
	}
}
