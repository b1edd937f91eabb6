package services

import (
	"context"
	"log/slog"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

// Outcome is what happened to one rule on one date.
type Outcome string

const (
	OutcomeMatched          Outcome = "matched"
	OutcomeDuplicateSkipped Outcome = "duplicate_skipped"
	OutcomeCreated          Outcome = "created"
	OutcomeError            Outcome = "error"
	OutcomeUnrecognized     Outcome = "unrecognized"
)

// OutcomeEvent is emitted once per outcome while a date is processed.
type OutcomeEvent struct {
	RunID         string
	Outcome       Outcome
	RuleID        int64
	Date          core.Date
	Frequency     core.Frequency
	DayRule       string
	TransactionID int64
	Err           error
}

// OutcomeObserver receives per-rule outcome events.
type OutcomeObserver interface {
	Observe(ctx context.Context, ev OutcomeEvent)
}

// OutcomeObserverFunc adapts a function to OutcomeObserver.
type OutcomeObserverFunc func(ctx context.Context, ev OutcomeEvent)

func (f OutcomeObserverFunc) Observe(ctx context.Context, ev OutcomeEvent) {
	f(ctx, ev)
}

// LogObserver writes outcome events as leveled log records.
type LogObserver struct {
	logger *log.Logger
}

func NewLogObserver(logger *log.Logger) *LogObserver {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentRecurring)
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(ctx context.Context, ev OutcomeEvent) {
	args := []any{
		log.FieldRunID, ev.RunID,
		log.FieldOutcome, string(ev.Outcome),
		log.FieldRuleID, ev.RuleID,
		log.FieldDate, ev.Date.String(),
	}

	level := slog.LevelDebug
	switch ev.Outcome {
	case OutcomeCreated:
		level = slog.LevelInfo
		args = append(args, log.FieldTransactionID, ev.TransactionID)
	case OutcomeUnrecognized:
		level = slog.LevelWarn
		args = append(args, log.FieldFrequency, string(ev.Frequency), log.FieldDayRule, ev.DayRule)
	case OutcomeError:
		level = slog.LevelError
		args = append(args, log.FieldError, ev.Err)
	}

	o.logger.Log(ctx, level, "Recurring rule outcome", args...)
}

// multiObserver fans one event out to several observers.
type multiObserver []OutcomeObserver

func (m multiObserver) Observe(ctx context.Context, ev OutcomeEvent) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}
