package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

const (
	tracerName = "gagyebu/recurring"

	defaultRunTimeout = 5 * time.Minute
)

// ProcessorConfig holds the scheduling knobs of a RecurringProcessor.
type ProcessorConfig struct {
	// Location defines "today" for ProcessToday. Defaults to UTC.
	Location     *time.Location
	RangePolicy  core.RangePolicy
	ParseOptions core.ParseOptions
	// RunTimeout bounds one day's run. Defaults to five minutes.
	RunTimeout time.Duration
}

// ProcessorOption customises a RecurringProcessor.
type ProcessorOption func(*RecurringProcessor)

// WithObserver adds an observer next to the default log observer.
func WithObserver(o OutcomeObserver) ProcessorOption {
	return func(p *RecurringProcessor) {
		p.observers = append(p.observers, o)
	}
}

func WithLogger(l *log.Logger) ProcessorOption {
	return func(p *RecurringProcessor) {
		p.logger = l
	}
}

func WithTracer(t trace.Tracer) ProcessorOption {
	return func(p *RecurringProcessor) {
		p.tracer = t
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *RecurringProcessor) {
		p.now = now
	}
}

// RecurringProcessor materializes recurring rules into transactions for a
// date or a date range.
type RecurringProcessor struct {
	rules        RuleStore
	guard        *DuplicateGuard
	transactions *TransactionService
	evaluator    *RuleEvaluator

	location   *time.Location
	policy     core.RangePolicy
	runTimeout time.Duration

	logger    *log.Logger
	observers multiObserver
	tracer    trace.Tracer
	now       func() time.Time

	inflight singleflight.Group
}

// NewRecurringProcessor creates a new recurring rule processor
func NewRecurringProcessor(rules RuleStore, guard *DuplicateGuard, transactions *TransactionService, cfg ProcessorConfig, opts ...ProcessorOption) *RecurringProcessor {
	p := &RecurringProcessor{
		rules:        rules,
		guard:        guard,
		transactions: transactions,
		evaluator:    NewRuleEvaluator(cfg.ParseOptions),
		location:     cfg.Location,
		policy:       cfg.RangePolicy,
		runTimeout:   cfg.RunTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.location == nil {
		p.location = time.UTC
	}
	if p.runTimeout <= 0 {
		p.runTimeout = defaultRunTimeout
	}
	if !p.policy.IsValid() {
		p.policy = core.RangeFailFast
	}
	if p.logger == nil {
		p.logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentRecurring)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	p.observers = append(multiObserver{NewLogObserver(p.logger)}, p.observers...)

	return p
}

// NewRecurringProcessorForStore wires guard and materializer over one store.
func NewRecurringProcessorForStore(store Store, publisher EventPublisher, cfg ProcessorConfig, opts ...ProcessorOption) *RecurringProcessor {
	return NewRecurringProcessor(
		store,
		NewDuplicateGuard(store),
		NewTransactionService(store, store, publisher),
		cfg,
		opts...,
	)
}

// Today returns the current date in the processor's location.
func (p *RecurringProcessor) Today() core.Date {
	return core.DateOf(p.now().In(p.location))
}

// ProcessToday processes all active rules for today.
func (p *RecurringProcessor) ProcessToday(ctx context.Context) (core.DateResult, error) {
	return p.ProcessForDate(ctx, p.Today(), core.ProcessOptions{})
}

// ProcessForDate evaluates every active rule for date. Per-rule failures are
// counted and listed; only a failure to list the rules is returned.
//
// Identical concurrent calls share one run. The shared run is detached from
// the callers' cancellation and bounded by the run timeout, so a caller that
// leaves early only stops waiting; the others still get the result.
func (p *RecurringProcessor) ProcessForDate(ctx context.Context, date core.Date, opts core.ProcessOptions) (core.DateResult, error) {
	ch := p.inflight.DoChan(inflightKey(date, opts), func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.runTimeout)
		defer cancel()
		return p.processDate(runCtx, date, opts)
	})

	select {
	case <-ctx.Done():
		return core.DateResult{Date: date.String(), Error: ctx.Err().Error()}, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(core.DateResult)
		return result, res.Err
	}
}

func inflightKey(date core.Date, opts core.ProcessOptions) string {
	key := date.String()
	if opts.RuleID != nil {
		key += "|r" + strconv.FormatInt(*opts.RuleID, 10)
	}
	if opts.UserID != nil {
		key += "|u" + strconv.FormatInt(*opts.UserID, 10)
	}
	return key
}

func (p *RecurringProcessor) processDate(ctx context.Context, date core.Date, opts core.ProcessOptions) (core.DateResult, error) {
	runID := uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "recurring.process_date", trace.WithAttributes(
		attribute.String("recurring.date", date.String()),
		attribute.String("recurring.run_id", runID),
	))
	defer span.End()

	result := core.DateResult{Date: date.String()}

	rules, err := p.rules.ListActiveRules(ctx, core.RuleFilter{
		AsOf:   date,
		RuleID: opts.RuleID,
		UserID: opts.UserID,
	})
	if err != nil {
		err = fmt.Errorf("list active rules: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Error = err.Error()
		return result, err
	}
	result.Total = len(rules)

	p.logger.DebugContext(ctx, "Processing recurring rules",
		log.FieldRunID, runID,
		log.FieldDate, date.String(),
		log.FieldTotal, len(rules))

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			result.Error = err.Error()
			return result, err
		}

		outcome, err := p.processRule(ctx, runID, rule, date)
		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeDuplicateSkipped:
			result.Skipped++
		case OutcomeError:
			result.Failed++
			result.Failures = append(result.Failures, core.RuleFailure{RuleID: rule.ID, Error: err.Error()})
		}
	}

	result.Success = true
	span.SetAttributes(
		attribute.Int("recurring.total", result.Total),
		attribute.Int("recurring.created", result.Created),
		attribute.Int("recurring.skipped", result.Skipped),
		attribute.Int("recurring.failed", result.Failed),
	)

	p.logger.InfoContext(ctx, "Recurring rule processing complete",
		log.FieldRunID, runID,
		log.FieldDate, date.String(),
		log.FieldCreated, result.Created,
		log.FieldSkipped, result.Skipped,
		log.FieldFailed, result.Failed,
		log.FieldTotal, result.Total)

	return result, nil
}

// processRule runs one rule through predicate, guard and materializer.
// An empty outcome means the rule does not fire on date.
func (p *RecurringProcessor) processRule(ctx context.Context, runID string, rule core.RecurringRule, date core.Date) (Outcome, error) {
	ev := OutcomeEvent{
		RunID:     runID,
		RuleID:    rule.ID,
		Date:      date,
		Frequency: rule.Frequency,
		DayRule:   rule.DayRule,
	}

	due, dayRule := p.evaluator.IsDue(rule, date)
	if !dayRule.IsRecognized() {
		p.emit(ctx, ev, OutcomeUnrecognized)
		return "", nil
	}
	if !due {
		return "", nil
	}
	p.emit(ctx, ev, OutcomeMatched)

	exists, err := p.guard.Exists(ctx, rule.DuplicateKey(date))
	if err != nil {
		ev.Err = err
		p.emit(ctx, ev, OutcomeError)
		return OutcomeError, err
	}
	if exists {
		p.emit(ctx, ev, OutcomeDuplicateSkipped)
		return OutcomeDuplicateSkipped, nil
	}

	tx, err := p.transactions.Materialize(ctx, rule, date)
	switch {
	case errors.Is(err, core.ErrDuplicateTransaction):
		p.emit(ctx, ev, OutcomeDuplicateSkipped)
		return OutcomeDuplicateSkipped, nil
	case err != nil:
		ev.Err = err
		p.emit(ctx, ev, OutcomeError)
		return OutcomeError, err
	}

	ev.TransactionID = tx.ID
	p.emit(ctx, ev, OutcomeCreated)
	return OutcomeCreated, nil
}

func (p *RecurringProcessor) emit(ctx context.Context, ev OutcomeEvent, outcome Outcome) {
	ev.Outcome = outcome
	attrs := []attribute.KeyValue{
		attribute.Int64("recurring.rule_id", ev.RuleID),
	}
	if ev.Err != nil {
		attrs = append(attrs, attribute.String("error", ev.Err.Error()))
	}
	trace.SpanFromContext(ctx).AddEvent("rule."+string(outcome), trace.WithAttributes(attrs...))
	p.observers.Observe(ctx, ev)
}

// ProcessForRange processes start..end inclusive, one day at a time.
// Under RangeFailFast the first failing day aborts the run and the days
// processed so far are returned with the error. Under RangeIsolate the
// failing day is recorded with its error and the run continues.
func (p *RecurringProcessor) ProcessForRange(ctx context.Context, start, end core.Date, userID *int64) ([]core.DateResult, error) {
	if start.After(end) {
		return nil, core.ErrInvalidRange
	}

	ctx, span := p.tracer.Start(ctx, "recurring.process_range", trace.WithAttributes(
		attribute.String("recurring.start_date", start.String()),
		attribute.String("recurring.end_date", end.String()),
		attribute.String("recurring.policy", string(p.policy)),
	))
	defer span.End()

	results := make([]core.DateResult, 0, core.DaysBetween(start, end)+1)
	for day := start; !day.After(end); day = day.AddDays(1) {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return results, err
		}

		result, err := p.ProcessForDate(ctx, day, core.ProcessOptions{UserID: userID})
		if err != nil {
			if p.policy == core.RangeFailFast || ctx.Err() != nil {
				err = fmt.Errorf("process %s: %w", day, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return results, err
			}
			p.logger.ErrorContext(ctx, "Failed to process day, continuing",
				log.FieldDate, day.String(),
				log.FieldError, err)
			result.Success = false
			result.Date = day.String()
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	return results, nil
}

// GenerateForRule creates the transaction of one rule on date without
// consulting the rule's grammar. The rule must be active and owned by userID.
func (p *RecurringProcessor) GenerateForRule(ctx context.Context, ruleID, userID int64, date core.Date) (core.Transaction, error) {
	rule, err := p.rules.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("get rule: %w", err)
	}
	if rule.Owner() != userID || !rule.IsActive {
		return core.Transaction{}, core.ErrRuleNotFound
	}

	exists, err := p.guard.Exists(ctx, rule.DuplicateKey(date))
	if err != nil {
		return core.Transaction{}, err
	}
	if exists {
		return core.Transaction{}, core.ErrDuplicateTransaction
	}

	tx, err := p.transactions.Materialize(ctx, *rule, date)
	if err != nil {
		return core.Transaction{}, err
	}

	p.logger.InfoContext(ctx, "Generated transaction from recurring rule",
		log.FieldRuleID, rule.ID,
		log.FieldTransactionID, tx.ID,
		log.FieldDate, date.String())

	return tx, nil
}
