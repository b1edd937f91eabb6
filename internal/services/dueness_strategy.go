// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurring rule dueness checking.
// Each frequency (daily, weekly, monthly) has its own checker that knows how
// to read that frequency's day-rule strings.

package services

import (
	"fmt"

	"gagyebu/internal/core"
)

// DuenessChecker is the strategy interface for one rule frequency.
type DuenessChecker interface {
	// Parse reads a day-rule string into its typed form.
	Parse(raw string, opts core.ParseOptions) core.DayRule
}

// DailyChecker handles 매일, 평일만 and 주말만.
type DailyChecker struct{}

func (DailyChecker) Parse(raw string, _ core.ParseOptions) core.DayRule {
	return core.ParseDailyRule(raw)
}

// WeeklyChecker handles weekday names and MON..SUN codes.
type WeeklyChecker struct{}

func (WeeklyChecker) Parse(raw string, opts core.ParseOptions) core.DayRule {
	return core.ParseWeeklyRule(raw, opts)
}

// MonthlyChecker handles 매월 N일, 매월 말일 and D1..D31.
type MonthlyChecker struct{}

func (MonthlyChecker) Parse(raw string, _ core.ParseOptions) core.DayRule {
	return core.ParseMonthlyRule(raw)
}

// duenessStrategies maps frequencies to their checkers.
var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
}

// GetDuenessChecker returns the checker for a frequency.
// Returns an error if the frequency is not supported.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}

// RegisterDuenessChecker registers a checker for a new frequency.
// Not safe for use concurrently with evaluation; call it during startup.
func RegisterDuenessChecker(frequency core.Frequency, checker DuenessChecker) {
	duenessStrategies[frequency] = checker
}

// RuleEvaluator decides whether a rule fires on a date.
type RuleEvaluator struct {
	opts core.ParseOptions
}

func NewRuleEvaluator(opts core.ParseOptions) *RuleEvaluator {
	return &RuleEvaluator{opts: opts}
}

// Parse returns the typed day rule. Unknown frequencies yield Unrecognized.
func (e *RuleEvaluator) Parse(frequency core.Frequency, raw string) core.DayRule {
	checker, err := GetDuenessChecker(frequency)
	if err != nil {
		return core.DayRule{Kind: core.Unrecognized, Raw: raw}
	}
	return checker.Parse(raw, e.opts)
}

// IsDue reports whether rule fires on target, returning the parsed day rule
// so callers can tell a non-firing rule from an unrecognized one.
func (e *RuleEvaluator) IsDue(rule core.RecurringRule, target core.Date) (bool, core.DayRule) {
	dayRule := e.Parse(rule.Frequency, rule.DayRule)
	if target.Before(rule.StartDate) {
		return false, dayRule
	}
	return dayRule.Matches(target), dayRule
}

// Matches reports whether a rule with the given grammar fires on target.
// Dates before start never fire.
func Matches(dayRule string, frequency core.Frequency, target, start core.Date) bool {
	due, _ := NewRuleEvaluator(core.ParseOptions{}).IsDue(core.RecurringRule{
		Frequency: frequency,
		DayRule:   dayRule,
		StartDate: start,
	}, target)
	return due
}
