package services

import (
	"testing"

	"gagyebu/internal/core"
)

func TestMatches(t *testing.T) {
	start := core.NewDate(2025, 1, 1)

	tests := []struct {
		name      string
		dayRule   string
		frequency core.Frequency
		target    core.Date
		start     core.Date
		want      bool
	}{
		{
			name:      "before start date - never fires",
			dayRule:   "매일",
			frequency: core.Daily,
			target:    core.NewDate(2024, 12, 31),
			start:     start,
			want:      false,
		},
		{
			name:      "on start date - fires",
			dayRule:   "매일",
			frequency: core.Daily,
			target:    start,
			start:     start,
			want:      true,
		},
		{
			name:      "weekdays only on wednesday",
			dayRule:   "평일만",
			frequency: core.Daily,
			target:    core.NewDate(2025, 1, 8),
			start:     start,
			want:      true,
		},
		{
			name:      "weekdays only on saturday",
			dayRule:   "평일만",
			frequency: core.Daily,
			target:    core.NewDate(2025, 1, 11),
			start:     start,
			want:      false,
		},
		{
			name:      "weekly friday on friday",
			dayRule:   "매주 금요일",
			frequency: core.Weekly,
			target:    core.NewDate(2025, 1, 10),
			start:     start,
			want:      true,
		},
		{
			name:      "weekly code on monday",
			dayRule:   "MON",
			frequency: core.Weekly,
			target:    core.NewDate(2025, 1, 13),
			start:     start,
			want:      true,
		},
		{
			name:      "monthly fifth",
			dayRule:   "매월 5일",
			frequency: core.Monthly,
			target:    core.NewDate(2025, 3, 5),
			start:     start,
			want:      true,
		},
		{
			name:      "monthly last day in leap february",
			dayRule:   "매월 말일",
			frequency: core.Monthly,
			target:    core.NewDate(2024, 2, 29),
			start:     core.NewDate(2024, 1, 1),
			want:      true,
		},
		{
			name:      "unknown frequency",
			dayRule:   "매일",
			frequency: core.Frequency("YEARLY"),
			target:    core.NewDate(2025, 3, 5),
			start:     start,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(tt.dayRule, tt.frequency, tt.target, tt.start)
			if got != tt.want {
				t.Errorf("Matches(%q, %s, %s) = %v, want %v", tt.dayRule, tt.frequency, tt.target, got, tt.want)
			}
		})
	}
}

func TestGetDuenessChecker(t *testing.T) {
	for _, freq := range []core.Frequency{core.Daily, core.Weekly, core.Monthly} {
		if _, err := GetDuenessChecker(freq); err != nil {
			t.Errorf("GetDuenessChecker(%s) error = %v", freq, err)
		}
	}
	if _, err := GetDuenessChecker(core.Frequency("YEARLY")); err == nil {
		t.Error("GetDuenessChecker(YEARLY) expected error")
	}
}

func TestRuleEvaluator_MultipleWeekdays(t *testing.T) {
	rule := core.RecurringRule{
		Frequency: core.Weekly,
		DayRule:   "월요일,수요일,금요일",
		StartDate: core.NewDate(2025, 1, 1),
	}
	wednesday := core.NewDate(2025, 1, 8)

	due, parsed := NewRuleEvaluator(core.ParseOptions{}).IsDue(rule, wednesday)
	if due || parsed.IsRecognized() {
		t.Errorf("without extension: due = %v, kind = %v, want not due and unrecognized", due, parsed.Kind)
	}

	due, parsed = NewRuleEvaluator(core.ParseOptions{AllowMultipleWeekdays: true}).IsDue(rule, wednesday)
	if !due || parsed.Kind != core.WeeklyOnDays {
		t.Errorf("with extension: due = %v, kind = %v, want due and weekly", due, parsed.Kind)
	}
}
