// Package core provides the recurrence grammar for recurring rules.
//
// A rule's day-rule string is parsed once into a DayRule variant. Strings the
// grammar does not cover become Unrecognized, which never fires.
package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DayRuleKind tells which calendar pattern a DayRule matches.
type DayRuleKind int

const (
	Unrecognized DayRuleKind = iota
	EveryDay
	WeekdaysOnly
	WeekendOnly
	WeeklyOnDays
	MonthlyOnDay
	MonthlyLastDay
)

// Day-rule literals as entered by users.
const (
	RuleEveryDay       = "매일"
	RuleWeekdaysOnly   = "평일만"
	RuleWeekendOnly    = "주말만"
	RuleMonthlyLastDay = "매월 말일"
)

// DayRule is the parsed form of a rule's day-rule string.
type DayRule struct {
	Kind DayRuleKind
	// Weekdays is set for WeeklyOnDays, in calendar order.
	Weekdays []time.Weekday
	// Day is set for MonthlyOnDay.
	Day int
	Raw string
}

// ParseOptions tunes the grammar.
type ParseOptions struct {
	// AllowMultipleWeekdays lets one weekly rule name several weekdays,
	// e.g. "월요일,수요일,금요일". Without it such rules are Unrecognized.
	AllowMultipleWeekdays bool
}

var (
	weekdayNames = [7]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}
	weekdayCodes = map[string]time.Weekday{
		"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
		"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
	}

	monthlyDayPattern  = regexp.MustCompile(`매월 (\d+)일`)
	monthlyCodePattern = regexp.MustCompile(`^D([1-9]|[12][0-9]|3[01])$`)
)

func (k DayRuleKind) String() string {
	switch k {
	case EveryDay:
		return "every_day"
	case WeekdaysOnly:
		return "weekdays_only"
	case WeekendOnly:
		return "weekend_only"
	case WeeklyOnDays:
		return "weekly_on_days"
	case MonthlyOnDay:
		return "monthly_on_day"
	case MonthlyLastDay:
		return "monthly_last_day"
	default:
		return "unrecognized"
	}
}

// WeekdayName returns the Korean name used in weekly day-rules.
func WeekdayName(wd time.Weekday) string {
	return weekdayNames[wd]
}

// ParseDailyRule parses the day-rule of a DAILY rule.
func ParseDailyRule(raw string) DayRule {
	switch strings.TrimSpace(raw) {
	case RuleEveryDay:
		return DayRule{Kind: EveryDay, Raw: raw}
	case RuleWeekdaysOnly:
		return DayRule{Kind: WeekdaysOnly, Raw: raw}
	case RuleWeekendOnly:
		return DayRule{Kind: WeekendOnly, Raw: raw}
	default:
		return DayRule{Kind: Unrecognized, Raw: raw}
	}
}

// ParseWeeklyRule parses the day-rule of a WEEKLY rule. The string must name
// a weekday ("매주 월요일") or use a weekday code ("MON").
func ParseWeeklyRule(raw string, opts ParseOptions) DayRule {
	var days []time.Weekday
	for wd, name := range weekdayNames {
		if strings.Contains(raw, name) {
			days = append(days, time.Weekday(wd))
		}
	}
	if len(days) == 0 {
		days = parseWeekdayCodes(raw)
	}

	switch {
	case len(days) == 0:
		return DayRule{Kind: Unrecognized, Raw: raw}
	case len(days) > 1 && !opts.AllowMultipleWeekdays:
		return DayRule{Kind: Unrecognized, Raw: raw}
	}
	return DayRule{Kind: WeeklyOnDays, Weekdays: days, Raw: raw}
}

func parseWeekdayCodes(raw string) []time.Weekday {
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(raw, ",") {
		wd, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(part))]
		if !ok {
			return nil
		}
		seen[wd] = true
	}
	var days []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if seen[wd] {
			days = append(days, wd)
		}
	}
	return days
}

// ParseMonthlyRule parses the day-rule of a MONTHLY rule. Ordinal-weekday
// forms such as "매월 첫째주 금요일" are not supported and stay Unrecognized.
func ParseMonthlyRule(raw string) DayRule {
	trimmed := strings.TrimSpace(raw)
	if trimmed == RuleMonthlyLastDay {
		return DayRule{Kind: MonthlyLastDay, Raw: raw}
	}

	var digits string
	if m := monthlyDayPattern.FindStringSubmatch(trimmed); m != nil {
		digits = m[1]
	} else if m := monthlyCodePattern.FindStringSubmatch(strings.ToUpper(trimmed)); m != nil {
		digits = m[1]
	}
	if digits == "" {
		return DayRule{Kind: Unrecognized, Raw: raw}
	}

	day, err := strconv.Atoi(digits)
	if err != nil || day < 1 || day > 31 {
		return DayRule{Kind: Unrecognized, Raw: raw}
	}
	return DayRule{Kind: MonthlyOnDay, Day: day, Raw: raw}
}

// ParseDayRule dispatches on frequency. Unknown frequencies are Unrecognized.
func ParseDayRule(freq Frequency, raw string, opts ParseOptions) DayRule {
	switch freq {
	case Daily:
		return ParseDailyRule(raw)
	case Weekly:
		return ParseWeeklyRule(raw, opts)
	case Monthly:
		return ParseMonthlyRule(raw)
	default:
		return DayRule{Kind: Unrecognized, Raw: raw}
	}
}

// Matches reports whether d is a firing date of the rule.
func (r DayRule) Matches(d Date) bool {
	switch r.Kind {
	case EveryDay:
		return true
	case WeekdaysOnly:
		return !d.IsWeekend()
	case WeekendOnly:
		return d.IsWeekend()
	case WeeklyOnDays:
		wd := d.Weekday()
		for _, day := range r.Weekdays {
			if day == wd {
				return true
			}
		}
		return false
	case MonthlyOnDay:
		return d.Day() == r.Day
	case MonthlyLastDay:
		return d.Day() == d.LastDayOfMonth()
	default:
		return false
	}
}

// IsRecognized reports whether the rule string parsed into a known pattern.
func (r DayRule) IsRecognized() bool {
	return r.Kind != Unrecognized
}
