package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// CronToHuman describes a five-field cron expression (minute, hour,
// day-of-month, month, day-of-week) in plain English. It understands the
// shapes the scheduler emits: wildcards, single values, step values on
// minutes and hours, day-of-week lists and ranges. Anything else, including
// malformed input, is described as "Custom schedule: <expr>".
func CronToHuman(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fallback(expr)
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if minute == "*" && hour == "*" && dom == "*" && month == "*" && dow == "*" {
		return "Every minute"
	}

	if step, ok := parseStep(minute, 59); ok && hour == "*" && dom == "*" && month == "*" && dow == "*" {
		if step == 1 {
			return "Every minute"
		}
		return fmt.Sprintf("Every %d minutes", step)
	}

	m, ok := parseValue(minute, 0, 59)
	if !ok {
		return fallback(expr)
	}

	if hour == "*" && dom == "*" && month == "*" && dow == "*" {
		return fmt.Sprintf("Every hour at minute %d", m)
	}
	if step, ok := parseStep(hour, 23); ok && dom == "*" && month == "*" && dow == "*" {
		if step == 1 {
			return fmt.Sprintf("Every hour at minute %d", m)
		}
		return fmt.Sprintf("Every %d hours at minute %d", step, m)
	}

	h, ok := parseValue(hour, 0, 23)
	if !ok {
		return fallback(expr)
	}
	at := clock(h, m)

	switch {
	case dom == "*" && month == "*" && dow == "*":
		return "Daily at " + at
	case dom == "*" && month == "*":
		days, ok := describeWeekdays(dow)
		if !ok {
			return fallback(expr)
		}
		return days + " at " + at
	case month == "*" && dow == "*":
		d, ok := parseValue(dom, 1, 31)
		if !ok {
			return fallback(expr)
		}
		return fmt.Sprintf("Monthly on day %d at %s", d, at)
	case dow == "*":
		d, ok := parseValue(dom, 1, 31)
		if !ok {
			return fallback(expr)
		}
		mo, ok := parseValue(month, 1, 12)
		if !ok {
			return fallback(expr)
		}
		return fmt.Sprintf("Yearly on %s %d at %s", time.Month(mo), d, at)
	}
	return fallback(expr)
}

func fallback(expr string) string {
	return "Custom schedule: " + strings.TrimSpace(expr)
}

// clock formats an hour and minute as a 12-hour time, e.g. "9:00 AM".
func clock(h, m int) string {
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}

func parseValue(field string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(field)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// parseStep reads "*/N" fields.
func parseStep(field string, hi int) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	return parseValue(rest, 1, hi)
}

// describeWeekdays renders a day-of-week field: a single day, a range or a
// comma-separated list. Both 0 and 7 mean Sunday.
func describeWeekdays(field string) (string, bool) {
	switch field {
	case "1-5":
		return "Weekdays", true
	case "0,6", "6,0", "6,7", "6-7":
		return "Weekends", true
	}

	var days []int
	for _, part := range strings.Split(field, ",") {
		if lo, hi, isRange := strings.Cut(part, "-"); isRange {
			a, ok1 := parseValue(lo, 0, 7)
			b, ok2 := parseValue(hi, 0, 7)
			if !ok1 || !ok2 || a > b {
				return "", false
			}
			for d := a; d <= b; d++ {
				days = append(days, d%7)
			}
			continue
		}
		d, ok := parseValue(part, 0, 7)
		if !ok {
			return "", false
		}
		days = append(days, d%7)
	}

	names := make([]string, len(days))
	for i, d := range days {
		names[i] = weekdays[d]
	}
	return "Every " + strings.Join(names, ", "), true
}
