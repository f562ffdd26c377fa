package model

import "time"

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthToDate returns the window from the first of t's month up to t.
func MonthToDate(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: t}
}

// PriorMonthEquivalent returns the prior calendar month's window covering the
// same elapsed span as the current month-to-date window, so a partial current
// month is compared against an equally partial baseline.
func PriorMonthEquivalent(t time.Time) Period {
	mtd := MonthToDate(t)
	elapsed := mtd.End.Sub(mtd.Start)
	prevStart := mtd.Start.AddDate(0, -1, 0)
	end := prevStart.Add(elapsed)
	// Clamp to the prior month's actual end for short months.
	if monthEnd := mtd.Start; end.After(monthEnd) {
		end = monthEnd
	}
	return Period{Start: prevStart, End: end}
}

// LastNDays returns the window covering the n calendar days ending with t's day.
func LastNDays(t time.Time, n int) Period {
	end := Day(t).AddDate(0, 0, 1)
	return Period{Start: end.AddDate(0, 0, -n), End: end}
}
