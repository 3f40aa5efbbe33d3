package billing

import (
	"time"

	"github.com/jinzhu/now"
)

// Period is an inclusive billing date range
type Period struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Contains reports whether d falls inside the period
func (p Period) Contains(d time.Time) bool {
	d = truncateDate(d)
	return !d.Before(p.Start) && !d.After(p.End)
}

// NextPeriodStart is the day after the current period ends
func NextPeriodStart(currentPeriodEnd time.Time) time.Time {
	return truncateDate(currentPeriodEnd).AddDate(0, 0, 1)
}

// CalculateNextPeriodEnd returns the last day of the period that follows one
// ending on currentPeriodEnd. Month-end tenancies stay anchored to month-end,
// the others keep their day of month.
func CalculateNextPeriodEnd(currentPeriodEnd time.Time) time.Time {
	return PeriodEndForStart(NextPeriodStart(currentPeriodEnd))
}

// PeriodEndForStart returns the inclusive end of a one-month period starting on start.
func PeriodEndForStart(start time.Time) time.Time {
	start = truncateDate(start)
	candidate := AddMonthsClamped(start, 1)
	if IsLastDayOfMonth(start) {
		return LastDayOfMonth(candidate)
	}
	return candidate.AddDate(0, 0, -1)
}

// NextPeriod computes the full period following currentPeriodEnd
func NextPeriod(currentPeriodEnd time.Time) Period {
	return Period{
		Start: NextPeriodStart(currentPeriodEnd),
		End:   CalculateNextPeriodEnd(currentPeriodEnd),
	}
}

// AddMonthsClamped adds calendar months, clamping the day to the target month's length.
// time.AddDate would roll Jan 31 + 1 month over into March.
func AddMonthsClamped(d time.Time, months int) time.Time {
	d = truncateDate(d)
	firstOfTarget := now.With(d).BeginningOfMonth().AddDate(0, months, 0)
	last := LastDayOfMonth(firstOfTarget)
	day := d.Day()
	if day > last.Day() {
		day = last.Day()
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, d.Location())
}

// LastDayOfMonth returns the final calendar day of d's month
func LastDayOfMonth(d time.Time) time.Time {
	return truncateDate(now.With(d).EndOfMonth())
}

// IsLastDayOfMonth reports whether d is the final day of its month
func IsLastDayOfMonth(d time.Time) bool {
	return truncateDate(d).Equal(LastDayOfMonth(d))
}

func truncateDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.Location())
}
