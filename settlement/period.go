package settlement

import "time"

// =============================================================================
// PERIOD - The calendar range a settlement covers
// =============================================================================

// Period is an inclusive calendar date range at day granularity. Start and
// End carry no time-of-day component and are always in UTC so that the same
// reference instant resolves to the same period regardless of server zone.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t (truncated to its UTC date) falls in the period.
func (p Period) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Equal reports whether two periods cover the same date range.
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// DateLayout is the wire and storage format for period boundaries.
const DateLayout = "2006-01-02"

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// PERIOD CALCULATOR - Deterministic: reference instant + kind -> period
// =============================================================================

// PeriodFor returns the canonical settlement period containing ref.
//
//   - short_cycle: Monday through Sunday of the ISO week containing ref.
//     A Sunday reference still belongs to the week starting the preceding
//     Monday.
//   - long_cycle: first through last day of the calendar month containing
//     ref.
//
// Pure function of its inputs; callers inject the reference instant so runs
// are replayable and unit-testable.
func PeriodFor(kind Kind, ref time.Time) Period {
	date := DateOf(ref)

	switch kind {
	case KindLongCycle:
		start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		return Period{Start: start, End: end}

	default: // KindShortCycle
		// time.Weekday numbers Sunday as 0; shift so Monday is day 0.
		offset := (int(date.Weekday()) + 6) % 7
		start := date.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 6)}
	}
}
