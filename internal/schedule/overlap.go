// Package schedule holds the pure scheduling core: the interval overlap
// predicate, slot tiling, and day-of-week conversion. Nothing here touches a
// store; services compose these with repositories.
package schedule

import "time"

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share any instant. An interval ending exactly when another
// begins does not overlap. Every place intervals are compared goes through
// this predicate or its minute-of-day twin below.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OverlapsMinutes is Overlaps for minute-of-day windows, used where rules are
// compared before they are ever projected onto a date.
func OverlapsMinutes(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// ISOWeekday converts t's weekday to ISO numbering: Monday=1 .. Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
