package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 8, hour, min, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name          string
		aStart, aEnd  time.Time
		bStart, bEnd  time.Time
		expectOverlap bool
	}{
		{"identical", at(10, 0), at(11, 0), at(10, 0), at(11, 0), true},
		{"contained", at(10, 0), at(12, 0), at(10, 30), at(11, 0), true},
		{"partial front", at(10, 0), at(11, 0), at(10, 30), at(11, 30), true},
		{"partial back", at(10, 30), at(11, 30), at(10, 0), at(11, 0), true},
		{"touching boundary", at(10, 0), at(11, 0), at(11, 0), at(12, 0), false},
		{"touching boundary reversed", at(11, 0), at(12, 0), at(10, 0), at(11, 0), false},
		{"disjoint", at(9, 0), at(10, 0), at(13, 0), at(14, 0), false},
		{"one minute overlap", at(10, 0), at(11, 1), at(11, 0), at(12, 0), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectOverlap, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
		})
	}
}

func TestOverlapsSymmetry(t *testing.T) {
	intervals := [][2]time.Time{
		{at(9, 0), at(10, 0)},
		{at(9, 30), at(10, 30)},
		{at(10, 0), at(11, 0)},
		{at(11, 0), at(12, 0)},
	}

	for _, a := range intervals {
		for _, b := range intervals {
			assert.Equal(t,
				Overlaps(a[0], a[1], b[0], b[1]),
				Overlaps(b[0], b[1], a[0], a[1]),
				"overlap must be symmetric for %v and %v", a, b,
			)
		}
	}
}

func TestOverlapsMinutes(t *testing.T) {
	cases := []struct {
		name          string
		aStart, aEnd  int
		bStart, bEnd  int
		expectOverlap bool
	}{
		{"identical", 540, 600, 540, 600, true},
		{"contained", 540, 720, 570, 600, true},
		{"touching boundary", 540, 600, 600, 660, false},
		{"disjoint", 540, 600, 780, 840, false},
		{"one minute overlap", 540, 601, 600, 660, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectOverlap, OverlapsMinutes(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			assert.Equal(t, tc.expectOverlap, OverlapsMinutes(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
		})
	}
}

func TestISOWeekday(t *testing.T) {
	// 2024-01-08 is a Monday.
	assert.Equal(t, 1, ISOWeekday(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 6, ISOWeekday(time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 7, ISOWeekday(time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)))
}
