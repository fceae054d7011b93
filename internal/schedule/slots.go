package schedule

import (
	"time"

	"github.com/tutorhive/tutorhive-api/internal/models"
)

// TilingWindow bounds the daily slot grid, in minutes from midnight.
type TilingWindow struct {
	StartMinute int
	EndMinute   int
	SlotWidth   time.Duration
}

// Tile derives the candidate slots for a date from the tutor's weekly rules.
// Slots are fixed-width, tiled from the window start, and kept only when fully
// contained in at least one is_available rule; a rule edge that does not align
// to the grid silently drops the partial slot. Results are ordered by start
// time ascending with IsAvailable=true.
func Tile(date time.Time, rules []models.WeeklyAvailabilityRule, window TilingWindow) []models.TimeSlot {
	width := int(window.SlotWidth / time.Minute)
	if width <= 0 {
		return nil
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	var slots []models.TimeSlot
	for m := window.StartMinute; m+width <= window.EndMinute; m += width {
		if !coveredByRule(rules, m, m+width) {
			continue
		}
		start := day.Add(time.Duration(m) * time.Minute)
		end := start.Add(window.SlotWidth)
		slots = append(slots, models.TimeSlot{
			SlotID:      start.Format("20060102T1504"),
			StartTime:   start,
			EndTime:     end,
			IsAvailable: true,
		})
	}
	return slots
}

// coveredByRule reports whether [startMin, endMin) sits fully inside one of
// the tutor's available windows. Rules on the same day are a union: full
// containment in any single rule suffices.
func coveredByRule(rules []models.WeeklyAvailabilityRule, startMin, endMin int) bool {
	for _, rule := range rules {
		if !rule.IsAvailable {
			continue
		}
		if rule.StartMinute <= startMin && endMin <= rule.EndMinute {
			return true
		}
	}
	return false
}

// MarkBusy flags slots that overlap any of the given lessons. Only lessons in
// pending or confirmed status occupy the calendar.
func MarkBusy(slots []models.TimeSlot, lessons []models.Lesson) {
	for i := range slots {
		for _, lesson := range lessons {
			if lesson.Status != models.LessonPending && lesson.Status != models.LessonConfirmed {
				continue
			}
			if Overlaps(slots[i].StartTime, slots[i].EndTime, lesson.StartTime, lesson.EndTime) {
				slots[i].IsAvailable = false
				break
			}
		}
	}
}
