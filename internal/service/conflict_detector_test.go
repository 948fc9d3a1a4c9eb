package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func strPtr(v string) *string { return &v }

func venueSlot(id, start, end, venue string) models.Slot {
	return models.Slot{
		ID:           id,
		StartTime:    models.MustClockTime(start),
		EndTime:      models.MustClockTime(end),
		ActivityType: models.ActivityClass,
		Title:        id,
		VenueID:      strPtr(venue),
		Status:       models.SlotStatusScheduled,
	}
}

func TestConflictDetectorExactDoubleBooking(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Monday,
		Slots: []models.Slot{
			venueSlot("a", "09:00", "10:00", "V1"),
			venueSlot("b", "09:00", "10:00", "V1"),
		},
	}}

	conflicts := detector.Detect(schedule)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTypeVenue, conflicts[0].Type)
	assert.Equal(t, models.SeverityCritical, conflicts[0].Severity)
	assert.False(t, conflicts[0].Resolved)
	assert.Equal(t, "a", conflicts[0].SlotA.SlotID)
	assert.Equal(t, "b", conflicts[0].SlotB.SlotID)
	assert.Equal(t, "V1", conflicts[0].ResourceID)
	assert.Equal(t, models.Monday, conflicts[0].SlotA.Day)
}

func TestConflictDetectorTouchingRangesDoNotConflict(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Monday,
		Slots: []models.Slot{
			venueSlot("a", "09:00", "10:00", "V1"),
			venueSlot("b", "10:00", "11:00", "V1"),
		},
	}}

	assert.Empty(t, detector.Detect(schedule))
}

func TestConflictDetectorPartialOverlap(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Tuesday,
		Slots: []models.Slot{
			venueSlot("a", "09:00", "10:30", "V1"),
			venueSlot("b", "10:00", "11:00", "V1"),
			venueSlot("c", "10:30", "12:00", "V1"),
		},
	}}

	conflicts := detector.Detect(schedule)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "a", conflicts[0].SlotA.SlotID)
	assert.Equal(t, "b", conflicts[0].SlotB.SlotID)
	assert.Equal(t, "b", conflicts[1].SlotA.SlotID)
	assert.Equal(t, "c", conflicts[1].SlotB.SlotID)
}

func TestConflictDetectorDifferentDaysOrResourcesAreIndependent(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{
		{DayOfWeek: models.Monday, Slots: []models.Slot{venueSlot("a", "09:00", "10:00", "V1")}},
		{DayOfWeek: models.Tuesday, Slots: []models.Slot{
			venueSlot("b", "09:00", "10:00", "V1"),
			venueSlot("c", "09:00", "10:00", "V2"),
		}},
	}

	assert.Empty(t, detector.Detect(schedule))
}

func TestConflictDetectorSeverityPerKind(t *testing.T) {
	detector := NewConflictDetector()
	first := models.Slot{ID: "a", StartTime: models.MustClockTime("08:00"), EndTime: models.MustClockTime("09:00"),
		ActivityType: models.ActivityLab, FacultyID: strPtr("F1"), TrainerID: strPtr("T1")}
	second := models.Slot{ID: "b", StartTime: models.MustClockTime("08:30"), EndTime: models.MustClockTime("09:30"),
		ActivityType: models.ActivityLab, FacultyID: strPtr("F1"), TrainerID: strPtr("T1")}

	conflicts := detector.Detect([]models.DaySchedule{{DayOfWeek: models.Friday, Slots: []models.Slot{first, second}}})
	require.Len(t, conflicts, 2)
	assert.Equal(t, models.ConflictTypeFaculty, conflicts[0].Type)
	assert.Equal(t, models.SeverityMajor, conflicts[0].Severity)
	assert.Equal(t, models.ConflictTypeTrainer, conflicts[1].Type)
	assert.Equal(t, models.SeverityCritical, conflicts[1].Severity)
}

func TestConflictDetectorIsIdempotent(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Wednesday,
		Slots: []models.Slot{
			venueSlot("a", "09:00", "10:00", "V1"),
			venueSlot("b", "09:30", "10:30", "V1"),
			venueSlot("c", "09:45", "10:15", "V1"),
		},
	}}

	first := detector.Detect(schedule)
	second := detector.Detect(schedule)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestConflictDetectorOrderFollowsScanOfLaterSlot(t *testing.T) {
	detector := NewConflictDetector()
	// c starts first but is scanned last; its conflicts come after a/b's.
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Monday,
		Slots: []models.Slot{
			venueSlot("a", "10:00", "11:00", "V1"),
			venueSlot("b", "10:00", "11:00", "V1"),
			venueSlot("c", "08:00", "10:30", "V1"),
		},
	}}

	conflicts := detector.Detect(schedule)
	require.Len(t, conflicts, 3)
	assert.Equal(t, [2]string{"a", "b"}, [2]string{conflicts[0].SlotA.SlotID, conflicts[0].SlotB.SlotID})
	assert.Equal(t, [2]string{"a", "c"}, [2]string{conflicts[1].SlotA.SlotID, conflicts[1].SlotB.SlotID})
	assert.Equal(t, [2]string{"b", "c"}, [2]string{conflicts[2].SlotA.SlotID, conflicts[2].SlotB.SlotID})
}

func TestConflictDetectorReconcileKeepsResolution(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Monday,
		Slots: []models.Slot{
			venueSlot("a", "09:00", "10:00", "V1"),
			venueSlot("b", "09:00", "10:00", "V1"),
		},
	}}
	previous := detector.Detect(schedule)
	require.Len(t, previous, 1)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	previous[0].Resolved = true
	previous[0].Resolution = "shared lecture"
	previous[0].ResolvedAt = &now
	previous[0].ResolvedBy = strPtr("admin-1")

	schedule[0].Slots = append(schedule[0].Slots, venueSlot("c", "13:00", "14:00", "V2"))
	fresh := detector.Reconcile(previous, detector.Detect(schedule))

	require.Len(t, fresh, 1)
	assert.True(t, fresh[0].Resolved)
	assert.Equal(t, "shared lecture", fresh[0].Resolution)
	assert.Equal(t, &now, fresh[0].ResolvedAt)
	assert.Equal(t, "admin-1", *fresh[0].ResolvedBy)
}

func TestConflictDetectorReconcileDropsResolutionWhenSlotMoves(t *testing.T) {
	detector := NewConflictDetector()
	schedule := []models.DaySchedule{{
		DayOfWeek: models.Monday,
		Slots: []models.Slot{
			venueSlot("a", "09:00", "10:00", "V1"),
			venueSlot("b", "09:00", "10:00", "V1"),
		},
	}}
	previous := detector.Detect(schedule)
	previous[0].Resolved = true

	schedule[0].Slots[1] = venueSlot("b", "09:30", "10:30", "V1")
	fresh := detector.Reconcile(previous, detector.Detect(schedule))

	require.Len(t, fresh, 1)
	assert.False(t, fresh[0].Resolved)
	assert.NotEqual(t, previous[0].ID, fresh[0].ID)
}
