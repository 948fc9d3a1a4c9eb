package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type publishedReaderStub struct {
	timetables []models.Timetable
	err        error
	excluded   string
	calls      int
}

func (s *publishedReaderStub) ListPublishedWithResource(ctx context.Context, kind models.ResourceKind, resourceID string, day models.Weekday, excludeID string) ([]models.Timetable, error) {
	s.calls++
	s.excluded = excludeID
	if s.err != nil {
		return nil, s.err
	}
	var result []models.Timetable
	for _, tt := range s.timetables {
		if tt.ID == excludeID {
			continue
		}
		result = append(result, tt)
	}
	return result, nil
}

type availabilityMetricsStub struct {
	available   int
	unavailable int
}

func (m *availabilityMetricsStub) ObserveAvailabilityCheck(kind models.ResourceKind, available bool) {
	if available {
		m.available++
		return
	}
	m.unavailable++
}

func publishedTimetable(id string, day models.Weekday, slots ...models.Slot) models.Timetable {
	return models.Timetable{
		ID:           id,
		Title:        "Timetable " + id,
		AcademicYear: "2026/2027",
		Status:       models.TimetableStatusPublished,
		IsActive:     true,
		Schedule:     []models.DaySchedule{{DayOfWeek: day, Slots: slots}},
	}
}

func TestAvailabilityOverlapLaw(t *testing.T) {
	booked := publishedTimetable("tt-1", models.Monday, venueSlot("s1", "10:00", "12:00", "V1"))

	cases := []struct {
		name      string
		start     string
		end       string
		available bool
	}{
		{name: "identical", start: "10:00", end: "12:00", available: false},
		{name: "query nested in booking", start: "10:30", end: "11:30", available: false},
		{name: "booking nested in query", start: "09:00", end: "13:00", available: false},
		{name: "partial overlap at start", start: "09:00", end: "10:30", available: false},
		{name: "partial overlap at end", start: "11:30", end: "12:30", available: false},
		{name: "touching before", start: "09:00", end: "10:00", available: true},
		{name: "touching after", start: "12:00", end: "13:00", available: true},
		{name: "disjoint", start: "14:00", end: "15:00", available: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAvailabilityService(&publishedReaderStub{timetables: []models.Timetable{booked}}, nil, nil)
			result, err := svc.Check(context.Background(), models.AvailabilityQuery{
				Kind:       models.ResourceVenue,
				ResourceID: "V1",
				Day:        models.Monday,
				Start:      models.MustClockTime(tc.start),
				End:        models.MustClockTime(tc.end),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.available, result.Available)
			if !tc.available {
				require.NotNil(t, result.ConflictingSlot)
				assert.Equal(t, "s1", result.ConflictingSlot.ID)
				require.NotNil(t, result.ConflictingTimetable)
				assert.Equal(t, "tt-1", result.ConflictingTimetable.ID)
			}
		})
	}
}

func TestAvailabilitySelfExclusion(t *testing.T) {
	own := publishedTimetable("tt-own", models.Monday, venueSlot("s1", "09:00", "10:00", "V1"))
	repo := &publishedReaderStub{timetables: []models.Timetable{own}}
	svc := NewAvailabilityService(repo, nil, nil)

	result, err := svc.Check(context.Background(), models.AvailabilityQuery{
		Kind:               models.ResourceVenue,
		ResourceID:         "V1",
		Day:                models.Monday,
		Start:              models.MustClockTime("09:00"),
		End:                models.MustClockTime("10:00"),
		ExcludeTimetableID: "tt-own",
	})
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, "tt-own", repo.excluded)
}

func TestAvailabilityReturnsFirstConflict(t *testing.T) {
	first := publishedTimetable("tt-1", models.Thursday, venueSlot("s1", "09:00", "10:00", "V1"))
	second := publishedTimetable("tt-2", models.Thursday, venueSlot("s2", "09:30", "10:30", "V1"))
	metrics := &availabilityMetricsStub{}
	svc := NewAvailabilityService(&publishedReaderStub{timetables: []models.Timetable{first, second}}, metrics, nil)

	result, err := svc.Check(context.Background(), models.AvailabilityQuery{
		Kind:       models.ResourceVenue,
		ResourceID: "V1",
		Day:        models.Thursday,
		Start:      models.MustClockTime("09:45"),
		End:        models.MustClockTime("10:15"),
	})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "tt-1", result.ConflictingTimetable.ID)
	assert.Equal(t, models.Thursday, result.ConflictingDay)
	assert.Equal(t, 1, metrics.unavailable)
}

func TestAvailabilityTrainerAndFacultyUseSameCheck(t *testing.T) {
	slot := models.Slot{
		ID:           "s1",
		StartTime:    models.MustClockTime("14:00"),
		EndTime:      models.MustClockTime("16:00"),
		ActivityType: models.ActivityEvent,
		FacultyID:    strPtr("F1"),
		TrainerID:    strPtr("T1"),
	}
	svc := NewAvailabilityService(&publishedReaderStub{timetables: []models.Timetable{publishedTimetable("tt-1", models.Friday, slot)}}, nil, nil)

	for _, kind := range []models.ResourceKind{models.ResourceFaculty, models.ResourceTrainer} {
		id := "F1"
		if kind == models.ResourceTrainer {
			id = "T1"
		}
		result, err := svc.Check(context.Background(), models.AvailabilityQuery{
			Kind:       kind,
			ResourceID: id,
			Day:        models.Friday,
			Start:      models.MustClockTime("15:00"),
			End:        models.MustClockTime("15:30"),
		})
		require.NoError(t, err)
		assert.False(t, result.Available, string(kind))
	}
}

func TestAvailabilityIgnoresOtherResourcesOnSameSlot(t *testing.T) {
	svc := NewAvailabilityService(&publishedReaderStub{timetables: []models.Timetable{
		publishedTimetable("tt-1", models.Monday, venueSlot("s1", "09:00", "10:00", "V2")),
	}}, nil, nil)

	result, err := svc.Check(context.Background(), models.AvailabilityQuery{
		Kind:       models.ResourceVenue,
		ResourceID: "V1",
		Day:        models.Monday,
		Start:      models.MustClockTime("09:00"),
		End:        models.MustClockTime("10:00"),
	})
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestAvailabilityValidation(t *testing.T) {
	repo := &publishedReaderStub{}
	svc := NewAvailabilityService(repo, nil, nil)

	cases := []models.AvailabilityQuery{
		{Kind: "ROOM", ResourceID: "V1", Day: models.Monday, Start: 60, End: 120},
		{Kind: models.ResourceVenue, ResourceID: " ", Day: models.Monday, Start: 60, End: 120},
		{Kind: models.ResourceVenue, ResourceID: "V1", Day: "Funday", Start: 60, End: 120},
		{Kind: models.ResourceVenue, ResourceID: "V1", Day: models.Monday, Start: 120, End: 120},
	}
	for _, query := range cases {
		_, err := svc.Check(context.Background(), query)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	}
	assert.Zero(t, repo.calls)
}

func TestAvailabilityRepositoryError(t *testing.T) {
	svc := NewAvailabilityService(&publishedReaderStub{err: errors.New("db down")}, nil, nil)
	_, err := svc.Check(context.Background(), models.AvailabilityQuery{
		Kind: models.ResourceVenue, ResourceID: "V1", Day: models.Monday, Start: 60, End: 120,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
