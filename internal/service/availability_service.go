package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type publishedTimetableReader interface {
	ListPublishedWithResource(ctx context.Context, kind models.ResourceKind, resourceID string, day models.Weekday, excludeID string) ([]models.Timetable, error)
}

type availabilityMetrics interface {
	ObserveAvailabilityCheck(kind models.ResourceKind, available bool)
}

// AvailabilityService answers whether a resource is free across other published timetables.
type AvailabilityService struct {
	repo    publishedTimetableReader
	metrics availabilityMetrics
	logger  *zap.Logger
}

// NewAvailabilityService constructs the checker.
func NewAvailabilityService(repo publishedTimetableReader, metrics availabilityMetrics, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, metrics: metrics, logger: logger}
}

// Check reports the first published booking overlapping the requested window, if any.
func (s *AvailabilityService) Check(ctx context.Context, query models.AvailabilityQuery) (*models.AvailabilityResult, error) {
	if err := validateAvailabilityQuery(query); err != nil {
		return nil, err
	}

	candidates, err := s.repo.ListPublishedWithResource(ctx, query.Kind, query.ResourceID, query.Day, query.ExcludeTimetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published timetables")
	}

	window := models.TimeRange{Start: query.Start, End: query.End}
	for i := range candidates {
		timetable := &candidates[i]
		if timetable.ID == query.ExcludeTimetableID {
			continue
		}
		slot, ok := firstOverlap(timetable, query.Kind, query.ResourceID, query.Day, window)
		if !ok {
			continue
		}
		s.observe(query.Kind, false)
		s.logger.Debug("resource unavailable",
			zap.String("kind", string(query.Kind)),
			zap.String("resource_id", query.ResourceID),
			zap.String("day", string(query.Day)),
			zap.String("window", window.String()),
			zap.String("timetable_id", timetable.ID),
		)
		return &models.AvailabilityResult{
			Available:       false,
			ConflictingSlot: &slot,
			ConflictingDay:  query.Day,
			ConflictingTimetable: &models.TimetableRef{
				ID:           timetable.ID,
				Title:        timetable.Title,
				AcademicYear: timetable.AcademicYear,
				DepartmentID: timetable.DepartmentID,
			},
		}, nil
	}

	s.observe(query.Kind, true)
	return &models.AvailabilityResult{Available: true}, nil
}

func (s *AvailabilityService) observe(kind models.ResourceKind, available bool) {
	if s.metrics != nil {
		s.metrics.ObserveAvailabilityCheck(kind, available)
	}
}

func firstOverlap(timetable *models.Timetable, kind models.ResourceKind, resourceID string, day models.Weekday, window models.TimeRange) (models.Slot, bool) {
	for _, daySchedule := range timetable.Schedule {
		if daySchedule.DayOfWeek != day {
			continue
		}
		for _, slot := range daySchedule.Slots {
			if slot.ResourceID(kind) != resourceID {
				continue
			}
			if window.Overlaps(slot.Range()) {
				return slot, true
			}
		}
	}
	return models.Slot{}, false
}

func validateAvailabilityQuery(query models.AvailabilityQuery) error {
	if !query.Kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported resource kind")
	}
	if strings.TrimSpace(query.ResourceID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "resource id is required")
	}
	if !query.Day.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid day of week")
	}
	if !query.Start.Valid() || !query.End.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid time window")
	}
	if query.End <= query.Start {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return nil
}
