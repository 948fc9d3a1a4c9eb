package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type timetableStore interface {
	Create(ctx context.Context, timetable *models.Timetable) error
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	Update(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable, expectedVersion int) error
	Delete(ctx context.Context, id string, expectedVersion int) error
}

type reservationStore interface {
	Lock(ctx context.Context, exec sqlx.ExtContext, key string) error
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, requested models.Reservation) (*models.Reservation, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, reservations []models.Reservation) error
	ReleaseByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	SetVersioned(ctx context.Context, key string, version int, value interface{}, ttl time.Duration)
}

// timetableTombstone replaces the cached document of a deleted timetable. It has no
// id, so readers treat it as a miss, and its version blocks older copies.
type timetableTombstone struct {
	Version int  `json:"version"`
	Deleted bool `json:"deleted"`
}

type auditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type timetableMetrics interface {
	ObserveConflicts(conflicts []models.Conflict)
	ObservePublish(outcome string)
}

// Publish outcomes reported to metrics.
const (
	PublishOutcomePublished  = "published"
	PublishOutcomeUnresolved = "unresolved_conflicts"
	PublishOutcomeContention = "resource_contention"
	PublishOutcomeError      = "error"
)

// TimetableServiceConfig tunes optional behaviour.
type TimetableServiceConfig struct {
	CacheTTL time.Duration
}

// TimetableService implements the timetable lifecycle: slot editing with conflict
// recomputation, conflict resolution, publishing and archiving.
type TimetableService struct {
	repo         timetableStore
	reservations reservationStore
	tx           txProvider
	detector     *ConflictDetector
	cache        timetableCache
	audit        auditRecorder
	metrics      timetableMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	cacheTTL     time.Duration
	now          func() time.Time
}

// NewTimetableService wires timetable dependencies.
func NewTimetableService(
	repo timetableStore,
	reservations reservationStore,
	tx txProvider,
	detector *ConflictDetector,
	cache timetableCache,
	audit auditRecorder,
	metrics timetableMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewConflictDetector()
	}
	registerTimetableValidations(validate)
	return &TimetableService{
		repo:         repo,
		reservations: reservations,
		tx:           tx,
		detector:     detector,
		cache:        cache,
		audit:        audit,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		cacheTTL:     cfg.CacheTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func registerTimetableValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClockTime(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := models.ParseWeekday(fl.Field().String())
		return err == nil
	})
}

func timetableCacheKey(id string) string {
	return "timetable:" + id
}

// Create stores a new draft timetable with an empty schedule.
func (s *TimetableService) Create(ctx context.Context, req dto.CreateTimetableRequest, actor string) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	breaks, err := toBreakTimings(req.BreakTimings)
	if err != nil {
		return nil, err
	}
	holidays, err := toHolidays(req.Holidays)
	if err != nil {
		return nil, err
	}

	now := s.now()
	timetable := &models.Timetable{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Semester:     models.Semester(req.Semester),
		DepartmentID: req.DepartmentID,
		Type:         models.TimetableType(req.Type),
		StartDate:    start,
		EndDate:      end,
		Schedule:     []models.DaySchedule{},
		Conflicts:    []models.Conflict{},
		BreakTimings: breaks,
		Holidays:     holidays,
		Status:       models.TimetableStatusDraft,
		Version:      1,
		CreatedBy:    actor,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, timetable); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
	}

	s.logger.Info("timetable created", zap.String("timetable_id", timetable.ID), zap.String("actor", actor))
	s.record(ctx, AuditEntry{ActorID: actor, Action: models.AuditActionTimetableCreate, ResourceID: timetable.ID, After: timetable})
	return timetable, nil
}

// Get returns a timetable, served from cache when possible.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Timetable, error) {
	if s.cache != nil {
		var cached models.Timetable
		if s.cache.Get(ctx, timetableCacheKey(id), &cached) && cached.ID != "" {
			return &cached, nil
		}
	}
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheDocument(ctx, timetable.ID, timetable.Version, timetable)
	return timetable, nil
}

// List returns timetables matching the filter with pagination metadata.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	timetables, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return timetables, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update changes timetable metadata. Archived timetables are read-only.
func (s *TimetableService) Update(ctx context.Context, id string, req dto.UpdateTimetableRequest, actor string) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := expectVersion(timetable, req.Version); err != nil {
		return nil, err
	}
	if timetable.Status == models.TimetableStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrConflictState, "archived timetables cannot be modified")
	}
	before := *timetable

	if req.Title != nil {
		timetable.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		timetable.Description = *req.Description
	}
	if req.AcademicYear != nil {
		timetable.AcademicYear = strings.TrimSpace(*req.AcademicYear)
	}
	if req.Semester != nil {
		timetable.Semester = models.Semester(*req.Semester)
	}
	if req.DepartmentID != nil {
		if *req.DepartmentID == "" {
			timetable.DepartmentID = nil
		} else {
			department := *req.DepartmentID
			timetable.DepartmentID = &department
		}
	}
	if req.Type != nil {
		timetable.Type = models.TimetableType(*req.Type)
	}
	startRaw := timetable.StartDate.Format(dateLayout)
	endRaw := timetable.EndDate.Format(dateLayout)
	if req.StartDate != nil {
		startRaw = *req.StartDate
	}
	if req.EndDate != nil {
		endRaw = *req.EndDate
	}
	if timetable.StartDate, timetable.EndDate, err = parseDateRange(startRaw, endRaw); err != nil {
		return nil, err
	}
	if req.BreakTimings != nil {
		if timetable.BreakTimings, err = toBreakTimings(req.BreakTimings); err != nil {
			return nil, err
		}
	}
	if req.Holidays != nil {
		if timetable.Holidays, err = toHolidays(req.Holidays); err != nil {
			return nil, err
		}
	}

	timetable.LastModifiedBy = stringRef(actor)
	if err := s.save(ctx, nil, timetable, req.Version); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, timetable, AuditEntry{ActorID: actor, Action: models.AuditActionTimetableUpdate, ResourceID: id, Before: metadataOf(&before), After: metadataOf(timetable)})
	return timetable, nil
}

// Delete removes a draft timetable.
func (s *TimetableService) Delete(ctx context.Context, id string, version int, actor string) error {
	timetable, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := expectVersion(timetable, version); err != nil {
		return err
	}
	if timetable.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflictState, "only draft timetables can be deleted; archive it instead")
	}
	if err := s.repo.Delete(ctx, id, version); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return s.staleVersion(ctx, id, version)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	s.cacheDocument(ctx, id, version+1, timetableTombstone{Version: version + 1, Deleted: true})
	s.logger.Info("timetable deleted", zap.String("timetable_id", id), zap.String("actor", actor))
	s.record(ctx, AuditEntry{ActorID: actor, Action: models.AuditActionTimetableDelete, ResourceID: id, Before: metadataOf(timetable)})
	return nil
}

// AddSlot appends a slot to the given weekday and recomputes conflicts before saving.
func (s *TimetableService) AddSlot(ctx context.Context, id string, req dto.AddSlotRequest, actor string) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	day, err := models.ParseWeekday(req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	slot, err := toSlot(req.Slot)
	if err != nil {
		return nil, err
	}
	var date *time.Time
	if req.Date != nil {
		parsed, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
		}
		date = &parsed
	}

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := expectVersion(timetable, req.Version); err != nil {
		return nil, err
	}
	if err := requireDraft(timetable); err != nil {
		return nil, err
	}

	idx := timetable.DayIndex(day)
	if idx < 0 {
		idx = insertDay(timetable, models.DaySchedule{DayOfWeek: day, Date: date, Slots: []models.Slot{}})
	} else if timetable.Schedule[idx].Date == nil {
		timetable.Schedule[idx].Date = date
	}
	slot.ID = uuid.NewString()
	if slot.SlotNumber == 0 {
		slot.SlotNumber = nextSlotNumber(timetable.Schedule[idx].Slots)
	}
	timetable.Schedule[idx].Slots = append(timetable.Schedule[idx].Slots, slot)

	introduced := s.recompute(timetable)
	timetable.LastModifiedBy = stringRef(actor)
	if err := s.save(ctx, nil, timetable, req.Version); err != nil {
		return nil, err
	}
	s.observeConflicts(introduced)

	s.logger.Info("slot added",
		zap.String("timetable_id", id),
		zap.String("slot_id", slot.ID),
		zap.String("day", string(day)),
		zap.Int("conflicts", len(timetable.Conflicts)),
	)
	s.afterWrite(ctx, timetable, AuditEntry{ActorID: actor, Action: models.AuditActionSlotAdd, ResourceID: id, After: map[string]interface{}{"day_of_week": day, "slot": slot}})
	return timetable, nil
}

// RemoveSlot removes a slot by id, or every slot referencing an event, then recomputes conflicts.
func (s *TimetableService) RemoveSlot(ctx context.Context, id string, req dto.RemoveSlotRequest, actor string) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "slot_id or event_id is required")
	}
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := expectVersion(timetable, req.Version); err != nil {
		return nil, err
	}
	if err := requireDraft(timetable); err != nil {
		return nil, err
	}

	matches := func(slot models.Slot) bool {
		if req.SlotID != "" {
			return slot.ID == req.SlotID
		}
		return slot.EventID != nil && *slot.EventID == req.EventID
	}

	var removed []models.Slot
	schedule := make([]models.DaySchedule, 0, len(timetable.Schedule))
	for _, day := range timetable.Schedule {
		kept := make([]models.Slot, 0, len(day.Slots))
		for _, slot := range day.Slots {
			if matches(slot) {
				removed = append(removed, slot)
				continue
			}
			kept = append(kept, slot)
		}
		// an emptied day disappears unless it is pinned to a calendar date
		if len(kept) == 0 && day.Date == nil {
			continue
		}
		day.Slots = kept
		schedule = append(schedule, day)
	}
	if len(removed) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflictState, "no matching slot in timetable")
	}
	timetable.Schedule = schedule

	introduced := s.recompute(timetable)
	timetable.LastModifiedBy = stringRef(actor)
	if err := s.save(ctx, nil, timetable, req.Version); err != nil {
		return nil, err
	}
	s.observeConflicts(introduced)

	s.logger.Info("slots removed", zap.String("timetable_id", id), zap.Int("removed", len(removed)))
	s.afterWrite(ctx, timetable, AuditEntry{ActorID: actor, Action: models.AuditActionSlotRemove, ResourceID: id, Before: removed})
	return timetable, nil
}

// ListConflicts re-detects conflicts from the stored schedule, keeping stored resolutions.
func (s *TimetableService) ListConflicts(ctx context.Context, id string, unresolvedOnly bool) ([]models.Conflict, error) {
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	conflicts := s.detector.Reconcile(timetable.Conflicts, s.detector.Detect(timetable.Schedule))
	if !unresolvedOnly {
		return conflicts, nil
	}
	open := make([]models.Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		if !c.Resolved {
			open = append(open, c)
		}
	}
	return open, nil
}

// ResolveConflict marks one conflict as resolved. Detection is not re-run.
func (s *TimetableService) ResolveConflict(ctx context.Context, id, conflictID string, req dto.ResolveConflictRequest, actor string) (*models.Conflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "resolution is required")
	}
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := expectVersion(timetable, req.Version); err != nil {
		return nil, err
	}
	if timetable.Status == models.TimetableStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrConflictState, "archived timetables cannot be modified")
	}

	idx := -1
	for i := range timetable.Conflicts {
		if timetable.Conflicts[i].ID == conflictID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
	}
	conflict := &timetable.Conflicts[idx]
	if conflict.Resolved {
		return nil, appErrors.Clone(appErrors.ErrConflictState, "conflict already resolved")
	}

	now := s.now()
	conflict.Resolved = true
	conflict.Resolution = strings.TrimSpace(req.Resolution)
	conflict.ResolvedAt = &now
	conflict.ResolvedBy = stringRef(actor)
	timetable.LastModifiedBy = stringRef(actor)

	if err := s.save(ctx, nil, timetable, req.Version); err != nil {
		return nil, err
	}
	resolved := timetable.Conflicts[idx]
	s.logger.Info("conflict resolved", zap.String("timetable_id", id), zap.String("conflict_id", conflictID), zap.String("actor", actor))
	s.afterWrite(ctx, timetable, AuditEntry{ActorID: actor, Action: models.AuditActionConflictResolve, ResourceID: id, After: resolved})
	return &resolved, nil
}

// Publish makes a draft authoritative. It fails while any conflict is unresolved, and
// it reserves every booked resource interval so that two published timetables never
// hold overlapping bookings of the same resource.
func (s *TimetableService) Publish(ctx context.Context, id string, req dto.VersionRequest, actor string) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "version is required")
	}
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := expectVersion(timetable, req.Version); err != nil {
		return nil, err
	}
	if timetable.Status != models.TimetableStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflictState, fmt.Sprintf("cannot publish a %s timetable", strings.ToLower(string(timetable.Status))))
	}

	if unresolved := timetable.UnresolvedCount(); unresolved > 0 {
		s.observePublish(PublishOutcomeUnresolved)
		cause := &models.UnresolvedConflictsError{Count: unresolved}
		appErr := appErrors.ErrConflictState.WithDetails(map[string]interface{}{"unresolved_conflicts": unresolved})
		appErr.Message = fmt.Sprintf("cannot publish: %d unresolved conflict(s)", unresolved)
		appErr.Err = cause
		return nil, appErr
	}
	if s.tx == nil || s.reservations == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	now := s.now()
	timetable.Status = models.TimetableStatusPublished
	timetable.PublishedAt = &now
	timetable.ApprovedBy = stringRef(actor)
	timetable.LastModifiedBy = stringRef(actor)

	if err := s.publishTx(ctx, timetable, req.Version); err != nil {
		var contention *models.ResourceContentionError
		if errors.As(err, &contention) {
			s.observePublish(PublishOutcomeContention)
		} else {
			s.observePublish(PublishOutcomeError)
		}
		return nil, err
	}

	s.observePublish(PublishOutcomePublished)
	s.logger.Info("timetable published", zap.String("timetable_id", id), zap.String("actor", actor), zap.Int("version", timetable.Version))
	s.afterWrite(ctx, timetable, AuditEntry{ActorID: actor, Action: models.AuditActionTimetablePublish, ResourceID: id, After: metadataOf(timetable)})
	return timetable, nil
}

func (s *TimetableService) publishTx(ctx context.Context, timetable *models.Timetable, expectedVersion int) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reservations := reservationsFor(timetable)
	for _, key := range lockKeys(reservations) {
		if err = s.reservations.Lock(ctx, tx, key); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock resource")
		}
	}
	for _, requested := range reservations {
		existing, findErr := s.reservations.FindOverlapping(ctx, tx, requested)
		if findErr != nil {
			err = appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reservations")
			return err
		}
		if existing != nil {
			err = contentionError(requested, *existing)
			return err
		}
	}
	if err = s.reservations.InsertBatch(ctx, tx, reservations); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve resources")
	}
	if err = s.save(ctx, tx, timetable, expectedVersion); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit publish")
	}
	return nil
}

// Archive retires a timetable from any state and releases its reservations.
func (s *TimetableService) Archive(ctx context.Context, id string, req dto.VersionRequest, actor string) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "version is required")
	}
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := expectVersion(timetable, req.Version); err != nil {
		return nil, err
	}
	if s.tx == nil || s.reservations == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	previous := timetable.Status
	timetable.Status = models.TimetableStatusArchived
	timetable.IsActive = false
	timetable.LastModifiedBy = stringRef(actor)

	if err := s.archiveTx(ctx, timetable, req.Version); err != nil {
		return nil, err
	}

	s.logger.Info("timetable archived", zap.String("timetable_id", id), zap.String("from", string(previous)), zap.String("actor", actor))
	s.afterWrite(ctx, timetable, AuditEntry{ActorID: actor, Action: models.AuditActionTimetableArchive, ResourceID: id, Before: map[string]interface{}{"status": previous}, After: metadataOf(timetable)})
	return timetable, nil
}

func (s *TimetableService) archiveTx(ctx context.Context, timetable *models.Timetable, expectedVersion int) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.reservations.ReleaseByTimetable(ctx, tx, timetable.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release reservations")
	}
	if err = s.save(ctx, tx, timetable, expectedVersion); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit archive")
	}
	return nil
}

func (s *TimetableService) load(ctx context.Context, id string) (*models.Timetable, error) {
	// ids are uuids; anything else cannot name a stored timetable
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	timetable, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return timetable, nil
}

func (s *TimetableService) save(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable, expectedVersion int) error {
	timetable.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, exec, timetable, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return s.staleVersion(ctx, timetable.ID, expectedVersion)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	return nil
}

// staleVersion builds the mismatch error after losing a write race, reporting the
// version now stored when it can be read.
func (s *TimetableService) staleVersion(ctx context.Context, id string, expected int) error {
	current := -1
	if latest, err := s.repo.FindByID(ctx, id); err == nil {
		current = latest.Version
	}
	s.logger.Warn("stale timetable write rejected", zap.String("timetable_id", id), zap.Int("expected", expected), zap.Int("current", current))
	return versionMismatch(expected, current)
}

// recompute re-runs detection and returns the conflicts that did not exist before.
func (s *TimetableService) recompute(timetable *models.Timetable) []models.Conflict {
	known := make(map[string]struct{}, len(timetable.Conflicts))
	for _, c := range timetable.Conflicts {
		known[c.ID] = struct{}{}
	}
	fresh := s.detector.Detect(timetable.Schedule)
	var introduced []models.Conflict
	for _, c := range fresh {
		if _, ok := known[c.ID]; !ok {
			introduced = append(introduced, c)
		}
	}
	timetable.Conflicts = s.detector.Reconcile(timetable.Conflicts, fresh)
	return introduced
}

func (s *TimetableService) observeConflicts(introduced []models.Conflict) {
	if s.metrics != nil && len(introduced) > 0 {
		s.metrics.ObserveConflicts(introduced)
	}
}

func (s *TimetableService) afterWrite(ctx context.Context, timetable *models.Timetable, entry AuditEntry) {
	s.cacheDocument(ctx, timetable.ID, timetable.Version, timetable)
	s.record(ctx, entry)
}

// cacheDocument writes through to the cache. Versioned writes keep a reader that
// loaded an older copy from replacing what a writer stored.
func (s *TimetableService) cacheDocument(ctx context.Context, id string, version int, value interface{}) {
	if s.cache != nil {
		s.cache.SetVersioned(ctx, timetableCacheKey(id), version, value, s.cacheTTL)
	}
}

func (s *TimetableService) record(ctx context.Context, entry AuditEntry) {
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}

func (s *TimetableService) observePublish(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePublish(outcome)
	}
}

func expectVersion(timetable *models.Timetable, version int) error {
	if timetable.Version != version {
		return versionMismatch(version, timetable.Version)
	}
	return nil
}

func versionMismatch(expected, current int) error {
	appErr := appErrors.ErrVersionMismatch.WithDetails(map[string]interface{}{
		"expected_version": expected,
		"current_version":  current,
	})
	appErr.Err = &models.VersionMismatchError{Expected: expected, Current: current}
	return appErr
}

func requireDraft(timetable *models.Timetable) error {
	if timetable.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflictState, "slots can only be changed on a draft timetable")
	}
	return nil
}

func contentionError(requested, existing models.Reservation) error {
	appErr := appErrors.ErrConflictState.WithDetails(map[string]interface{}{
		"resource_kind":         existing.ResourceKind,
		"resource_id":           existing.ResourceID,
		"day_of_week":           existing.DayOfWeek,
		"slot_id":               requested.SlotID,
		"conflicting_timetable": existing.TimetableID,
		"conflicting_slot":      existing.SlotID,
	})
	appErr.Message = fmt.Sprintf("%s %s is already booked on %s by another published timetable",
		strings.ToLower(string(existing.ResourceKind)), existing.ResourceID, existing.DayOfWeek)
	appErr.Err = &models.ResourceContentionError{Requested: requested, Existing: existing}
	return appErr
}

// insertDay places a new day schedule in Monday..Sunday position and returns its index.
// nextSlotNumber returns one past the highest number in use on the day.
func nextSlotNumber(slots []models.Slot) int {
	highest := 0
	for _, slot := range slots {
		if slot.SlotNumber > highest {
			highest = slot.SlotNumber
		}
	}
	return highest + 1
}

func insertDay(timetable *models.Timetable, day models.DaySchedule) int {
	pos := len(timetable.Schedule)
	for i, existing := range timetable.Schedule {
		if existing.DayOfWeek.Index() > day.DayOfWeek.Index() {
			pos = i
			break
		}
	}
	timetable.Schedule = append(timetable.Schedule, models.DaySchedule{})
	copy(timetable.Schedule[pos+1:], timetable.Schedule[pos:])
	timetable.Schedule[pos] = day
	return pos
}

func reservationsFor(timetable *models.Timetable) []models.Reservation {
	var reservations []models.Reservation
	for _, day := range timetable.Schedule {
		for _, slot := range day.Slots {
			for _, kind := range models.ResourceKinds {
				resourceID := slot.ResourceID(kind)
				if resourceID == "" {
					continue
				}
				reservations = append(reservations, models.Reservation{
					TimetableID:  timetable.ID,
					ResourceKind: kind,
					ResourceID:   resourceID,
					DayOfWeek:    day.DayOfWeek,
					StartMinute:  slot.StartTime.Minutes(),
					EndMinute:    slot.EndTime.Minutes(),
					SlotID:       slot.ID,
				})
			}
		}
	}
	return reservations
}

// lockKeys returns the distinct lock keys in sorted order so concurrent publishers
// acquire them in the same sequence.
func lockKeys(reservations []models.Reservation) []string {
	seen := make(map[string]struct{}, len(reservations))
	keys := make([]string, 0, len(reservations))
	for _, r := range reservations {
		key := r.LockKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

const dateLayout = "2006-01-02"

func parseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start_date")
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end_date")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	return start, end, nil
}

func toBreakTimings(input []dto.BreakTimingRequest) ([]models.BreakTiming, error) {
	breaks := make([]models.BreakTiming, 0, len(input))
	for _, b := range input {
		start, end, err := parseRange(b.StartTime, b.EndTime)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, models.BreakTiming{Name: strings.TrimSpace(b.Name), StartTime: start, EndTime: end})
	}
	return breaks, nil
}

func toHolidays(input []dto.HolidayRequest) ([]models.Holiday, error) {
	holidays := make([]models.Holiday, 0, len(input))
	for _, h := range input {
		date, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid holiday date")
		}
		holidays = append(holidays, models.Holiday{Date: date, Reason: h.Reason})
	}
	return holidays, nil
}

func parseRange(startRaw, endRaw string) (models.ClockTime, models.ClockTime, error) {
	start, err := models.ParseClockTime(startRaw)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	end, err := models.ParseClockTime(endRaw)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if end <= start {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return start, end, nil
}

func toSlot(req dto.SlotRequest) (models.Slot, error) {
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return models.Slot{}, err
	}
	duration := end.Minutes() - start.Minutes()
	if req.Duration != 0 && req.Duration != duration {
		return models.Slot{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration %d does not match time range (%d minutes)", req.Duration, duration))
	}
	if req.Capacity > 0 && req.Registered > req.Capacity {
		return models.Slot{}, appErrors.Clone(appErrors.ErrValidation, "registered exceeds capacity")
	}
	status := models.SlotStatus(req.Status)
	if status == "" {
		status = models.SlotStatusScheduled
	}
	return models.Slot{
		SlotNumber:     req.SlotNumber,
		StartTime:      start,
		EndTime:        end,
		Duration:       duration,
		ActivityType:   models.ActivityType(req.ActivityType),
		Title:          strings.TrimSpace(req.Title),
		EventID:        trimmedRef(req.EventID),
		EventName:      req.EventName,
		VenueID:        trimmedRef(req.VenueID),
		VenueName:      req.VenueName,
		FacultyID:      trimmedRef(req.FacultyID),
		FacultyName:    req.FacultyName,
		TrainerID:      trimmedRef(req.TrainerID),
		TrainerName:    req.TrainerName,
		TargetAudience: req.TargetAudience,
		Capacity:       req.Capacity,
		Registered:     req.Registered,
		Status:         status,
		IsMandatory:    req.IsMandatory,
		Resources:      req.Resources,
	}, nil
}

func trimmedRef(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringRef(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// metadataOf strips the schedule from audit snapshots.
func metadataOf(timetable *models.Timetable) map[string]interface{} {
	return map[string]interface{}{
		"title":          timetable.Title,
		"academic_year":  timetable.AcademicYear,
		"semester":       timetable.Semester,
		"department_id":  timetable.DepartmentID,
		"type":           timetable.Type,
		"start_date":     timetable.StartDate.Format(dateLayout),
		"end_date":       timetable.EndDate.Format(dateLayout),
		"status":         timetable.Status,
		"is_active":      timetable.IsActive,
		"version":        timetable.Version,
		"slot_count":     countSlots(timetable),
		"conflict_count": len(timetable.Conflicts),
	}
}

func countSlots(timetable *models.Timetable) int {
	total := 0
	for _, day := range timetable.Schedule {
		total += len(day.Slots)
	}
	return total
}
