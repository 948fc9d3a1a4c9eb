package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// ErrStaleVersion is returned when an update targets a version that is no longer current.
var ErrStaleVersion = errors.New("stale timetable version")

const timetableColumns = `id, title, description, academic_year, semester, department_id, type, start_date, end_date, schedule, conflicts, break_timings, holidays, status, version, created_by, last_modified_by, approved_by, is_active, published_at, created_at, updated_at`

type timetableRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	AcademicYear   string         `db:"academic_year"`
	Semester       string         `db:"semester"`
	DepartmentID   *string        `db:"department_id"`
	Type           string         `db:"type"`
	StartDate      time.Time      `db:"start_date"`
	EndDate        time.Time      `db:"end_date"`
	Schedule       types.JSONText `db:"schedule"`
	Conflicts      types.JSONText `db:"conflicts"`
	BreakTimings   types.JSONText `db:"break_timings"`
	Holidays       types.JSONText `db:"holidays"`
	Status         string         `db:"status"`
	Version        int            `db:"version"`
	CreatedBy      string         `db:"created_by"`
	LastModifiedBy *string        `db:"last_modified_by"`
	ApprovedBy     *string        `db:"approved_by"`
	IsActive       bool           `db:"is_active"`
	PublishedAt    *time.Time     `db:"published_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// TimetableRepository persists timetable aggregates as single documents.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores a new timetable document.
func (r *TimetableRepository) Create(ctx context.Context, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now
	if timetable.Version == 0 {
		timetable.Version = 1
	}

	row, err := toTimetableRow(timetable)
	if err != nil {
		return err
	}

	const query = `INSERT INTO timetables (` + timetableColumns + `) VALUES (:id, :title, :description, :academic_year, :semester, :department_id, :type, :start_date, :end_date, :schedule, :conflicts, :break_timings, :holidays, :status, :version, :created_by, :last_modified_by, :approved_by, :is_active, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// FindByID loads a timetable document by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1`
	var row timetableRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return fromTimetableRow(row)
}

// List returns timetables with optional filtering and pagination.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	base := "FROM timetables WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, string(filter.Semester))
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, string(filter.Type))
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":    true,
		"title":         true,
		"academic_year": true,
		"published_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", timetableColumns, base, sortBy, order, size, offset)
	var rows []timetableRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}

	timetables, err := fromTimetableRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return timetables, total, nil
}

// Update writes the whole document when the stored version still equals expectedVersion.
// On success the stored and in-memory version become expectedVersion+1.
func (r *TimetableRepository) Update(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable, expectedVersion int) error {
	next := *timetable
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	row, err := toTimetableRow(&next)
	if err != nil {
		return err
	}

	const query = `UPDATE timetables SET title = :title, description = :description, academic_year = :academic_year, semester = :semester, department_id = :department_id, type = :type, start_date = :start_date, end_date = :end_date, schedule = :schedule, conflicts = :conflicts, break_timings = :break_timings, holidays = :holidays, status = :status, version = :version, last_modified_by = :last_modified_by, approved_by = :approved_by, is_active = :is_active, published_at = :published_at, updated_at = :updated_at WHERE id = :id AND version = :expected_version`
	params := map[string]interface{}{
		"id":               row.ID,
		"title":            row.Title,
		"description":      row.Description,
		"academic_year":    row.AcademicYear,
		"semester":         row.Semester,
		"department_id":    row.DepartmentID,
		"type":             row.Type,
		"start_date":       row.StartDate,
		"end_date":         row.EndDate,
		"schedule":         row.Schedule,
		"conflicts":        row.Conflicts,
		"break_timings":    row.BreakTimings,
		"holidays":         row.Holidays,
		"status":           row.Status,
		"version":          row.Version,
		"last_modified_by": row.LastModifiedBy,
		"approved_by":      row.ApprovedBy,
		"is_active":        row.IsActive,
		"published_at":     row.PublishedAt,
		"updated_at":       row.UpdatedAt,
		"expected_version": expectedVersion,
	}
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, params)
	if err != nil {
		return fmt.Errorf("update timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}

	timetable.Version = next.Version
	timetable.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete removes a timetable when the stored version still equals expectedVersion.
func (r *TimetableRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// ListPublishedWithResource returns published, active timetables holding at least one
// slot on day that references the resource. JSONB containment narrows the scan; overlap
// is decided by the caller.
func (r *TimetableRepository) ListPublishedWithResource(ctx context.Context, kind models.ResourceKind, resourceID string, day models.Weekday, excludeID string) ([]models.Timetable, error) {
	containment, err := json.Marshal([]map[string]interface{}{{
		"day_of_week": string(day),
		"slots":       []map[string]string{{kind.SlotField(): resourceID}},
	}})
	if err != nil {
		return nil, fmt.Errorf("encode resource filter: %w", err)
	}

	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE status = $1 AND is_active = TRUE AND schedule @> $2::jsonb`
	args := []interface{}{string(models.TimetableStatusPublished), string(containment)}
	if excludeID != "" {
		query += ` AND id::text <> $3`
		args = append(args, excludeID)
	}
	query += ` ORDER BY published_at ASC, id ASC`

	var rows []timetableRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list published timetables by resource: %w", err)
	}
	return fromTimetableRows(rows)
}

func toTimetableRow(t *models.Timetable) (timetableRow, error) {
	schedule, err := marshalDocument(t.Schedule, []models.DaySchedule{})
	if err != nil {
		return timetableRow{}, fmt.Errorf("encode schedule: %w", err)
	}
	conflicts, err := marshalDocument(t.Conflicts, []models.Conflict{})
	if err != nil {
		return timetableRow{}, fmt.Errorf("encode conflicts: %w", err)
	}
	breaks, err := marshalDocument(t.BreakTimings, []models.BreakTiming{})
	if err != nil {
		return timetableRow{}, fmt.Errorf("encode break timings: %w", err)
	}
	holidays, err := marshalDocument(t.Holidays, []models.Holiday{})
	if err != nil {
		return timetableRow{}, fmt.Errorf("encode holidays: %w", err)
	}
	return timetableRow{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		AcademicYear:   t.AcademicYear,
		Semester:       string(t.Semester),
		DepartmentID:   t.DepartmentID,
		Type:           string(t.Type),
		StartDate:      t.StartDate,
		EndDate:        t.EndDate,
		Schedule:       schedule,
		Conflicts:      conflicts,
		BreakTimings:   breaks,
		Holidays:       holidays,
		Status:         string(t.Status),
		Version:        t.Version,
		CreatedBy:      t.CreatedBy,
		LastModifiedBy: t.LastModifiedBy,
		ApprovedBy:     t.ApprovedBy,
		IsActive:       t.IsActive,
		PublishedAt:    t.PublishedAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}, nil
}

func marshalDocument[T any](value []T, empty []T) (types.JSONText, error) {
	if value == nil {
		value = empty
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return types.JSONText(raw), nil
}

func fromTimetableRow(row timetableRow) (*models.Timetable, error) {
	t := &models.Timetable{
		ID:             row.ID,
		Title:          row.Title,
		Description:    row.Description,
		AcademicYear:   row.AcademicYear,
		Semester:       models.Semester(row.Semester),
		DepartmentID:   row.DepartmentID,
		Type:           models.TimetableType(row.Type),
		StartDate:      row.StartDate,
		EndDate:        row.EndDate,
		Status:         models.TimetableStatus(row.Status),
		Version:        row.Version,
		CreatedBy:      row.CreatedBy,
		LastModifiedBy: row.LastModifiedBy,
		ApprovedBy:     row.ApprovedBy,
		IsActive:       row.IsActive,
		PublishedAt:    row.PublishedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Schedule:       []models.DaySchedule{},
		Conflicts:      []models.Conflict{},
		BreakTimings:   []models.BreakTiming{},
		Holidays:       []models.Holiday{},
	}
	if err := unmarshalDocument(row.Schedule, &t.Schedule); err != nil {
		return nil, fmt.Errorf("decode schedule for %s: %w", row.ID, err)
	}
	if err := unmarshalDocument(row.Conflicts, &t.Conflicts); err != nil {
		return nil, fmt.Errorf("decode conflicts for %s: %w", row.ID, err)
	}
	if err := unmarshalDocument(row.BreakTimings, &t.BreakTimings); err != nil {
		return nil, fmt.Errorf("decode break timings for %s: %w", row.ID, err)
	}
	if err := unmarshalDocument(row.Holidays, &t.Holidays); err != nil {
		return nil, fmt.Errorf("decode holidays for %s: %w", row.ID, err)
	}
	return t, nil
}

func fromTimetableRows(rows []timetableRow) ([]models.Timetable, error) {
	timetables := make([]models.Timetable, 0, len(rows))
	for _, row := range rows {
		t, err := fromTimetableRow(row)
		if err != nil {
			return nil, err
		}
		timetables = append(timetables, *t)
	}
	return timetables, nil
}

func unmarshalDocument(raw types.JSONText, dest interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
