package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*TimetableRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewTimetableRepository(sqlxDB), mock, func() { db.Close() }
}

var timetableColumnNames = []string{
	"id", "title", "description", "academic_year", "semester", "department_id", "type", "start_date", "end_date",
	"schedule", "conflicts", "break_timings", "holidays", "status", "version", "created_by", "last_modified_by",
	"approved_by", "is_active", "published_at", "created_at", "updated_at",
}

func timetableRows(id string, schedule string) *sqlmock.Rows {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(timetableColumnNames).AddRow(
		id, "Odd semester", "", "2025/2026", "ODD", nil, "REGULAR_CLASSES", start, start.AddDate(0, 4, 0),
		[]byte(schedule), []byte(`[]`), []byte(`[{"name":"Lunch","start_time":"12:00","end_time":"13:00"}]`), []byte(`null`),
		"DRAFT", 3, "scheduler-1", nil, nil, true, nil, start, start,
	)
}

func TestTimetableRepositoryFindByIDDecodesDocument(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	schedule := `[{"day_of_week":"Monday","slots":[{"id":"s-1","slot_number":1,"start_time":"09:00","end_time":"10:00","duration":60,"activity_type":"CLASS","venue_id":"hall-a","status":"SCHEDULED"}]}]`
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title") + ".*FROM timetables WHERE id = \\$1").
		WithArgs("tt-1").
		WillReturnRows(timetableRows("tt-1", schedule))

	timetable, err := repo.FindByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, timetable.Version)
	assert.Equal(t, models.TimetableStatusDraft, timetable.Status)
	require.Len(t, timetable.Schedule, 1)
	require.Len(t, timetable.Schedule[0].Slots, 1)
	slot := timetable.Schedule[0].Slots[0]
	assert.Equal(t, models.MustClockTime("09:00"), slot.StartTime)
	require.NotNil(t, slot.VenueID)
	assert.Equal(t, "hall-a", *slot.VenueID)
	require.Len(t, timetable.BreakTimings, 1)
	assert.NotNil(t, timetable.Holidays)
	assert.Empty(t, timetable.Holidays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByIDNotFound(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, title").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimetableRepositoryCreateAssignsIdentity(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables (id, title")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	timetable := &models.Timetable{Title: "Odd semester", Status: models.TimetableStatusDraft}
	require.NoError(t, repo.Create(context.Background(), timetable))
	assert.NotEmpty(t, timetable.ID)
	assert.Equal(t, 1, timetable.Version)
	assert.False(t, timetable.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListAppliesFiltersAndPaging(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE 1=1 AND semester = $1 AND status = $2 AND is_active = $3 ORDER BY title ASC LIMIT 10 OFFSET 10")).
		WithArgs("ODD", "DRAFT", true).
		WillReturnRows(timetableRows("tt-1", `[]`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables WHERE 1=1 AND semester = $1 AND status = $2 AND is_active = $3")).
		WithArgs("ODD", "DRAFT", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	timetables, total, err := repo.List(context.Background(), models.TimetableFilter{
		Semester:  models.Semester("ODD"),
		Status:    models.TimetableStatusDraft,
		IsActive:  &active,
		Page:      2,
		PageSize:  10,
		SortBy:    "title",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, timetables, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListFallsBackToSafeSort(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(timetableColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	timetables, total, err := repo.List(context.Background(), models.TimetableFilter{SortBy: "title; DROP TABLE timetables", PageSize: 500})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, timetables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateBumpsVersion(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET title = $1") + ".*" + regexp.QuoteMeta("WHERE id = $20 AND version = $21")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	timetable := &models.Timetable{ID: "tt-1", Title: "Odd semester", Version: 3}
	require.NoError(t, repo.Update(context.Background(), nil, timetable, 3))
	assert.Equal(t, 4, timetable.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateStaleVersion(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE timetables SET").WillReturnResult(sqlmock.NewResult(0, 0))

	timetable := &models.Timetable{ID: "tt-1", Version: 3}
	err := repo.Update(context.Background(), nil, timetable, 3)
	assert.True(t, errors.Is(err, ErrStaleVersion))
	assert.Equal(t, 3, timetable.Version)
}

func TestTimetableRepositoryDelete(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1 AND version = $2")).
		WithArgs("tt-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1 AND version = $2")).
		WithArgs("tt-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "tt-1", 2))
	assert.ErrorIs(t, repo.Delete(context.Background(), "tt-1", 1), ErrStaleVersion)
}

func TestTimetableRepositoryListPublishedWithResource(t *testing.T) {
	repo, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND is_active = TRUE AND schedule @> $2::jsonb AND id::text <> $3 ORDER BY published_at ASC, id ASC")).
		WithArgs("PUBLISHED", `[{"day_of_week":"Tuesday","slots":[{"faculty_id":"fac-9"}]}]`, "tt-own").
		WillReturnRows(timetableRows("tt-2", `[]`))

	timetables, err := repo.ListPublishedWithResource(context.Background(), models.ResourceFaculty, "fac-9", models.Tuesday, "tt-own")
	require.NoError(t, err)
	require.Len(t, timetables, 1)
	assert.Equal(t, "tt-2", timetables[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
