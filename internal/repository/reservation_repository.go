package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// ReservationRepository manages published resource bookings shared across timetables.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Lock takes a transaction scoped advisory lock for the given key. It blocks until
// any concurrent holder commits or rolls back.
func (r *ReservationRepository) Lock(ctx context.Context, exec sqlx.ExtContext, key string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock reservation %s: %w", key, err)
	}
	return nil
}

// FindOverlapping returns the earliest reservation held by another timetable that
// overlaps the requested interval, or nil when the resource is free.
func (r *ReservationRepository) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, requested models.Reservation) (*models.Reservation, error) {
	const query = `SELECT id, timetable_id, resource_kind, resource_id, day_of_week, start_minute, end_minute, slot_id
FROM resource_reservations
WHERE resource_kind = $1 AND resource_id = $2 AND day_of_week = $3 AND timetable_id <> $4
AND start_minute < $5 AND $6 < end_minute
ORDER BY start_minute ASC, id ASC
LIMIT 1`
	var existing models.Reservation
	err := sqlx.GetContext(ctx, r.exec(exec), &existing, query,
		string(requested.ResourceKind), requested.ResourceID, string(requested.DayOfWeek), requested.TimetableID,
		requested.EndMinute, requested.StartMinute)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find overlapping reservation: %w", err)
	}
	return &existing, nil
}

// InsertBatch stores reservations for a timetable.
func (r *ReservationRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, reservations []models.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	for i := range reservations {
		if reservations[i].ID == "" {
			reservations[i].ID = uuid.NewString()
		}
	}
	const query = `INSERT INTO resource_reservations (id, timetable_id, resource_kind, resource_id, day_of_week, start_minute, end_minute, slot_id)
VALUES (:id, :timetable_id, :resource_kind, :resource_id, :day_of_week, :start_minute, :end_minute, :slot_id)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, reservations); err != nil {
		return fmt.Errorf("insert reservations: %w", err)
	}
	return nil
}

// ReleaseByTimetable drops every reservation owned by the timetable.
func (r *ReservationRepository) ReleaseByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM resource_reservations WHERE timetable_id = $1`, timetableID); err != nil {
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}
