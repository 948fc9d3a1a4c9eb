package models

import "fmt"

// ResourceKind identifies a bookable shared resource.
type ResourceKind string

const (
	ResourceVenue   ResourceKind = "VENUE"
	ResourceFaculty ResourceKind = "FACULTY"
	ResourceTrainer ResourceKind = "TRAINER"
)

// ResourceKinds lists kinds in detection order.
var ResourceKinds = []ResourceKind{ResourceVenue, ResourceFaculty, ResourceTrainer}

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceVenue, ResourceFaculty, ResourceTrainer:
		return true
	}
	return false
}

// ConflictType maps the resource kind to the conflict dimension it produces.
func (k ResourceKind) ConflictType() ConflictType {
	switch k {
	case ResourceFaculty:
		return ConflictTypeFaculty
	case ResourceTrainer:
		return ConflictTypeTrainer
	default:
		return ConflictTypeVenue
	}
}

// SlotField is the JSON attribute on a slot that references this kind.
func (k ResourceKind) SlotField() string {
	switch k {
	case ResourceFaculty:
		return "faculty_id"
	case ResourceTrainer:
		return "trainer_id"
	default:
		return "venue_id"
	}
}

// AvailabilityQuery asks whether a resource is free in [Start, End) on Day.
type AvailabilityQuery struct {
	Kind               ResourceKind
	ResourceID         string
	Day                Weekday
	Start              ClockTime
	End                ClockTime
	ExcludeTimetableID string
}

// TimetableRef is a lightweight pointer to the timetable owning a booking.
type TimetableRef struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	AcademicYear string  `json:"academic_year"`
	DepartmentID *string `json:"department_id,omitempty"`
}

// AvailabilityResult reports the first conflicting booking when not available.
type AvailabilityResult struct {
	Available            bool          `json:"available"`
	ConflictingSlot      *Slot         `json:"conflicting_slot,omitempty"`
	ConflictingDay       Weekday       `json:"conflicting_day,omitempty"`
	ConflictingTimetable *TimetableRef `json:"conflicting_timetable,omitempty"`
}

// Reservation is a published booking of a resource interval owned by one timetable.
type Reservation struct {
	ID           string       `db:"id" json:"id"`
	TimetableID  string       `db:"timetable_id" json:"timetable_id"`
	ResourceKind ResourceKind `db:"resource_kind" json:"resource_kind"`
	ResourceID   string       `db:"resource_id" json:"resource_id"`
	DayOfWeek    Weekday      `db:"day_of_week" json:"day_of_week"`
	StartMinute  int          `db:"start_minute" json:"start_minute"`
	EndMinute    int          `db:"end_minute" json:"end_minute"`
	SlotID       string       `db:"slot_id" json:"slot_id"`
}

// LockKey is the advisory lock key serialising writers for one resource-day.
func (r Reservation) LockKey() string {
	return fmt.Sprintf("%s:%s:%s", r.ResourceKind, r.ResourceID, r.DayOfWeek)
}

// ResourceContentionError reports a published booking held by another timetable.
type ResourceContentionError struct {
	Requested Reservation `json:"requested"`
	Existing  Reservation `json:"existing"`
}

func (e *ResourceContentionError) Error() string {
	return fmt.Sprintf("%s %s already booked on %s by timetable %s",
		e.Existing.ResourceKind, e.Existing.ResourceID, e.Existing.DayOfWeek, e.Existing.TimetableID)
}
