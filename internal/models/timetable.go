package models

import (
	"fmt"
	"time"
)

// TimetableStatus represents lifecycle phases of a timetable.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// TimetableType categorises what a timetable schedules.
type TimetableType string

const (
	TimetableTypeRegularClasses TimetableType = "REGULAR_CLASSES"
	TimetableTypeEvents         TimetableType = "EVENTS"
	TimetableTypeExaminations   TimetableType = "EXAMINATIONS"
	TimetableTypeMixed          TimetableType = "MIXED"
)

// Semester identifies the academic half a timetable belongs to.
type Semester string

const (
	SemesterOdd    Semester = "ODD"
	SemesterEven   Semester = "EVEN"
	SemesterSummer Semester = "SUMMER"
)

// ActivityType describes what happens in a slot.
type ActivityType string

const (
	ActivityClass       ActivityType = "CLASS"
	ActivityEvent       ActivityType = "EVENT"
	ActivityLab         ActivityType = "LAB"
	ActivityBreak       ActivityType = "BREAK"
	ActivityExamination ActivityType = "EXAMINATION"
	ActivityOther       ActivityType = "OTHER"
)

// SlotStatus tracks delivery of a slot.
type SlotStatus string

const (
	SlotStatusScheduled SlotStatus = "SCHEDULED"
	SlotStatusOngoing   SlotStatus = "ONGOING"
	SlotStatusCompleted SlotStatus = "COMPLETED"
	SlotStatusCancelled SlotStatus = "CANCELLED"
	SlotStatusPostponed SlotStatus = "POSTPONED"
)

// Timetable is the aggregate root: one persisted document holding the full
// weekly schedule and its derived conflicts.
type Timetable struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	AcademicYear   string          `json:"academic_year"`
	Semester       Semester        `json:"semester"`
	DepartmentID   *string         `json:"department_id,omitempty"`
	Type           TimetableType   `json:"type"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	Schedule       []DaySchedule   `json:"schedule"`
	Conflicts      []Conflict      `json:"conflicts"`
	BreakTimings   []BreakTiming   `json:"break_timings"`
	Holidays       []Holiday       `json:"holidays"`
	Status         TimetableStatus `json:"status"`
	Version        int             `json:"version"`
	CreatedBy      string          `json:"created_by"`
	LastModifiedBy *string         `json:"last_modified_by,omitempty"`
	ApprovedBy     *string         `json:"approved_by,omitempty"`
	IsActive       bool            `json:"is_active"`
	PublishedAt    *time.Time      `json:"published_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DaySchedule holds the ordered slots of one weekday.
type DaySchedule struct {
	DayOfWeek Weekday    `json:"day_of_week"`
	Date      *time.Time `json:"date,omitempty"`
	Slots     []Slot     `json:"slots"`
}

// TargetAudience narrows who a slot is meant for.
type TargetAudience struct {
	Departments []string `json:"departments,omitempty"`
	Years       []int    `json:"years,omitempty"`
	Sections    []string `json:"sections,omitempty"`
}

// Slot is a single scheduled block within a day.
type Slot struct {
	ID             string         `json:"id"`
	SlotNumber     int            `json:"slot_number"`
	StartTime      ClockTime      `json:"start_time"`
	EndTime        ClockTime      `json:"end_time"`
	Duration       int            `json:"duration"`
	ActivityType   ActivityType   `json:"activity_type"`
	Title          string         `json:"title,omitempty"`
	EventID        *string        `json:"event_id,omitempty"`
	EventName      string         `json:"event_name,omitempty"`
	VenueID        *string        `json:"venue_id,omitempty"`
	VenueName      string         `json:"venue_name,omitempty"`
	FacultyID      *string        `json:"faculty_id,omitempty"`
	FacultyName    string         `json:"faculty_name,omitempty"`
	TrainerID      *string        `json:"trainer_id,omitempty"`
	TrainerName    string         `json:"trainer_name,omitempty"`
	TargetAudience TargetAudience `json:"target_audience"`
	Capacity       int            `json:"capacity,omitempty"`
	Registered     int            `json:"registered,omitempty"`
	Status         SlotStatus     `json:"status"`
	IsMandatory    bool           `json:"is_mandatory"`
	Resources      []string       `json:"resources,omitempty"`
}

// Range returns the slot interval.
func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.StartTime, End: s.EndTime}
}

// Label is a short human readable description used in conflict summaries.
func (s Slot) Label() string {
	switch {
	case s.Title != "":
		return s.Title
	case s.EventName != "":
		return s.EventName
	default:
		return string(s.ActivityType)
	}
}

// ResourceID returns the slot's reference for the given kind, if any.
func (s Slot) ResourceID(kind ResourceKind) string {
	var ref *string
	switch kind {
	case ResourceVenue:
		ref = s.VenueID
	case ResourceFaculty:
		ref = s.FacultyID
	case ResourceTrainer:
		ref = s.TrainerID
	}
	if ref == nil {
		return ""
	}
	return *ref
}

// BreakTiming is a recurring non-teaching window.
type BreakTiming struct {
	Name      string    `json:"name"`
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
}

// Holiday marks a date without scheduled activity.
type Holiday struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason,omitempty"`
}

// ConflictType names the double-booked resource dimension.
type ConflictType string

const (
	ConflictTypeVenue        ConflictType = "VENUE"
	ConflictTypeFaculty      ConflictType = "FACULTY"
	ConflictTypeStudentGroup ConflictType = "STUDENT_GROUP"
	ConflictTypeTrainer      ConflictType = "TRAINER"
)

// ConflictSeverity ranks how disruptive a conflict is.
type ConflictSeverity string

const (
	SeverityMinor    ConflictSeverity = "MINOR"
	SeverityMajor    ConflictSeverity = "MAJOR"
	SeverityCritical ConflictSeverity = "CRITICAL"
)

// SlotSummary snapshots the slot side of a conflict.
type SlotSummary struct {
	SlotID    string    `json:"slot_id"`
	Day       Weekday   `json:"day"`
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
	Activity  string    `json:"activity"`
}

// Conflict is a detected double-booking between two slots of the same timetable.
type Conflict struct {
	ID          string           `json:"id"`
	Type        ConflictType     `json:"type"`
	ResourceID  string           `json:"resource_id"`
	Description string           `json:"description"`
	SlotA       SlotSummary      `json:"slot_a"`
	SlotB       SlotSummary      `json:"slot_b"`
	Severity    ConflictSeverity `json:"severity"`
	Resolved    bool             `json:"resolved"`
	Resolution  string           `json:"resolution,omitempty"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy  *string          `json:"resolved_by,omitempty"`
}

// UnresolvedCount returns how many conflicts still block publishing.
func (t *Timetable) UnresolvedCount() int {
	count := 0
	for _, c := range t.Conflicts {
		if !c.Resolved {
			count++
		}
	}
	return count
}

// DayIndex returns the position of the day in Schedule, or -1.
func (t *Timetable) DayIndex(day Weekday) int {
	for i := range t.Schedule {
		if t.Schedule[i].DayOfWeek == day {
			return i
		}
	}
	return -1
}

// TimetableFilter describes query params for listing timetables.
type TimetableFilter struct {
	AcademicYear string
	Semester     Semester
	DepartmentID string
	Status       TimetableStatus
	Type         TimetableType
	IsActive     *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// UnresolvedConflictsError is returned when publish is attempted with open conflicts.
type UnresolvedConflictsError struct {
	Count int `json:"count"`
}

func (e *UnresolvedConflictsError) Error() string {
	return fmt.Sprintf("timetable has %d unresolved conflict(s)", e.Count)
}

// VersionMismatchError is returned when a caller writes against a stale version.
type VersionMismatchError struct {
	Expected int `json:"expected"`
	Current  int `json:"current"`
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: expected %d, current %d", e.Expected, e.Current)
}
