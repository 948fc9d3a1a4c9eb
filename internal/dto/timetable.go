package dto

import "github.com/noah-isme/campus-timetable-api/internal/models"

// BreakTimingRequest describes a recurring break window.
type BreakTimingRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

// HolidayRequest marks a date without activity.
type HolidayRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"max=200"`
}

// CreateTimetableRequest creates an empty draft timetable.
type CreateTimetableRequest struct {
	Title        string               `json:"title" validate:"required,max=200"`
	Description  string               `json:"description" validate:"max=2000"`
	AcademicYear string               `json:"academic_year" validate:"required,max=20"`
	Semester     string               `json:"semester" validate:"required,oneof=ODD EVEN SUMMER"`
	DepartmentID *string              `json:"department_id" validate:"omitempty,min=1"`
	Type         string               `json:"type" validate:"required,oneof=REGULAR_CLASSES EVENTS EXAMINATIONS MIXED"`
	StartDate    string               `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string               `json:"end_date" validate:"required,datetime=2006-01-02"`
	BreakTimings []BreakTimingRequest `json:"break_timings" validate:"omitempty,dive"`
	Holidays     []HolidayRequest     `json:"holidays" validate:"omitempty,dive"`
}

// UpdateTimetableRequest changes timetable metadata. Nil fields are left untouched;
// a non-nil slice replaces the stored one.
type UpdateTimetableRequest struct {
	Version      int                  `json:"version" validate:"required,min=1"`
	Title        *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string              `json:"description" validate:"omitempty,max=2000"`
	AcademicYear *string              `json:"academic_year" validate:"omitempty,min=1,max=20"`
	Semester     *string              `json:"semester" validate:"omitempty,oneof=ODD EVEN SUMMER"`
	DepartmentID *string              `json:"department_id"`
	Type         *string              `json:"type" validate:"omitempty,oneof=REGULAR_CLASSES EVENTS EXAMINATIONS MIXED"`
	StartDate    *string              `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate      *string              `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	BreakTimings []BreakTimingRequest `json:"break_timings" validate:"omitempty,dive"`
	Holidays     []HolidayRequest     `json:"holidays" validate:"omitempty,dive"`
}

// SlotRequest is the payload of a slot to add.
type SlotRequest struct {
	SlotNumber     int                   `json:"slot_number" validate:"omitempty,min=1"`
	StartTime      string                `json:"start_time" validate:"required,clock"`
	EndTime        string                `json:"end_time" validate:"required,clock"`
	Duration       int                   `json:"duration" validate:"omitempty,min=1"`
	ActivityType   string                `json:"activity_type" validate:"required,oneof=CLASS EVENT LAB BREAK EXAMINATION OTHER"`
	Title          string                `json:"title" validate:"max=200"`
	EventID        *string               `json:"event_id" validate:"omitempty,min=1"`
	EventName      string                `json:"event_name" validate:"max=200"`
	VenueID        *string               `json:"venue_id" validate:"omitempty,min=1"`
	VenueName      string                `json:"venue_name" validate:"max=200"`
	FacultyID      *string               `json:"faculty_id" validate:"omitempty,min=1"`
	FacultyName    string                `json:"faculty_name" validate:"max=200"`
	TrainerID      *string               `json:"trainer_id" validate:"omitempty,min=1"`
	TrainerName    string                `json:"trainer_name" validate:"max=200"`
	TargetAudience models.TargetAudience `json:"target_audience"`
	Capacity       int                   `json:"capacity" validate:"min=0"`
	Registered     int                   `json:"registered" validate:"min=0"`
	Status         string                `json:"status" validate:"omitempty,oneof=SCHEDULED ONGOING COMPLETED CANCELLED POSTPONED"`
	IsMandatory    bool                  `json:"is_mandatory"`
	Resources      []string              `json:"resources"`
}

// AddSlotRequest appends a slot to one weekday.
type AddSlotRequest struct {
	Version   int         `json:"version" validate:"required,min=1"`
	DayOfWeek string      `json:"day_of_week" validate:"required,weekday"`
	Date      *string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Slot      SlotRequest `json:"slot"`
}

// RemoveSlotRequest removes one slot by id or every slot of an event.
type RemoveSlotRequest struct {
	Version int    `json:"version" validate:"required,min=1"`
	SlotID  string `json:"slot_id" validate:"required_without=EventID"`
	EventID string `json:"event_id" validate:"required_without=SlotID"`
}

// ResolveConflictRequest records how an operator settled a conflict.
type ResolveConflictRequest struct {
	Version    int    `json:"version" validate:"required,min=1"`
	Resolution string `json:"resolution" validate:"required,max=1000"`
}

// VersionRequest carries only the version a transition is based on.
type VersionRequest struct {
	Version int `json:"version" validate:"required,min=1"`
}

// AvailabilityRequest holds query parameters of an availability check. Values are
// parsed by the handler, which rejects missing or malformed ones.
type AvailabilityRequest struct {
	Day                string `form:"day"`
	StartTime          string `form:"start_time"`
	EndTime            string `form:"end_time"`
	ExcludeTimetableID string `form:"exclude_timetable_id"`
}
