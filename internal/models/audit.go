package models

import "time"

// AuditAction constants represent timetable actions to be logged.
const (
	AuditActionTimetableCreate  = "TIMETABLE_CREATE"
	AuditActionTimetableUpdate  = "TIMETABLE_UPDATE"
	AuditActionTimetableDelete  = "TIMETABLE_DELETE"
	AuditActionSlotAdd          = "TIMETABLE_SLOT_ADD"
	AuditActionSlotRemove       = "TIMETABLE_SLOT_REMOVE"
	AuditActionConflictResolve  = "TIMETABLE_CONFLICT_RESOLVE"
	AuditActionTimetablePublish = "TIMETABLE_PUBLISH"
	AuditActionTimetableArchive = "TIMETABLE_ARCHIVE"
)

// AuditResourceTimetable is the resource name stored with timetable audit entries.
const AuditResourceTimetable = "timetable"

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
