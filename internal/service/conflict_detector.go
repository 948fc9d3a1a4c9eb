package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// conflictNamespace seeds deterministic conflict identifiers.
var conflictNamespace = uuid.MustParse("6f1c3c52-5a0e-4d0b-9c55-0d3f7e7a1b2c")

// ConflictDetector finds double-booked resources inside a single timetable.
type ConflictDetector struct{}

// NewConflictDetector constructs a detector.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

type booking struct {
	order int
	day   models.Weekday
	slot  models.Slot
}

type bookingKey struct {
	kind       models.ResourceKind
	resourceID string
	day        models.Weekday
}

type detectedPair struct {
	kind   models.ResourceKind
	id     string
	first  booking
	second booking
}

// Detect returns every same-resource overlap in the schedule. Bookings are grouped
// per resource and weekday, sorted by start time and swept; the result is ordered by
// the scan position of the later slot, so it matches a single pass over days then slots.
func (d *ConflictDetector) Detect(schedule []models.DaySchedule) []models.Conflict {
	groups := make(map[bookingKey][]booking)
	var keys []bookingKey

	order := 0
	for _, day := range schedule {
		for _, slot := range day.Slots {
			for _, kind := range models.ResourceKinds {
				resourceID := slot.ResourceID(kind)
				if resourceID == "" {
					continue
				}
				key := bookingKey{kind: kind, resourceID: resourceID, day: day.DayOfWeek}
				if _, ok := groups[key]; !ok {
					keys = append(keys, key)
				}
				groups[key] = append(groups[key], booking{order: order, day: day.DayOfWeek, slot: slot})
			}
			order++
		}
	}

	var pairs []detectedPair
	for _, key := range keys {
		pairs = append(pairs, sweep(key, groups[key])...)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].second.order != pairs[j].second.order {
			return pairs[i].second.order < pairs[j].second.order
		}
		if pairs[i].first.order != pairs[j].first.order {
			return pairs[i].first.order < pairs[j].first.order
		}
		return kindRank(pairs[i].kind) < kindRank(pairs[j].kind)
	})

	conflicts := make([]models.Conflict, 0, len(pairs))
	for _, pair := range pairs {
		conflicts = append(conflicts, buildConflict(pair))
	}
	return conflicts
}

func sweep(key bookingKey, bookings []booking) []detectedPair {
	if len(bookings) < 2 {
		return nil
	}
	sorted := append([]booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].slot.StartTime != sorted[j].slot.StartTime {
			return sorted[i].slot.StartTime < sorted[j].slot.StartTime
		}
		return sorted[i].order < sorted[j].order
	})

	var pairs []detectedPair
	var active []booking
	for _, current := range sorted {
		kept := active[:0]
		for _, open := range active {
			if open.slot.EndTime > current.slot.StartTime {
				kept = append(kept, open)
			}
		}
		active = kept

		for _, open := range active {
			if !open.slot.Range().Overlaps(current.slot.Range()) {
				continue
			}
			first, second := open, current
			if first.order > second.order {
				first, second = second, first
			}
			pairs = append(pairs, detectedPair{kind: key.kind, id: key.resourceID, first: first, second: second})
		}
		active = append(active, current)
	}
	return pairs
}

func kindRank(kind models.ResourceKind) int {
	for i, k := range models.ResourceKinds {
		if k == kind {
			return i
		}
	}
	return len(models.ResourceKinds)
}

func buildConflict(pair detectedPair) models.Conflict {
	a := summarize(pair.first)
	b := summarize(pair.second)
	return models.Conflict{
		ID:          conflictID(pair.kind, pair.id, a, b),
		Type:        pair.kind.ConflictType(),
		ResourceID:  pair.id,
		Description: describeConflict(pair.kind, pair.first, pair.second),
		SlotA:       a,
		SlotB:       b,
		Severity:    severityFor(pair.kind),
		Resolved:    false,
	}
}

func summarize(b booking) models.SlotSummary {
	return models.SlotSummary{
		SlotID:    b.slot.ID,
		Day:       b.day,
		StartTime: b.slot.StartTime,
		EndTime:   b.slot.EndTime,
		Activity:  b.slot.Label(),
	}
}

func severityFor(kind models.ResourceKind) models.ConflictSeverity {
	if kind == models.ResourceFaculty {
		return models.SeverityMajor
	}
	return models.SeverityCritical
}

func describeConflict(kind models.ResourceKind, first, second booking) string {
	var name string
	switch kind {
	case models.ResourceVenue:
		name = first.slot.VenueName
	case models.ResourceFaculty:
		name = first.slot.FacultyName
	case models.ResourceTrainer:
		name = first.slot.TrainerName
	}
	if name == "" {
		name = first.slot.ResourceID(kind)
	}
	return fmt.Sprintf("%s %s is double-booked on %s: %s (%s) overlaps %s (%s)",
		strings.ToLower(string(kind)), name, first.day,
		first.slot.Label(), first.slot.Range(),
		second.slot.Label(), second.slot.Range())
}

// conflictID is stable for as long as the two slots and their ranges are unchanged,
// so a resolution survives unrelated schedule edits.
func conflictID(kind models.ResourceKind, resourceID string, a, b models.SlotSummary) string {
	key := strings.Join([]string{
		string(kind),
		resourceID,
		string(a.Day),
		a.StartTime.String() + "-" + a.EndTime.String(),
		b.StartTime.String() + "-" + b.EndTime.String(),
		a.SlotID,
		b.SlotID,
	}, "|")
	return uuid.NewSHA1(conflictNamespace, []byte(key)).String()
}

// Reconcile carries resolution state from previous conflicts onto freshly detected ones
// sharing the same identity. Conflicts that no longer exist are dropped.
func (d *ConflictDetector) Reconcile(previous, fresh []models.Conflict) []models.Conflict {
	if len(previous) == 0 {
		return fresh
	}
	resolved := make(map[string]models.Conflict, len(previous))
	for _, c := range previous {
		if c.Resolved {
			resolved[c.ID] = c
		}
	}
	for i := range fresh {
		prior, ok := resolved[fresh[i].ID]
		if !ok {
			continue
		}
		fresh[i].Resolved = true
		fresh[i].Resolution = prior.Resolution
		fresh[i].ResolvedAt = prior.ResolvedAt
		fresh[i].ResolvedBy = prior.ResolvedBy
	}
	return fresh
}
