package calendar

import (
	"fmt"

	"github.com/username/simcal/internal/availability"
)

// Snapshot is the persisted form of an Index plus the template registry.
type Snapshot struct {
	HorizonWeeks uint32                              `json:"horizon_weeks" yaml:"horizon_weeks"`
	LastEventID  uint64                              `json:"last_event_id" yaml:"last_event_id"`
	Events       []CalendarEvent                     `json:"events" yaml:"events"`
	Templates    []RecurringEventTemplate            `json:"templates,omitempty" yaml:"templates,omitempty"`
	Availability map[PersonID]*availability.Monthly `json:"availability" yaml:"availability"`
}

// Snapshot captures the index. The availability maps are deep copies so
// that manual blocks and working hours survive a restore.
func (idx *Index) Snapshot() Snapshot {
	snap := Snapshot{
		HorizonWeeks: idx.horizonWeeks,
		Events:       idx.Events(),
		Availability: make(map[PersonID]*availability.Monthly, len(idx.availability)),
	}
	for p, avail := range idx.availability {
		snap.Availability[p] = avail.Clone()
	}
	return snap
}

// Restore replaces the index contents with the snapshot. Availability is
// taken from the snapshot as is; events only rebuild the lookup tables.
// On error the index is left empty.
func (idx *Index) Restore(snap Snapshot) error {
	idx.reset()
	if snap.HorizonWeeks > 0 {
		idx.horizonWeeks = snap.HorizonWeeks
	}
	for p, avail := range snap.Availability {
		if avail == nil {
			continue
		}
		idx.availability[p] = avail.Clone()
	}
	for _, event := range snap.Events {
		if _, exists := idx.events[event.ID]; exists {
			idx.reset()
			return fmt.Errorf("failed to restore event %d: %w", event.ID, ErrDuplicateEvent)
		}
		if err := event.validate(); err != nil {
			idx.reset()
			return fmt.Errorf("failed to restore: %w", err)
		}
		idx.insert(event, false)
	}
	return nil
}
