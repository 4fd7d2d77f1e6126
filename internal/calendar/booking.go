package calendar

import (
	"fmt"
	"sync/atomic"

	"github.com/username/simcal/pkg/simdate"
)

// IDGenerator hands out event ids.
type IDGenerator interface {
	NextID() uint64
}

// EventSink accepts new events. *Index satisfies it.
type EventSink interface {
	AddEvent(event CalendarEvent) error
}

// SequentialIDs is a monotonically increasing IDGenerator starting after
// the given value.
type SequentialIDs struct {
	last atomic.Uint64
}

// NewSequentialIDs returns a generator whose first id is after+1.
func NewSequentialIDs(after uint64) *SequentialIDs {
	g := &SequentialIDs{}
	g.last.Store(after)
	return g
}

// NextID implements IDGenerator
func (g *SequentialIDs) NextID() uint64 {
	return g.last.Add(1)
}

// Last returns the most recently issued id.
func (g *SequentialIDs) Last() uint64 {
	return g.last.Load()
}

// Reset makes the next id after+1.
func (g *SequentialIDs) Reset(after uint64) {
	g.last.Store(after)
}

// ScheduleMeeting books a one-off meeting for the participants and returns
// its id. Participants are recorded as accepted. The id is consumed even
// when the sink rejects the event.
func ScheduleMeeting(sink EventSink, ids IDGenerator, title string, participants []PersonID, start simdate.SimDate, duration uint8) (uint64, error) {
	if len(participants) == 0 {
		return 0, ErrNoParticipants
	}
	attendees := make([]Attendee, 0, len(participants))
	seen := make(map[PersonID]bool, len(participants))
	for _, p := range participants {
		if seen[p] {
			continue
		}
		seen[p] = true
		attendees = append(attendees, Attendee{PersonID: p, Status: AttendanceAccepted})
	}

	event := CalendarEvent{
		ID:        ids.NextID(),
		StartTime: start,
		Details: EventDetails{
			Title:         title,
			DurationTicks: duration,
			Attendees:     attendees,
			Type:          EventMeeting,
			Priority:      PriorityNormal,
			Recurrence:    Once(),
		},
	}
	if err := sink.AddEvent(event); err != nil {
		return 0, fmt.Errorf("failed to schedule meeting %q: %w", title, err)
	}
	return event.ID, nil
}
