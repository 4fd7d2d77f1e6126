package calendar

import (
	"fmt"
	"strings"

	"github.com/username/simcal/pkg/simdate"
)

// MaxEventTicks is the longest single occurrence: one day.
const MaxEventTicks = simdate.QuarterTicksPerDay

// PersonID is the opaque participant key supplied by the host simulation.
type PersonID uint32

// AttendanceStatus is an attendee's response to an event
type AttendanceStatus uint8

const (
	AttendancePending AttendanceStatus = iota
	AttendanceAccepted
	AttendanceDeclined
	AttendanceTentative
)

// EventType classifies an event
type EventType uint8

const (
	EventMeeting EventType = iota
	EventTraining
	EventMatch
	EventPersonal
	EventTravel
	EventOther
)

// Priority orders events when the host needs to pick between them
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var (
	attendanceNames = []string{"pending", "accepted", "declined", "tentative"}
	eventTypeNames  = []string{"meeting", "training", "match", "personal", "travel", "other"}
	priorityNames   = []string{"low", "normal", "high", "critical"}
)

func enumString[T ~uint8](names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%d", uint8(v))
}

func parseEnum[T ~uint8](kind string, names []string, s string) (T, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == s {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (s AttendanceStatus) String() string { return enumString(attendanceNames, s) }
func (t EventType) String() string        { return enumString(eventTypeNames, t) }
func (p Priority) String() string         { return enumString(priorityNames, p) }

func (s AttendanceStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (t EventType) MarshalText() ([]byte, error)        { return []byte(t.String()), nil }
func (p Priority) MarshalText() ([]byte, error)         { return []byte(p.String()), nil }

func (s *AttendanceStatus) UnmarshalText(b []byte) (err error) {
	*s, err = parseEnum[AttendanceStatus]("attendance status", attendanceNames, string(b))
	return err
}

func (t *EventType) UnmarshalText(b []byte) (err error) {
	*t, err = parseEnum[EventType]("event type", eventTypeNames, string(b))
	return err
}

func (p *Priority) UnmarshalText(b []byte) (err error) {
	*p, err = parseEnum[Priority]("priority", priorityNames, string(b))
	return err
}

// Attendee links a person to an event
type Attendee struct {
	PersonID PersonID         `json:"person_id" yaml:"person_id" toml:"person_id"`
	Status   AttendanceStatus `json:"status" yaml:"status" toml:"status"`
}

// EventDetails is the shared payload of concrete events and templates
type EventDetails struct {
	Title         string            `json:"title" yaml:"title"`
	DurationTicks uint8             `json:"duration_ticks" yaml:"duration_ticks"`
	Attendees     []Attendee        `json:"attendees" yaml:"attendees"`
	Type          EventType         `json:"type" yaml:"type"`
	Priority      Priority          `json:"priority" yaml:"priority"`
	Recurrence    RecurrencePattern `json:"recurrence" yaml:"recurrence"`
}

// Participants returns the attendee ids, de-duplicated, in list order.
func (d EventDetails) Participants() []PersonID {
	seen := make(map[PersonID]bool, len(d.Attendees))
	out := make([]PersonID, 0, len(d.Attendees))
	for _, a := range d.Attendees {
		if seen[a.PersonID] {
			continue
		}
		seen[a.PersonID] = true
		out = append(out, a.PersonID)
	}
	return out
}

// HasParticipant reports whether p is on the attendee list.
func (d EventDetails) HasParticipant(p PersonID) bool {
	for _, a := range d.Attendees {
		if a.PersonID == p {
			return true
		}
	}
	return false
}

// CalendarEvent is one scheduled event. With a recurrence other than None it
// stands for every occurrence the pattern produces.
type CalendarEvent struct {
	ID         uint64          `json:"id" yaml:"id"`
	StartTime  simdate.SimDate `json:"start_time" yaml:"start_time"`
	Details    EventDetails    `json:"details" yaml:"details"`
	TemplateID *uint64         `json:"template_id,omitempty" yaml:"template_id,omitempty"`
}

// EndTime returns the first tick after the first occurrence.
func (e CalendarEvent) EndTime() simdate.SimDate {
	return e.StartTime.AddTicks(uint64(e.Details.DurationTicks))
}

func (e CalendarEvent) validate() error {
	if !e.StartTime.Valid() {
		return fmt.Errorf("event %d: %w", e.ID, ErrInvalidDate)
	}
	if e.Details.DurationTicks == 0 || e.Details.DurationTicks > MaxEventTicks {
		return fmt.Errorf("event %d: %w", e.ID, ErrInvalidDuration)
	}
	if err := e.Details.Recurrence.Validate(); err != nil {
		return fmt.Errorf("event %d: %w", e.ID, err)
	}
	return nil
}

// Occurrences lists the start of every occurrence inside
// [StartTime, StartTime+horizonWeeks).
func (e CalendarEvent) Occurrences(horizonWeeks uint32) []simdate.SimDate {
	if horizonWeeks == 0 {
		return nil
	}
	last := e.StartTime.AddTicks(uint64(horizonWeeks)*simdate.TicksPerWeek - 1)
	return e.Details.Recurrence.Occurrences(e.StartTime, e.StartTime, last)
}
