package calendar

import (
	"fmt"

	"github.com/username/simcal/pkg/simdate"
)

// RecurringEventTemplate generates concrete events on demand.
type RecurringEventTemplate struct {
	ID        uint64           `json:"id" yaml:"id"`
	Details   EventDetails     `json:"details" yaml:"details"`
	StartDate simdate.SimDate  `json:"start_date" yaml:"start_date"`
	EndDate   *simdate.SimDate `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// Validate checks the template before it is stored.
func (t RecurringEventTemplate) Validate() error {
	if !t.StartDate.Valid() {
		return fmt.Errorf("template %d: %w", t.ID, ErrInvalidDate)
	}
	if t.Details.DurationTicks == 0 || t.Details.DurationTicks > MaxEventTicks {
		return fmt.Errorf("template %d: %w", t.ID, ErrInvalidDuration)
	}
	if len(t.Details.Attendees) == 0 {
		return fmt.Errorf("template %d: %w", t.ID, ErrNoParticipants)
	}
	if err := t.Details.Recurrence.Validate(); err != nil {
		return fmt.Errorf("template %d: %w", t.ID, err)
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("template %d: %w", t.ID, ErrInvalidWindow)
	}
	return nil
}

// Expand emits one single-occurrence event for every cursor position of
// the template's pattern that falls in [windowStart, windowEnd], clipped to
// the template's own [StartDate, EndDate]. Each event gets a fresh id from
// ids and points back to the template.
func (t RecurringEventTemplate) Expand(windowStart, windowEnd simdate.SimDate, ids IDGenerator) []CalendarEvent {
	from := windowStart
	if from.Before(t.StartDate) {
		from = t.StartDate
	}
	to := windowEnd
	if t.EndDate != nil && t.EndDate.Before(to) {
		to = *t.EndDate
	}
	if to.Before(from) {
		return nil
	}

	occurrences := t.Details.Recurrence.Occurrences(t.StartDate, from, to)
	events := make([]CalendarEvent, 0, len(occurrences))
	for _, at := range occurrences {
		details := t.Details
		details.Attendees = append([]Attendee(nil), t.Details.Attendees...)
		details.Recurrence = Once()
		templateID := t.ID
		events = append(events, CalendarEvent{
			ID:         ids.NextID(),
			StartTime:  at,
			Details:    details,
			TemplateID: &templateID,
		})
	}
	return events
}
