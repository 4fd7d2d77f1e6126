// Package export renders the calendar as iCalendar so that a schedule can be
// inspected in any calendar client. Simulated dates map onto the wall clock
// through simdate.ToTime.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/pkg/simdate"
)

// DefaultDomain is used for UIDs and attendee addresses.
const DefaultDomain = "simcal.local"

// Exporter builds iCalendar documents.
type Exporter struct {
	domain string
}

const icsTimeLayout = "20060102T150405Z"

// NewExporter creates an exporter. An empty domain uses DefaultDomain.
func NewExporter(domain string) *Exporter {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Exporter{domain: domain}
}

// Calendar converts events and templates into one VCALENDAR. Templates become
// recurring VEVENTs with an RRULE.
func (e *Exporter) Calendar(events []calendar.CalendarEvent, templates []calendar.RecurringEventTemplate) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//simcal//calendar export//EN")
	cal.SetName("simcal")

	for _, event := range events {
		ve := cal.AddEvent(e.uid("event", event.ID))
		e.fill(ve, event.StartTime, event.Details)
		if event.TemplateID != nil {
			ve.SetProperty(ics.ComponentPropertyRelatedTo, e.uid("template", *event.TemplateID))
		}
	}

	for _, tmpl := range templates {
		ve := cal.AddEvent(e.uid("template", tmpl.ID))
		e.fill(ve, tmpl.StartDate, tmpl.Details)

		var until time.Time
		if tmpl.EndDate != nil {
			until = tmpl.EndDate.ToTime()
		}
		if rule := tmpl.Details.Recurrence.RRule(until); rule != "" {
			ve.AddRrule(rule)
			for _, skipped := range tmpl.Details.Recurrence.SkippedDates(tmpl.StartDate) {
				ve.AddProperty(ics.ComponentPropertyExdate, skipped.ToTime().UTC().Format(icsTimeLayout))
			}
		}
	}

	return cal
}

// Write serializes the calendar to w.
func (e *Exporter) Write(w io.Writer, events []calendar.CalendarEvent, templates []calendar.RecurringEventTemplate) error {
	if _, err := io.WriteString(w, e.Calendar(events, templates).Serialize()); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}

// AttendeeAddress is the mailto address used for a person.
func (e *Exporter) AttendeeAddress(p calendar.PersonID) string {
	return fmt.Sprintf("mailto:person-%d@%s", p, e.domain)
}

func (e *Exporter) uid(kind string, id uint64) string {
	return fmt.Sprintf("%s-%d@%s", kind, id, e.domain)
}

func (e *Exporter) fill(ve *ics.VEvent, start simdate.SimDate, details calendar.EventDetails) {
	begin := start.ToTime()
	ve.SetDtStampTime(begin)
	ve.SetStartAt(begin)
	ve.SetEndAt(start.AddTicks(uint64(details.DurationTicks)).ToTime())
	ve.SetSummary(details.Title)
	ve.SetDescription(fmt.Sprintf("Simulated start %s", start))
	ve.SetProperty(ics.ComponentPropertyCategories, details.Type.String())
	ve.SetProperty(ics.ComponentPropertyPriority, strconv.Itoa(icsPriority(details.Priority)))

	for _, a := range details.Attendees {
		ve.AddAttendee(e.AttendeeAddress(a.PersonID),
			ics.WithCN(fmt.Sprintf("Person %d", a.PersonID)),
			partStat(a.Status))
	}
}

func partStat(s calendar.AttendanceStatus) ics.ParticipationStatus {
	switch s {
	case calendar.AttendanceAccepted:
		return ics.ParticipationStatusAccepted
	case calendar.AttendanceDeclined:
		return ics.ParticipationStatusDeclined
	case calendar.AttendanceTentative:
		return ics.ParticipationStatusTentative
	default:
		return ics.ParticipationStatusNeedsAction
	}
}

// icsPriority maps onto the 1 (highest) to 9 (lowest) scale.
func icsPriority(p calendar.Priority) int {
	switch p {
	case calendar.PriorityCritical:
		return 1
	case calendar.PriorityHigh:
		return 3
	case calendar.PriorityLow:
		return 9
	default:
		return 5
	}
}
