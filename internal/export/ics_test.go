package export

import (
	"bytes"
	"strings"
	"testing"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/pkg/simdate"
)

func TestWriteParsesBack(t *testing.T) {
	tmplID := uint64(3)
	end := simdate.MustNew(1, 8, 7, 96)
	events := []calendar.CalendarEvent{
		{
			ID:        7,
			StartTime: simdate.MustNew(1, 1, 2, 37),
			Details: calendar.EventDetails{
				Title:         "Contract talks",
				DurationTicks: 4,
				Attendees: []calendar.Attendee{
					{PersonID: 1, Status: calendar.AttendanceAccepted},
					{PersonID: 2, Status: calendar.AttendanceTentative},
				},
				Type:     calendar.EventMeeting,
				Priority: calendar.PriorityHigh,
			},
			TemplateID: &tmplID,
		},
	}
	templates := []calendar.RecurringEventTemplate{
		{
			ID:        tmplID,
			StartDate: simdate.MustNew(1, 1, 1, 37),
			EndDate:   &end,
			Details: calendar.EventDetails{
				Title:         "Training",
				DurationTicks: 8,
				Attendees:     []calendar.Attendee{{PersonID: 1}},
				Type:          calendar.EventTraining,
				Recurrence:    calendar.Weekdays(),
			},
		},
	}

	var buf bytes.Buffer
	exp := NewExporter("")
	require.NoError(t, exp.Write(&buf, events, templates))

	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "PARTSTAT=ACCEPTED")
	assert.Contains(t, out, "PARTSTAT=TENTATIVE")
	assert.Contains(t, out, "RRULE:FREQ=DAILY")

	parsed, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	vevents := parsed.Events()
	require.Len(t, vevents, 2)

	meeting := vevents[0]
	assert.Equal(t, "event-7@simcal.local", meeting.Id())
	assert.Equal(t, "Contract talks", meeting.GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, "3", meeting.GetProperty(ics.ComponentPropertyPriority).Value)
	assert.Equal(t, "template-3@simcal.local", meeting.GetProperty(ics.ComponentPropertyRelatedTo).Value)

	start, err := meeting.GetStartAt()
	require.NoError(t, err)
	assert.Equal(t, simdate.MustNew(1, 1, 2, 37).ToTime(), start.UTC())
	endAt, err := meeting.GetEndAt()
	require.NoError(t, err)
	assert.Equal(t, simdate.MustNew(1, 1, 2, 41).ToTime(), endAt.UTC())

	attendees := meeting.Attendees()
	require.Len(t, attendees, 2)
	assert.Equal(t, "person-1@simcal.local", attendees[0].Email())

	training := vevents[1]
	require.NotNil(t, training.GetProperty(ics.ComponentPropertyRrule))
	assert.Contains(t, training.GetProperty(ics.ComponentPropertyRrule).Value, "UNTIL=")
	assert.Equal(t, "training", training.GetProperty(ics.ComponentPropertyCategories).Value)
}

func TestOnceTemplateHasNoRule(t *testing.T) {
	cal := NewExporter("league.test").Calendar(nil, []calendar.RecurringEventTemplate{{
		ID:        1,
		StartDate: simdate.MustNew(2, 1, 1, 1),
		Details: calendar.EventDetails{
			Title:         "One-off",
			DurationTicks: 1,
			Attendees:     []calendar.Attendee{{PersonID: 9}},
		},
	}})

	require.Len(t, cal.Events(), 1)
	assert.Nil(t, cal.Events()[0].GetProperty(ics.ComponentPropertyRrule))
	assert.Equal(t, "template-1@league.test", cal.Events()[0].Id())
}

func TestEveryNWeeksTemplateExcludesStartWeek(t *testing.T) {
	cal := NewExporter("").Calendar(nil, []calendar.RecurringEventTemplate{{
		ID:        2,
		StartDate: simdate.MustNew(1, 1, 1, 37),
		Details: calendar.EventDetails{
			Title:         "Scouting",
			DurationTicks: 4,
			Attendees:     []calendar.Attendee{{PersonID: 5}},
			Recurrence:    calendar.EveryNWeeks(2, simdate.Friday),
		},
	}})

	require.Len(t, cal.Events(), 1)
	exdate := cal.Events()[0].GetProperty(ics.ComponentPropertyExdate)
	require.NotNil(t, exdate)
	assert.Equal(t, simdate.MustNew(1, 1, 5, 37).ToTime().UTC().Format(icsTimeLayout), exdate.Value)
}
