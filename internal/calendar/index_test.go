package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/simcal/internal/availability"
	"github.com/username/simcal/pkg/simdate"
)

func meeting(id uint64, start simdate.SimDate, duration uint8, people ...PersonID) CalendarEvent {
	attendees := make([]Attendee, 0, len(people))
	for _, p := range people {
		attendees = append(attendees, Attendee{PersonID: p, Status: AttendanceAccepted})
	}
	return CalendarEvent{
		ID:        id,
		StartTime: start,
		Details: EventDetails{
			Title:         "meeting",
			DurationTicks: duration,
			Attendees:     attendees,
			Recurrence:    Once(),
		},
	}
}

func availabilitySnapshot(idx *Index) map[PersonID]*availability.Monthly {
	out := make(map[PersonID]*availability.Monthly)
	for _, p := range idx.People() {
		avail, _ := idx.Availability(p)
		out[p] = avail.Clone()
	}
	return out
}

func assertSameAvailability(t *testing.T, want map[PersonID]*availability.Monthly, idx *Index, people ...PersonID) {
	t.Helper()
	for _, p := range people {
		expected, ok := want[p]
		if !ok {
			expected = availability.NewMonthly()
		}
		got, ok := idx.Availability(p)
		if !ok {
			got = availability.NewMonthly()
		}
		assert.True(t, expected.Equivalent(got), "availability of person %d differs", p)
	}
}

func TestAddEventMarksParticipantsBusy(t *testing.T) {
	idx := NewIndex(4, nil)
	start := simdate.MustNew(1, 1, 1, 37)
	require.NoError(t, idx.AddEvent(meeting(1, start, 4, 1, 2)))

	assert.False(t, idx.IsPersonFree(1, start, 1))
	assert.False(t, idx.IsPersonFree(2, start.AddTicks(3), 1))
	assert.True(t, idx.IsPersonFree(1, start.AddTicks(4), 8))
	assert.True(t, idx.IsPersonFree(3, start, 4), "unknown person is free")
	assert.False(t, idx.ArePeopleFree([]PersonID{3, 2}, start, 4))

	assert.Len(t, idx.EventsInWeek(1, 1), 1)
	assert.Empty(t, idx.EventsInWeek(1, 2))
	assert.Len(t, idx.EventsAtTime(start.AddTicks(2)), 1)
	assert.Empty(t, idx.EventsAtTime(start.AddTicks(4)))
	assert.Len(t, idx.EventsForPerson(2), 1)
	assert.Equal(t, 1, idx.Len())
}

func TestAddEventRejectsInvalid(t *testing.T) {
	idx := NewIndex(4, nil)
	start := simdate.MustNew(1, 1, 1, 37)
	require.NoError(t, idx.AddEvent(meeting(1, start, 4, 1)))

	assert.ErrorIs(t, idx.AddEvent(meeting(1, start.AddDays(1), 4, 2)), ErrDuplicateEvent)
	assert.ErrorIs(t, idx.AddEvent(meeting(2, start, 0, 2)), ErrInvalidDuration)
	assert.ErrorIs(t, idx.AddEvent(meeting(3, start, 97, 2)), ErrInvalidDuration)
	assert.ErrorIs(t, idx.AddEvent(meeting(4, simdate.SimDate{}, 4, 2)), ErrInvalidDate)

	bad := meeting(5, start, 4, 2)
	bad.Details.Recurrence = Custom()
	assert.ErrorIs(t, idx.AddEvent(bad), ErrInvalidRecurrence)

	assert.Equal(t, 1, idx.Len())
	assert.True(t, idx.IsPersonFree(2, start, 4), "rejected events leave no trace")
	_, ok := idx.Availability(2)
	assert.False(t, ok)
}

func TestRemoveEventIsInverseOfAdd(t *testing.T) {
	idx := NewIndex(8, nil)
	require.NoError(t, idx.AddEvent(meeting(1, simdate.MustNew(1, 1, 2, 10), 6, 1, 2)))

	before := availabilitySnapshot(idx)
	weekBefore := idx.EventsInWeek(1, 1)

	recurring := meeting(2, simdate.MustNew(1, 1, 1, 37), 8, 1, 3)
	recurring.Details.Recurrence = Weekdays()
	crossMonth := meeting(3, simdate.MustNew(1, 4, 7, 95), 6, 2, 3)

	require.NoError(t, idx.AddEvent(recurring))
	require.NoError(t, idx.AddEvent(crossMonth))
	assert.False(t, idx.IsPersonFree(3, simdate.MustNew(1, 6, 4, 40), 1), "recurring occurrence in week 6")
	assert.False(t, idx.IsPersonFree(2, simdate.MustNew(1, 5, 1, 1), 1), "cross-month tail")

	_, ok := idx.RemoveEvent(3)
	require.True(t, ok)
	removed, ok := idx.RemoveEvent(2)
	require.True(t, ok)
	assert.Equal(t, uint64(2), removed.ID)

	assertSameAvailability(t, before, idx, 1, 2, 3)
	assert.Equal(t, weekBefore, idx.EventsInWeek(1, 1))
	assert.Empty(t, idx.EventsInWeek(1, 6))
	assert.Empty(t, idx.EventsForPerson(3))
	assert.Equal(t, 1, idx.Len())

	_, ok = idx.RemoveEvent(2)
	assert.False(t, ok, "second removal is a no-op")
}

func TestRemoveEventKeepsOverlappingBusyTime(t *testing.T) {
	idx := NewIndex(4, nil)
	at := simdate.MustNew(1, 1, 1, 37)
	require.NoError(t, idx.AddEvent(meeting(1, at, 8, 1, 2)))
	require.NoError(t, idx.AddEvent(meeting(2, at.AddTicks(4), 8, 1)))

	_, ok := idx.RemoveEvent(1)
	require.True(t, ok)

	assert.True(t, idx.IsPersonFree(1, at, 4))
	assert.False(t, idx.IsPersonFree(1, at.AddTicks(4), 1), "shared tick still held by event 2")
	assert.False(t, idx.IsPersonFree(1, at.AddTicks(11), 1))
	assert.True(t, idx.IsPersonFree(2, at, 12))
}

func TestRecurringEventWithinHorizon(t *testing.T) {
	idx := NewIndex(4, nil)
	e := meeting(1, simdate.MustNew(1, 1, 1, 37), 4, 1)
	e.Details.Recurrence = Weekly()
	require.NoError(t, idx.AddEvent(e))

	for week := uint8(1); week <= 4; week++ {
		assert.Len(t, idx.EventsInWeek(1, week), 1, "week %d", week)
		assert.False(t, idx.IsPersonFree(1, simdate.MustNew(1, week, 1, 37), 4), "week %d", week)
	}
	assert.Empty(t, idx.EventsInWeek(1, 5))
	assert.True(t, idx.IsPersonFree(1, simdate.MustNew(1, 5, 1, 37), 4))
	assert.Len(t, idx.EventsForPerson(1), 1)
}

func TestFindCommonFreeTime(t *testing.T) {
	idx := NewIndex(1, nil)
	day := simdate.MustNew(1, 1, 1, 1)
	require.NoError(t, idx.AddEvent(meeting(1, day, 40, 1)))
	require.NoError(t, idx.AddEvent(meeting(2, day.AddTicks(40), 8, 2)))

	got, ok := idx.FindCommonFreeTime([]PersonID{1, 2}, 4, day)
	require.True(t, ok)
	assert.Equal(t, simdate.MustNew(1, 1, 1, 49), got)

	got, ok = idx.FindCommonFreeTime([]PersonID{1}, 4, day)
	require.True(t, ok)
	assert.Equal(t, simdate.MustNew(1, 1, 1, 41), got)

	got, ok = idx.FindCommonFreeTimeStep([]PersonID{1, 2}, 4, day, 32)
	require.True(t, ok)
	assert.Equal(t, simdate.MustNew(1, 1, 1, 65), got)

	_, ok = idx.FindCommonFreeTime([]PersonID{1}, 0, day)
	assert.False(t, ok)
}

func TestFindCommonFreeTimeNoSlotWithinHorizon(t *testing.T) {
	idx := NewIndex(1, nil)
	allDay := meeting(1, simdate.MustNew(1, 1, 1, 1), 96, 1)
	allDay.Details.Recurrence = Daily()
	require.NoError(t, idx.AddEvent(allDay))

	_, ok := idx.FindCommonFreeTime([]PersonID{1}, 1, simdate.MustNew(1, 1, 1, 1))
	assert.False(t, ok)

	got, ok := idx.FindCommonFreeTime([]PersonID{2}, 1, simdate.MustNew(1, 1, 1, 1))
	require.True(t, ok)
	assert.Equal(t, simdate.MustNew(1, 1, 1, 1), got)
}

func TestGetConflictsReportsEveryOverlappingEvent(t *testing.T) {
	idx := NewIndex(4, nil)
	at := simdate.MustNew(1, 1, 2, 37)
	require.NoError(t, idx.AddEvent(meeting(1, at, 4, 1)))
	require.NoError(t, idx.AddEvent(meeting(2, at.AddTicks(2), 4, 1, 3)))
	require.NoError(t, idx.AddEvent(meeting(3, at.AddTicks(20), 4, 1)))
	idx.AvailabilityFor(4).SetBusy(at, 8)

	conflicts := idx.GetConflicts([]PersonID{1, 2, 4}, at.AddTicks(1), 4)
	require.Len(t, conflicts, 2)

	assert.Equal(t, PersonID(1), conflicts[0].Person)
	require.Len(t, conflicts[0].Events, 2)
	assert.Equal(t, uint64(1), conflicts[0].Events[0].ID)
	assert.Equal(t, uint64(2), conflicts[0].Events[1].ID)

	assert.Equal(t, PersonID(4), conflicts[1].Person)
	assert.Empty(t, conflicts[1].Events, "manual block has no events")
}

func TestSnapshotRestore(t *testing.T) {
	idx := NewIndex(4, nil)
	e := meeting(1, simdate.MustNew(1, 1, 3, 40), 4, 1, 2)
	e.Details.Recurrence = EveryNWeeks(2, simdate.Wednesday)
	require.NoError(t, idx.AddEvent(e))
	require.NoError(t, idx.AddEvent(meeting(2, simdate.MustNew(1, 2, 1, 1), 8, 2)))
	idx.AvailabilityFor(3).SetBusy(simdate.MustNew(1, 1, 1, 1), 16)

	snap := idx.Snapshot()
	restored := NewIndex(1, nil)
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, uint32(4), restored.HorizonWeeks())
	assert.Equal(t, idx.Events(), restored.Events())
	assertSameAvailability(t, availabilitySnapshot(idx), restored, 1, 2, 3)
	assert.Len(t, restored.EventsInWeek(1, 3), 1)
	assert.False(t, restored.IsPersonFree(3, simdate.MustNew(1, 1, 1, 5), 1), "manual block survives")

	_, ok := restored.RemoveEvent(1)
	require.True(t, ok)
	assert.True(t, restored.IsPersonFree(1, simdate.MustNew(1, 3, 3, 40), 4))

	snap.Events = append(snap.Events, snap.Events[0])
	assert.ErrorIs(t, restored.Restore(snap), ErrDuplicateEvent)
	assert.Equal(t, 0, restored.Len())
}

func TestEvictMonthsBefore(t *testing.T) {
	idx := NewIndex(4, nil)
	require.NoError(t, idx.AddEvent(meeting(1, simdate.MustNew(1, 1, 1, 1), 4, 1, 2)))
	require.NoError(t, idx.AddEvent(meeting(2, simdate.MustNew(1, 9, 1, 1), 4, 1)))

	assert.Equal(t, 2, idx.EvictMonthsBefore(simdate.YearMonth{Year: 1, Month: 2}))
	avail, ok := idx.Availability(1)
	require.True(t, ok)
	assert.Equal(t, []simdate.YearMonth{{Year: 1, Month: 3}}, avail.AvailableMonths())
}

func TestScheduleMeeting(t *testing.T) {
	idx := NewIndex(4, nil)
	gen := NewSequentialIDs(10)
	start := simdate.MustNew(1, 1, 1, 37)

	id, err := ScheduleMeeting(idx, gen, "Standup", []PersonID{1, 2, 2}, start, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)

	e, ok := idx.Event(id)
	require.True(t, ok)
	assert.Equal(t, []PersonID{1, 2}, e.Details.Participants())
	assert.Equal(t, AttendanceAccepted, e.Details.Attendees[0].Status)
	assert.False(t, idx.IsPersonFree(2, start, 4))

	_, err = ScheduleMeeting(idx, gen, "Empty", nil, start, 4)
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, err = ScheduleMeeting(idx, gen, "Too long", []PersonID{1}, start, 120)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Equal(t, uint64(12), gen.Last(), "rejected booking still consumes an id")
}
