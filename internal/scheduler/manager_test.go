package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/internal/config"
	"github.com/username/simcal/internal/metrics"
	"github.com/username/simcal/internal/store"
	"github.com/username/simcal/pkg/simdate"
)

func newTestManager(t *testing.T, horizonWeeks int) (*Manager, *metrics.Metrics) {
	t.Helper()
	cfg := config.Default()
	cfg.Calendar.HorizonWeeks = horizonWeeks
	cfg.Store.Key = "test"
	m := metrics.New()
	st := store.NewFileStore(t.TempDir(), store.FormatJSON, zap.NewNop())
	return NewManager(cfg, st, m, zap.NewNop()), m
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func TestScheduleAndCancel(t *testing.T) {
	mgr, m := newTestManager(t, 4)
	start := simdate.MustNew(1, 1, 2, 37)

	id, err := mgr.ScheduleMeeting("Scouting", []calendar.PersonID{1, 2}, start, 4)
	require.NoError(t, err)
	assert.False(t, mgr.IsFree(1, start, 4))
	assert.False(t, mgr.AreFree([]calendar.PersonID{2, 3}, start, 1))
	assert.Len(t, mgr.EventsInWeek(1, 1), 1)
	assert.Len(t, mgr.EventsForPerson(2), 1)
	assert.Len(t, mgr.EventsAtTime(start), 1)

	event, err := mgr.CancelEvent(id)
	require.NoError(t, err)
	assert.Equal(t, "Scouting", event.Details.Title)
	assert.True(t, mgr.IsFree(1, start, 4))

	_, err = mgr.CancelEvent(id)
	assert.ErrorIs(t, err, calendar.ErrEventNotFound)

	assert.Equal(t, 1.0, counterValue(t, m, "simcal_events_added_total"))
	assert.Equal(t, 1.0, counterValue(t, m, "simcal_events_removed_total"))
	assert.Equal(t, 3.0, counterValue(t, m, "simcal_conflict_checks_total"))
}

func TestAddEventKeepsIDsUnique(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	event := calendar.CalendarEvent{
		ID:        40,
		StartTime: simdate.MustNew(1, 1, 1, 1),
		Details: calendar.EventDetails{
			Title:         "Match",
			DurationTicks: 8,
			Attendees:     []calendar.Attendee{{PersonID: 1}},
			Type:          calendar.EventMatch,
		},
	}
	id, err := mgr.AddEvent(event)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), id)

	next, err := mgr.ScheduleMeeting("After", []calendar.PersonID{2}, simdate.MustNew(1, 1, 2, 1), 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), next)

	_, err = mgr.AddEvent(event)
	assert.ErrorIs(t, err, calendar.ErrDuplicateEvent)

	event.ID = 0
	event.Details.Attendees = nil
	_, err = mgr.AddEvent(event)
	assert.ErrorIs(t, err, calendar.ErrNoParticipants)
}

func TestTemplatesMaterializeOnce(t *testing.T) {
	mgr, _ := newTestManager(t, 8)
	tmpl := calendar.RecurringEventTemplate{
		StartDate: simdate.MustNew(1, 1, 1, 37),
		Details: calendar.EventDetails{
			Title:         "Training",
			DurationTicks: 8,
			Attendees:     []calendar.Attendee{{PersonID: 1}, {PersonID: 2}},
			Type:          calendar.EventTraining,
			Recurrence:    calendar.Custom(simdate.Monday, simdate.Wednesday),
		},
	}
	tmplID, err := mgr.AddTemplate(tmpl)
	require.NoError(t, err)
	assert.Len(t, mgr.Templates(), 1)
	assert.True(t, mgr.IsFree(1, simdate.MustNew(1, 1, 1, 37), 8), "registration books nothing")

	added := mgr.MaterializeTemplates(simdate.MustNew(1, 1, 1, 1), simdate.MustNew(1, 2, 7, 96))
	assert.Equal(t, 4, added)
	assert.Equal(t, 0, mgr.MaterializeTemplates(simdate.MustNew(1, 1, 1, 1), simdate.MustNew(1, 2, 7, 96)))
	assert.False(t, mgr.IsFree(2, simdate.MustNew(1, 2, 3, 40), 1))

	assert.Equal(t, 2, mgr.MaterializeTemplates(simdate.MustNew(1, 1, 1, 1), simdate.MustNew(1, 3, 7, 96)))

	for _, e := range mgr.Events() {
		require.NotNil(t, e.TemplateID)
		assert.Equal(t, tmplID, *e.TemplateID)
	}

	removed, err := mgr.RemoveTemplate(tmplID)
	require.NoError(t, err)
	assert.Equal(t, 6, removed)
	assert.Empty(t, mgr.Events())
	assert.True(t, mgr.IsFree(2, simdate.MustNew(1, 2, 3, 40), 1))

	_, err = mgr.RemoveTemplate(tmplID)
	assert.ErrorIs(t, err, calendar.ErrTemplateNotFound)
}

func TestAddTemplateRejectsInvalid(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	_, err := mgr.AddTemplate(calendar.RecurringEventTemplate{
		StartDate: simdate.MustNew(1, 1, 1, 1),
		Details:   calendar.EventDetails{DurationTicks: 4, Recurrence: calendar.Daily()},
	})
	assert.ErrorIs(t, err, calendar.ErrNoParticipants)
	assert.Empty(t, mgr.Templates())
}

func TestWorkingHoursAndBlocks(t *testing.T) {
	mgr, _ := newTestManager(t, 1)
	month := simdate.YearMonth{Year: 1, Month: 1}
	nine, _ := simdate.ClockToQuarterTick(9, 0)
	five, _ := simdate.ClockToQuarterTick(17, 0)

	require.NoError(t, mgr.SetWorkingHours(1, month, simdate.WorkDays, nine, five))
	require.NoError(t, mgr.SetWorkingHours(2, month, simdate.WorkDays, nine, five))
	assert.Error(t, mgr.SetWorkingHours(1, month, simdate.WorkDays, five, nine))

	mgr.BlockRecurring(2, month, simdate.WorkDays, nine, 8)
	assert.False(t, mgr.IsFree(2, simdate.MustNew(1, 3, 2, nine), 1), "recurring block applies to every week")
	assert.True(t, mgr.IsWithinWorkingHours(1, simdate.MustNew(1, 1, 1, nine), 32))
	assert.False(t, mgr.IsWithinWorkingHours(1, simdate.MustNew(1, 1, 6, nine), 1))

	from := simdate.MustNew(1, 1, 1, 1)
	anyTime, ok := mgr.FindCommonFreeTime([]calendar.PersonID{1, 2}, 4, from)
	require.True(t, ok)
	assert.Equal(t, from, anyTime, "free time ignores working hours")

	working, ok := mgr.FindCommonWorkingTime([]calendar.PersonID{1, 2}, 4, from)
	require.True(t, ok)
	assert.Equal(t, simdate.MustNew(1, 1, 1, nine+8), working, "first working slot after the morning block")

	mgr.UnblockRecurring(2, month, simdate.WorkDays, nine, 8)
	working, ok = mgr.FindCommonWorkingTime([]calendar.PersonID{1, 2}, 4, from)
	require.True(t, ok)
	assert.Equal(t, simdate.MustNew(1, 1, 1, nine), working)

	mgr.BlockTime(1, simdate.MustNew(1, 1, 1, nine), 4)
	conflicts := mgr.Conflicts([]calendar.PersonID{1, 2}, simdate.MustNew(1, 1, 1, nine), 4)
	require.Len(t, conflicts, 1)
	assert.Equal(t, calendar.PersonID(1), conflicts[0].Person)
}

func TestSaveLoad(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Load(ctx), "missing snapshot starts empty")

	_, err := mgr.ScheduleMeeting("Review", []calendar.PersonID{1}, simdate.MustNew(1, 1, 1, 40), 4)
	require.NoError(t, err)
	_, err = mgr.AddTemplate(calendar.RecurringEventTemplate{
		StartDate: simdate.MustNew(1, 1, 1, 1),
		Details: calendar.EventDetails{
			Title:         "Sleep",
			DurationTicks: 28,
			Attendees:     []calendar.Attendee{{PersonID: 1}},
			Recurrence:    calendar.Daily(),
		},
	})
	require.NoError(t, err)
	mgr.BlockTime(5, simdate.MustNew(1, 2, 1, 1), 10)
	require.NoError(t, mgr.Save(ctx))

	before := mgr.Status()

	restored := NewManager(&config.Config{
		Calendar: config.CalendarConfig{HorizonWeeks: 1},
		Store:    config.StoreConfig{Key: "test"},
	}, mgr.store, nil, zap.NewNop())
	require.NoError(t, restored.Load(ctx))

	assert.Equal(t, before, restored.Status())
	assert.Len(t, restored.Templates(), 1)
	assert.False(t, restored.IsFree(5, simdate.MustNew(1, 2, 1, 5), 1))

	id, err := restored.ScheduleMeeting("Next", []calendar.PersonID{2}, simdate.MustNew(1, 1, 3, 1), 4)
	require.NoError(t, err)
	assert.Equal(t, before.LastEventID+1, id)
}

func TestRestoreFailureKeepsState(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	id, err := mgr.ScheduleMeeting("Review", []calendar.PersonID{1}, simdate.MustNew(1, 1, 1, 40), 4)
	require.NoError(t, err)
	_, err = mgr.AddTemplate(calendar.RecurringEventTemplate{
		StartDate: simdate.MustNew(1, 1, 1, 1),
		Details: calendar.EventDetails{
			Title:         "Sleep",
			DurationTicks: 28,
			Attendees:     []calendar.Attendee{{PersonID: 1}},
			Recurrence:    calendar.Daily(),
		},
	})
	require.NoError(t, err)
	before := mgr.Status()

	snap := mgr.Snapshot()
	snap.Events = append(snap.Events, snap.Events[0])
	assert.ErrorIs(t, mgr.Restore(snap), calendar.ErrDuplicateEvent)

	assert.Equal(t, before, mgr.Status())
	assert.Len(t, mgr.Templates(), 1)
	_, ok := mgr.Event(id)
	assert.True(t, ok)
	assert.False(t, mgr.IsFree(1, simdate.MustNew(1, 1, 1, 40), 1))
}

func TestNewManagerNilLogger(t *testing.T) {
	mgr := NewManager(config.Default(), nil, nil, nil)
	_, err := mgr.ScheduleMeeting("Review", []calendar.PersonID{1}, simdate.MustNew(1, 1, 1, 40), 4)
	assert.NoError(t, err)
}

func TestEvict(t *testing.T) {
	mgr, _ := newTestManager(t, 4)
	_, err := mgr.ScheduleMeeting("Old", []calendar.PersonID{1}, simdate.MustNew(1, 1, 1, 1), 4)
	require.NoError(t, err)
	_, err = mgr.ScheduleMeeting("New", []calendar.PersonID{1}, simdate.MustNew(1, 9, 1, 1), 4)
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.Evict(simdate.YearMonth{Year: 1, Month: 3}))
	assert.Equal(t, 0, mgr.Evict(simdate.YearMonth{Year: 1, Month: 3}))
}
