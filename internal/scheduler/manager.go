package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/internal/config"
	"github.com/username/simcal/internal/metrics"
	"github.com/username/simcal/internal/store"
	"github.com/username/simcal/pkg/simdate"
)

// Manager is the thread-safe entry point to the calendar engine.
type Manager struct {
	mu         sync.RWMutex
	index      *calendar.Index
	templates  map[uint64]calendar.RecurringEventTemplate
	ids        *calendar.SequentialIDs
	searchStep uint32

	store    store.SnapshotStore
	storeKey string
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Status is a summary of the engine state.
type Status struct {
	Events       int    `json:"events"`
	Templates    int    `json:"templates"`
	People       int    `json:"people"`
	LastEventID  uint64 `json:"last_event_id"`
	HorizonWeeks uint32 `json:"horizon_weeks"`
}

// NewManager creates a new scheduler. st may be nil when persistence is not
// needed.
func NewManager(
	cfg *config.Config,
	st store.SnapshotStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		index:      calendar.NewIndex(cfg.Calendar.HorizonWeeks, logger.Named("index")),
		templates:  make(map[uint64]calendar.RecurringEventTemplate),
		ids:        calendar.NewSequentialIDs(0),
		searchStep: uint32(cfg.Calendar.GetSearchStep()),
		store:      st,
		storeKey:   cfg.Store.Key,
		metrics:    m,
		logger:     logger,
	}
}

// ScheduleMeeting books a one-off meeting and returns its id.
func (m *Manager) ScheduleMeeting(title string, participants []calendar.PersonID, start simdate.SimDate, duration uint8) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := calendar.ScheduleMeeting(m.index, m.ids, title, participants, start, duration)
	if err != nil {
		return 0, err
	}
	m.metrics.EventAdded()
	m.metrics.SetIndexedEvents(m.index.Len())

	m.logger.Info("Meeting scheduled",
		zap.Uint64("event_id", id),
		zap.String("title", title),
		zap.Stringer("start", start),
		zap.Uint8("duration", duration),
		zap.Int("participants", len(participants)))

	return id, nil
}

// AddEvent indexes a fully specified event. A zero id is replaced with a
// fresh one.
func (m *Manager) AddEvent(event calendar.CalendarEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(event.Details.Attendees) == 0 {
		return 0, calendar.ErrNoParticipants
	}
	if event.ID == 0 {
		event.ID = m.ids.NextID()
	} else if event.ID > m.ids.Last() {
		m.ids.Reset(event.ID)
	}
	if err := m.index.AddEvent(event); err != nil {
		return 0, fmt.Errorf("failed to add event: %w", err)
	}
	m.metrics.EventAdded()
	m.metrics.SetIndexedEvents(m.index.Len())

	m.logger.Info("Event added",
		zap.Uint64("event_id", event.ID),
		zap.String("title", event.Details.Title),
		zap.Stringer("start", event.StartTime),
		zap.Stringer("recurrence", event.Details.Recurrence))

	return event.ID, nil
}

// CancelEvent removes an event and frees its participants.
func (m *Manager) CancelEvent(id uint64) (calendar.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.index.RemoveEvent(id)
	if !ok {
		return calendar.CalendarEvent{}, fmt.Errorf("event %d: %w", id, calendar.ErrEventNotFound)
	}
	m.metrics.EventRemoved()
	m.metrics.SetIndexedEvents(m.index.Len())

	m.logger.Info("Event cancelled",
		zap.Uint64("event_id", id),
		zap.String("title", event.Details.Title))

	return event, nil
}

// AddTemplate registers a recurring template. Nothing is booked until
// MaterializeTemplates runs. A zero id is replaced with a fresh one.
func (m *Manager) AddTemplate(tmpl calendar.RecurringEventTemplate) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tmpl.ID == 0 {
		tmpl.ID = m.ids.NextID()
	}
	if _, exists := m.templates[tmpl.ID]; exists {
		return 0, fmt.Errorf("template %d already registered", tmpl.ID)
	}
	if err := tmpl.Validate(); err != nil {
		return 0, err
	}
	if tmpl.ID > m.ids.Last() {
		m.ids.Reset(tmpl.ID)
	}
	m.templates[tmpl.ID] = tmpl

	m.logger.Info("Template registered",
		zap.Uint64("template_id", tmpl.ID),
		zap.String("title", tmpl.Details.Title),
		zap.Stringer("recurrence", tmpl.Details.Recurrence),
		zap.Stringer("start", tmpl.StartDate))

	return tmpl.ID, nil
}

// RemoveTemplate unregisters a template and cancels every event it
// produced. It returns the number of cancelled events.
func (m *Manager) RemoveTemplate(id uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return 0, fmt.Errorf("template %d: %w", id, calendar.ErrTemplateNotFound)
	}
	delete(m.templates, id)

	removed := 0
	for _, event := range m.index.Events() {
		if event.TemplateID == nil || *event.TemplateID != id {
			continue
		}
		if _, ok := m.index.RemoveEvent(event.ID); ok {
			removed++
			m.metrics.EventRemoved()
		}
	}
	m.metrics.SetIndexedEvents(m.index.Len())

	m.logger.Info("Template removed",
		zap.Uint64("template_id", id),
		zap.Int("events_removed", removed))

	return removed, nil
}

// Templates returns the registered templates ordered by id.
func (m *Manager) Templates() []calendar.RecurringEventTemplate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedTemplates()
}

// MaterializeTemplates books every template occurrence in [from, to] that
// is not booked yet and returns how many events were added. Running it
// twice over the same window adds nothing the second time.
func (m *Manager) MaterializeTemplates(from, to simdate.SimDate) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	type occurrence struct {
		template uint64
		tick     uint64
	}
	booked := make(map[occurrence]bool)
	for _, event := range m.index.Events() {
		if event.TemplateID != nil {
			booked[occurrence{*event.TemplateID, event.StartTime.ToTick()}] = true
		}
	}

	added := 0
	scratch := calendar.NewSequentialIDs(0)
	for _, tmpl := range m.sortedTemplates() {
		for _, event := range tmpl.Expand(from, to, scratch) {
			key := occurrence{tmpl.ID, event.StartTime.ToTick()}
			if booked[key] {
				continue
			}
			event.ID = m.ids.NextID()
			if err := m.index.AddEvent(event); err != nil {
				m.logger.Warn("Failed to materialize template occurrence",
					zap.Uint64("template_id", tmpl.ID),
					zap.Stringer("start", event.StartTime),
					zap.Error(err))
				continue
			}
			booked[key] = true
			added++
			m.metrics.EventAdded()
		}
	}
	m.metrics.SetIndexedEvents(m.index.Len())

	if added > 0 {
		m.logger.Info("Templates materialized",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Int("events_added", added))
	}
	return added
}

func (m *Manager) sortedTemplates() []calendar.RecurringEventTemplate {
	out := make([]calendar.RecurringEventTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetWorkingHours sets a person's working hours for one month. On the
// listed days [startTick, endTick) is working time.
func (m *Manager) SetWorkingHours(p calendar.PersonID, month simdate.YearMonth, days []simdate.Weekday, startTick, endTick uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.index.AvailabilityFor(p).SetWorkingHours(month, days, startTick, endTick) {
		return fmt.Errorf("invalid working hours %d-%d for person %d", startTick, endTick, p)
	}
	m.logger.Debug("Working hours set",
		zap.Uint32("person", uint32(p)),
		zap.Stringer("month", month))
	return nil
}

// BlockRecurring marks a weekday pattern busy for one month without
// creating an event, e.g. a standing commitment the host tracks itself.
func (m *Manager) BlockRecurring(p calendar.PersonID, month simdate.YearMonth, days []simdate.Weekday, dayTick uint8, duration uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index.AvailabilityFor(p).GetOrCreateMonth(month).Availability.SetRecurringBusy(days, dayTick, duration)
}

// UnblockRecurring frees a weekday pattern for one month.
func (m *Manager) UnblockRecurring(p calendar.PersonID, month simdate.YearMonth, days []simdate.Weekday, dayTick uint8, duration uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index.AvailabilityFor(p).GetOrCreateMonth(month).Availability.SetRecurringFree(days, dayTick, duration)
}

// BlockTime marks a single window busy without creating an event.
func (m *Manager) BlockTime(p calendar.PersonID, start simdate.SimDate, duration uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index.AvailabilityFor(p).SetBusy(start, duration)
}

// IsFree reports whether the person is free for the whole window.
func (m *Manager) IsFree(p calendar.PersonID, start simdate.SimDate, duration uint8) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.metrics.ConflictCheck()
	return m.index.IsPersonFree(p, start, duration)
}

// AreFree reports whether every listed person is free.
func (m *Manager) AreFree(people []calendar.PersonID, start simdate.SimDate, duration uint8) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.metrics.ConflictCheck()
	return m.index.ArePeopleFree(people, start, duration)
}

// IsWithinWorkingHours reports whether the window is inside the person's
// working hours.
func (m *Manager) IsWithinWorkingHours(p calendar.PersonID, start simdate.SimDate, duration uint8) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avail, ok := m.index.Availability(p)
	if !ok {
		return true
	}
	return avail.IsWithinWorkingHours(start, uint32(duration))
}

// FindCommonFreeTime returns the earliest slot at or after from where all
// listed people are free, using the configured search step.
func (m *Manager) FindCommonFreeTime(people []calendar.PersonID, duration uint8, from simdate.SimDate) (simdate.SimDate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	started := time.Now()
	at, ok := m.index.FindCommonFreeTimeStep(people, duration, from, m.searchStep)
	m.metrics.ObserveFreeTimeSearch(time.Since(started))

	m.logger.Debug("Common free time search",
		zap.Stringer("from", from),
		zap.Uint8("duration", duration),
		zap.Bool("found", ok),
		zap.Duration("took", time.Since(started)))

	return at, ok
}

// FindCommonWorkingTime is FindCommonFreeTime restricted to slots inside
// every participant's working hours.
func (m *Manager) FindCommonWorkingTime(people []calendar.PersonID, duration uint8, from simdate.SimDate) (simdate.SimDate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	started := time.Now()
	defer func() { m.metrics.ObserveFreeTimeSearch(time.Since(started)) }()

	limit := from.ToTick() + uint64(m.index.HorizonWeeks())*simdate.TicksPerWeek
	cursor := from
	for {
		at, ok := m.index.FindCommonFreeTimeStep(people, duration, cursor, m.searchStep)
		if !ok || at.ToTick()+uint64(duration) > limit {
			return simdate.SimDate{}, false
		}
		if m.allWorking(people, at, duration) {
			return at, true
		}
		cursor = at.AddTicks(uint64(m.searchStep))
	}
}

func (m *Manager) allWorking(people []calendar.PersonID, at simdate.SimDate, duration uint8) bool {
	for _, p := range people {
		avail, ok := m.index.Availability(p)
		if ok && !avail.IsWithinWorkingHours(at, uint32(duration)) {
			return false
		}
	}
	return true
}

// Conflicts reports the blocking events of every busy person.
func (m *Manager) Conflicts(people []calendar.PersonID, start simdate.SimDate, duration uint8) []calendar.PersonConflicts {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.metrics.ConflictCheck()
	return m.index.GetConflicts(people, start, duration)
}

// Event returns one event.
func (m *Manager) Event(id uint64) (calendar.CalendarEvent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Event(id)
}

// Events returns every event.
func (m *Manager) Events() []calendar.CalendarEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Events()
}

// EventsInWeek returns the events with an occurrence in the week.
func (m *Manager) EventsInWeek(year uint16, week uint8) []calendar.CalendarEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.EventsInWeek(year, week)
}

// EventsAtTime returns the events occupying the tick.
func (m *Manager) EventsAtTime(at simdate.SimDate) []calendar.CalendarEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.EventsAtTime(at)
}

// EventsForPerson returns the person's events.
func (m *Manager) EventsForPerson(p calendar.PersonID) []calendar.CalendarEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.EventsForPerson(p)
}

// Status returns counters describing the engine state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		Events:       m.index.Len(),
		Templates:    len(m.templates),
		People:       len(m.index.People()),
		LastEventID:  m.ids.Last(),
		HorizonWeeks: m.index.HorizonWeeks(),
	}
}

// Evict drops availability months strictly before cutoff.
func (m *Manager) Evict(cutoff simdate.YearMonth) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.index.EvictMonthsBefore(cutoff)
	if removed > 0 {
		m.logger.Info("Old availability evicted",
			zap.Stringer("cutoff", cutoff),
			zap.Int("months_removed", removed))
	}
	return removed
}

// Snapshot captures events, templates, availability and the id counter.
func (m *Manager) Snapshot() calendar.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.index.Snapshot()
	snap.LastEventID = m.ids.Last()
	snap.Templates = m.sortedTemplates()
	return snap
}

// Restore replaces the engine state with the snapshot.
func (m *Manager) Restore(snap calendar.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Restore into a fresh index so a bad snapshot leaves current state intact.
	index := calendar.NewIndex(int(m.index.HorizonWeeks()), m.logger.Named("index"))
	if err := index.Restore(snap); err != nil {
		return err
	}
	m.index = index
	m.templates = make(map[uint64]calendar.RecurringEventTemplate, len(snap.Templates))
	last := snap.LastEventID
	for _, t := range snap.Templates {
		m.templates[t.ID] = t
		last = max(last, t.ID)
	}
	for _, e := range snap.Events {
		last = max(last, e.ID)
	}
	m.ids.Reset(last)
	m.metrics.SetIndexedEvents(m.index.Len())

	m.logger.Info("State restored",
		zap.Int("events", m.index.Len()),
		zap.Int("templates", len(m.templates)),
		zap.Uint64("last_event_id", last))

	return nil
}

// Save persists a snapshot through the configured store.
func (m *Manager) Save(ctx context.Context) error {
	if m.store == nil {
		return errors.New("no snapshot store configured")
	}
	snap := m.Snapshot()
	if err := m.store.Save(ctx, m.storeKey, &snap); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Load restores the last saved snapshot. A missing snapshot leaves the
// engine empty and is not an error.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return errors.New("no snapshot store configured")
	}
	snap, err := m.store.Load(ctx, m.storeKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Info("No saved state, starting empty", zap.String("key", m.storeKey))
			return nil
		}
		return fmt.Errorf("failed to load state: %w", err)
	}
	return m.Restore(*snap)
}
