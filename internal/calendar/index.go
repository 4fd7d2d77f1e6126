package calendar

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/username/simcal/internal/availability"
	"github.com/username/simcal/pkg/simdate"
)

// DefaultHorizonWeeks is how far a recurring event is projected and how far
// ahead a free-time search looks when no horizon is configured.
const DefaultHorizonWeeks = 52

// WeekKey identifies one simulated week.
type WeekKey struct {
	Year uint16
	Week uint8
}

// PersonConflicts lists the events that make one person unavailable.
type PersonConflicts struct {
	Person PersonID
	Events []CalendarEvent
}

// Index stores every event and keeps the lookup structures and per-person
// availability consistent with it. Index is not safe for concurrent use;
// the scheduler serializes access.
type Index struct {
	events        map[uint64]CalendarEvent
	byWeek        map[WeekKey][]uint64
	byTick        map[uint64][]uint64
	byParticipant map[PersonID][]uint64
	availability  map[PersonID]*availability.Monthly
	timeRanges    *IntervalTree

	horizonWeeks uint32
	logger       *zap.Logger
}

// NewIndex creates an empty index. horizonWeeks <= 0 selects
// DefaultHorizonWeeks.
func NewIndex(horizonWeeks int, logger *zap.Logger) *Index {
	if horizonWeeks <= 0 {
		horizonWeeks = DefaultHorizonWeeks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &Index{
		horizonWeeks: uint32(horizonWeeks),
		logger:       logger,
	}
	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.events = make(map[uint64]CalendarEvent)
	idx.byWeek = make(map[WeekKey][]uint64)
	idx.byTick = make(map[uint64][]uint64)
	idx.byParticipant = make(map[PersonID][]uint64)
	idx.availability = make(map[PersonID]*availability.Monthly)
	idx.timeRanges = NewIntervalTree()
}

// HorizonWeeks returns the projection and search horizon.
func (idx *Index) HorizonWeeks() uint32 {
	return idx.horizonWeeks
}

// AddEvent indexes the event and marks every participant busy for every
// occurrence. It fails without changing anything when the id is already
// present or the event is malformed.
func (idx *Index) AddEvent(event CalendarEvent) error {
	if _, exists := idx.events[event.ID]; exists {
		return fmt.Errorf("event %d: %w", event.ID, ErrDuplicateEvent)
	}
	if err := event.validate(); err != nil {
		return err
	}

	idx.insert(event, true)
	idx.logger.Debug("Event indexed",
		zap.Uint64("id", event.ID),
		zap.Stringer("start", event.StartTime),
		zap.Uint8("duration", event.Details.DurationTicks),
		zap.Stringer("recurrence", event.Details.Recurrence))
	return nil
}

func (idx *Index) insert(event CalendarEvent, markBusy bool) {
	participants := event.Details.Participants()
	duration := uint64(event.Details.DurationTicks)

	for _, at := range event.Occurrences(idx.horizonWeeks) {
		wk := WeekKey{Year: at.Year, Week: at.Week}
		idx.byWeek[wk] = appendUnique(idx.byWeek[wk], event.ID)

		start := at.ToTick()
		for tick := start; tick < start+duration; tick++ {
			idx.byTick[tick] = appendUnique(idx.byTick[tick], event.ID)
		}
		idx.timeRanges.Insert(start, start+duration, event.ID)

		if markBusy {
			for _, p := range participants {
				idx.AvailabilityFor(p).SetBusy(at, uint32(duration))
			}
		}
	}
	for _, p := range participants {
		idx.byParticipant[p] = appendUnique(idx.byParticipant[p], event.ID)
	}
	idx.events[event.ID] = event
}

// RemoveEvent is the exact inverse of AddEvent. Ticks of the removed event
// that are also covered by another event of the same participant stay busy.
func (idx *Index) RemoveEvent(id uint64) (CalendarEvent, bool) {
	event, ok := idx.events[id]
	if !ok {
		return CalendarEvent{}, false
	}
	delete(idx.events, id)

	participants := event.Details.Participants()
	duration := uint64(event.Details.DurationTicks)
	occurrences := event.Occurrences(idx.horizonWeeks)

	for _, at := range occurrences {
		wk := WeekKey{Year: at.Year, Week: at.Week}
		idx.byWeek[wk] = removeID(idx.byWeek[wk], id)
		if len(idx.byWeek[wk]) == 0 {
			delete(idx.byWeek, wk)
		}

		start := at.ToTick()
		for tick := start; tick < start+duration; tick++ {
			idx.byTick[tick] = removeID(idx.byTick[tick], id)
			if len(idx.byTick[tick]) == 0 {
				delete(idx.byTick, tick)
			}
		}

		for _, p := range participants {
			if avail, ok := idx.availability[p]; ok {
				avail.SetFree(at, uint32(duration))
			}
		}
	}
	for _, p := range participants {
		idx.byParticipant[p] = removeID(idx.byParticipant[p], id)
		if len(idx.byParticipant[p]) == 0 {
			delete(idx.byParticipant, p)
		}
	}
	idx.timeRanges.RemoveEvent(id)

	// Re-assert busy time of events that shared the freed ranges.
	for _, at := range occurrences {
		start := at.ToTick()
		end := start + duration
		for _, iv := range idx.timeRanges.QueryOverlapping(start, end) {
			other := idx.events[iv.EventID]
			lo, hi := max(start, iv.Start), min(end, iv.End)
			for _, p := range participants {
				if other.Details.HasParticipant(p) {
					idx.AvailabilityFor(p).SetBusy(simdate.FromTick(lo), uint32(hi-lo))
				}
			}
		}
	}

	idx.logger.Debug("Event removed", zap.Uint64("id", id), zap.Int("occurrences", len(occurrences)))
	return event, true
}

// Event returns the stored event.
func (idx *Index) Event(id uint64) (CalendarEvent, bool) {
	event, ok := idx.events[id]
	return event, ok
}

// Events returns every stored event ordered by start then id.
func (idx *Index) Events() []CalendarEvent {
	out := make([]CalendarEvent, 0, len(idx.events))
	for _, e := range idx.events {
		out = append(out, e)
	}
	sortEvents(out)
	return out
}

// Len returns the number of stored events.
func (idx *Index) Len() int {
	return len(idx.events)
}

// IsPersonFree reports whether p has no busy tick in the window. A person
// the index has never seen is free.
func (idx *Index) IsPersonFree(p PersonID, start simdate.SimDate, duration uint8) bool {
	avail, ok := idx.availability[p]
	if !ok {
		return true
	}
	return avail.IsFree(start, uint32(duration))
}

// ArePeopleFree reports whether every listed person is free.
func (idx *Index) ArePeopleFree(people []PersonID, start simdate.SimDate, duration uint8) bool {
	for _, p := range people {
		if !idx.IsPersonFree(p, start, duration) {
			return false
		}
	}
	return true
}

// FindCommonFreeTime returns the earliest start at or after startFrom at
// which everyone is free for duration ticks, searching one tick at a time
// up to the horizon.
func (idx *Index) FindCommonFreeTime(people []PersonID, duration uint8, startFrom simdate.SimDate) (simdate.SimDate, bool) {
	return idx.FindCommonFreeTimeStep(people, duration, startFrom, 1)
}

// FindCommonFreeTimeStep is FindCommonFreeTime with a custom step.
func (idx *Index) FindCommonFreeTimeStep(people []PersonID, duration uint8, startFrom simdate.SimDate, step uint32) (simdate.SimDate, bool) {
	if duration == 0 || duration > MaxEventTicks || !startFrom.Valid() {
		return simdate.SimDate{}, false
	}
	if step == 0 {
		step = 1
	}
	first := startFrom.ToTick()
	limit := first + uint64(idx.horizonWeeks)*simdate.TicksPerWeek
	for tick := first; tick+uint64(duration) <= limit; tick += uint64(step) {
		at := simdate.FromTick(tick)
		if idx.ArePeopleFree(people, at, duration) {
			return at, true
		}
	}
	return simdate.SimDate{}, false
}

// GetConflicts returns, for every listed person who is not free in the
// window, the events of that person overlapping it. A person busy only
// through a manual block is reported with no events.
func (idx *Index) GetConflicts(people []PersonID, start simdate.SimDate, duration uint8) []PersonConflicts {
	var out []PersonConflicts
	from := start.ToTick()
	to := from + uint64(duration)
	for _, p := range people {
		if idx.IsPersonFree(p, start, duration) {
			continue
		}
		seen := make(map[uint64]bool)
		var events []CalendarEvent
		for _, iv := range idx.timeRanges.QueryOverlapping(from, to) {
			if seen[iv.EventID] {
				continue
			}
			seen[iv.EventID] = true
			if e := idx.events[iv.EventID]; e.Details.HasParticipant(p) {
				events = append(events, e)
			}
		}
		sortEvents(events)
		out = append(out, PersonConflicts{Person: p, Events: events})
	}
	return out
}

// EventsInWeek returns the events with an occurrence in the given week.
func (idx *Index) EventsInWeek(year uint16, week uint8) []CalendarEvent {
	return idx.lookup(idx.byWeek[WeekKey{Year: year, Week: week}])
}

// EventsAtTime returns the events occupying the tick.
func (idx *Index) EventsAtTime(at simdate.SimDate) []CalendarEvent {
	return idx.lookup(idx.byTick[at.ToTick()])
}

// EventsForPerson returns every event the person attends.
func (idx *Index) EventsForPerson(p PersonID) []CalendarEvent {
	return idx.lookup(idx.byParticipant[p])
}

func (idx *Index) lookup(ids []uint64) []CalendarEvent {
	out := make([]CalendarEvent, 0, len(ids))
	for _, id := range ids {
		if e, ok := idx.events[id]; ok {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

// Availability returns the person's availability map without creating it.
func (idx *Index) Availability(p PersonID) (*availability.Monthly, bool) {
	avail, ok := idx.availability[p]
	return avail, ok
}

// AvailabilityFor returns the person's availability map, creating it on
// first use.
func (idx *Index) AvailabilityFor(p PersonID) *availability.Monthly {
	avail, ok := idx.availability[p]
	if !ok {
		avail = availability.NewMonthly()
		idx.availability[p] = avail
	}
	return avail
}

// People returns every person with availability data, sorted.
func (idx *Index) People() []PersonID {
	out := make([]PersonID, 0, len(idx.availability))
	for p := range idx.availability {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EvictMonthsBefore drops availability months strictly before cutoff for
// every person and returns the number of months dropped.
func (idx *Index) EvictMonthsBefore(cutoff simdate.YearMonth) int {
	removed := 0
	for _, avail := range idx.availability {
		removed += avail.RemoveMonthsBefore(cutoff)
	}
	return removed
}

func sortEvents(events []CalendarEvent) {
	sort.Slice(events, func(i, j int) bool {
		if c := events[i].StartTime.Compare(events[j].StartTime); c != 0 {
			return c < 0
		}
		return events[i].ID < events[j].ID
	})
}

func appendUnique(ids []uint64, id uint64) []uint64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
