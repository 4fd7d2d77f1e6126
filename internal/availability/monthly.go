package availability

import (
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/username/simcal/pkg/simdate"
)

// Detail is the per-month state of one person.
type Detail struct {
	Availability *BitSet `json:"availability" yaml:"availability"`
	WorkingHours *BitSet `json:"working_hours" yaml:"working_hours"`
}

func newDetail() *Detail {
	return &Detail{Availability: NewBitSet(), WorkingHours: NewBitSet()}
}

// Monthly is a sparse, lazily materialized map of month to bitsets.
// A month absent from the map is fully free and fully within working hours.
type Monthly struct {
	months map[simdate.YearMonth]*Detail
}

// NewMonthly returns an empty availability map.
func NewMonthly() *Monthly {
	return &Monthly{months: make(map[simdate.YearMonth]*Detail)}
}

// segment is the part of a window that falls into one month.
type segment struct {
	month    simdate.YearMonth
	tick     uint32
	duration uint32
}

// split cuts [start, start+duration) at month boundaries. Event durations are
// capped at one day, so in practice this yields one or two segments.
func split(start simdate.SimDate, duration uint32) []segment {
	if duration == 0 {
		return nil
	}
	month := start.YearMonth()
	tick := start.TickInMonth()

	segs := make([]segment, 0, 2)
	for duration > 0 {
		n := duration
		if room := MaxTicksInMonth - tick; n > room {
			n = room
		}
		segs = append(segs, segment{month: month, tick: tick, duration: n})
		duration -= n
		month = month.Next()
		tick = 0
	}
	return segs
}

// SetBusy marks the window busy, materializing every touched month.
func (m *Monthly) SetBusy(start simdate.SimDate, duration uint32) {
	for _, s := range split(start, duration) {
		m.GetOrCreateMonth(s.month).Availability.SetBusy(s.tick, s.duration)
	}
}

// SetFree marks the window free, materializing every touched month.
func (m *Monthly) SetFree(start simdate.SimDate, duration uint32) {
	for _, s := range split(start, duration) {
		m.GetOrCreateMonth(s.month).Availability.SetFree(s.tick, s.duration)
	}
}

// IsFree reports whether every segment of the window is free in its month.
func (m *Monthly) IsFree(start simdate.SimDate, duration uint32) bool {
	for _, s := range split(start, duration) {
		detail, ok := m.months[s.month]
		if !ok {
			continue
		}
		if !detail.Availability.IsFree(s.tick, s.duration) {
			return false
		}
	}
	return true
}

// SetWorkingHours replaces the working-hours set of a month. On the listed
// days ticks [startTick, endTick) are working time; every other tick, and
// every tick of an unlisted day, is marked outside working hours.
func (m *Monthly) SetWorkingHours(month simdate.YearMonth, days []simdate.Weekday, startTick, endTick uint8) bool {
	if startTick < 1 || endTick <= startTick || endTick > simdate.QuarterTicksPerDay+1 {
		return false
	}
	working := make(map[simdate.Weekday]bool, len(days))
	for _, d := range days {
		working[d] = true
	}

	wh := m.GetOrCreateMonth(month).WorkingHours
	wh.Clear()
	for _, day := range simdate.AllDays {
		if !working[day] {
			wh.SetRecurringBusy([]simdate.Weekday{day}, 1, simdate.QuarterTicksPerDay)
			continue
		}
		wh.SetRecurringBusy([]simdate.Weekday{day}, 1, uint32(startTick-1))
		if endTick <= simdate.QuarterTicksPerDay {
			wh.SetRecurringBusy([]simdate.Weekday{day}, endTick, uint32(simdate.QuarterTicksPerDay-endTick+1))
		}
	}
	return true
}

// IsWithinWorkingHours reports whether the window lies entirely inside
// working hours. Months without data are treated as all working time.
func (m *Monthly) IsWithinWorkingHours(start simdate.SimDate, duration uint32) bool {
	for _, s := range split(start, duration) {
		detail, ok := m.months[s.month]
		if !ok {
			continue
		}
		if !detail.WorkingHours.IsFree(s.tick, s.duration) {
			return false
		}
	}
	return true
}

// GetOrCreateMonth returns the month, creating an empty one if needed.
// Callers must use it before any mutation.
func (m *Monthly) GetOrCreateMonth(month simdate.YearMonth) *Detail {
	detail, ok := m.months[month]
	if !ok {
		detail = newDetail()
		m.months[month] = detail
	}
	return detail
}

// GetMonth is the read-only lookup.
func (m *Monthly) GetMonth(month simdate.YearMonth) (*Detail, bool) {
	detail, ok := m.months[month]
	return detail, ok
}

// RemoveMonth drops a month and reports whether it existed.
func (m *Monthly) RemoveMonth(month simdate.YearMonth) bool {
	if _, ok := m.months[month]; !ok {
		return false
	}
	delete(m.months, month)
	return true
}

// RemoveMonthsBefore drops every month strictly before cutoff and returns
// how many were removed.
func (m *Monthly) RemoveMonthsBefore(cutoff simdate.YearMonth) int {
	removed := 0
	for month := range m.months {
		if month.Before(cutoff) {
			delete(m.months, month)
			removed++
		}
	}
	return removed
}

// AvailableMonths lists materialized months sorted by year then month.
func (m *Monthly) AvailableMonths() []simdate.YearMonth {
	out := make([]simdate.YearMonth, 0, len(m.months))
	for month := range m.months {
		out = append(out, month)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Len returns the number of materialized months.
func (m *Monthly) Len() int {
	return len(m.months)
}

// Clone returns a deep copy.
func (m *Monthly) Clone() *Monthly {
	c := NewMonthly()
	for month, detail := range m.months {
		c.months[month] = &Detail{
			Availability: detail.Availability.Clone(),
			WorkingHours: detail.WorkingHours.Clone(),
		}
	}
	return c
}

// Equivalent compares availability bits month by month, treating an absent
// month as an all-free one. Working hours are not compared.
func (m *Monthly) Equivalent(other *Monthly) bool {
	empty := NewBitSet()
	lookup := func(src *Monthly, month simdate.YearMonth) *BitSet {
		if d, ok := src.months[month]; ok {
			return d.Availability
		}
		return empty
	}
	for month := range m.months {
		if !lookup(m, month).Equal(lookup(other, month)) {
			return false
		}
	}
	for month := range other.months {
		if !lookup(m, month).Equal(lookup(other, month)) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler
func (m *Monthly) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.months)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Monthly) UnmarshalJSON(data []byte) error {
	months := make(map[simdate.YearMonth]*Detail)
	if err := json.Unmarshal(data, &months); err != nil {
		return err
	}
	m.adopt(months)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (m *Monthly) MarshalYAML() (interface{}, error) {
	return m.months, nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (m *Monthly) UnmarshalYAML(value *yaml.Node) error {
	months := make(map[simdate.YearMonth]*Detail)
	if err := value.Decode(&months); err != nil {
		return err
	}
	m.adopt(months)
	return nil
}

func (m *Monthly) adopt(months map[simdate.YearMonth]*Detail) {
	for month, detail := range months {
		if detail == nil {
			detail = newDetail()
		}
		if detail.Availability == nil {
			detail.Availability = NewBitSet()
		}
		if detail.WorkingHours == nil {
			detail.WorkingHours = NewBitSet()
		}
		months[month] = detail
	}
	m.months = months
}
