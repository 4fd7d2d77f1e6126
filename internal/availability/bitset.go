package availability

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/bits"

	"gopkg.in/yaml.v3"

	"github.com/username/simcal/pkg/simdate"
)

const (
	// MaxTicksInMonth is the number of quarter ticks in one 4-week month.
	MaxTicksInMonth = simdate.TicksPerMonth

	wordBits  = 64
	wordCount = MaxTicksInMonth / wordBits

	binarySize = wordCount * 8
)

// BitSet holds one bit per quarter tick of a single month.
//
// For availability sets a set bit means busy; for working-hours sets a set
// bit means outside working hours. Writes past the end of the month are
// dropped, reads past the end report not free.
type BitSet struct {
	words [wordCount]uint64
}

// NewBitSet returns an all-zero set.
func NewBitSet() *BitSet {
	return &BitSet{}
}

// SetBusy sets duration consecutive bits starting at tickInMonth.
func (b *BitSet) SetBusy(tickInMonth, duration uint32) {
	b.fill(tickInMonth, duration, true)
}

// SetFree clears duration consecutive bits starting at tickInMonth.
func (b *BitSet) SetFree(tickInMonth, duration uint32) {
	b.fill(tickInMonth, duration, false)
}

func (b *BitSet) fill(start, duration uint32, busy bool) {
	end := uint64(start) + uint64(duration)
	if end > MaxTicksInMonth {
		end = MaxTicksInMonth
	}
	for pos := uint64(start); pos < end; pos++ {
		word, mask := pos/wordBits, uint64(1)<<(pos%wordBits)
		if busy {
			b.words[word] |= mask
		} else {
			b.words[word] &^= mask
		}
	}
}

// IsFree reports whether all duration bits from tickInMonth are clear.
// A window running past the end of the month is never free.
func (b *BitSet) IsFree(tickInMonth, duration uint32) bool {
	end := uint64(tickInMonth) + uint64(duration)
	if tickInMonth >= MaxTicksInMonth || end > MaxTicksInMonth {
		return false
	}
	for pos := uint64(tickInMonth); pos < end; pos++ {
		if b.words[pos/wordBits]&(uint64(1)<<(pos%wordBits)) != 0 {
			return false
		}
	}
	return true
}

// IsBusy reports whether the single tick is set. Out-of-range ticks are busy.
func (b *BitSet) IsBusy(tickInMonth uint32) bool {
	return !b.IsFree(tickInMonth, 1)
}

// FindNextFree returns the first offset >= start where a free window of
// duration ticks fits inside the month.
func (b *BitSet) FindNextFree(start, duration uint32) (uint32, bool) {
	if duration == 0 || duration > MaxTicksInMonth {
		return 0, false
	}
	for pos := uint64(start); pos+uint64(duration) <= MaxTicksInMonth; pos++ {
		if b.IsFree(uint32(pos), duration) {
			return uint32(pos), true
		}
	}
	return 0, false
}

// BusyCount returns the number of set bits.
func (b *BitSet) BusyCount() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// FreeCount returns the number of clear bits.
func (b *BitSet) FreeCount() int {
	return MaxTicksInMonth - b.BusyCount()
}

// Clear resets every bit.
func (b *BitSet) Clear() {
	b.words = [wordCount]uint64{}
}

// Equal reports whether both sets hold identical bits.
func (b *BitSet) Equal(other *BitSet) bool {
	return b.words == other.words
}

// Clone returns an independent copy.
func (b *BitSet) Clone() *BitSet {
	c := *b
	return &c
}

// IsEmpty reports whether no bit is set.
func (b *BitSet) IsEmpty() bool {
	return b.words == [wordCount]uint64{}
}

// MarshalJSON encodes the raw words so the set round-trips bit for bit.
func (b *BitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.words[:])
}

// UnmarshalJSON implements json.Unmarshaler
func (b *BitSet) UnmarshalJSON(data []byte) error {
	var words []uint64
	if err := json.Unmarshal(data, &words); err != nil {
		return err
	}
	if len(words) != wordCount {
		return fmt.Errorf("availability: bitset has %d words, want %d", len(words), wordCount)
	}
	copy(b.words[:], words)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (b *BitSet) MarshalYAML() (interface{}, error) {
	return b.words[:], nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (b *BitSet) UnmarshalYAML(value *yaml.Node) error {
	var words []uint64
	if err := value.Decode(&words); err != nil {
		return err
	}
	if len(words) != wordCount {
		return fmt.Errorf("availability: bitset has %d words, want %d", len(words), wordCount)
	}
	copy(b.words[:], words)
	return nil
}

// MarshalBinary encodes the set as little-endian words.
func (b *BitSet) MarshalBinary() ([]byte, error) {
	out := make([]byte, binarySize)
	for i, w := range b.words {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (b *BitSet) UnmarshalBinary(data []byte) error {
	if len(data) != binarySize {
		return fmt.Errorf("availability: bitset payload is %d bytes, want %d", len(data), binarySize)
	}
	for i := range b.words {
		b.words[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return nil
}

// Recurring patterns. Each helper expands a weekday x time-of-day pattern
// into one SetBusy/SetFree call per matching day of the four weeks.

// SetRecurringBusy marks dayTick..dayTick+duration busy on the given days of every week.
func (b *BitSet) SetRecurringBusy(days []simdate.Weekday, dayTick uint8, duration uint32) {
	b.applyPattern(days, dayTick, duration, true)
}

// SetRecurringFree clears the pattern on the given days of every week.
func (b *BitSet) SetRecurringFree(days []simdate.Weekday, dayTick uint8, duration uint32) {
	b.applyPattern(days, dayTick, duration, false)
}

// SetDailyBusy marks the same window busy on all seven days.
func (b *BitSet) SetDailyBusy(dayTick uint8, duration uint32) {
	b.applyPattern(simdate.AllDays, dayTick, duration, true)
}

// SetDailyFree clears the same window on all seven days.
func (b *BitSet) SetDailyFree(dayTick uint8, duration uint32) {
	b.applyPattern(simdate.AllDays, dayTick, duration, false)
}

// SetWeekdaysPattern applies the window Monday through Friday.
func (b *BitSet) SetWeekdaysPattern(dayTick uint8, duration uint32, busy bool) {
	b.applyPattern(simdate.WorkDays, dayTick, duration, busy)
}

// SetWeekendsPattern applies the window on Saturday and Sunday.
func (b *BitSet) SetWeekendsPattern(dayTick uint8, duration uint32, busy bool) {
	b.applyPattern(simdate.WeekendDays, dayTick, duration, busy)
}

func (b *BitSet) applyPattern(days []simdate.Weekday, dayTick uint8, duration uint32, busy bool) {
	for week := uint8(1); week <= simdate.WeeksPerMonth; week++ {
		for _, day := range days {
			pos, ok := DayTickToMonthTick(week, day, dayTick)
			if !ok {
				continue
			}
			b.fill(pos, duration, busy)
		}
	}
}

// DayTickToMonthTick maps (week in month, weekday, 1-based day tick) to a
// 0-based offset inside the month.
func DayTickToMonthTick(week uint8, day simdate.Weekday, dayTick uint8) (uint32, bool) {
	if week < 1 || week > simdate.WeeksPerMonth || !day.Valid() ||
		dayTick < 1 || dayTick > simdate.QuarterTicksPerDay {
		return 0, false
	}
	return uint32(week-1)*simdate.TicksPerWeek +
		uint32(day-1)*simdate.QuarterTicksPerDay +
		uint32(dayTick-1), true
}

// TimeToDayTick converts a wall-clock time to the 1..96 daily tick scale.
// Minutes must be a multiple of 15.
func TimeToDayTick(hour, minute int) (uint8, bool) {
	return simdate.ClockToQuarterTick(hour, minute)
}

// DayTickToTime is the inverse of TimeToDayTick.
func DayTickToTime(dayTick uint8) (hour, minute int, ok bool) {
	if dayTick < 1 || dayTick > simdate.QuarterTicksPerDay {
		return 0, 0, false
	}
	minutes := int(dayTick-1) * simdate.MinutesPerTick
	return minutes / 60, minutes % 60, true
}
