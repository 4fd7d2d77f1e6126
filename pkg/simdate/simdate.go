package simdate

import (
	"fmt"
	"time"
)

// Calendar geometry. A year is 13 months of 4 weeks each.
const (
	QuarterTicksPerDay = 96
	DaysPerWeek        = 7
	WeeksPerMonth      = 4
	MonthsPerYear      = 13
	WeeksPerYear       = WeeksPerMonth * MonthsPerYear

	TicksPerWeek  = DaysPerWeek * QuarterTicksPerDay
	TicksPerMonth = WeeksPerMonth * TicksPerWeek
	TicksPerYear  = WeeksPerYear * TicksPerWeek

	MinutesPerTick = 15
)

// Epoch is the wall-clock instant tick 0 maps to. It is a Monday so that
// weekday arithmetic on time.Time agrees with Day.
var Epoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// SimDate is a point on the game calendar with 15-minute resolution.
type SimDate struct {
	Year        uint16
	Week        uint8
	Day         uint8
	QuarterTick uint8
}

// YearMonth identifies one 4-week partition of a year.
type YearMonth struct {
	Year  uint16
	Month uint8
}

// New validates the components and returns the date.
func New(year uint16, week, day, quarterTick uint8) (SimDate, error) {
	if year < 1 {
		return SimDate{}, fmt.Errorf("simdate: year must be >= 1, got %d", year)
	}
	if week < 1 || week > WeeksPerYear {
		return SimDate{}, fmt.Errorf("simdate: week must be in 1..%d, got %d", WeeksPerYear, week)
	}
	if day < 1 || day > DaysPerWeek {
		return SimDate{}, fmt.Errorf("simdate: day must be in 1..%d, got %d", DaysPerWeek, day)
	}
	if quarterTick < 1 || quarterTick > QuarterTicksPerDay {
		return SimDate{}, fmt.Errorf("simdate: quarter tick must be in 1..%d, got %d", QuarterTicksPerDay, quarterTick)
	}
	return SimDate{Year: year, Week: week, Day: day, QuarterTick: quarterTick}, nil
}

// MustNew is New for literals; it panics on invalid input.
func MustNew(year uint16, week, day, quarterTick uint8) SimDate {
	d, err := New(year, week, day, quarterTick)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTick converts an absolute tick count into a date.
func FromTick(tick uint64) SimDate {
	year := tick / TicksPerYear
	rem := tick % TicksPerYear
	week := rem / TicksPerWeek
	rem %= TicksPerWeek
	day := rem / QuarterTicksPerDay
	qt := rem % QuarterTicksPerDay

	return SimDate{
		Year:        uint16(year + 1),
		Week:        uint8(week + 1),
		Day:         uint8(day + 1),
		QuarterTick: uint8(qt + 1),
	}
}

// ToTick returns the absolute tick count of the date.
func (d SimDate) ToTick() uint64 {
	return uint64(d.Year-1)*TicksPerYear +
		uint64(d.Week-1)*TicksPerWeek +
		uint64(d.Day-1)*QuarterTicksPerDay +
		uint64(d.QuarterTick-1)
}

// Valid reports whether every component is in range.
func (d SimDate) Valid() bool {
	_, err := New(d.Year, d.Week, d.Day, d.QuarterTick)
	return err == nil
}

// Month returns the month number 1..13.
func (d SimDate) Month() uint8 {
	return (d.Week-1)/WeeksPerMonth + 1
}

// WeekInMonth returns the week number inside the month, 1..4.
func (d SimDate) WeekInMonth() uint8 {
	return (d.Week-1)%WeeksPerMonth + 1
}

// TickInMonth returns the 0-based tick offset from the start of the month.
func (d SimDate) TickInMonth() uint32 {
	return uint32(d.WeekInMonth()-1)*TicksPerWeek +
		uint32(d.Day-1)*QuarterTicksPerDay +
		uint32(d.QuarterTick-1)
}

// YearMonth returns the availability partition key of the date.
func (d SimDate) YearMonth() YearMonth {
	return YearMonth{Year: d.Year, Month: d.Month()}
}

// Weekday returns the day of week (Monday=1).
func (d SimDate) Weekday() Weekday {
	return Weekday(d.Day)
}

// Compare returns -1, 0 or 1 following tick order.
func (d SimDate) Compare(other SimDate) int {
	a, b := d.ToTick(), other.ToTick()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (d SimDate) Before(other SimDate) bool { return d.Compare(other) < 0 }
func (d SimDate) After(other SimDate) bool  { return d.Compare(other) > 0 }
func (d SimDate) Equal(other SimDate) bool  { return d == other }

// AddTicks moves the date forward by n ticks.
func (d SimDate) AddTicks(n uint64) SimDate {
	return FromTick(d.ToTick() + n)
}

// SubTicks moves the date backwards by n ticks, stopping at tick 0.
func (d SimDate) SubTicks(n uint64) SimDate {
	t := d.ToTick()
	if n > t {
		return FromTick(0)
	}
	return FromTick(t - n)
}

// AddDays moves the date forward by n whole days.
func (d SimDate) AddDays(n uint64) SimDate {
	return d.AddTicks(n * QuarterTicksPerDay)
}

// AddWeeks moves the date forward by n whole weeks.
func (d SimDate) AddWeeks(n uint64) SimDate {
	return d.AddTicks(n * TicksPerWeek)
}

// String formats the date as Y<year>-W<week>-D<day>@HH:MM.
func (d SimDate) String() string {
	h, m := d.Clock()
	return fmt.Sprintf("Y%d-W%02d-D%d@%02d:%02d", d.Year, d.Week, d.Day, h, m)
}

// Clock returns the wall-clock time of day of the quarter tick.
func (d SimDate) Clock() (hour, minute int) {
	minutes := int(d.QuarterTick-1) * MinutesPerTick
	return minutes / 60, minutes % 60
}

// IsZero reports whether d is the unset zero value.
func (d SimDate) IsZero() bool {
	return d == SimDate{}
}

// MarshalText implements encoding.TextMarshaler. The zero value encodes as "".
func (d SimDate) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *SimDate) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = SimDate{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ToTime maps the date onto the wall clock, starting at Epoch.
func (d SimDate) ToTime() time.Time {
	tick := d.ToTick()
	return Epoch.AddDate(0, 0, int(tick/QuarterTicksPerDay)).
		Add(time.Duration(tick%QuarterTicksPerDay) * MinutesPerTick * time.Minute)
}

// FromTime is the inverse of ToTime. Instants before Epoch are rejected;
// instants between quarter ticks round down.
func FromTime(t time.Time) (SimDate, bool) {
	secs := t.Unix() - Epoch.Unix()
	if secs < 0 {
		return SimDate{}, false
	}
	return FromTick(uint64(secs / (MinutesPerTick * 60))), true
}
