package simdate

import (
	"fmt"
	"strings"
)

// Weekday is the day of week, Monday=1 through Sunday=7.
type Weekday uint8

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// AllDays lists the seven weekdays in order.
var AllDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WorkDays lists Monday through Friday.
var WorkDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// WeekendDays lists Saturday and Sunday.
var WeekendDays = []Weekday{Saturday, Sunday}

func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return fmt.Sprintf("Weekday(%d)", uint8(w))
	}
	return weekdayNames[w]
}

// Valid reports whether w is Monday..Sunday.
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// ParseWeekday accepts three-letter or full English day names.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for i := 1; i < len(weekdayNames); i++ {
			if strings.HasPrefix(s, weekdayNames[i]) {
				return Weekday(i), nil
			}
		}
	}
	return 0, fmt.Errorf("simdate: unknown weekday %q", s)
}

// StartOfDay returns the first quarter tick of the day
func StartOfDay(d SimDate) SimDate {
	d.QuarterTick = 1
	return d
}

// EndOfDay returns the last quarter tick of the day
func EndOfDay(d SimDate) SimDate {
	d.QuarterTick = QuarterTicksPerDay
	return d
}

// StartOfWeek returns the Monday of the week for the given date
func StartOfWeek(d SimDate) SimDate {
	d.Day = uint8(Monday)
	d.QuarterTick = 1
	return d
}

// EndOfWeek returns the last tick of the Sunday of the week
func EndOfWeek(d SimDate) SimDate {
	d.Day = uint8(Sunday)
	d.QuarterTick = QuarterTicksPerDay
	return d
}

// StartOfMonth returns the first tick of the 4-week month containing d
func StartOfMonth(d SimDate) SimDate {
	return SimDate{
		Year:        d.Year,
		Week:        (d.Month()-1)*WeeksPerMonth + 1,
		Day:         uint8(Monday),
		QuarterTick: 1,
	}
}

// NextMonthStart returns the first tick of the month after the one containing d
func NextMonthStart(d SimDate) SimDate {
	return StartOfMonth(d).AddTicks(TicksPerMonth)
}

// IsWeekday returns true if the date is Monday-Friday
func IsWeekday(d SimDate) bool {
	return d.Weekday() >= Monday && d.Weekday() <= Friday
}

// IsWeekend returns true if the date is Saturday or Sunday
func IsWeekend(d SimDate) bool {
	return d.Weekday() == Saturday || d.Weekday() == Sunday
}

// IsSameDay returns true if two dates are on the same day
func IsSameDay(a, b SimDate) bool {
	return a.Year == b.Year && a.Week == b.Week && a.Day == b.Day
}

// IsSameWeek returns true if two dates are in the same week
func IsSameWeek(a, b SimDate) bool {
	return a.Year == b.Year && a.Week == b.Week
}

// Parse parses the String form Y<year>-W<week>-D<day>@HH:MM.
// The time of day must fall on a quarter tick.
func Parse(s string) (SimDate, error) {
	var year, week, day, hour, minute int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "Y%d-W%d-D%d@%d:%d", &year, &week, &day, &hour, &minute); err != nil {
		return SimDate{}, fmt.Errorf("simdate: invalid date %q: %w", s, err)
	}
	if year < 1 || year > 0xFFFF || week < 0 || week > 0xFF || day < 0 || day > 0xFF {
		return SimDate{}, fmt.Errorf("simdate: date out of range %q", s)
	}
	qt, ok := ClockToQuarterTick(hour, minute)
	if !ok {
		return SimDate{}, fmt.Errorf("simdate: time of day %02d:%02d is not on a 15-minute boundary", hour, minute)
	}
	return New(uint16(year), uint8(week), uint8(day), qt)
}

// ClockToQuarterTick converts a wall-clock time to a 1-based quarter tick.
func ClockToQuarterTick(hour, minute int) (uint8, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || minute%MinutesPerTick != 0 {
		return 0, false
	}
	return uint8(hour*4+minute/MinutesPerTick) + 1, true
}

// ParseDuration converts an ISO 8601 duration into quarter ticks.
// Format: P[nW][nD][T[nH][nM]]. Days are 24 hours and weeks 7 days on the
// game calendar; the total must be a whole number of quarter ticks.
func ParseDuration(duration string) (uint32, error) {
	if duration == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if duration[0] != 'P' {
		return 0, fmt.Errorf("invalid duration format: must start with P")
	}
	duration = duration[1:]

	datePart := duration
	timePart := ""
	if idx := strings.IndexByte(duration, 'T'); idx >= 0 {
		datePart = duration[:idx]
		timePart = duration[idx+1:]
	}

	minutes := 0
	take := func(part *string, unit byte, scale int) error {
		idx := strings.IndexByte(*part, unit)
		if idx < 0 {
			return nil
		}
		var n int
		if _, err := fmt.Sscanf((*part)[:idx], "%d", &n); err != nil || n < 0 {
			return fmt.Errorf("invalid duration component %q", (*part)[:idx+1])
		}
		minutes += n * scale
		*part = (*part)[idx+1:]
		return nil
	}

	for _, step := range []struct {
		part  *string
		unit  byte
		scale int
	}{
		{&datePart, 'W', DaysPerWeek * 24 * 60},
		{&datePart, 'D', 24 * 60},
		{&timePart, 'H', 60},
		{&timePart, 'M', 1},
	} {
		if err := take(step.part, step.unit, step.scale); err != nil {
			return 0, err
		}
	}
	if datePart != "" || timePart != "" {
		return 0, fmt.Errorf("invalid duration format: unexpected %q", datePart+timePart)
	}
	if minutes%MinutesPerTick != 0 {
		return 0, fmt.Errorf("duration of %d minutes is not a multiple of %d", minutes, MinutesPerTick)
	}

	return uint32(minutes / MinutesPerTick), nil
}

// FormatDuration renders quarter ticks as an ISO 8601 time duration.
func FormatDuration(ticks uint32) string {
	minutes := int(ticks) * MinutesPerTick
	hours := minutes / 60
	minutes %= 60

	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("PT%dH%dM", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("PT%dH", hours)
	default:
		return fmt.Sprintf("PT%dM", minutes)
	}
}

// String formats the key as Y<year>-M<month>.
func (ym YearMonth) String() string {
	return fmt.Sprintf("Y%d-M%02d", ym.Year, ym.Month)
}

// Before orders keys by year, then month.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// Next returns the following month, rolling over the year.
func (ym YearMonth) Next() YearMonth {
	if ym.Month >= MonthsPerYear {
		return YearMonth{Year: ym.Year + 1, Month: 1}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// Start returns the first tick of the month.
func (ym YearMonth) Start() SimDate {
	return SimDate{
		Year:        ym.Year,
		Week:        (ym.Month-1)*WeeksPerMonth + 1,
		Day:         uint8(Monday),
		QuarterTick: 1,
	}
}

// MarshalText implements encoding.TextMarshaler so the key can be used in JSON maps.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (ym *YearMonth) UnmarshalText(b []byte) error {
	var year, month int
	if _, err := fmt.Sscanf(string(b), "Y%d-M%d", &year, &month); err != nil {
		return fmt.Errorf("simdate: invalid year-month %q: %w", string(b), err)
	}
	if year < 1 || year > 0xFFFF || month < 1 || month > MonthsPerYear {
		return fmt.Errorf("simdate: year-month out of range %q", string(b))
	}
	ym.Year = uint16(year)
	ym.Month = uint8(month)
	return nil
}
