package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/username/simcal/pkg/simdate"
)

// MaxOccurrences caps how many occurrences a single pattern expands to.
const MaxOccurrences = 5000

// RecurrenceKind selects how a pattern advances its cursor
type RecurrenceKind uint8

const (
	RecurrenceNone RecurrenceKind = iota
	RecurrenceDaily
	RecurrenceWeekly
	RecurrenceWeekdays
	RecurrenceCustom
	RecurrenceEveryNWeeks
)

// RecurrencePattern describes how an event repeats.
//
// Text form: none, daily, weekly, weekdays, custom:mon,wed,fri, every:2:fri.
type RecurrencePattern struct {
	Kind     RecurrenceKind
	Days     []simdate.Weekday // custom
	Interval uint8             // every N weeks
	Day      simdate.Weekday   // every N weeks
}

func Once() RecurrencePattern     { return RecurrencePattern{Kind: RecurrenceNone} }
func Daily() RecurrencePattern    { return RecurrencePattern{Kind: RecurrenceDaily} }
func Weekly() RecurrencePattern   { return RecurrencePattern{Kind: RecurrenceWeekly} }
func Weekdays() RecurrencePattern { return RecurrencePattern{Kind: RecurrenceWeekdays} }

// Custom repeats on the listed days of every week.
func Custom(days ...simdate.Weekday) RecurrencePattern {
	return RecurrencePattern{Kind: RecurrenceCustom, Days: days}
}

// EveryNWeeks repeats on one weekday every n weeks.
func EveryNWeeks(n uint8, day simdate.Weekday) RecurrencePattern {
	return RecurrencePattern{Kind: RecurrenceEveryNWeeks, Interval: n, Day: day}
}

// IsRecurring reports whether the pattern produces more than one occurrence.
func (p RecurrencePattern) IsRecurring() bool {
	return p.Kind != RecurrenceNone
}

// Validate checks the pattern parameters.
func (p RecurrencePattern) Validate() error {
	switch p.Kind {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceWeekdays:
		return nil
	case RecurrenceCustom:
		if len(p.Days) == 0 {
			return fmt.Errorf("%w: custom pattern needs at least one day", ErrInvalidRecurrence)
		}
		for _, d := range p.Days {
			if !d.Valid() {
				return fmt.Errorf("%w: day %d", ErrInvalidRecurrence, d)
			}
		}
		return nil
	case RecurrenceEveryNWeeks:
		if p.Interval == 0 {
			return fmt.Errorf("%w: interval must be at least 1", ErrInvalidRecurrence)
		}
		if !p.Day.Valid() {
			return fmt.Errorf("%w: day %d", ErrInvalidRecurrence, p.Day)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidRecurrence, p.Kind)
	}
}

var rruleDays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

func toRRuleDays(days []simdate.Weekday) []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, rruleDays[d-1])
	}
	return out
}

func (p RecurrencePattern) ruleOption(start time.Time) rrule.ROption {
	opt := rrule.ROption{Dtstart: start, Wkst: rrule.MO}
	switch p.Kind {
	case RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
	case RecurrenceWeekdays:
		opt.Freq = rrule.DAILY
		opt.Byweekday = toRRuleDays(simdate.WorkDays)
	case RecurrenceCustom:
		opt.Freq = rrule.DAILY
		opt.Byweekday = toRRuleDays(p.Days)
	case RecurrenceEveryNWeeks:
		opt.Freq = rrule.WEEKLY
		opt.Interval = int(p.Interval)
		opt.Byweekday = toRRuleDays([]simdate.Weekday{p.Day})
	}
	return opt
}

// RRule renders the pattern as an RRULE value without DTSTART. A non-zero
// until bounds the rule. Non-recurring or invalid patterns render as "".
func (p RecurrencePattern) RRule(until time.Time) string {
	if !p.IsRecurring() || p.Validate() != nil {
		return ""
	}
	opt := p.ruleOption(time.Time{})
	opt.Until = until
	return opt.RRuleString()
}

// ruleStart is where the rule itself begins. Every-N-weeks patterns that
// start off their weekday jump N weeks ahead and then forward to the target
// day, so nothing is emitted between start and that date.
func (p RecurrencePattern) ruleStart(start simdate.SimDate) simdate.SimDate {
	if p.Kind != RecurrenceEveryNWeeks || start.Weekday() == p.Day {
		return start
	}
	next := start.AddWeeks(uint64(p.Interval))
	shift := (int(p.Day) - int(next.Weekday()) + 7) % 7
	return next.AddDays(uint64(shift))
}

// SkippedDates lists the dates a plain RRULE anchored at start would produce
// that the pattern does not. Calendar exports carry them as EXDATE.
func (p RecurrencePattern) SkippedDates(start simdate.SimDate) []simdate.SimDate {
	if !p.IsRecurring() || p.Validate() != nil {
		return nil
	}
	first := p.ruleStart(start)
	if first == start {
		return nil
	}
	r, err := rrule.NewRRule(p.ruleOption(start.ToTime()))
	if err != nil {
		return nil
	}
	var out []simdate.SimDate
	for _, t := range r.Between(start.ToTime(), first.ToTime(), false) {
		if d, ok := simdate.FromTime(t); ok && d != start {
			out = append(out, d)
		}
	}
	return out
}

// Occurrences returns every occurrence start in [from, to], in order. The
// first cursor is always start itself, even when the pattern would not
// select its weekday; later cursors follow the pattern. At most
// MaxOccurrences values are returned.
func (p RecurrencePattern) Occurrences(start, from, to simdate.SimDate) []simdate.SimDate {
	if to.Before(from) || to.Before(start) {
		return nil
	}
	if !p.IsRecurring() {
		if start.Before(from) {
			return nil
		}
		return []simdate.SimDate{start}
	}
	if p.Validate() != nil {
		return nil
	}

	r, err := rrule.NewRRule(p.ruleOption(p.ruleStart(start).ToTime()))
	if err != nil {
		return nil
	}
	set := rrule.Set{}
	set.RRule(r)
	set.RDate(start.ToTime())

	times := set.Between(from.ToTime(), to.ToTime(), true)
	out := make([]simdate.SimDate, 0, len(times))
	var last simdate.SimDate
	for i, t := range times {
		d, ok := simdate.FromTime(t)
		if !ok || (i > 0 && d == last) {
			continue
		}
		out = append(out, d)
		last = d
		if len(out) == MaxOccurrences {
			break
		}
	}
	return out
}

// String renders the text form.
func (p RecurrencePattern) String() string {
	switch p.Kind {
	case RecurrenceNone:
		return "none"
	case RecurrenceDaily:
		return "daily"
	case RecurrenceWeekly:
		return "weekly"
	case RecurrenceWeekdays:
		return "weekdays"
	case RecurrenceCustom:
		names := make([]string, 0, len(p.Days))
		for _, d := range p.Days {
			names = append(names, d.String())
		}
		return "custom:" + strings.Join(names, ",")
	case RecurrenceEveryNWeeks:
		return fmt.Sprintf("every:%d:%s", p.Interval, p.Day)
	default:
		return fmt.Sprintf("unknown(%d)", p.Kind)
	}
}

// ParseRecurrence parses the text form. An empty string means none.
func ParseRecurrence(s string) (RecurrencePattern, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "once":
		return Once(), nil
	case "daily":
		return Daily(), nil
	case "weekly":
		return Weekly(), nil
	case "weekdays":
		return Weekdays(), nil
	}

	kind, rest, _ := strings.Cut(s, ":")
	switch kind {
	case "custom":
		var days []simdate.Weekday
		for _, name := range strings.Split(rest, ",") {
			d, err := simdate.ParseWeekday(name)
			if err != nil {
				return RecurrencePattern{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
			}
			days = append(days, d)
		}
		p := Custom(days...)
		return p, p.Validate()
	case "every":
		n, dayName, ok := strings.Cut(rest, ":")
		if !ok {
			return RecurrencePattern{}, fmt.Errorf("%w: expected every:N:day, got %q", ErrInvalidRecurrence, s)
		}
		interval, err := strconv.ParseUint(n, 10, 8)
		if err != nil {
			return RecurrencePattern{}, fmt.Errorf("%w: interval %q", ErrInvalidRecurrence, n)
		}
		day, err := simdate.ParseWeekday(dayName)
		if err != nil {
			return RecurrencePattern{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
		p := EveryNWeeks(uint8(interval), day)
		return p, p.Validate()
	}
	return RecurrencePattern{}, fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
}

// MarshalText implements encoding.TextMarshaler
func (p RecurrencePattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *RecurrencePattern) UnmarshalText(b []byte) error {
	parsed, err := ParseRecurrence(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
