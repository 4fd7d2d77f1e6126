// Package seed loads a declarative starting schedule: working hours and
// standing blocks per person, recurring templates and one-off events.
// Plans are written in YAML or TOML.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/pkg/simdate"
)

// Plan is the root of a seed file.
type Plan struct {
	People    []Person   `yaml:"people" toml:"people" validate:"dive"`
	Templates []Template `yaml:"templates" toml:"templates" validate:"dive"`
	Events    []Event    `yaml:"events" toml:"events" validate:"dive"`
}

// Person configures availability for Months consecutive months starting at From.
type Person struct {
	ID           calendar.PersonID `yaml:"id" toml:"id"`
	From         simdate.YearMonth `yaml:"from" toml:"from"`
	Months       int               `yaml:"months" toml:"months" validate:"gte=0,lte=130"`
	WorkingHours *Hours            `yaml:"working_hours" toml:"working_hours"`
	Blocks       []Block           `yaml:"blocks" toml:"blocks" validate:"dive"`
}

// Hours is a daily working window, e.g. 09:00 to 17:00 on weekdays.
type Hours struct {
	Days  []string `yaml:"days" toml:"days"`
	Start string   `yaml:"start" toml:"start" validate:"required"`
	End   string   `yaml:"end" toml:"end" validate:"required"`
}

// Block is a standing busy window on the listed days.
type Block struct {
	Days     []string `yaml:"days" toml:"days"`
	At       string   `yaml:"at" toml:"at" validate:"required"`
	Duration string   `yaml:"duration" toml:"duration" validate:"required"`
}

// Template is a recurring event definition.
type Template struct {
	Title      string                     `yaml:"title" toml:"title" validate:"required"`
	Start      simdate.SimDate            `yaml:"start" toml:"start"`
	End        *simdate.SimDate           `yaml:"end" toml:"end"`
	Duration   string                     `yaml:"duration" toml:"duration" validate:"required"`
	Attendees  []calendar.PersonID        `yaml:"attendees" toml:"attendees" validate:"required,min=1"`
	Type       calendar.EventType         `yaml:"type" toml:"type"`
	Priority   *calendar.Priority         `yaml:"priority" toml:"priority"`
	Recurrence calendar.RecurrencePattern `yaml:"recurrence" toml:"recurrence"`
}

// Event is a concrete event. Recurrence is allowed and expands over the
// engine horizon like any other event.
type Event struct {
	Title      string                     `yaml:"title" toml:"title" validate:"required"`
	Start      simdate.SimDate            `yaml:"start" toml:"start"`
	Duration   string                     `yaml:"duration" toml:"duration" validate:"required"`
	Attendees  []calendar.PersonID        `yaml:"attendees" toml:"attendees" validate:"required,min=1"`
	Type       calendar.EventType         `yaml:"type" toml:"type"`
	Priority   *calendar.Priority         `yaml:"priority" toml:"priority"`
	Recurrence calendar.RecurrencePattern `yaml:"recurrence" toml:"recurrence"`
}

// Target receives a plan.
type Target interface {
	SetWorkingHours(p calendar.PersonID, month simdate.YearMonth, days []simdate.Weekday, startTick, endTick uint8) error
	BlockRecurring(p calendar.PersonID, month simdate.YearMonth, days []simdate.Weekday, dayTick uint8, duration uint32)
	AddTemplate(tmpl calendar.RecurringEventTemplate) (uint64, error)
	AddEvent(event calendar.CalendarEvent) (uint64, error)
}

// Result counts what Apply created.
type Result struct {
	People    int
	Templates int
	Events    int
}

// LoadFile reads a plan, choosing the decoder by file extension.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return DecodeYAML(bytes.NewReader(data))
	case ".toml":
		return DecodeTOML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported seed file extension %q", ext)
	}
}

// DecodeYAML decodes and validates a YAML plan. Unknown keys are rejected.
func DecodeYAML(r io.Reader) (*Plan, error) {
	var plan Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode seed yaml: %w", err)
	}
	return &plan, plan.Validate()
}

// DecodeTOML decodes and validates a TOML plan. Unknown keys are rejected.
func DecodeTOML(r io.Reader) (*Plan, error) {
	var plan Plan
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to decode seed toml: %w", err)
	}
	return &plan, plan.Validate()
}

// Validate checks required fields.
func (p *Plan) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("invalid seed plan: %w", err)
	}
	return nil
}

// Apply loads the plan into target. It stops at the first error; whatever
// was applied before it stays applied.
func Apply(target Target, plan *Plan, logger *zap.Logger) (Result, error) {
	var res Result

	for _, person := range plan.People {
		if err := applyPerson(target, person); err != nil {
			return res, fmt.Errorf("person %d: %w", person.ID, err)
		}
		res.People++
	}

	for i, t := range plan.Templates {
		details, err := buildDetails(t.Title, t.Duration, t.Attendees, t.Type, t.Priority, t.Recurrence)
		if err != nil {
			return res, fmt.Errorf("template %d (%s): %w", i, t.Title, err)
		}
		if _, err := target.AddTemplate(calendar.RecurringEventTemplate{
			StartDate: t.Start,
			EndDate:   t.End,
			Details:   details,
		}); err != nil {
			return res, fmt.Errorf("template %d (%s): %w", i, t.Title, err)
		}
		res.Templates++
	}

	for i, e := range plan.Events {
		details, err := buildDetails(e.Title, e.Duration, e.Attendees, e.Type, e.Priority, e.Recurrence)
		if err != nil {
			return res, fmt.Errorf("event %d (%s): %w", i, e.Title, err)
		}
		if _, err := target.AddEvent(calendar.CalendarEvent{
			StartTime: e.Start,
			Details:   details,
		}); err != nil {
			return res, fmt.Errorf("event %d (%s): %w", i, e.Title, err)
		}
		res.Events++
	}

	logger.Info("Seed plan applied",
		zap.Int("people", res.People),
		zap.Int("templates", res.Templates),
		zap.Int("events", res.Events))

	return res, nil
}

func applyPerson(target Target, person Person) error {
	months := person.Months
	if months == 0 {
		months = 1
	}

	var hoursDays []simdate.Weekday
	var startTick, endTick uint8
	if h := person.WorkingHours; h != nil {
		var err error
		if hoursDays, err = parseDays(h.Days); err != nil {
			return err
		}
		if startTick, err = parseClock(h.Start); err != nil {
			return err
		}
		if endTick, err = parseClock(h.End); err != nil {
			return err
		}
	}

	type block struct {
		days     []simdate.Weekday
		at       uint8
		duration uint32
	}
	blocks := make([]block, 0, len(person.Blocks))
	for _, b := range person.Blocks {
		days, err := parseDays(b.Days)
		if err != nil {
			return err
		}
		at, err := parseClock(b.At)
		if err != nil {
			return err
		}
		duration, err := simdate.ParseDuration(b.Duration)
		if err != nil {
			return fmt.Errorf("block duration: %w", err)
		}
		blocks = append(blocks, block{days, at, duration})
	}

	month := person.From
	for i := 0; i < months; i++ {
		if person.WorkingHours != nil {
			if err := target.SetWorkingHours(person.ID, month, hoursDays, startTick, endTick); err != nil {
				return err
			}
		}
		for _, b := range blocks {
			target.BlockRecurring(person.ID, month, b.days, b.at, b.duration)
		}
		month = month.Next()
	}
	return nil
}

func buildDetails(
	title, duration string,
	attendees []calendar.PersonID,
	eventType calendar.EventType,
	priority *calendar.Priority,
	recurrence calendar.RecurrencePattern,
) (calendar.EventDetails, error) {
	ticks, err := simdate.ParseDuration(duration)
	if err != nil {
		return calendar.EventDetails{}, fmt.Errorf("duration: %w", err)
	}
	if ticks == 0 || ticks > calendar.MaxEventTicks {
		return calendar.EventDetails{}, fmt.Errorf("duration %s: %w", duration, calendar.ErrInvalidDuration)
	}

	p := calendar.PriorityNormal
	if priority != nil {
		p = *priority
	}

	list := make([]calendar.Attendee, 0, len(attendees))
	for _, id := range attendees {
		list = append(list, calendar.Attendee{PersonID: id, Status: calendar.AttendanceAccepted})
	}

	return calendar.EventDetails{
		Title:         title,
		DurationTicks: uint8(ticks),
		Attendees:     list,
		Type:          eventType,
		Priority:      p,
		Recurrence:    recurrence,
	}, nil
}

// parseDays parses day names; an empty list means Monday to Friday.
func parseDays(names []string) ([]simdate.Weekday, error) {
	if len(names) == 0 {
		return simdate.WorkDays, nil
	}
	days := make([]simdate.Weekday, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "weekdays":
			days = append(days, simdate.WorkDays...)
			continue
		case "weekend":
			days = append(days, simdate.WeekendDays...)
			continue
		case "all":
			days = append(days, simdate.AllDays...)
			continue
		}
		d, err := simdate.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// parseClock converts HH:MM to a quarter tick of the day. 24:00 is accepted
// as the exclusive end of the day.
func parseClock(s string) (uint8, error) {
	if strings.TrimSpace(s) == "24:00" {
		return simdate.QuarterTicksPerDay + 1, nil
	}
	var hour, minute int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	tick, ok := simdate.ClockToQuarterTick(hour, minute)
	if !ok {
		return 0, fmt.Errorf("time of day %q is not on a 15-minute boundary", s)
	}
	return tick, nil
}
