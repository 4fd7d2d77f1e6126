package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/internal/command"
	"github.com/username/simcal/internal/daemon"
	"github.com/username/simcal/internal/export"
	"github.com/username/simcal/internal/metrics"
	"github.com/username/simcal/internal/scheduler"
	"github.com/username/simcal/internal/seed"
	"github.com/username/simcal/pkg/simdate"
)

func runCmd() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation clock and process queued commands",
		Long:  "Advance the simulated clock, book template occurrences each week and snapshot state on the configured cron schedule. With --stdin, JSON commands are read one per line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			mgr, closeStore, err := openManager(cmd, m)
			if err != nil {
				return err
			}
			defer closeStore()

			if cfg.Seed.File != "" && mgr.Status().Events == 0 && mgr.Status().Templates == 0 {
				if err := applySeed(mgr, cfg.Seed.File); err != nil {
					return err
				}
			}

			queue := command.NewQueue(cfg.Commands.MaxPerTick, cfg.Commands.GetBudget(), m, logger.Named("commands"))
			d := daemon.NewDaemon(cfg, mgr, queue, m, logger.Named("daemon"))

			if fromStdin {
				go readCommands(os.Stdin, queue)
			}

			return d.Start()
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read JSON commands from stdin, one per line")
	return cmd
}

// readCommands enqueues JSON commands until r is exhausted.
func readCommands(r io.Reader, queue *command.Queue) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c command.Command
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			logger.Warn("Skipping malformed command", zap.Error(err))
			continue
		}
		if _, err := queue.Enqueue(c); err != nil {
			logger.Warn("Command rejected", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Failed to read commands", zap.Error(err))
	}
}

func bookCmd() *cobra.Command {
	var title, people, startStr, durationStr string

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a one-off meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			participants, err := parsePeople(people)
			if err != nil {
				return err
			}
			start, err := simdate.Parse(startStr)
			if err != nil {
				return err
			}
			duration, err := parseEventDuration(durationStr)
			if err != nil {
				return err
			}

			return withManager(cmd, true, func(mgr *scheduler.Manager) error {
				if conflicts := mgr.Conflicts(participants, start, duration); len(conflicts) > 0 {
					printConflicts(cmd.OutOrStdout(), conflicts)
					return fmt.Errorf("participants are busy at %s", start)
				}
				id, err := mgr.ScheduleMeeting(title, participants, start, duration)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Booked #%d %q at %s (%s)\n", id, title, start, simdate.FormatDuration(uint32(duration)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "Meeting", "Meeting title")
	cmd.Flags().StringVarP(&people, "people", "p", "", "Comma-separated person ids")
	cmd.Flags().StringVarP(&startStr, "start", "s", "", "Start, e.g. Y1-W03-D2@09:00")
	cmd.Flags().StringVarP(&durationStr, "duration", "d", "PT1H", "ISO 8601 duration")
	_ = cmd.MarkFlagRequired("people")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <event-id>",
		Short: "Cancel an event and free its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			return withManager(cmd, true, func(mgr *scheduler.Manager) error {
				event, err := mgr.CancelEvent(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🗑  Cancelled #%d %q\n", id, event.Details.Title)
				return nil
			})
		},
	}
}

func blockCmd() *cobra.Command {
	var person uint32
	var startStr, durationStr string

	cmd := &cobra.Command{
		Use:   "block",
		Short: "Mark a person busy without creating an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := simdate.Parse(startStr)
			if err != nil {
				return err
			}
			duration, err := simdate.ParseDuration(durationStr)
			if err != nil {
				return err
			}
			return withManager(cmd, true, func(mgr *scheduler.Manager) error {
				mgr.BlockTime(calendar.PersonID(person), start, duration)
				fmt.Fprintf(cmd.OutOrStdout(), "⛔ Person %d blocked at %s for %s\n", person, start, simdate.FormatDuration(duration))
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&person, "person", 0, "Person id")
	cmd.Flags().StringVarP(&startStr, "start", "s", "", "Start, e.g. Y1-W03-D2@09:00")
	cmd.Flags().StringVarP(&durationStr, "duration", "d", "PT1H", "ISO 8601 duration")
	_ = cmd.MarkFlagRequired("person")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func freeCmd() *cobra.Command {
	var people, fromStr, durationStr string
	var working bool

	cmd := &cobra.Command{
		Use:   "free",
		Short: "Find the earliest slot where everyone is free",
		RunE: func(cmd *cobra.Command, args []string) error {
			participants, err := parsePeople(people)
			if err != nil {
				return err
			}
			from, err := simdate.Parse(fromStr)
			if err != nil {
				return err
			}
			duration, err := parseEventDuration(durationStr)
			if err != nil {
				return err
			}

			return withManager(cmd, false, func(mgr *scheduler.Manager) error {
				find := mgr.FindCommonFreeTime
				if working {
					find = mgr.FindCommonWorkingTime
				}
				at, ok := find(participants, duration, from)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "❌ No common slot within %d weeks of %s\n", mgr.Status().HorizonWeeks, from)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "📅 %s\n", at)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&people, "people", "p", "", "Comma-separated person ids")
	cmd.Flags().StringVarP(&fromStr, "from", "f", "Y1-W01-D1@00:00", "Search start")
	cmd.Flags().StringVarP(&durationStr, "duration", "d", "PT1H", "ISO 8601 duration")
	cmd.Flags().BoolVarP(&working, "working", "w", false, "Only consider working hours")
	_ = cmd.MarkFlagRequired("people")
	return cmd
}

func conflictsCmd() *cobra.Command {
	var people, startStr, durationStr string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List who is busy during a window and why",
		RunE: func(cmd *cobra.Command, args []string) error {
			participants, err := parsePeople(people)
			if err != nil {
				return err
			}
			start, err := simdate.Parse(startStr)
			if err != nil {
				return err
			}
			duration, err := parseEventDuration(durationStr)
			if err != nil {
				return err
			}

			return withManager(cmd, false, func(mgr *scheduler.Manager) error {
				conflicts := mgr.Conflicts(participants, start, duration)
				if len(conflicts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "✅ Everyone is free")
					return nil
				}
				printConflicts(cmd.OutOrStdout(), conflicts)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&people, "people", "p", "", "Comma-separated person ids")
	cmd.Flags().StringVarP(&startStr, "start", "s", "", "Window start")
	cmd.Flags().StringVarP(&durationStr, "duration", "d", "PT1H", "ISO 8601 duration")
	_ = cmd.MarkFlagRequired("people")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func weekCmd() *cobra.Command {
	var person int64

	cmd := &cobra.Command{
		Use:   "week <Y1-W03>",
		Short: "List the events of one week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, week, err := parseWeek(args[0])
			if err != nil {
				return err
			}
			return withManager(cmd, false, func(mgr *scheduler.Manager) error {
				events := mgr.EventsInWeek(year, week)
				if person >= 0 {
					events = filterPerson(events, calendar.PersonID(person))
				}
				printEvents(cmd.OutOrStdout(), events)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&person, "person", -1, "Only events with this participant")
	return cmd
}

func exportCmd() *cobra.Command {
	var output, weekStr, domain string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events and templates as iCalendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, false, func(mgr *scheduler.Manager) error {
				events := mgr.Events()
				templates := mgr.Templates()
				if weekStr != "" {
					year, week, err := parseWeek(weekStr)
					if err != nil {
						return err
					}
					events = mgr.EventsInWeek(year, week)
					templates = nil
				}

				w := cmd.OutOrStdout()
				if output != "" {
					if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
						return fmt.Errorf("failed to create output dir: %w", err)
					}
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}

				if err := export.NewExporter(domain).Write(w, events, templates); err != nil {
					return err
				}
				logger.Info("Calendar exported",
					zap.Int("events", len(events)),
					zap.Int("templates", len(templates)),
					zap.String("output", output))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&weekStr, "week", "", "Only one week, e.g. Y1-W03")
	cmd.Flags().StringVar(&domain, "domain", export.DefaultDomain, "Domain for UIDs and attendee addresses")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <plan.yaml|plan.toml>",
		Short: "Apply a seed plan to the saved state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, true, func(mgr *scheduler.Manager) error {
				return applySeed(mgr, args[0])
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, false, func(mgr *scheduler.Manager) error {
				s := mgr.Status()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Events:        %d\n", s.Events)
				fmt.Fprintf(out, "Templates:     %d\n", s.Templates)
				fmt.Fprintf(out, "People:        %d\n", s.People)
				fmt.Fprintf(out, "Last event id: %d\n", s.LastEventID)
				fmt.Fprintf(out, "Horizon:       %d weeks\n", s.HorizonWeeks)
				fmt.Fprintf(out, "Store:         %s (%s)\n", cfg.Store.Type, cfg.Store.Key)
				return nil
			})
		},
	}
}

// withManager opens the saved state, runs fn and saves when mutate is set.
func withManager(cmd *cobra.Command, mutate bool, fn func(mgr *scheduler.Manager) error) error {
	mgr, closeStore, err := openManager(cmd, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := fn(mgr); err != nil {
		return err
	}
	if mutate {
		return mgr.Save(cmd.Context())
	}
	return nil
}

func applySeed(mgr *scheduler.Manager, path string) error {
	plan, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	if _, err := seed.Apply(mgr, plan, logger.Named("seed")); err != nil {
		return fmt.Errorf("failed to apply seed plan: %w", err)
	}
	return nil
}

func parsePeople(s string) ([]calendar.PersonID, error) {
	var people []calendar.PersonID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid person id %q", part)
		}
		people = append(people, calendar.PersonID(id))
	}
	if len(people) == 0 {
		return nil, calendar.ErrNoParticipants
	}
	return people, nil
}

func parseEventDuration(s string) (uint8, error) {
	ticks, err := simdate.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if ticks == 0 || ticks > calendar.MaxEventTicks {
		return 0, fmt.Errorf("duration %s: %w", s, calendar.ErrInvalidDuration)
	}
	return uint8(ticks), nil
}

func parseWeek(s string) (uint16, uint8, error) {
	var year, week int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "Y%d-W%d", &year, &week); err != nil {
		return 0, 0, fmt.Errorf("invalid week %q, expected Y<year>-W<week>", s)
	}
	if year < 1 || year > 0xFFFF || week < 1 || week > simdate.WeeksPerYear {
		return 0, 0, fmt.Errorf("week out of range: %q", s)
	}
	return uint16(year), uint8(week), nil
}

func filterPerson(events []calendar.CalendarEvent, p calendar.PersonID) []calendar.CalendarEvent {
	out := events[:0]
	for _, e := range events {
		if e.Details.HasParticipant(p) {
			out = append(out, e)
		}
	}
	return out
}

func printEvents(w io.Writer, events []calendar.CalendarEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}
	fmt.Fprintln(w, "  ID     | Start              | Length | Type     | Title")
	fmt.Fprintln(w, "  -------+--------------------+--------+----------+------------------")
	for _, e := range events {
		fmt.Fprintf(w, "  %-6d | %-18s | %-6s | %-8s | %s\n",
			e.ID, e.StartTime, simdate.FormatDuration(uint32(e.Details.DurationTicks)), e.Details.Type, e.Details.Title)
	}
}

func printConflicts(w io.Writer, conflicts []calendar.PersonConflicts) {
	for _, c := range conflicts {
		if len(c.Events) == 0 {
			fmt.Fprintf(w, "⚠️  Person %d: blocked time\n", c.Person)
			continue
		}
		titles := make([]string, 0, len(c.Events))
		for _, e := range c.Events {
			titles = append(titles, fmt.Sprintf("#%d %s", e.ID, e.Details.Title))
		}
		fmt.Fprintf(w, "⚠️  Person %d: %s\n", c.Person, strings.Join(titles, ", "))
	}
}
