package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/username/simcal/internal/command"
	"github.com/username/simcal/internal/config"
	"github.com/username/simcal/internal/metrics"
	"github.com/username/simcal/internal/scheduler"
	"github.com/username/simcal/pkg/simdate"
)

// Daemon drives the simulated clock: every wall-clock tick it runs a
// bounded batch of queued commands, advances the clock and books template
// occurrences when a new week starts. Snapshots and retention run on a
// cron schedule.
type Daemon struct {
	manager *scheduler.Manager
	queue   *command.Queue
	metrics *metrics.Metrics
	cfg     *config.Config
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	clock    simdate.SimDate
	lastWeek uint64 // absolute week number of the last materialization
	steps    uint64

	cron   *cron.Cron
	server *http.Server
}

// StepResult describes one clock step.
type StepResult struct {
	Now          simdate.SimDate
	Commands     command.DrainResult
	Materialized int
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg *config.Config, manager *scheduler.Manager, queue *command.Queue, m *metrics.Metrics, logger *zap.Logger) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		manager:  manager,
		queue:    queue,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		clock:    cfg.Simulation.GetStart(),
		lastWeek: ^uint64(0),
	}
}

// Start runs the daemon until a signal arrives or Stop is called.
func (d *Daemon) Start() error {
	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			d.logger.Info("Received signal, shutting down",
				zap.String("signal", sig.String()))
			d.Stop()
		case <-d.ctx.Done():
		}
	}()

	return d.Run(d.ctx)
}

// Run is the main loop. It returns when ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.cfg.Simulation.GetTickInterval()
	d.logger.Info("Daemon started",
		zap.Stringer("sim_start", d.Now()),
		zap.Duration("tick_interval", interval),
		zap.Int("ticks_per_step", d.cfg.Simulation.TicksPerStep))

	if err := d.startCron(); err != nil {
		return err
	}
	defer d.stopCron()

	if err := d.startMetricsServer(); err != nil {
		return err
	}
	defer d.stopMetricsServer()

	d.materialize()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Daemon stopped", zap.Stringer("sim_time", d.Now()))
			d.runMaintenance()
			return nil

		case <-ticker.C:
			d.Step(ctx)
		}
	}
}

// Stop stops the daemon
func (d *Daemon) Stop() {
	d.cancel()
}

// Now returns the current simulated time.
func (d *Daemon) Now() simdate.SimDate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

// Queue returns the command queue fed by the host.
func (d *Daemon) Queue() *command.Queue {
	return d.queue
}

// Step drains one batch of commands at the current time, then advances the
// clock by ticks_per_step.
func (d *Daemon) Step(ctx context.Context) StepResult {
	drained := d.queue.Drain(ctx, d.handle)

	d.mu.Lock()
	d.clock = d.clock.AddTicks(uint64(d.cfg.Simulation.TicksPerStep))
	d.steps++
	now := d.clock
	d.mu.Unlock()

	d.metrics.SetSimTick(now.ToTick())

	return StepResult{
		Now:          now,
		Commands:     drained,
		Materialized: d.materialize(),
	}
}

// materialize books template occurrences for the current and next week,
// once per simulated week.
func (d *Daemon) materialize() int {
	now := d.Now()
	week := now.ToTick() / simdate.TicksPerWeek

	d.mu.Lock()
	if week == d.lastWeek {
		d.mu.Unlock()
		return 0
	}
	d.lastWeek = week
	d.mu.Unlock()

	from := simdate.StartOfWeek(now)
	to := simdate.EndOfWeek(now.AddWeeks(1))
	added := d.manager.MaterializeTemplates(from, to)

	d.logger.Info("New simulated week",
		zap.Uint16("year", now.Year),
		zap.Uint8("week", now.Week),
		zap.Int("events_materialized", added))

	return added
}

func (d *Daemon) handle(_ context.Context, cmd command.Command) error {
	switch cmd.Kind {
	case command.KindBook:
		_, err := d.manager.ScheduleMeeting(cmd.Title, cmd.Participants, cmd.Start, cmd.Duration)
		return err
	case command.KindCancel:
		_, err := d.manager.CancelEvent(cmd.EventID)
		return err
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

func (d *Daemon) startCron() error {
	schedule := d.cfg.Store.SnapshotCron
	if schedule == "" {
		return nil
	}

	d.cron = cron.New(cron.WithLogger(cronLogger{d.logger.Sugar()}))
	if _, err := d.cron.AddFunc(schedule, d.runMaintenance); err != nil {
		return fmt.Errorf("invalid store.snapshot_cron %q: %w", schedule, err)
	}
	d.cron.Start()

	d.logger.Info("Snapshot schedule started", zap.String("cron", schedule))
	return nil
}

func (d *Daemon) stopCron() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
}

// runMaintenance evicts old availability and saves a snapshot.
func (d *Daemon) runMaintenance() {
	if cutoff, ok := RetentionCutoff(d.Now().YearMonth(), d.cfg.Retention.KeepMonths); ok {
		d.manager.Evict(cutoff)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.manager.Save(ctx); err != nil {
		d.logger.Error("Snapshot failed", zap.Error(err))
		return
	}
	d.logger.Info("Snapshot completed", zap.Stringer("sim_time", d.Now()))
}

// RetentionCutoff returns the first month to keep when keepMonths months
// before current are retained. keepMonths == 0 disables eviction.
func RetentionCutoff(current simdate.YearMonth, keepMonths int) (simdate.YearMonth, bool) {
	if keepMonths <= 0 {
		return simdate.YearMonth{}, false
	}
	index := int(current.Year-1)*simdate.MonthsPerYear + int(current.Month-1) - keepMonths
	if index <= 0 {
		return simdate.YearMonth{}, false
	}
	return simdate.YearMonth{
		Year:  uint16(index/simdate.MonthsPerYear + 1),
		Month: uint8(index%simdate.MonthsPerYear + 1),
	}, true
}

func (d *Daemon) startMetricsServer() error {
	addr := d.cfg.Metrics.Listen
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	d.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	d.logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	return nil
}

func (d *Daemon) stopMetricsServer() {
	if d.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warn("Metrics server shutdown failed", zap.Error(err))
	}
}

// GetStatus returns daemon status
func (d *Daemon) GetStatus() map[string]interface{} {
	d.mu.Lock()
	steps := d.steps
	now := d.clock
	d.mu.Unlock()

	return map[string]interface{}{
		"running":          d.ctx.Err() == nil,
		"sim_time":         now.String(),
		"steps":            steps,
		"pending_commands": d.queue.Len(),
		"engine":           d.manager.Status(),
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
