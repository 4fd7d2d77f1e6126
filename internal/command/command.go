package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
	"github.com/username/simcal/internal/metrics"
	"github.com/username/simcal/pkg/simdate"
)

// Kind names a queued operation
type Kind string

const (
	KindBook   Kind = "book"
	KindCancel Kind = "cancel"
)

// Command is one deferred scheduling request from the host simulation.
type Command struct {
	ID           string              `json:"id"`
	Kind         Kind                `json:"kind" validate:"required,oneof=book cancel"`
	Title        string              `json:"title,omitempty" validate:"required_if=Kind book,max=200"`
	Participants []calendar.PersonID `json:"participants,omitempty" validate:"required_if=Kind book"`
	Start        simdate.SimDate     `json:"start"`
	Duration     uint8               `json:"duration,omitempty" validate:"required_if=Kind book,max=96"`
	EventID      uint64              `json:"event_id,omitempty" validate:"required_if=Kind cancel"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
}

// Handler executes one command.
type Handler func(ctx context.Context, cmd Command) error

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Processed int
	Failed    int
	Remaining int
}

// Queue buffers commands between simulation ticks and runs a bounded
// batch of them per tick.
type Queue struct {
	mu      sync.Mutex
	pending []Command

	validate   *validator.Validate
	maxPerTick int
	budget     time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewQueue creates a queue. maxPerTick <= 0 means no count limit and
// budget <= 0 means no time limit.
func NewQueue(maxPerTick int, budget time.Duration, m *metrics.Metrics, logger *zap.Logger) *Queue {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cmd := sl.Current().Interface().(Command)
		if cmd.Kind == KindBook && !cmd.Start.Valid() {
			sl.ReportError(cmd.Start, "Start", "start", "simdate", "")
		}
	}, Command{})

	return &Queue{
		validate:   v,
		maxPerTick: maxPerTick,
		budget:     budget,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Enqueue validates the command, assigns an id when missing and appends it.
func (q *Queue) Enqueue(cmd Command) (string, error) {
	if err := q.validate.Struct(cmd); err != nil {
		return "", fmt.Errorf("invalid %s command: %w", cmd.Kind, err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.EnqueuedAt = q.now()

	q.mu.Lock()
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	q.logger.Debug("Command queued",
		zap.String("id", cmd.ID),
		zap.String("kind", string(cmd.Kind)))

	return cmd.ID, nil
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Command{}, false
	}
	cmd := q.pending[0]
	q.pending = q.pending[1:]
	return cmd, true
}

// Drain runs pending commands in FIFO order until the queue is empty, the
// per-tick count is reached, the wall-clock budget is spent or ctx is done.
// At least one command runs per call when any is pending. Failed commands
// are logged and dropped.
func (q *Queue) Drain(ctx context.Context, handle Handler) DrainResult {
	var result DrainResult
	started := q.now()

	for {
		if q.maxPerTick > 0 && result.Processed >= q.maxPerTick {
			break
		}
		if result.Processed > 0 && q.budget > 0 && q.now().Sub(started) >= q.budget {
			break
		}
		if ctx.Err() != nil {
			break
		}
		cmd, ok := q.pop()
		if !ok {
			break
		}

		err := handle(ctx, cmd)
		q.metrics.CommandProcessed(string(cmd.Kind), err)
		result.Processed++
		if err != nil {
			result.Failed++
			q.logger.Warn("Command failed",
				zap.String("id", cmd.ID),
				zap.String("kind", string(cmd.Kind)),
				zap.Error(err))
		}
	}

	result.Remaining = q.Len()
	if result.Processed > 0 {
		q.logger.Debug("Command batch drained",
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
			zap.Int("remaining", result.Remaining))
	}
	return result
}
