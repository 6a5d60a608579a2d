package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/models"

	"github.com/rs/zerolog"
)

// Options tune the outbox loop. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Retry        RetryPolicy
}

// deadLetterer is implemented by notifiers that can park undeliverable tasks.
type deadLetterer interface {
	DeadLetter(ctx context.Context, task models.OutboxTask) error
}

// OutboxWorker persists studio events and delivers them to a Notifier.
// Tasks live in the outbox table until delivered or failed; a wake-up signal
// from Enqueue shortens the wait for the next poll.
type OutboxWorker struct {
	repo         domain.OutboxRepository
	notifier     domain.Notifier
	retryPolicy  RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewOutboxWorker(repo domain.OutboxRepository, notifier domain.Notifier, opts Options, logger *zerolog.Logger) *OutboxWorker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		repo:         repo,
		notifier:     notifier,
		retryPolicy:  opts.Retry.withDefaults(),
		wake:         make(chan struct{}, 1),
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// Subscribe routes every studio event published on bus into the outbox.
func (w *OutboxWorker) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(func(event *events.Event) error {
		return w.Enqueue(context.Background(), event)
	})
}

// Enqueue persists the event as a pending outbox task.
func (w *OutboxWorker) Enqueue(ctx context.Context, event *events.Event) error {
	if event == nil || event.Type == "" {
		return errors.New("event type is required")
	}

	var ref struct {
		BookingID int64 `json:"booking_id"`
	}
	if err := json.Unmarshal(event.Payload, &ref); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}

	task := models.OutboxTask{
		EventType: event.Type,
		BookingID: ref.BookingID,
		Payload:   string(event.Payload),
		Status:    models.OutboxPending,
	}
	if err := w.repo.CreateOutboxTask(ctx, &task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for {
		if _, err := w.ProcessPending(ctx); err != nil {
			w.logger.Error().Err(err).Msg("fetch pending outbox tasks")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessPending delivers one batch of due tasks and returns how many it handled.
func (w *OutboxWorker) ProcessPending(ctx context.Context) (int, error) {
	tasks, err := w.repo.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	if err := w.notifier.Notify(ctx, *task); err != nil {
		if errors.Is(err, ErrMalformedTask) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.repo.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark outbox task completed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().
		Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("notification delivery failed, will retry")
	if err := w.repo.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark outbox task retry")
	}
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("event_type", task.EventType).Msg("notification failed")
	if err := w.repo.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark outbox task failed")
	}

	dl, ok := w.notifier.(deadLetterer)
	if !ok || errors.Is(cause, ErrMalformedTask) {
		return
	}
	if err := dl.DeadLetter(ctx, *task); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push")
	}
}

// Failed lists deliveries that gave up.
func (w *OutboxWorker) Failed(ctx context.Context) ([]models.OutboxTask, error) {
	return w.repo.GetFailedOutboxTasks(ctx)
}
