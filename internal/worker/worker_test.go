package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"studiodesk/internal/database"
	"studiodesk/internal/events"
	"studiodesk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	err       error
	delivered []models.OutboxTask
	dead      []models.OutboxTask
}

func (f *fakeNotifier) Notify(_ context.Context, task models.OutboxTask) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, task)
	return nil
}

func (f *fakeNotifier) DeadLetter(_ context.Context, task models.OutboxTask) error {
	f.dead = append(f.dead, task)
	return nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func publishPayment(t *testing.T, bus *events.EventBus, bookingID int64) {
	t.Helper()
	err := bus.PublishJSON(events.EventPaymentRecorded, events.LedgerEventPayload{
		Reference: "ref-1", Type: "INCOME", Amount: 100_000, AccountID: 1, BookingID: bookingID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func loadTask(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry *time.Time) {
	t.Helper()
	row := db.QueryRow(`SELECT status, retry_count, next_retry_at FROM outbox WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("load task: %v", err)
	}
	return status, retryCount, nextRetry
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	worker := NewOutboxWorker(db, notifier, Options{}, nil)

	bus := events.NewEventBus()
	worker.Subscribe(bus)
	publishPayment(t, bus, 7)

	ctx := context.Background()
	n, err := worker.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 task, got %d", n)
	}
	if len(notifier.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(notifier.delivered))
	}

	task := notifier.delivered[0]
	if task.EventType != events.EventPaymentRecorded || task.BookingID != 7 {
		t.Fatalf("unexpected task %+v", task)
	}
	status, retryCount, nextRetry := loadTask(t, db, task.ID)
	if status != models.OutboxCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry != nil {
		t.Fatalf("expected next_retry_at NULL on success")
	}

	n, _ = worker.ProcessPending(ctx)
	if n != 0 {
		t.Fatalf("completed task delivered again")
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{err: errors.New("boom")}
	worker := NewOutboxWorker(db, notifier, Options{Retry: RetryPolicy{MaxRetries: 3, InitialDelay: time.Minute}}, nil)

	bus := events.NewEventBus()
	worker.Subscribe(bus)
	publishPayment(t, bus, 8)

	ctx := context.Background()
	tasks, err := db.GetPendingOutboxTasks(ctx, 10)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d (%v)", len(tasks), err)
	}
	worker.ProcessPending(ctx)

	status, retryCount, nextRetry := loadTask(t, db, tasks[0].ID)
	if status != models.OutboxRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if nextRetry == nil || nextRetry.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// not due yet
	if n, _ := worker.ProcessPending(ctx); n != 0 {
		t.Fatalf("expected no due tasks, got %d", n)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{err: errors.New("fatal")}
	worker := NewOutboxWorker(db, notifier, Options{Retry: RetryPolicy{MaxRetries: 1}}, nil)

	bus := events.NewEventBus()
	worker.Subscribe(bus)
	publishPayment(t, bus, 9)

	ctx := context.Background()
	worker.ProcessPending(ctx)

	failed, err := worker.Failed(ctx)
	if err != nil {
		t.Fatalf("failed tasks: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed task, got %d", len(failed))
	}
	if failed[0].LastError == nil || *failed[0].LastError != "fatal" {
		t.Fatalf("expected last_error=fatal, got %v", failed[0].LastError)
	}
	if len(notifier.dead) != 1 {
		t.Fatalf("expected dead letter, got %d", len(notifier.dead))
	}
}

func TestProcessTaskMalformed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	worker := NewOutboxWorker(db, NewRedisNotifier(client, ""), Options{}, nil)
	task := &models.OutboxTask{EventType: events.EventBookingCreated, Payload: "{not json"}
	if err := db.CreateOutboxTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	worker.ProcessPending(ctx)

	status, retryCount, _ := loadTask(t, db, task.ID)
	if status != models.OutboxFailed || retryCount != 0 {
		t.Fatalf("expected immediate failure, got %s after %d retries", status, retryCount)
	}
	if mr.Exists(DefaultQueueKey + deadLetterSuffix) {
		t.Fatalf("malformed task must not be dead-lettered")
	}
}

func TestEnqueueRejectsBadEvents(t *testing.T) {
	worker := NewOutboxWorker(newTestDB(t), &fakeNotifier{}, Options{}, nil)
	ctx := context.Background()

	if err := worker.Enqueue(ctx, &events.Event{}); err == nil {
		t.Fatalf("expected error for empty type")
	}
	if err := worker.Enqueue(ctx, &events.Event{Type: events.EventBookingCreated, Payload: []byte("nope")}); err == nil {
		t.Fatalf("expected error for undecodable payload")
	}
}

func TestRedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	n := NewRedisNotifier(client, "test:queue")
	ctx := context.Background()
	task := models.OutboxTask{ID: 5, EventType: events.EventBookingCreated, BookingID: 11, Payload: `{"booking_id":11}`}

	if err := n.Notify(ctx, task); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.DeadLetter(ctx, task); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	items, err := mr.List("test:queue")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 queued notification, got %v (%v)", items, err)
	}
	var msg Notification
	if err := json.Unmarshal([]byte(items[0]), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ID != 5 || msg.BookingID != 11 || msg.Attempt != 1 || string(msg.Payload) != `{"booking_id":11}` {
		t.Fatalf("unexpected notification %+v", msg)
	}

	dead, _ := mr.List("test:queue:dead")
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
}

func TestRedisNotifierServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	n := NewRedisNotifier(client, "")
	if err := n.Notify(context.Background(), models.OutboxTask{ID: 1, Payload: `{}`}); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestLogNotifier(t *testing.T) {
	logger := zerolog.New(io.Discard)
	n := NewLogNotifier(&logger)
	if err := n.Notify(context.Background(), models.OutboxTask{ID: 1, Payload: `{}`}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(context.Background(), models.OutboxTask{ID: 2, Payload: `x`}); !errors.Is(err, ErrMalformedTask) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	worker := NewOutboxWorker(db, notifier, Options{PollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	if p.MaxRetries != 5 || p.InitialDelay != 2*time.Second || p.MaxDelay != time.Minute || p.BackoffFactor != 2 {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p.Exhausted(4) || !p.Exhausted(5) {
		t.Fatalf("expected exhaustion at attempt 5")
	}
}
