package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiodesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultQueueKey  = "studio:notifications"
	deadLetterSuffix = ":dead"
)

// ErrMalformedTask marks a task that can never be delivered and is not retried.
var ErrMalformedTask = errors.New("malformed outbox task")

// Notification is what external collaborators read from the queue.
type Notification struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	BookingID int64           `json:"booking_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempt   int             `json:"attempt"`
}

func notificationOf(task models.OutboxTask) (Notification, error) {
	if !json.Valid([]byte(task.Payload)) {
		return Notification{}, fmt.Errorf("%w: task %d payload is not valid JSON", ErrMalformedTask, task.ID)
	}
	return Notification{
		ID:        task.ID,
		EventType: task.EventType,
		BookingID: task.BookingID,
		Payload:   json.RawMessage(task.Payload),
		CreatedAt: task.CreatedAt,
		Attempt:   task.RetryCount + 1,
	}, nil
}

// RedisNotifier appends notifications to a redis list. Consumers pop from the
// head, so delivery order follows the outbox.
type RedisNotifier struct {
	client        *redis.Client
	queueKey      string
	deadLetterKey string
}

func NewRedisNotifier(client *redis.Client, queueKey string) *RedisNotifier {
	if queueKey == "" {
		queueKey = DefaultQueueKey
	}
	return &RedisNotifier{client: client, queueKey: queueKey, deadLetterKey: queueKey + deadLetterSuffix}
}

func (n *RedisNotifier) Notify(ctx context.Context, task models.OutboxTask) error {
	return n.push(ctx, n.queueKey, task)
}

// DeadLetter parks a task that will not be retried.
func (n *RedisNotifier) DeadLetter(ctx context.Context, task models.OutboxTask) error {
	return n.push(ctx, n.deadLetterKey, task)
}

func (n *RedisNotifier) push(ctx context.Context, key string, task models.OutboxTask) error {
	if n.client == nil {
		return errors.New("redis client is nil")
	}
	msg, err := notificationOf(task)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.client.RPush(ctx, key, data).Err()
}

// LogNotifier only logs. Used when no redis is configured so the outbox still drains.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, task models.OutboxTask) error {
	msg, err := notificationOf(task)
	if err != nil {
		return err
	}
	n.logger.Info().
		Int64("task_id", msg.ID).
		Str("event_type", msg.EventType).
		Int64("booking_id", msg.BookingID).
		RawJSON("payload", msg.Payload).
		Msg("notification")
	return nil
}
