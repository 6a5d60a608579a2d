package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventPaymentRecorded      = "payment_recorded"
	EventRefundRecorded       = "refund_recorded"
	EventPayoutRecorded       = "payout_recorded"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID      int64     `json:"booking_id"`
	ClientName     string    `json:"client_name"`
	RoomID         string    `json:"room_id"`
	Date           time.Time `json:"date"`
	StartTime      string    `json:"start_time"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	AddedTasks     []string  `json:"added_tasks,omitempty"`
}

// LedgerEventPayload describes a recorded payment, refund or payout.
type LedgerEventPayload struct {
	Reference   string `json:"reference"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	AccountID   int64  `json:"account_id"`
	Balance     int64  `json:"balance"`
	BookingID   int64  `json:"booking_id,omitempty"`
	RecipientID int64  `json:"recipient_id,omitempty"`
	PaidAmount  int64  `json:"paid_amount,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers one handler for every known event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range Types() {
		b.Subscribe(t, handler)
	}
}

// Publish runs the subscribers of the event type synchronously and
// returns the first handler error. All handlers run regardless.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Types lists the event types the studio emits.
func Types() []string {
	return []string{
		EventBookingCreated,
		EventBookingStatusChanged,
		EventPaymentRecorded,
		EventRefundRecorded,
		EventPayoutRecorded,
	}
}
