package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	calls := 0
	bus.Subscribe(EventPaymentRecorded, func(event *Event) error {
		received = event
		calls++
		return nil
	})

	payload := LedgerEventPayload{Reference: "ref-1", Type: "INCOME", Amount: 500, AccountID: 1, Balance: 1500}
	require.NoError(t, bus.PublishJSON(EventPaymentRecorded, payload))

	require.Equal(t, 1, calls)
	assert.Equal(t, EventPaymentRecorded, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded LedgerEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEventBusHandlerError(t *testing.T) {
	bus := NewEventBus()
	second := 0
	bus.Subscribe("event", func(_ *Event) error { return errors.New("sink down") })
	bus.Subscribe("event", func(_ *Event) error { second++; return nil })

	err := bus.Publish(&Event{Type: "event"})
	assert.EqualError(t, err, "sink down")
	assert.Equal(t, 1, second)
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	seen := map[string]int{}
	bus.SubscribeAll(func(e *Event) error { seen[e.Type]++; return nil })

	for _, typ := range Types() {
		require.NoError(t, bus.PublishJSON(typ, BookingEventPayload{BookingID: 1}))
	}
	assert.Len(t, seen, len(Types()))
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(&Event{Type: "unknown"}))
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(EventBookingCreated, nil))
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent(EventBookingStatusChanged, BookingEventPayload{
		BookingID:      123,
		Status:         "EDITING",
		PreviousStatus: "CULLING",
		AddedTasks:     []string{"Color grade"},
	})
	require.NoError(t, err)
	assert.Equal(t, EventBookingStatusChanged, event.Type)

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, int64(123), decoded.BookingID)
	assert.Equal(t, []string{"Color grade"}, decoded.AddedTasks)
}
