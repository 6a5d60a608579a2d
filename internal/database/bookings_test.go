package database

import (
	"context"
	"testing"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func testSettings() schedule.Settings {
	return schedule.Settings{
		BufferMinutes: 15,
		Catalog: schedule.NewCatalog(
			[]models.Room{{ID: "A", Name: "Studio A"}, {ID: "B", Name: "Studio B"}},
			[]models.Equipment{{ID: "cam-1", Name: "Camera 1"}},
			[]models.Package{
				{ID: "P1", Name: "Portrait", EquipmentIDs: []string{"cam-1"}},
				{ID: "P2", Name: "Product", EquipmentIDs: []string{"cam-1"}},
				{ID: "P0", Name: "Room only"},
			},
		),
	}
}

func newBooking(client, room, pkg, start string, hours float64) *models.Booking {
	return &models.Booking{
		ClientName:    client,
		Date:          testDay,
		StartTime:     start,
		DurationHours: hours,
		RoomID:        room,
		PackageID:     pkg,
		Status:        models.StatusBooked,
		Price:         1_000_000,
	}
}

func TestCreateBookingWithLock_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tax := 11.0
	b := newBooking("Alice", "A", "P1", "10:00", 2)
	b.ClientPhone = "+100"
	b.Items = []models.LineItem{{Description: "Prints", Quantity: 2, UnitPrice: 50_000, Cost: 10_000}}
	b.Discount = &models.Discount{Kind: models.DiscountPercent, Value: 10}
	b.TaxSnapshot = &tax
	b.CostBreakdown = []models.CostEntry{{Description: "Assistant", Amount: 20_000}}
	b.PhotographerID = 7

	require.NoError(t, db.CreateBookingWithLock(ctx, b, testSettings()))
	require.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.ClientName)
	assert.Equal(t, "+100", got.ClientPhone)
	assert.True(t, testDay.Equal(got.Date))
	assert.Equal(t, b.Items, got.Items)
	assert.Equal(t, b.Discount, got.Discount)
	require.NotNil(t, got.TaxSnapshot)
	assert.InDelta(t, 11.0, *got.TaxSnapshot, 0.0001)
	assert.Equal(t, b.CostBreakdown, got.CostBreakdown)
	assert.Equal(t, int64(7), got.PhotographerID)
	assert.Zero(t, got.EditorID)
	assert.Empty(t, got.Checklist)
}

func TestCreateBookingWithLock_RoomConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBookingWithLock(ctx, newBooking("Alice", "A", "P0", "10:00", 2), testSettings()))

	err := db.CreateBookingWithLock(ctx, newBooking("Bob", "A", "P0", "12:00", 1), testSettings())
	require.ErrorIs(t, err, ErrConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, schedule.KindRoomConflict, ce.Result.Kind)
	assert.Equal(t, "12:15", ce.Result.FreeAt)

	require.NoError(t, db.CreateBookingWithLock(ctx, newBooking("Bob", "A", "P0", "12:16", 1), testSettings()))

	list, err := db.ListBookingsByDate(ctx, testDay)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreateBookingWithLock_EquipmentConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBookingWithLock(ctx, newBooking("X", "A", "P1", "10:00", 2), testSettings()))

	err := db.CreateBookingWithLock(ctx, newBooking("Y", "B", "P2", "11:00", 2), testSettings())
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, schedule.KindEquipmentConflict, ce.Result.Kind)
	assert.Equal(t, []string{"cam-1"}, ce.Result.EquipmentIDs)
	assert.Equal(t, "A", ce.Result.RoomID)
}

func TestCreateBookingWithLock_CancelledDoesNotBlock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := newBooking("Alice", "A", "P0", "10:00", 2)
	require.NoError(t, db.CreateBookingWithLock(ctx, first, testSettings()))
	require.NoError(t, db.UpdateBookingStatus(ctx, first.ID, first.Version, models.StatusCancelled, nil, testSettings()))

	res, err := db.ReservationsOn(ctx, testDay)
	require.NoError(t, err)
	assert.Empty(t, res)

	assert.NoError(t, db.CreateBookingWithLock(ctx, newBooking("Bob", "A", "P0", "10:30", 1), testSettings()))
}

func TestUpdateBookingStatus_Reactivation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := newBooking("Alice", "A", "P0", "10:00", 2)
	require.NoError(t, db.CreateBookingWithLock(ctx, first, testSettings()))
	require.NoError(t, db.UpdateBookingStatus(ctx, first.ID, 1, models.StatusCancelled, nil, testSettings()))

	second := newBooking("Bob", "A", "P0", "10:30", 1)
	require.NoError(t, db.CreateBookingWithLock(ctx, second, testSettings()))

	err := db.UpdateBookingStatus(ctx, first.ID, 2, models.StatusBooked, nil, testSettings())
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, schedule.KindRoomConflict, ce.Result.Kind)
	assert.Equal(t, second.ID, ce.Result.BookingID)

	got, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, int64(2), got.Version)

	require.NoError(t, db.UpdateBookingStatus(ctx, second.ID, second.Version, models.StatusCancelled, nil, testSettings()))
	require.NoError(t, db.UpdateBookingStatus(ctx, first.ID, 2, models.StatusBooked, nil, testSettings()))

	got, err = db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, got.Status)
}

func TestGetBooking_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetBooking(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBookingStatus_Versioning(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("Alice", "A", "P0", "10:00", 2)
	require.NoError(t, db.CreateBookingWithLock(ctx, b, testSettings()))

	checklist := []models.ChecklistTask{{Title: "Charge batteries", Status: models.StatusShooting, AddedAt: time.Now().UTC()}}
	require.NoError(t, db.UpdateBookingStatus(ctx, b.ID, 1, models.StatusShooting, checklist, testSettings()))

	err := db.UpdateBookingStatus(ctx, b.ID, 1, models.StatusCulling, nil, testSettings())
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShooting, got.Status)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Checklist, 1)
	assert.Equal(t, "Charge batteries", got.Checklist[0].Title)
}

func TestListBookingsByDateRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b := newBooking("Client", "A", "P0", "10:00", 1)
		b.Date = testDay.AddDate(0, 0, i)
		require.NoError(t, db.CreateBookingWithLock(ctx, b, testSettings()))
	}

	list, err := db.ListBookingsByDateRange(ctx, testDay, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Date.Before(list[1].Date))
}
