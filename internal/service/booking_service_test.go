package service

import (
	"context"
	"testing"

	"studiodesk/internal/database"
	"studiodesk/internal/events"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookingService_PreviewConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the given snapshot", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())

		existing := []models.Reservation{{
			BookingID: 1, ClientName: "Bo", Date: testDay, StartTime: "10:00",
			DurationHours: 2, RoomID: "A", PackageID: "P0",
		}}
		candidate := newBooking().Reservation()
		candidate.StartTime = "12:00"

		res, err := s.PreviewConflict(ctx, candidate, existing)
		require.NoError(t, err)
		assert.Equal(t, schedule.KindRoomConflict, res.Kind)
		assert.Equal(t, "12:15", res.FreeAt)
		repo.AssertNotCalled(t, "ReservationsOn", mock.Anything, mock.Anything)
	})

	t.Run("loads stored reservations without a snapshot", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())

		repo.On("ReservationsOn", ctx, testDay).Return([]models.Reservation{{
			BookingID: 2, ClientName: "Cy", Date: testDay, StartTime: "11:00",
			DurationHours: 1, RoomID: "B", PackageID: "P1",
		}}, nil)

		res, err := s.PreviewConflict(ctx, newBooking().Reservation(), nil)
		require.NoError(t, err)
		assert.Equal(t, schedule.KindEquipmentConflict, res.Kind)
		assert.Equal(t, []string{"cam-1"}, res.EquipmentIDs)
		repo.AssertExpectations(t)
	})

	t.Run("incomplete candidate", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())

		res, err := s.PreviewConflict(ctx, models.Reservation{RoomID: "A"}, nil)
		require.NoError(t, err)
		assert.Equal(t, schedule.KindOK, res.Kind)
		assert.True(t, res.Incomplete)
		assert.False(t, res.Ready())
	})
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid input never reaches the repository", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())

		b := newBooking()
		b.ClientName = " "
		b.RoomID = "Z"
		b.StartTime = "25:00"

		_, err := s.CreateBooking(ctx, b)
		require.ErrorIs(t, err, ErrInvalidBooking)
		assert.Contains(t, err.Error(), "client name")
		assert.Contains(t, err.Error(), `unknown room "Z"`)
		repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("booking must end by midnight", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())

		b := newBooking()
		b.StartTime = "23:00"
		b.DurationHours = 3
		_, err := s.CreateBooking(ctx, b)
		require.ErrorIs(t, err, ErrInvalidBooking)
		assert.Contains(t, err.Error(), "midnight")
		repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything, mock.Anything)

		b = newBooking()
		b.StartTime = "22:00"
		b.DurationHours = 2
		repo.On("CreateBookingWithLock", ctx, mock.Anything, mock.Anything).Return(nil)
		_, err = s.CreateBooking(ctx, b)
		require.NoError(t, err)
	})

	t.Run("new booking must start unpaid", func(t *testing.T) {
		s := NewBookingService(new(mockBookingRepo), nil, testStudio(), testLogger())
		b := newBooking()
		b.PaidAmount = 10
		_, err := s.CreateBooking(ctx, b)
		require.ErrorIs(t, err, ErrInvalidBooking)
	})

	t.Run("success", func(t *testing.T) {
		repo := new(mockBookingRepo)
		pub := new(mockPublisher)
		s := NewBookingService(repo, pub, testStudio(), testLogger())

		repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking"), mock.Anything).
			Run(func(args mock.Arguments) { args.Get(1).(*models.Booking).ID = 42 }).
			Return(nil)
		pub.On("PublishJSON", events.EventBookingCreated, mock.MatchedBy(func(p events.BookingEventPayload) bool {
			return p.BookingID == 42 && p.Status == string(models.StatusInquiry)
		})).Return(nil)

		b := newBooking()
		res, err := s.CreateBooking(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, schedule.KindOK, res.Kind)
		assert.Equal(t, models.StatusInquiry, b.Status)
		require.NotNil(t, b.TaxSnapshot)
		assert.Equal(t, 10.0, *b.TaxSnapshot)
		require.Len(t, b.Checklist, 1)
		assert.Equal(t, "Send quote", b.Checklist[0].Title)

		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("prices from the package", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())
		repo.On("CreateBookingWithLock", ctx, mock.Anything, mock.Anything).Return(nil)

		b := newBooking()
		b.Price = 0
		b.PackageID = "P0"
		_, err := s.CreateBooking(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, int64(300_000), b.Price)
	})

	t.Run("conflict at commit", func(t *testing.T) {
		repo := new(mockBookingRepo)
		pub := new(mockPublisher)
		s := NewBookingService(repo, pub, testStudio(), testLogger())

		conflict := schedule.Result{Kind: schedule.KindRoomConflict, BookingID: 5, RoomID: "A", FreeAt: "12:15"}
		repo.On("CreateBookingWithLock", ctx, mock.Anything, mock.Anything).
			Return(&database.ConflictError{Result: conflict})

		res, err := s.CreateBooking(ctx, newBooking())
		require.ErrorIs(t, err, database.ErrConflict)
		assert.Equal(t, conflict, res)
		pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})
}

func TestBookingService_ChangeStatus(t *testing.T) {
	ctx := context.Background()

	stored := func() *models.Booking {
		b := newBooking()
		b.ID = 9
		b.Status = models.StatusInquiry
		b.Version = 3
		return b
	}

	t.Run("stale version", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())
		repo.On("GetBooking", ctx, int64(9)).Return(stored(), nil)

		_, err := s.ChangeStatus(ctx, 9, 2, models.StatusBooked)
		require.ErrorIs(t, err, database.ErrConcurrentModification)
		repo.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown status", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())
		repo.On("GetBooking", ctx, int64(9)).Return(stored(), nil)

		_, err := s.ChangeStatus(ctx, 9, 3, models.Status("ARCHIVED"))
		require.ErrorIs(t, err, ErrInvalidBooking)
	})

	t.Run("appends tasks and publishes", func(t *testing.T) {
		repo := new(mockBookingRepo)
		pub := new(mockPublisher)
		s := NewBookingService(repo, pub, testStudio(), testLogger())

		repo.On("GetBooking", ctx, int64(9)).Return(stored(), nil)
		repo.On("UpdateBookingStatus", ctx, int64(9), int64(3), models.StatusBooked,
			mock.MatchedBy(func(c []models.ChecklistTask) bool { return len(c) == 2 }), mock.Anything).Return(nil)
		pub.On("PublishJSON", events.EventBookingStatusChanged, mock.MatchedBy(func(p events.BookingEventPayload) bool {
			return p.PreviousStatus == string(models.StatusInquiry) &&
				assert.ObjectsAreEqual([]string{"Send contract", "Collect deposit"}, p.AddedTasks)
		})).Return(nil)

		b, err := s.ChangeStatus(ctx, 9, 3, models.StatusBooked)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBooked, b.Status)
		assert.Equal(t, int64(4), b.Version)
		assert.Len(t, b.Checklist, 2)

		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("reactivation into a taken slot", func(t *testing.T) {
		repo := new(mockBookingRepo)
		pub := new(mockPublisher)
		s := NewBookingService(repo, pub, testStudio(), testLogger())

		cancelled := stored()
		cancelled.Status = models.StatusCancelled
		repo.On("GetBooking", ctx, int64(9)).Return(cancelled, nil)
		conflict := schedule.Result{Kind: schedule.KindRoomConflict, BookingID: 12, RoomID: "A", FreeAt: "12:15"}
		repo.On("UpdateBookingStatus", ctx, int64(9), int64(3), models.StatusBooked, mock.Anything, mock.Anything).
			Return(&database.ConflictError{Result: conflict})

		_, err := s.ChangeStatus(ctx, 9, 3, models.StatusBooked)
		require.ErrorIs(t, err, database.ErrConflict)
		var ce *database.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, int64(12), ce.Result.BookingID)
		pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(mockBookingRepo)
		s := NewBookingService(repo, nil, testStudio(), testLogger())
		repo.On("GetBooking", ctx, int64(1)).Return(nil, database.ErrNotFound)

		_, err := s.ChangeStatus(ctx, 1, 1, models.StatusBooked)
		require.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestBookingService_Totals(t *testing.T) {
	ctx := context.Background()
	repo := new(mockBookingRepo)
	s := NewBookingService(repo, nil, testStudio(), testLogger())

	b := newBooking()
	b.ID = 4
	b.Discount = &models.Discount{Kind: models.DiscountPercent, Value: 10}
	b.PaidAmount = 500_000
	repo.On("GetBooking", ctx, int64(4)).Return(b, nil)

	totals, err := s.Totals(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), totals.Subtotal)
	assert.Equal(t, int64(100_000), totals.DiscountAmount)
	assert.Equal(t, int64(90_000), totals.TaxAmount)
	assert.Equal(t, int64(990_000), totals.GrandTotal)
	assert.Equal(t, int64(490_000), totals.DueAmount)
	assert.False(t, totals.Settled)
}
