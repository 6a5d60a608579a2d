package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newDraftService() (*DraftService, *mockDraftRepo, *mockBookingRepo) {
	drafts := new(mockDraftRepo)
	bookings := new(mockBookingRepo)
	bs := NewBookingService(bookings, nil, testStudio(), testLogger())
	s := NewDraftService(drafts, bs, testLogger())
	s.now = func() time.Time { return testDay.Add(9 * time.Hour) }
	return s, drafts, bookings
}

func TestDraftService_Save(t *testing.T) {
	ctx := context.Background()
	window := models.RateLimitWindow * time.Second

	t.Run("stores the draft", func(t *testing.T) {
		s, drafts, _ := newDraftService()
		drafts.On("CheckRateLimit", ctx, "draft:k1", models.RateLimitRequests, window).Return(true, nil)
		drafts.On("SaveDraft", ctx, mock.MatchedBy(func(d *models.BookingDraft) bool {
			return d.Key == "k1" && d.Booking.RoomID == "A"
		})).Return(nil)

		d, err := s.Save(ctx, " k1 ", models.Booking{RoomID: "A"})
		require.NoError(t, err)
		assert.Equal(t, testDay.Add(9*time.Hour), d.UpdatedAt)
		drafts.AssertExpectations(t)
	})

	t.Run("blank key", func(t *testing.T) {
		s, drafts, _ := newDraftService()

		_, err := s.Save(ctx, "  ", models.Booking{RoomID: "A"})
		require.ErrorIs(t, err, ErrInvalidDraftKey)
		drafts.AssertNotCalled(t, "CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		drafts.AssertNotCalled(t, "SaveDraft", mock.Anything, mock.Anything)
	})

	t.Run("rate limited", func(t *testing.T) {
		s, drafts, _ := newDraftService()
		drafts.On("CheckRateLimit", ctx, "draft:k1", models.RateLimitRequests, window).Return(false, nil)

		_, err := s.Save(ctx, "k1", models.Booking{})
		require.ErrorIs(t, err, ErrRateLimited)
		drafts.AssertNotCalled(t, "SaveDraft", mock.Anything, mock.Anything)
	})

	t.Run("limiter outage does not block", func(t *testing.T) {
		s, drafts, _ := newDraftService()
		drafts.On("CheckRateLimit", ctx, "draft:k1", models.RateLimitRequests, window).Return(false, errors.New("redis down"))
		drafts.On("SaveDraft", ctx, mock.Anything).Return(nil)

		_, err := s.Save(ctx, "k1", models.Booking{})
		require.NoError(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		s, _, _ := newDraftService()
		_, err := s.Save(ctx, "  ", models.Booking{})
		require.Error(t, err)
	})
}

func TestDraftService_LoadAndClear(t *testing.T) {
	ctx := context.Background()
	s, drafts, _ := newDraftService()

	drafts.On("GetDraft", ctx, "missing").Return(nil, nil)
	drafts.On("GetDraft", ctx, "k1").Return(&models.BookingDraft{Key: "k1"}, nil)
	drafts.On("ClearDraft", ctx, "k1").Return(nil)

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrDraftNotFound)

	d, err := s.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", d.Key)

	require.NoError(t, s.Clear(ctx, "k1"))
	drafts.AssertExpectations(t)
}

func TestDraftService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("complete draft is checked against the day", func(t *testing.T) {
		s, drafts, bookings := newDraftService()
		drafts.On("GetDraft", ctx, "k1").Return(&models.BookingDraft{Key: "k1", Booking: *newBooking()}, nil)
		bookings.On("ReservationsOn", ctx, testDay).Return([]models.Reservation{{
			BookingID: 1, Date: testDay, StartTime: "09:00", DurationHours: 2, RoomID: "A", PackageID: "P0",
		}}, nil)

		res, err := s.Validate(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, schedule.KindRoomConflict, res.Kind)
		assert.Equal(t, int64(1), res.BookingID)
		assert.Equal(t, "11:15", res.FreeAt)
	})

	t.Run("partial draft", func(t *testing.T) {
		s, drafts, bookings := newDraftService()
		drafts.On("GetDraft", ctx, "k2").Return(&models.BookingDraft{Key: "k2", Booking: models.Booking{RoomID: "A"}}, nil)

		res, err := s.Validate(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, res.Incomplete)
		bookings.AssertNotCalled(t, "ReservationsOn", mock.Anything, mock.Anything)
	})

	t.Run("missing draft", func(t *testing.T) {
		s, drafts, _ := newDraftService()
		drafts.On("GetDraft", ctx, "nope").Return(nil, nil)

		_, err := s.Validate(ctx, "nope")
		require.ErrorIs(t, err, ErrDraftNotFound)
	})
}
