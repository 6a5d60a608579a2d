package service

import (
	"context"
	"io"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"
	"studiodesk/internal/workflow"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking, s schedule.Settings) error {
	return m.Called(ctx, b, s).Error(0)
}
func (m *mockBookingRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) ListBookingsByDate(ctx context.Context, d time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) ListBookingsByDateRange(ctx context.Context, s, e time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) ReservationsOn(ctx context.Context, d time.Time) ([]models.Reservation, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}
func (m *mockBookingRepo) UpdateBookingStatus(ctx context.Context, id, v int64, s models.Status, c []models.ChecklistTask, st schedule.Settings) error {
	return m.Called(ctx, id, v, s, c, st).Error(0)
}

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) Settle(ctx context.Context, bookingID, accountID, amount int64, mode billing.Mode, p billing.Policy) (billing.SettlementResult, error) {
	args := m.Called(ctx, bookingID, accountID, amount, mode, p)
	return args.Get(0).(billing.SettlementResult), args.Error(1)
}
func (m *mockLedgerRepo) Payout(ctx context.Context, staffID, accountID, amount int64) (billing.PayoutResult, error) {
	args := m.Called(ctx, staffID, accountID, amount)
	return args.Get(0).(billing.PayoutResult), args.Error(1)
}
func (m *mockLedgerRepo) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Staff), args.Error(1)
}
func (m *mockLedgerRepo) ListStaff(ctx context.Context) ([]models.Staff, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Staff), args.Error(1)
}
func (m *mockLedgerRepo) ListCompletedBookingsFor(ctx context.Context, staffID int64) ([]models.Booking, error) {
	args := m.Called(ctx, staffID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockLedgerRepo) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}
func (m *mockLedgerRepo) ListTransactionsForBooking(ctx context.Context, bookingID int64) ([]models.Transaction, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}
func (m *mockLedgerRepo) ListTransactionsForRecipient(ctx context.Context, staffID int64) ([]models.Transaction, error) {
	args := m.Called(ctx, staffID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

type mockDraftRepo struct {
	mock.Mock
}

func (m *mockDraftRepo) GetDraft(ctx context.Context, key string) (*models.BookingDraft, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingDraft), args.Error(1)
}
func (m *mockDraftRepo) SaveDraft(ctx context.Context, d *models.BookingDraft) error {
	return m.Called(ctx, d).Error(0)
}
func (m *mockDraftRepo) ClearDraft(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
func (m *mockDraftRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

var testDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func testStudio() Studio {
	catalog := schedule.NewCatalog(
		[]models.Room{{ID: "A", Name: "Room A"}, {ID: "B", Name: "Room B"}},
		[]models.Equipment{{ID: "cam-1", Name: "Camera 1"}},
		[]models.Package{
			{ID: "P0", Name: "Room only", Price: 300_000},
			{ID: "P1", Name: "Portrait", Price: 1_000_000, EquipmentIDs: []string{"cam-1"}},
		},
	)
	return Studio{
		Schedule: schedule.Settings{BufferMinutes: 15, Catalog: catalog},
		Billing:  billing.Policy{TaxRate: 10, Tolerance: 100},
		Workflow: workflow.NewRules([]models.WorkflowRule{
			{Status: models.StatusInquiry, Tasks: []string{"Send quote"}},
			{Status: models.StatusBooked, Tasks: []string{"Send contract", "Collect deposit"}},
		}, false),
	}
}

func newBooking() *models.Booking {
	return &models.Booking{
		ClientName:    "Ana",
		Date:          testDay,
		StartTime:     "10:00",
		DurationHours: 2,
		RoomID:        "A",
		PackageID:     "P1",
		Price:         1_000_000,
	}
}
