package domain

import (
	"context"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"
)

type BookingRepository interface {
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, settings schedule.Settings) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsByDate(ctx context.Context, date time.Time) ([]*models.Booking, error)
	ListBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	ReservationsOn(ctx context.Context, date time.Time) ([]models.Reservation, error)
	UpdateBookingStatus(ctx context.Context, id, version int64, status models.Status, checklist []models.ChecklistTask, settings schedule.Settings) error
}

type LedgerRepository interface {
	Settle(ctx context.Context, bookingID, accountID, amount int64, mode billing.Mode, policy billing.Policy) (billing.SettlementResult, error)
	Payout(ctx context.Context, staffID, accountID, amount int64) (billing.PayoutResult, error)
	GetStaff(ctx context.Context, id int64) (*models.Staff, error)
	ListStaff(ctx context.Context) ([]models.Staff, error)
	ListCompletedBookingsFor(ctx context.Context, staffID int64) ([]models.Booking, error)
	ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
	ListTransactionsForBooking(ctx context.Context, bookingID int64) ([]models.Transaction, error)
	ListTransactionsForRecipient(ctx context.Context, staffID int64) ([]models.Transaction, error)
}

type OutboxRepository interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// DraftRepository stores booking candidates between edits. GetDraft returns
// nil, nil for an unknown key.
type DraftRepository interface {
	GetDraft(ctx context.Context, key string) (*models.BookingDraft, error)
	SaveDraft(ctx context.Context, draft *models.BookingDraft) error
	ClearDraft(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier hands an outbox task to external collaborators.
type Notifier interface {
	Notify(ctx context.Context, task models.OutboxTask) error
}

type BookingService interface {
	PreviewConflict(ctx context.Context, candidate models.Reservation, snapshot []models.Reservation) (schedule.Result, error)
	CreateBooking(ctx context.Context, booking *models.Booking) (schedule.Result, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListByDate(ctx context.Context, date time.Time) ([]*models.Booking, error)
	Totals(ctx context.Context, id int64) (billing.Totals, error)
	ChangeStatus(ctx context.Context, id, version int64, status models.Status) (*models.Booking, error)
}

type SettlementService interface {
	Pay(ctx context.Context, bookingID, accountID, amount int64) (billing.SettlementResult, error)
	Refund(ctx context.Context, bookingID, accountID, amount int64) (billing.SettlementResult, error)
	Payout(ctx context.Context, staffID, accountID, amount int64) (billing.PayoutResult, error)
	History(ctx context.Context, bookingID int64) ([]models.Transaction, error)
	Transactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
}

type CommissionService interface {
	Estimate(ctx context.Context, staffID int64) (billing.CommissionRecord, error)
	EstimateAll(ctx context.Context) ([]billing.CommissionRecord, error)
}

type DraftService interface {
	Save(ctx context.Context, key string, booking models.Booking) (*models.BookingDraft, error)
	Load(ctx context.Context, key string) (*models.BookingDraft, error)
	Clear(ctx context.Context, key string) error
	Validate(ctx context.Context, key string) (schedule.Result, error)
}
