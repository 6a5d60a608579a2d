package service

import (
	"context"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"

	"github.com/rs/zerolog"
)

type SettlementService struct {
	ledger   domain.LedgerRepository
	eventBus domain.EventPublisher
	policy   billing.Policy
	logger   *zerolog.Logger
}

func NewSettlementService(ledger domain.LedgerRepository, eventBus domain.EventPublisher, policy billing.Policy, logger *zerolog.Logger) *SettlementService {
	return &SettlementService{ledger: ledger, eventBus: eventBus, policy: policy, logger: logger}
}

func (s *SettlementService) Pay(ctx context.Context, bookingID, accountID, amount int64) (billing.SettlementResult, error) {
	return s.settle(ctx, bookingID, accountID, amount, billing.ModePayment)
}

func (s *SettlementService) Refund(ctx context.Context, bookingID, accountID, amount int64) (billing.SettlementResult, error) {
	return s.settle(ctx, bookingID, accountID, amount, billing.ModeRefund)
}

func (s *SettlementService) settle(ctx context.Context, bookingID, accountID, amount int64, mode billing.Mode) (billing.SettlementResult, error) {
	res, err := s.ledger.Settle(ctx, bookingID, accountID, amount, mode, s.policy)
	if err != nil {
		s.logFailure(err, string(mode), amount).Int64("booking_id", bookingID).Int64("account_id", accountID).Msg("settlement failed")
		return billing.SettlementResult{}, err
	}

	metrics.IncSettlement(string(mode))
	s.logger.Info().
		Str("mode", string(mode)).
		Int64("booking_id", bookingID).
		Int64("amount", amount).
		Int64("paid_amount", res.Booking.PaidAmount).
		Str("reference", res.Transaction.Reference.String()).
		Msg("settlement recorded")

	eventType := events.EventPaymentRecorded
	if mode == billing.ModeRefund {
		eventType = events.EventRefundRecorded
	}
	s.publish(eventType, res.Transaction, res.Account, res.Booking.PaidAmount)
	return res, nil
}

// Payout pays out commission. The outstanding amount is recomputed by the
// ledger inside the payout transaction.
func (s *SettlementService) Payout(ctx context.Context, staffID, accountID, amount int64) (billing.PayoutResult, error) {
	res, err := s.ledger.Payout(ctx, staffID, accountID, amount)
	if err != nil {
		s.logFailure(err, "PAYOUT", amount).Int64("staff_id", staffID).Int64("account_id", accountID).Msg("payout failed")
		return billing.PayoutResult{}, err
	}

	metrics.IncSettlement("PAYOUT")
	s.logger.Info().Int64("staff_id", staffID).Int64("amount", amount).Msg("commission payout recorded")
	s.publish(events.EventPayoutRecorded, res.Transaction, res.Account, 0)
	return res, nil
}

func (s *SettlementService) History(ctx context.Context, bookingID int64) ([]models.Transaction, error) {
	return s.ledger.ListTransactionsForBooking(ctx, bookingID)
}

func (s *SettlementService) Transactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	return s.ledger.ListTransactions(ctx, from, to)
}

// logFailure counts rejections and picks the log level: rejections are
// expected, anything else is an error.
func (s *SettlementService) logFailure(err error, mode string, amount int64) *zerolog.Event {
	if reason, ok := billing.RejectionReason(err); ok {
		metrics.IncRejection(string(reason))
		return s.logger.Warn().Str("reason", string(reason)).Str("mode", mode).Int64("amount", amount)
	}
	return s.logger.Error().Err(err).Str("mode", mode).Int64("amount", amount)
}

func (s *SettlementService) publish(eventType string, tx models.Transaction, account models.Account, paid int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.LedgerEventPayload{
		Reference:  tx.Reference.String(),
		Type:       string(tx.Type),
		Amount:     tx.Amount,
		AccountID:  account.ID,
		Balance:    account.Balance,
		PaidAmount: paid,
	}
	if tx.BookingID != nil {
		payload.BookingID = *tx.BookingID
	}
	if tx.RecipientID != nil {
		payload.RecipientID = *tx.RecipientID
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
