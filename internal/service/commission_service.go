package service

import (
	"context"

	"studiodesk/internal/billing"
	"studiodesk/internal/domain"

	"github.com/rs/zerolog"
)

type CommissionService struct {
	ledger domain.LedgerRepository
	logger *zerolog.Logger
}

func NewCommissionService(ledger domain.LedgerRepository, logger *zerolog.Logger) *CommissionService {
	return &CommissionService{ledger: ledger, logger: logger}
}

// Estimate reconciles a staff member's earned commission against payouts.
func (s *CommissionService) Estimate(ctx context.Context, staffID int64) (billing.CommissionRecord, error) {
	staff, err := s.ledger.GetStaff(ctx, staffID)
	if err != nil {
		return billing.CommissionRecord{}, err
	}
	bookings, err := s.ledger.ListCompletedBookingsFor(ctx, staffID)
	if err != nil {
		return billing.CommissionRecord{}, err
	}
	paid, err := s.ledger.ListTransactionsForRecipient(ctx, staffID)
	if err != nil {
		return billing.CommissionRecord{}, err
	}

	rec := billing.EstimateCommission(*staff, bookings, paid)
	if !rec.RateSet && rec.Bookings > 0 {
		s.logger.Debug().Int64("staff_id", staffID).Msg("commission rate unset, earning nothing")
	}
	return rec, nil
}

func (s *CommissionService) EstimateAll(ctx context.Context) ([]billing.CommissionRecord, error) {
	staff, err := s.ledger.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]billing.CommissionRecord, 0, len(staff))
	for _, member := range staff {
		rec, err := s.Estimate(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
