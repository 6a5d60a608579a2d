package billing

import (
	"errors"
	"fmt"

	"studiodesk/internal/models"

	"github.com/google/uuid"
)

type Mode string

const (
	ModePayment Mode = "PAYMENT"
	ModeRefund  Mode = "REFUND"
)

// Reason identifies why a settlement was refused.
type Reason string

const (
	ReasonAmountNotPositive   Reason = "amount_not_positive"
	ReasonOverpayment         Reason = "overpayment"
	ReasonOverRefund          Reason = "over_refund"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonOverCommission      Reason = "over_commission"
	ReasonUnknownMode         Reason = "unknown_mode"
)

// ErrSettlementRejected matches every *SettlementError via errors.Is.
var ErrSettlementRejected = errors.New("settlement rejected")

type SettlementError struct {
	Reason Reason
	Amount int64
	Limit  int64
}

func (e *SettlementError) Error() string {
	switch e.Reason {
	case ReasonAmountNotPositive:
		return "amount must be greater than zero"
	case ReasonOverpayment:
		return fmt.Sprintf("payment of %d exceeds due amount %d", e.Amount, e.Limit)
	case ReasonOverRefund:
		return fmt.Sprintf("refund of %d exceeds paid amount %d", e.Amount, e.Limit)
	case ReasonInsufficientBalance:
		return fmt.Sprintf("account balance %d cannot cover %d", e.Limit, e.Amount)
	case ReasonOverCommission:
		return fmt.Sprintf("payout of %d exceeds outstanding commission %d", e.Amount, e.Limit)
	default:
		return string(e.Reason)
	}
}

func (e *SettlementError) Is(target error) bool {
	return target == ErrSettlementRejected
}

// RejectionReason extracts the reason from a settlement error.
func RejectionReason(err error) (Reason, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

func reject(reason Reason, amount, limit int64) error {
	return &SettlementError{Reason: reason, Amount: amount, Limit: limit}
}

// SettlementResult holds the new booking and account state together with the
// ledger row that records the change. All three must be persisted together.
type SettlementResult struct {
	Booking     models.Booking     `json:"booking"`
	Account     models.Account     `json:"account"`
	Transaction models.Transaction `json:"transaction"`
}

// Settle applies a payment or refund to copies of booking and account. Every
// precondition is checked before any value changes, so a rejected call
// returns only the error.
func Settle(booking models.Booking, account models.Account, amount int64, mode Mode, policy Policy) (SettlementResult, error) {
	if amount <= 0 {
		return SettlementResult{}, reject(ReasonAmountNotPositive, amount, 0)
	}

	var txType models.TransactionType
	switch mode {
	case ModePayment:
		due := ComputeTotals(&booking, policy).DueAmount
		if amount > due {
			return SettlementResult{}, reject(ReasonOverpayment, amount, due)
		}
		booking.PaidAmount += amount
		account.Balance += amount
		txType = models.TransactionIncome
	case ModeRefund:
		if amount > booking.PaidAmount {
			return SettlementResult{}, reject(ReasonOverRefund, amount, booking.PaidAmount)
		}
		if amount > account.Balance {
			return SettlementResult{}, reject(ReasonInsufficientBalance, amount, account.Balance)
		}
		booking.PaidAmount -= amount
		account.Balance -= amount
		txType = models.TransactionExpense
	default:
		return SettlementResult{}, reject(ReasonUnknownMode, amount, 0)
	}

	bookingID := booking.ID
	return SettlementResult{
		Booking: booking,
		Account: account,
		Transaction: models.Transaction{
			Reference:   uuid.New(),
			Type:        txType,
			Amount:      amount,
			AccountID:   account.ID,
			BookingID:   &bookingID,
			Description: fmt.Sprintf("%s booking #%d", modeLabel(mode), booking.ID),
		},
	}, nil
}

// PayoutResult is the account state and ledger row of a commission payout.
type PayoutResult struct {
	Account     models.Account     `json:"account"`
	Transaction models.Transaction `json:"transaction"`
}

// Payout pays staff commission out of account. It touches no booking.
func Payout(staff models.Staff, account models.Account, amount, outstanding int64) (PayoutResult, error) {
	if amount <= 0 {
		return PayoutResult{}, reject(ReasonAmountNotPositive, amount, 0)
	}
	if amount > outstanding {
		return PayoutResult{}, reject(ReasonOverCommission, amount, outstanding)
	}
	if amount > account.Balance {
		return PayoutResult{}, reject(ReasonInsufficientBalance, amount, account.Balance)
	}

	account.Balance -= amount
	recipient := staff.ID
	return PayoutResult{
		Account: account,
		Transaction: models.Transaction{
			Reference:   uuid.New(),
			Type:        models.TransactionExpense,
			Amount:      amount,
			AccountID:   account.ID,
			RecipientID: &recipient,
			Description: fmt.Sprintf("commission payout to %s", staff.Name),
		},
	}, nil
}

func modeLabel(m Mode) string {
	if m == ModeRefund {
		return "refund for"
	}
	return "payment for"
}
