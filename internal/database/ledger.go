package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/models"

	"github.com/google/uuid"
)

const staffColumns = `id, name, role, commission_rate, created_at`

const transactionColumns = `id, reference, type, amount, account_id, booking_id, recipient_id, description, created_at`

func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO accounts (name, balance, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, 1)`, account.Name, account.Balance, now, now)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Version = 1
	return nil
}

func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return getAccount(ctx, db, id)
}

func getAccount(ctx context.Context, q querier, id int64) (*models.Account, error) {
	var a models.Account
	err := q.QueryRowContext(ctx, `SELECT id, name, balance, created_at, updated_at, version FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Balance, &a.CreatedAt, &a.UpdatedAt, &a.Version)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return &a, nil
}

func updateBalance(ctx context.Context, q querier, a *models.Account) error {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `UPDATE accounts SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`, a.Balance, now, a.ID, a.Version)
	if err := checkVersioned(res, err, "account balance"); err != nil {
		return err
	}
	a.Version++
	a.UpdatedAt = now
	return nil
}

func (db *DB) CreateStaff(ctx context.Context, staff *models.Staff) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO staff (name, role, commission_rate, created_at) VALUES (?, ?, ?, ?)`,
		staff.Name, staff.Role, nullFloat(staff.CommissionRate), now)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	staff.ID = id
	staff.CreatedAt = now
	return nil
}

func (db *DB) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	return getStaff(ctx, db, id)
}

func getStaff(ctx context.Context, q querier, id int64) (*models.Staff, error) {
	s, err := scanStaff(q.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "staff", id)
	}
	return s, nil
}

func scanStaff(r rowScanner) (*models.Staff, error) {
	var (
		s    models.Staff
		role sql.NullString
		rate sql.NullFloat64
	)
	if err := r.Scan(&s.ID, &s.Name, &role, &rate, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Role = role.String
	if rate.Valid {
		v := rate.Float64
		s.CommissionRate = &v
	}
	return &s, nil
}

func (db *DB) ListStaff(ctx context.Context) ([]models.Staff, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var out []models.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Settle applies a payment or refund in one transaction: the booking's paid
// amount, the account balance and the ledger row are written together or not
// at all. A rejected settlement returns a *billing.SettlementError.
func (db *DB) Settle(
	ctx context.Context,
	bookingID, accountID, amount int64,
	mode billing.Mode,
	policy billing.Policy,
) (billing.SettlementResult, error) {
	var out billing.SettlementResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		booking, err := getBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		account, err := getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		res, err := billing.Settle(*booking, *account, amount, mode, policy)
		if err != nil {
			return err
		}

		if err := updatePaidAmount(ctx, tx, &res.Booking); err != nil {
			return err
		}
		if err := updateBalance(ctx, tx, &res.Account); err != nil {
			return err
		}
		if err := insertTransaction(ctx, tx, &res.Transaction); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return billing.SettlementResult{}, err
	}
	return out, nil
}

// Payout records a commission payout to a staff member. The outstanding
// commission is recomputed inside the transaction from completed bookings
// and prior payouts.
func (db *DB) Payout(ctx context.Context, staffID, accountID, amount int64) (billing.PayoutResult, error) {
	var out billing.PayoutResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		staff, err := getStaff(ctx, tx, staffID)
		if err != nil {
			return err
		}
		account, err := getAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		bookings, err := completedBookingsFor(ctx, tx, staffID)
		if err != nil {
			return err
		}
		paid, err := transactionsForRecipient(ctx, tx, staffID)
		if err != nil {
			return err
		}

		record := billing.EstimateCommission(*staff, bookings, paid)
		res, err := billing.Payout(*staff, *account, amount, record.Outstanding)
		if err != nil {
			return err
		}

		if err := updateBalance(ctx, tx, &res.Account); err != nil {
			return err
		}
		if err := insertTransaction(ctx, tx, &res.Transaction); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return billing.PayoutResult{}, err
	}
	return out, nil
}

func insertTransaction(ctx context.Context, q querier, t *models.Transaction) error {
	if t.Reference == uuid.Nil {
		t.Reference = uuid.New()
	}
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `INSERT INTO transactions (
			reference, type, amount, account_id, booking_id, recipient_id, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Reference.String(), t.Type, t.Amount, t.AccountID,
		nullRef(t.BookingID), nullRef(t.RecipientID), t.Description, now)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	return nil
}

// ListTransactions returns ledger rows created in [from, to).
func (db *DB) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (db *DB) ListTransactionsForBooking(ctx context.Context, bookingID int64) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE booking_id = ? ORDER BY created_at, id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (db *DB) ListTransactionsForRecipient(ctx context.Context, staffID int64) ([]models.Transaction, error) {
	return transactionsForRecipient(ctx, db, staffID)
}

func transactionsForRecipient(ctx context.Context, q querier, staffID int64) ([]models.Transaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE recipient_id = ? ORDER BY created_at, id`, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransaction(r rowScanner) (*models.Transaction, error) {
	var (
		t                      models.Transaction
		ref                    string
		bookingID, recipientID sql.NullInt64
		description            sql.NullString
	)
	if err := r.Scan(&t.ID, &ref, &t.Type, &t.Amount, &t.AccountID, &bookingID, &recipientID, &description, &t.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction reference %q: %w", ref, err)
	}
	t.Reference = parsed
	t.Description = description.String
	if bookingID.Valid {
		id := bookingID.Int64
		t.BookingID = &id
	}
	if recipientID.Valid {
		id := recipientID.Int64
		t.RecipientID = &id
	}
	return &t, nil
}

func nullRef(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
