package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/schedule"
)

const bookingColumns = `id, client_name, client_phone, date, start_time, duration_hours, room_id, package_id,
	status, price, items, discount_kind, discount_value, tax_snapshot, paid_amount, cost_breakdown,
	photographer_id, editor_id, checklist, notes, created_at, updated_at, version`

// CreateBookingWithLock revalidates the booking against the stored reservations
// of the same day and inserts it in the same transaction. A conflict is
// reported as *ConflictError.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking, settings schedule.Settings) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := reservationsOn(ctx, tx, booking.Date)
		if err != nil {
			return fmt.Errorf("failed to load reservations in tx: %w", err)
		}

		res := schedule.CheckConflict(booking.Reservation(), existing, settings)
		if res.Conflict() {
			return &ConflictError{Result: res}
		}

		return insertBooking(ctx, tx, booking)
	})
}

func insertBooking(ctx context.Context, q querier, booking *models.Booking) error {
	items, costs, checklist, err := encodeBookingJSON(booking)
	if err != nil {
		return err
	}

	var discountKind sql.NullString
	var discountValue sql.NullInt64
	if booking.Discount != nil {
		discountKind = sql.NullString{String: string(booking.Discount.Kind), Valid: true}
		discountValue = sql.NullInt64{Int64: booking.Discount.Value, Valid: true}
	}

	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, `INSERT INTO bookings (
			client_name, client_phone, date, start_time, duration_hours, room_id, package_id,
			status, price, items, discount_kind, discount_value, tax_snapshot, paid_amount, cost_breakdown,
			photographer_id, editor_id, checklist, notes, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		booking.ClientName,
		booking.ClientPhone,
		booking.Date.Format(models.DateLayout),
		booking.StartTime,
		booking.DurationHours,
		booking.RoomID,
		booking.PackageID,
		booking.Status,
		booking.Price,
		items,
		discountKind,
		discountValue,
		nullFloat(booking.TaxSnapshot),
		booking.PaidAmount,
		costs,
		nullID(booking.PhotographerID),
		nullID(booking.EditorID),
		checklist,
		booking.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return b, nil
}

// ListBookingsByDate returns every booking of the calendar day, cancelled ones included.
func (db *DB) ListBookingsByDate(ctx context.Context, date time.Time) ([]*models.Booking, error) {
	return db.ListBookingsByDateRange(ctx, date, date)
}

func (db *DB) ListBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE date >= ? AND date <= ? ORDER BY date, start_time, id`,
		start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	return collectBookings(rows)
}

// ListCompletedBookingsFor returns completed bookings the staff member shot or edited.
func (db *DB) ListCompletedBookingsFor(ctx context.Context, staffID int64) ([]models.Booking, error) {
	return completedBookingsFor(ctx, db, staffID)
}

func completedBookingsFor(ctx context.Context, q querier, staffID int64) ([]models.Booking, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status = ? AND (photographer_id = ? OR editor_id = ?) ORDER BY date, id`,
		models.StatusCompleted, staffID, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to get staff bookings: %w", err)
	}
	list, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Booking, 0, len(list))
	for _, b := range list {
		out = append(out, *b)
	}
	return out, nil
}

// ReservationsOn returns the scheduling facet of every non-cancelled booking of the day.
func (db *DB) ReservationsOn(ctx context.Context, date time.Time) ([]models.Reservation, error) {
	return reservationsOn(ctx, db, date)
}

func reservationsOn(ctx context.Context, q querier, date time.Time) ([]models.Reservation, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, client_name, date, start_time, duration_hours, room_id, package_id, status
		FROM bookings WHERE date = ? AND status != ? ORDER BY start_time, id`,
		date.Format(models.DateLayout), models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var r models.Reservation
		var dateStr string
		if err := rows.Scan(&r.BookingID, &r.ClientName, &dateStr, &r.StartTime, &r.DurationHours,
			&r.RoomID, &r.PackageID, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if r.Date, err = time.Parse(models.DateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("failed to parse reservation date %s: %w", dateStr, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateBookingStatus stores a new status and checklist if the booking is
// still at fromVersion. Bringing a cancelled booking back puts its
// reservation into the conflict set again, so it is revalidated in the same
// transaction and a clash is reported as *ConflictError.
func (db *DB) UpdateBookingStatus(
	ctx context.Context,
	id, fromVersion int64,
	status models.Status,
	checklist []models.ChecklistTask,
	settings schedule.Settings,
) error {
	raw, err := json.Marshal(nonNil(checklist))
	if err != nil {
		return fmt.Errorf("failed to encode checklist: %w", err)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if status != models.StatusCancelled {
			if err := checkReactivation(ctx, tx, id, settings); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ?, checklist = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`, status, string(raw), time.Now().UTC(), id, fromVersion)
		return checkVersioned(res, err, "booking status")
	})
}

func checkReactivation(ctx context.Context, tx *sql.Tx, id int64, settings schedule.Settings) error {
	current, err := getBooking(ctx, tx, id)
	if err != nil {
		return err
	}
	if current.Status != models.StatusCancelled {
		return nil
	}

	existing, err := reservationsOn(ctx, tx, current.Date)
	if err != nil {
		return fmt.Errorf("failed to load reservations in tx: %w", err)
	}
	res := schedule.CheckConflict(current.Reservation(), existing, settings)
	if res.Conflict() {
		return &ConflictError{Result: res}
	}
	return nil
}

func updatePaidAmount(ctx context.Context, q querier, b *models.Booking) error {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `UPDATE bookings SET paid_amount = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`, b.PaidAmount, now, b.ID, b.Version)
	if err := checkVersioned(res, err, "booking paid amount"); err != nil {
		return err
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

func collectBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(r rowScanner) (*models.Booking, error) {
	var (
		b                           models.Booking
		dateStr                     string
		phone, notes, discountKind  sql.NullString
		discountValue               sql.NullInt64
		taxSnapshot                 sql.NullFloat64
		photographerID, editorID    sql.NullInt64
		items, costs, checklistJSON string
	)

	err := r.Scan(
		&b.ID, &b.ClientName, &phone, &dateStr, &b.StartTime, &b.DurationHours, &b.RoomID, &b.PackageID,
		&b.Status, &b.Price, &items, &discountKind, &discountValue, &taxSnapshot, &b.PaidAmount, &costs,
		&photographerID, &editorID, &checklistJSON, &notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if b.Date, err = time.Parse(models.DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	b.ClientPhone = phone.String
	b.Notes = notes.String
	b.PhotographerID = photographerID.Int64
	b.EditorID = editorID.Int64
	if discountKind.Valid {
		b.Discount = &models.Discount{Kind: models.DiscountKind(discountKind.String), Value: discountValue.Int64}
	}
	if taxSnapshot.Valid {
		rate := taxSnapshot.Float64
		b.TaxSnapshot = &rate
	}

	if err := json.Unmarshal([]byte(items), &b.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of booking %d: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(costs), &b.CostBreakdown); err != nil {
		return nil, fmt.Errorf("failed to decode costs of booking %d: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(checklistJSON), &b.Checklist); err != nil {
		return nil, fmt.Errorf("failed to decode checklist of booking %d: %w", b.ID, err)
	}
	return &b, nil
}

func encodeBookingJSON(b *models.Booking) (items, costs, checklist string, err error) {
	parts := []any{nonNil(b.Items), nonNil(b.CostBreakdown), nonNil(b.Checklist)}
	out := make([]string, len(parts))
	for i, p := range parts {
		raw, err := json.Marshal(p)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to encode booking: %w", err)
		}
		out[i] = string(raw)
	}
	return out[0], out[1], out[2], nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
