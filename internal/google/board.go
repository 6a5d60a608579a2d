package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"studiodesk/internal/events"
	"studiodesk/internal/models"
	"studiodesk/internal/worker"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	boardSheet   = "Bookings"
	updateLayout = "2006-01-02 15:04:05"
)

var errRowNotFound = errors.New("booking row not found")

// BookingBoard mirrors bookings into a shared spreadsheet, one row per booking:
// ID, Client, Room, Date, Start, Status, Updated, Paid.
type BookingBoard struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
	now           func() time.Time
}

// NewBookingBoard authenticates with a service account key file.
func NewBookingBoard(ctx context.Context, credentialsFile, spreadsheetID string) (*BookingBoard, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newBookingBoard(srv, spreadsheetID), nil
}

func newBookingBoard(srv *sheets.Service, spreadsheetID string) *BookingBoard {
	return &BookingBoard{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
		now:           time.Now,
	}
}

// Notify applies a booking or ledger event to the board. Events for bookings
// that have no row yet are skipped unless they carry the booking itself.
func (b *BookingBoard) Notify(ctx context.Context, task models.OutboxTask) error {
	switch task.EventType {
	case events.EventBookingCreated, events.EventBookingStatusChanged:
		var p events.BookingEventPayload
		if err := json.Unmarshal([]byte(task.Payload), &p); err != nil {
			return fmt.Errorf("%w: decode booking event %d: %v", worker.ErrMalformedTask, task.ID, err)
		}
		return b.UpsertBooking(ctx, p)
	case events.EventPaymentRecorded, events.EventRefundRecorded:
		var p events.LedgerEventPayload
		if err := json.Unmarshal([]byte(task.Payload), &p); err != nil {
			return fmt.Errorf("%w: decode ledger event %d: %v", worker.ErrMalformedTask, task.ID, err)
		}
		err := b.UpdatePaid(ctx, p.BookingID, p.PaidAmount)
		if errors.Is(err, errRowNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// UpsertBooking updates the booking's row or appends one.
func (b *BookingBoard) UpsertBooking(ctx context.Context, p events.BookingEventPayload) error {
	if p.BookingID == 0 {
		return errors.New("booking id is required")
	}
	values := [][]interface{}{b.rowValues(p)}

	rowIdx, err := b.FindBookingRow(ctx, p.BookingID)
	if errors.Is(err, errRowNotFound) {
		resp, err := b.service.Spreadsheets.Values.Append(b.spreadsheetID, boardSheet+"!A:A", &sheets.ValueRange{Values: values}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("append booking %d: %w", p.BookingID, err)
		}
		if resp.Updates != nil {
			if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
				b.setCachedRow(p.BookingID, row)
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:G%d", boardSheet, rowIdx, rowIdx)
	_, err = b.service.Spreadsheets.Values.Update(b.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update booking %d: %w", p.BookingID, err)
	}
	return nil
}

// UpdatePaid stamps the paid amount of a booking already on the board.
func (b *BookingBoard) UpdatePaid(ctx context.Context, bookingID, paid int64) error {
	rowIdx, err := b.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!G%d:H%d", boardSheet, rowIdx, rowIdx)
	_, err = b.service.Spreadsheets.Values.Update(b.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{{b.now().UTC().Format(updateLayout), paid}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update paid for booking %d: %w", bookingID, err)
	}
	return nil
}

// FindBookingRow returns the 1-based row holding bookingID.
func (b *BookingBoard) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, errors.New("booking id is required")
	}
	if row, ok := b.getCachedRow(bookingID); ok {
		return row, nil
	}
	if err := b.WarmUpCache(ctx); err != nil {
		return 0, err
	}
	if row, ok := b.getCachedRow(bookingID); ok {
		return row, nil
	}
	return 0, errRowNotFound
}

// WarmUpCache rebuilds the row index from the ID column.
func (b *BookingBoard) WarmUpCache(ctx context.Context) error {
	resp, err := b.service.Spreadsheets.Values.Get(b.spreadsheetID, boardSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read booking ids: %w", err)
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		var id int64
		switch v := row[0].(type) {
		case float64:
			id = int64(v)
		case string:
			id, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
		if id > 0 {
			cache[id] = i + 1
		}
	}

	b.cacheMu.Lock()
	b.rowCache = cache
	b.cacheMu.Unlock()
	return nil
}

func (b *BookingBoard) rowValues(p events.BookingEventPayload) []interface{} {
	date := ""
	if !p.Date.IsZero() {
		date = p.Date.Format(models.DateLayout)
	}
	return []interface{}{
		p.BookingID,
		p.ClientName,
		p.RoomID,
		date,
		p.StartTime,
		p.Status,
		b.now().UTC().Format(updateLayout),
	}
}

func (b *BookingBoard) getCachedRow(id int64) (int, bool) {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	row, ok := b.rowCache[id]
	return row, ok
}

func (b *BookingBoard) setCachedRow(id int64, row int) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	b.rowCache[id] = row
}

// firstRow extracts 10 from "Bookings!A10:G10".
func firstRow(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	a1, _, _ = strings.Cut(a1, ":")
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
