package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/export"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"
	"studiodesk/internal/workflow"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// reservationRequest carries the scheduling facet with a plain YYYY-MM-DD date.
type reservationRequest struct {
	BookingID     int64         `json:"booking_id"`
	ClientName    string        `json:"client_name"`
	Date          string        `json:"date"`
	StartTime     string        `json:"start_time"`
	DurationHours float64       `json:"duration_hours"`
	RoomID        string        `json:"room_id"`
	PackageID     string        `json:"package_id"`
	Status        models.Status `json:"status"`
}

func (rr reservationRequest) toReservation() (models.Reservation, error) {
	date, err := parseOptionalDate(rr.Date)
	if err != nil {
		return models.Reservation{}, err
	}
	return models.Reservation{
		BookingID:     rr.BookingID,
		ClientName:    rr.ClientName,
		Date:          date,
		StartTime:     rr.StartTime,
		DurationHours: rr.DurationHours,
		RoomID:        rr.RoomID,
		PackageID:     rr.PackageID,
		Status:        rr.Status,
	}, nil
}

type conflictCheckRequest struct {
	Candidate    reservationRequest    `json:"candidate"`
	Reservations *[]reservationRequest `json:"reservations,omitempty"`
}

type bookingRequest struct {
	ClientName     string             `json:"client_name"`
	ClientPhone    string             `json:"client_phone"`
	Date           string             `json:"date"`
	StartTime      string             `json:"start_time"`
	DurationHours  float64            `json:"duration_hours"`
	RoomID         string             `json:"room_id"`
	PackageID      string             `json:"package_id"`
	Status         models.Status      `json:"status"`
	Price          int64              `json:"price"`
	Items          []models.LineItem  `json:"items"`
	Discount       *models.Discount   `json:"discount"`
	CostBreakdown  []models.CostEntry `json:"cost_breakdown"`
	PhotographerID int64              `json:"photographer_id"`
	EditorID       int64              `json:"editor_id"`
	Notes          string             `json:"notes"`
}

func (br bookingRequest) toBooking() (models.Booking, error) {
	date, err := parseOptionalDate(br.Date)
	if err != nil {
		return models.Booking{}, err
	}
	return models.Booking{
		ClientName:     strings.TrimSpace(br.ClientName),
		ClientPhone:    strings.TrimSpace(br.ClientPhone),
		Date:           date,
		StartTime:      br.StartTime,
		DurationHours:  br.DurationHours,
		RoomID:         br.RoomID,
		PackageID:      br.PackageID,
		Status:         br.Status,
		Price:          br.Price,
		Items:          br.Items,
		Discount:       br.Discount,
		CostBreakdown:  br.CostBreakdown,
		PhotographerID: br.PhotographerID,
		EditorID:       br.EditorID,
		Notes:          br.Notes,
	}, nil
}

type statusRequest struct {
	Status  models.Status `json:"status"`
	Version int64         `json:"version"`
}

// statusResponse is the updated booking plus the status that usually follows.
type statusResponse struct {
	*models.Booking
	NextStatus models.Status `json:"next_status,omitempty"`
}

type amountRequest struct {
	AccountID int64 `json:"account_id"`
	Amount    int64 `json:"amount"`
}

type bookingResponse struct {
	Booking *models.Booking `json:"booking"`
	Result  schedule.Result `json:"result"`
}

func (s *HTTPServer) handleConflictCheck(w http.ResponseWriter, r *http.Request) {
	var body conflictCheckRequest
	if !decodeBody(w, r, &body) {
		return
	}

	candidate, err := body.Candidate.toReservation()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid")
		return
	}

	// nil snapshot means "use the stored reservations"
	var snapshot []models.Reservation
	if body.Reservations != nil {
		snapshot = make([]models.Reservation, 0, len(*body.Reservations))
		for _, rr := range *body.Reservations {
			res, err := rr.toReservation()
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error(), "invalid")
				return
			}
			snapshot = append(snapshot, res)
		}
	}

	result, err := s.services.Bookings.PreviewConflict(r.Context(), candidate, snapshot)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result, "ready": result.Ready()})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := body.toBooking()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid")
		return
	}

	result, err := s.services.Bookings.CreateBooking(r.Context(), &booking)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingResponse{Booking: &booking, Result: result})
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid")
		return
	}
	bookings, err := s.services.Bookings.ListByDate(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.services.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleTotals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	totals, err := s.services.Bookings.Totals(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *HTTPServer) handleBookingTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.services.Bookings.GetBooking(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	txs, err := s.services.Settlements.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body statusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required", "invalid")
		return
	}

	booking, err := s.services.Bookings.ChangeStatus(r.Context(), id, body.Version, body.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	next, _ := workflow.Next(booking.Status)
	writeJSON(w, http.StatusOK, statusResponse{Booking: booking, NextStatus: next})
}

func (s *HTTPServer) handleSettle(mode billing.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var body amountRequest
		if !decodeBody(w, r, &body) {
			return
		}
		if body.AccountID <= 0 {
			writeError(w, http.StatusBadRequest, "account_id is required", "invalid")
			return
		}

		settle := s.services.Settlements.Pay
		if mode == billing.ModeRefund {
			settle = s.services.Settlements.Refund
		}
		res, err := settle(r.Context(), id, body.AccountID, body.Amount)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func (s *HTTPServer) handleCommission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.services.Commissions.Estimate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handlePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body amountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required", "invalid")
		return
	}

	res, err := s.services.Settlements.Payout(r.Context(), id, body.AccountID, body.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleLedgerReport streams the workbook of the inclusive [from, to] day range.
func (s *HTTPServer) handleLedgerReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error(), "invalid")
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error(), "invalid")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", "invalid")
		return
	}
	end := to.AddDate(0, 0, 1)

	txs, err := s.services.Settlements.Transactions(r.Context(), from, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	commissions, err := s.services.Commissions.EstimateAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	f, err := export.LedgerWorkbook(txs, commissions)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.LedgerFileName(from, end)))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("write ledger workbook")
	}
}

func (s *HTTPServer) handleFailedOutbox(w http.ResponseWriter, r *http.Request) {
	if s.services.Outbox == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tasks": []models.OutboxTask{}})
		return
	}
	tasks, err := s.services.Outbox.Failed(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.OutboxTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	booking, err := body.toBooking()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid")
		return
	}

	draft, err := s.services.Drafts.Save(r.Context(), r.PathValue("key"), booking)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.services.Drafts.Load(r.Context(), r.PathValue("key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Drafts.Clear(r.Context(), r.PathValue("key")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleValidateDraft(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Drafts.Validate(r.Context(), r.PathValue("key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result, "ready": result.Ready()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id", "invalid")
		return 0, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date is required")
	}
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid date format; expected YYYY-MM-DD")
	}
	return date, nil
}

// parseOptionalDate allows an empty date so drafts and previews can be partial.
func parseOptionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return parseDate(raw)
}
