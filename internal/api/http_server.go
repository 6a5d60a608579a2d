package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/domain"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"
	"studiodesk/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-Id"

// FailedOutbox lists notifications that gave up.
type FailedOutbox interface {
	Failed(ctx context.Context) ([]models.OutboxTask, error)
}

// Services are the application services behind the HTTP API.
type Services struct {
	Bookings    domain.BookingService
	Settlements domain.SettlementService
	Commissions domain.CommissionService
	Drafts      domain.DraftService
	Outbox      FailedOutbox
}

// HTTPServer exposes the studio over HTTP JSON.
type HTTPServer struct {
	cfg      config.APIConfig
	services Services
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, services Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, services: services, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	mux.HandleFunc("POST /api/v1/conflicts/check", srv.handleConflictCheck)
	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}/totals", srv.handleTotals)
	mux.HandleFunc("GET /api/v1/bookings/{id}/transactions", srv.handleBookingTransactions)
	mux.HandleFunc("POST /api/v1/bookings/{id}/status", srv.handleChangeStatus)
	mux.HandleFunc("POST /api/v1/bookings/{id}/payments", srv.handleSettle(billing.ModePayment))
	mux.HandleFunc("POST /api/v1/bookings/{id}/refunds", srv.handleSettle(billing.ModeRefund))

	mux.HandleFunc("GET /api/v1/staff/{id}/commission", srv.handleCommission)
	mux.HandleFunc("POST /api/v1/staff/{id}/payouts", srv.handlePayout)

	mux.HandleFunc("GET /api/v1/reports/ledger.xlsx", srv.handleLedgerReport)
	mux.HandleFunc("GET /api/v1/outbox/failed", srv.handleFailedOutbox)

	mux.HandleFunc("PUT /api/v1/drafts/{key}", srv.handleSaveDraft)
	mux.HandleFunc("GET /api/v1/drafts/{key}", srv.handleGetDraft)
	mux.HandleFunc("DELETE /api/v1/drafts/{key}", srv.handleDeleteDraft)
	mux.HandleFunc("POST /api/v1/drafts/{key}/validate", srv.handleValidateDraft)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware assigns a request id, puts a request-scoped logger into
// the context and logs every request once it is served.
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := s.logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		reqLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("endpoint", endpoint).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Result any    `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message, reason string) {
	writeJSON(w, statusCode, errorBody{Error: message, Reason: reason})
}

// writeServiceError maps service and storage errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *database.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:  conflict.Error(),
			Reason: string(conflict.Result.Kind),
			Result: conflict.Result,
		})
	case errors.Is(err, billing.ErrSettlementRejected):
		reason, _ := billing.RejectionReason(err)
		writeError(w, http.StatusUnprocessableEntity, err.Error(), string(reason))
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error(), "stale_version")
	case errors.Is(err, database.ErrNotFound), errors.Is(err, service.ErrDraftNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, service.ErrInvalidBooking), errors.Is(err, service.ErrInvalidDraftKey):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid")
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error(), "")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
