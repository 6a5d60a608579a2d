package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/database"
	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"
	"studiodesk/internal/workflow"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.BookingRepository
	eventBus domain.EventPublisher
	studio   Studio
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(repo domain.BookingRepository, eventBus domain.EventPublisher, studio Studio, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		studio:   studio,
		logger:   logger,
		now:      time.Now,
	}
}

// PreviewConflict checks a candidate for instant feedback. A nil snapshot
// means the caller holds none and the stored reservations of the day are used.
// The result is advisory; CreateBooking checks again at commit time.
func (s *BookingService) PreviewConflict(
	ctx context.Context,
	candidate models.Reservation,
	snapshot []models.Reservation,
) (schedule.Result, error) {
	if snapshot == nil && !candidate.Date.IsZero() {
		stored, err := s.repo.ReservationsOn(ctx, candidate.Date)
		if err != nil {
			return schedule.Result{}, fmt.Errorf("load reservations: %w", err)
		}
		snapshot = stored
	}

	res := schedule.CheckConflict(candidate, snapshot, s.studio.Schedule)
	metrics.IncConflict(string(res.Kind))
	return res, nil
}

// CreateBooking validates the booking, prices it from its package when no
// price was given, freezes the current tax rate onto it, attaches the tasks of
// its initial status and stores it. The conflict check runs again inside the
// storing transaction; a conflict comes back as the result together with
// database.ErrConflict.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) (schedule.Result, error) {
	if booking.Status == "" {
		booking.Status = models.StatusInquiry
	}
	if err := s.validate(booking); err != nil {
		return schedule.Result{}, err
	}

	if booking.Price == 0 && len(booking.Items) == 0 {
		if pkg, ok := s.studio.Schedule.Catalog.Package(booking.PackageID); ok {
			booking.Price = pkg.Price
		}
	}
	billing.SnapshotTax(booking, s.studio.Billing)
	withTasks, _, err := workflow.Apply(*booking, booking.Status, s.studio.Workflow, s.now().UTC())
	if err != nil {
		return schedule.Result{}, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	*booking = withTasks

	if err := s.repo.CreateBookingWithLock(ctx, booking, s.studio.Schedule); err != nil {
		var ce *database.ConflictError
		if errors.As(err, &ce) {
			metrics.IncConflict(string(ce.Result.Kind))
			s.logger.Info().
				Str("kind", string(ce.Result.Kind)).
				Str("room_id", booking.RoomID).
				Str("date", booking.Date.Format(models.DateLayout)).
				Msg("booking rejected at commit")
			return ce.Result, err
		}
		s.logger.Error().Err(err).Str("client", booking.ClientName).Msg("failed to create booking")
		return schedule.Result{}, err
	}

	metrics.IncConflict(string(schedule.KindOK))
	s.publish(events.EventBookingCreated, *booking, "", nil)
	return schedule.Result{Kind: schedule.KindOK}, nil
}

func (s *BookingService) validate(b *models.Booking) error {
	var problems []string
	if strings.TrimSpace(b.ClientName) == "" {
		problems = append(problems, "client name is required")
	}
	if b.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if b.RoomID == "" {
		problems = append(problems, "room is required")
	} else if !s.studio.Schedule.Catalog.HasRoom(b.RoomID) {
		problems = append(problems, fmt.Sprintf("unknown room %q", b.RoomID))
	}
	if b.PackageID == "" {
		problems = append(problems, "package is required")
	} else if _, ok := s.studio.Schedule.Catalog.Package(b.PackageID); !ok {
		problems = append(problems, fmt.Sprintf("unknown package %q", b.PackageID))
	}
	if iv, err := schedule.NewInterval(b.StartTime, b.DurationHours, 0); err != nil {
		problems = append(problems, err.Error())
	} else if iv.CrossesMidnight() {
		problems = append(problems, "booking must end by midnight")
	}
	if b.Price < 0 || b.PaidAmount != 0 {
		problems = append(problems, "price must not be negative and a new booking starts unpaid")
	}
	for _, li := range b.Items {
		if li.Quantity < 0 || li.UnitPrice < 0 || li.Cost < 0 {
			problems = append(problems, fmt.Sprintf("line item %q has negative values", li.Description))
		}
	}
	if b.Discount != nil && b.Discount.Kind != models.DiscountPercent && b.Discount.Kind != models.DiscountFixed {
		problems = append(problems, fmt.Sprintf("unknown discount kind %q", b.Discount.Kind))
	}
	if !b.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", b.Status))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBooking, strings.Join(problems, "; "))
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) ListByDate(ctx context.Context, date time.Time) ([]*models.Booking, error) {
	return s.repo.ListBookingsByDate(ctx, date)
}

// Totals prices a stored booking.
func (s *BookingService) Totals(ctx context.Context, id int64) (billing.Totals, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return billing.Totals{}, err
	}
	return billing.ComputeTotals(b, s.studio.Billing), nil
}

// ChangeStatus moves a booking to status, appending the configured tasks, if
// the caller saw the booking at version.
func (s *BookingService) ChangeStatus(ctx context.Context, id, version int64, status models.Status) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, database.ErrConcurrentModification
	}

	next, tr, err := workflow.Apply(*current, status, s.studio.Workflow, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}

	if err := s.repo.UpdateBookingStatus(ctx, id, version, next.Status, next.Checklist, s.studio.Schedule); err != nil {
		var ce *database.ConflictError
		if errors.As(err, &ce) {
			metrics.IncConflict(string(ce.Result.Kind))
			s.logger.Info().
				Str("kind", string(ce.Result.Kind)).
				Int64("booking_id", id).
				Int64("blocked_by", ce.Result.BookingID).
				Msg("reactivation rejected")
		} else if !errors.Is(err, database.ErrConcurrentModification) {
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("failed to update booking status")
		}
		return nil, err
	}
	next.Version = version + 1

	metrics.IncStatusChange(string(next.Status))
	s.logger.Info().
		Int64("booking_id", id).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Int("tasks_added", len(tr.Added)).
		Msg("booking status changed")

	titles := make([]string, 0, len(tr.Added))
	for _, t := range tr.Added {
		titles = append(titles, t.Title)
	}
	s.publish(events.EventBookingStatusChanged, next, tr.From, titles)
	return &next, nil
}

func (s *BookingService) publish(eventType string, b models.Booking, previous models.Status, added []string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      b.ID,
		ClientName:     b.ClientName,
		RoomID:         b.RoomID,
		Date:           b.Date,
		StartTime:      b.StartTime,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		AddedTasks:     added,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}
