package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/domain"
	"studiodesk/internal/models"
	"studiodesk/internal/schedule"

	"github.com/rs/zerolog"
)

var (
	ErrDraftNotFound   = errors.New("draft not found")
	ErrRateLimited     = errors.New("too many draft updates")
	ErrInvalidDraftKey = errors.New("draft key is required")
)

// DraftService keeps booking candidates that a client fills in step by step
// and previews them against the stored schedule.
type DraftService struct {
	drafts   domain.DraftRepository
	bookings domain.BookingService
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewDraftService(drafts domain.DraftRepository, bookings domain.BookingService, logger *zerolog.Logger) *DraftService {
	return &DraftService{drafts: drafts, bookings: bookings, logger: logger, now: time.Now}
}

func (s *DraftService) Save(ctx context.Context, key string, booking models.Booking) (*models.BookingDraft, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidDraftKey
	}

	allowed, err := s.drafts.CheckRateLimit(ctx, "draft:"+key, models.RateLimitRequests, models.RateLimitWindow*time.Second)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("draft rate limit check failed")
	} else if !allowed {
		return nil, ErrRateLimited
	}

	draft := &models.BookingDraft{Key: key, Booking: booking, UpdatedAt: s.now().UTC()}
	if err := s.drafts.SaveDraft(ctx, draft); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to save draft")
		return nil, err
	}
	return draft, nil
}

func (s *DraftService) Load(ctx context.Context, key string) (*models.BookingDraft, error) {
	draft, err := s.drafts.GetDraft(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to get draft")
		return nil, err
	}
	if draft == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrDraftNotFound)
	}
	return draft, nil
}

func (s *DraftService) Clear(ctx context.Context, key string) error {
	return s.drafts.ClearDraft(ctx, key)
}

// Validate previews the draft against the stored reservations of its day.
// A draft missing required fields comes back OK but not Ready.
func (s *DraftService) Validate(ctx context.Context, key string) (schedule.Result, error) {
	draft, err := s.Load(ctx, key)
	if err != nil {
		return schedule.Result{}, err
	}
	return s.bookings.PreviewConflict(ctx, draft.Booking.Reservation(), nil)
}
