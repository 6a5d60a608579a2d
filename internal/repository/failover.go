package repository

import (
	"context"
	"sync/atomic"
	"time"

	"studiodesk/internal/domain"
	"studiodesk/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDraftRepository serves drafts from primary and switches to fallback
// on the first primary error. The primary is retried once per recoveryInterval.
type FailoverDraftRepository struct {
	primary   domain.DraftRepository
	fallback  domain.DraftRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos
	now       func() time.Time
}

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to the primary store.
func (r *FailoverDraftRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverDraftRepository) observe(err error) {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Msg("Primary draft repository recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary draft repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverDraftRepository) GetDraft(ctx context.Context, key string) (*models.BookingDraft, error) {
	if r.usePrimary() {
		draft, err := r.primary.GetDraft(ctx, key)
		r.observe(err)
		if err == nil {
			return draft, nil
		}
	}
	return r.fallback.GetDraft(ctx, key)
}

func (r *FailoverDraftRepository) SaveDraft(ctx context.Context, draft *models.BookingDraft) error {
	if r.usePrimary() {
		err := r.primary.SaveDraft(ctx, draft)
		r.observe(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SaveDraft(ctx, draft)
}

func (r *FailoverDraftRepository) ClearDraft(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.ClearDraft(ctx, key)
		r.observe(err)
		if err == nil {
			// also drop any copy written while primary was down
			_ = r.fallback.ClearDraft(ctx, key)
			return nil
		}
	}
	return r.fallback.ClearDraft(ctx, key)
}

func (r *FailoverDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.observe(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
