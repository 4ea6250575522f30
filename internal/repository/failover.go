package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"installbot/internal/domain"
	"installbot/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionRepository uses primary until it errors, then serves from
// fallback and retries primary once per recoverAfter.
type FailoverSessionRepository struct {
	primary      domain.SessionRepository
	fallback     domain.SessionRepository
	logger       *zerolog.Logger
	recoverAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Try to recover after recoverAfter
	if time.Since(r.lastCheck) > r.recoverAfter {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverSessionRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session repository recovered")
	}
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, identity string) (*models.Session, error) {
	if r.usePrimary() {
		s, err := r.primary.GetSession(ctx, identity)
		if err == nil {
			r.recovered()
			return s, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, identity)
}

func (r *FailoverSessionRepository) SetSession(ctx context.Context, s *models.Session) error {
	if r.usePrimary() {
		err := r.primary.SetSession(ctx, s)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSession(ctx, s)
}

func (r *FailoverSessionRepository) ClearSession(ctx context.Context, identity string) error {
	// clear both so a recovered primary cannot resurrect a stale copy
	fbErr := r.fallback.ClearSession(ctx, identity)
	if r.usePrimary() {
		if err := r.primary.ClearSession(ctx, identity); err != nil {
			r.markDown(err)
		} else {
			r.recovered()
		}
	}
	return fbErr
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, identity string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, identity, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, identity, limit, window)
}
