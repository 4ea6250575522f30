package service

import (
	"context"
	"fmt"
	"time"

	"installbot/internal/domain"
	"installbot/internal/logging"
	"installbot/internal/models"

	"github.com/rs/zerolog"
)

// SessionService keeps dialogue sessions in the cache tier and writes them
// through to the durable store, which stays the source of truth.
type SessionService struct {
	cache     domain.SessionRepository
	store     domain.SessionStore
	rateLimit int
	window    time.Duration
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewSessionService(cache domain.SessionRepository, store domain.SessionStore, rateLimit int, window time.Duration, logger *zerolog.Logger) *SessionService {
	return &SessionService{
		cache:     cache,
		store:     store,
		rateLimit: rateLimit,
		window:    window,
		now:       time.Now,
		logger:    logging.Component(logger, "sessions"),
	}
}

// Load returns the identity's session, falling back to the durable store on a
// cache miss and creating a fresh WELCOME session when neither has one.
func (s *SessionService) Load(ctx context.Context, identity string) (*models.Session, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSession(ctx, identity)
		if err != nil {
			s.logger.Warn().Err(err).Str("identity", logging.MaskIdentity(identity)).Msg("session cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	stored, err := s.store.GetSession(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if stored == nil {
		return models.NewSession(identity), nil
	}

	if s.cache != nil {
		if err := s.cache.SetSession(ctx, stored); err != nil {
			s.logger.Warn().Err(err).Str("identity", logging.MaskIdentity(identity)).Msg("session cache fill failed")
		}
	}
	return stored, nil
}

// Save stamps the session and writes it to the store, then the cache.
// The cache is refreshed even when the store write fails so the conversation
// keeps its place while the store is unavailable.
func (s *SessionService) Save(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = s.now().UTC()

	storeErr := s.store.SaveSession(ctx, sess)
	if s.cache != nil {
		if err := s.cache.SetSession(ctx, sess); err != nil {
			s.logger.Warn().Err(err).Str("identity", logging.MaskIdentity(sess.Identity)).Msg("session cache write failed")
		}
	}
	if storeErr != nil {
		return fmt.Errorf("save session: %w", storeErr)
	}
	return nil
}

// Allow applies the per-identity inbound message limit. Cache errors let the
// message through.
func (s *SessionService) Allow(ctx context.Context, identity string) bool {
	if s.cache == nil || s.rateLimit <= 0 || s.window <= 0 {
		return true
	}
	ok, err := s.cache.CheckRateLimit(ctx, identity, s.rateLimit, s.window)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate limit check failed")
		return true
	}
	return ok
}
