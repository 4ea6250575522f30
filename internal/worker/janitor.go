package worker

import (
	"context"
	"time"

	"installbot/internal/logging"
	"installbot/internal/metrics"

	"github.com/rs/zerolog"
)

// SessionPurger removes sessions untouched since cutoff.
type SessionPurger interface {
	PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor purges idle chat sessions at startup and then on every interval.
type Janitor struct {
	store    SessionPurger
	idleDays int
	interval time.Duration
	now      func() time.Time
	logger   *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(store SessionPurger, idleDays int, interval time.Duration, logger *zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Janitor{
		store:    store,
		idleDays: idleDays,
		interval: interval,
		now:      time.Now,
		logger:   logging.Component(logger, "janitor"),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})

	go j.run(ctx)

	j.logger.Info().Int("idle_days", j.idleDays).Dur("interval", j.interval).Msg("session janitor started")
}

func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.logger.Info().Msg("session janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)

	j.Purge(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Purge(ctx)
		}
	}
}

// Purge deletes sessions idle for more than idleDays and returns how many went.
func (j *Janitor) Purge(ctx context.Context) int64 {
	if j.idleDays <= 0 {
		return 0
	}
	cutoff := j.now().AddDate(0, 0, -j.idleDays)
	n, err := j.store.PurgeSessionsOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error().Err(err).Msg("purge idle sessions failed")
		return 0
	}
	if n > 0 {
		metrics.AddPurgedSessions(n)
		j.logger.Info().Int64("count", n).Time("cutoff", cutoff).Msg("purged idle sessions")
	}
	return n
}
