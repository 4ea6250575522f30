package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"installbot/internal/logging"

	"github.com/rs/zerolog"
)

type dailyJob struct {
	name   string
	hour   int
	minute int
	run    func(ctx context.Context) error
}

// Scheduler runs jobs once a day at fixed wall-clock times.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []dailyJob
	loc    *time.Location
	now    func() time.Time
	logger *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(loc *time.Location, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		loc:    loc,
		now:    time.Now,
		logger: logging.Component(logger, "scheduler"),
	}
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(at string) (int, int, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM: %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Daily registers a job. Jobs must be added before Start.
func (s *Scheduler) Daily(name, at string, run func(ctx context.Context) error) error {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, dailyJob{name: name, hour: hour, minute: minute, run: run})
	return nil
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	jobs := append([]dailyJob(nil), s.jobs...)

	go s.run(ctx, jobs)

	for _, j := range jobs {
		s.logger.Info().Str("job", j.name).Str("at", fmt.Sprintf("%02d:%02d", j.hour, j.minute)).Msg("scheduled daily job")
	}
}

// Stop cancels the loop and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, jobs []dailyJob) {
	defer close(s.done)
	if len(jobs) == 0 {
		<-ctx.Done()
		return
	}

	next := make([]time.Time, len(jobs))
	for i, j := range jobs {
		next[i] = NextRun(s.now(), j.hour, j.minute, s.loc)
	}

	for {
		idx := 0
		for i := range next {
			if next[i].Before(next[idx]) {
				idx = i
			}
		}

		timer := time.NewTimer(next[idx].Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runJob(ctx, jobs[idx])
		next[idx] = NextRun(s.now(), jobs[idx].hour, jobs[idx].minute, s.loc)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j dailyJob) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("job", j.name).Msg("daily job panicked")
		}
	}()

	if err := j.run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Msg("daily job failed")
		return
	}
	s.logger.Info().Str("job", j.name).Dur("took", time.Since(start)).Msg("daily job finished")
}
