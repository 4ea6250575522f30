package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"installbot/internal/api"
	"installbot/internal/calendar"
	"installbot/internal/config"
	"installbot/internal/database"
	"installbot/internal/domain"
	"installbot/internal/events"
	"installbot/internal/logging"
	"installbot/internal/metrics"
	"installbot/internal/models"
	"installbot/internal/notify"
	"installbot/internal/repository"
	"installbot/internal/service"
	"installbot/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	closed, err := config.ParseWeekday(cfg.Bot.ClosedWeekday)
	if err != nil {
		return err
	}

	redisClient, cache := initSessionCache(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	dispatcher, err := notify.FromConfig(cfg.Notifications, db, loc, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init notifications")
		return err
	}
	dispatcher.Subscribe(eventBus)
	defer dispatcher.Close()

	cal := calendar.New(db, cfg.Bot.TimeSlots, cfg.Bot.HorizonDays, closed)
	sessions := service.NewSessionService(cache, db, cfg.Bot.RateLimitMessages,
		time.Duration(cfg.Bot.RateLimitWindow)*time.Second, &logger)
	bookings := service.NewBookingService(db, eventBus, cfg.Bot.TimeSlots, &logger)
	engine := service.NewEngine(sessions, bookings, cal, db, service.EngineConfig{
		RestartKeywords: cfg.Bot.RestartKeywords,
		Location:        loc,
	}, &logger)

	sweeper := worker.NewReminderSweeper(db, dispatcher, loc, &logger)
	scheduler, err := initScheduler(cfg, loc, sweeper, dispatcher, &logger)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	janitor := worker.NewJanitor(db, cfg.Bot.SessionIdleDays, 24*time.Hour, &logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Conversation:  engine,
		Appointments:  bookings,
		Notifications: dispatcher,
		Reminders:     sweeper,
		Store:         db,
		ServiceName:   cfg.App.Name,
		Version:       cfg.App.Version,
		StaffEmail:    cfg.Notifications.StaffEmail,
		Location:      loc,
	}, &logger)

	return serve(ctx, httpServer, dispatcher, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SeedServiceTypes(context.Background(), cfg.Services); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("seed service types")
		return nil, err
	}
	return db, nil
}

// initSessionCache puts Redis in front of the in-memory cache when an address
// is configured. Without Redis the memory tier serves alone.
func initSessionCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SessionRepository) {
	ttl := time.Duration(models.DefaultSessionCacheTTL) * time.Second
	memory := repository.NewMemorySessionRepository(cfg.Bot.SessionCacheSize, ttl)
	if cfg.Redis.Address == "" {
		return nil, memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, sessions fall back to memory until it recovers")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisSessionRepository(redisClient, ttl)
	return redisClient, repository.NewFailoverSessionRepository(primary, memory, logger)
}

func initScheduler(
	cfg *config.Config,
	loc *time.Location,
	sweeper *worker.ReminderSweeper,
	dispatcher *notify.Dispatcher,
	logger *zerolog.Logger,
) (*worker.Scheduler, error) {
	scheduler := worker.NewScheduler(loc, logger)
	if err := scheduler.Daily("reminders", cfg.Bot.ReminderTime, sweeper.Run); err != nil {
		return nil, err
	}
	summary := func(ctx context.Context) error {
		err := dispatcher.SendDailySummary(ctx)
		if errors.Is(err, notify.ErrNoRecipients) {
			return nil
		}
		return err
	}
	if err := scheduler.Daily("daily_summary", cfg.Bot.SummaryTime, summary); err != nil {
		return nil, err
	}
	return scheduler, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, dispatcher *notify.Dispatcher, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Msg("Bot started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	// let in-flight notifications finish before the pool is released
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("notifications still pending at shutdown")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}
