package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ReviewRadar/internal/config"
	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/infrastructure/httpapi"
	"ReviewRadar/internal/infrastructure/places"
	"ReviewRadar/internal/infrastructure/scheduler"
	"ReviewRadar/internal/infrastructure/sentiment"
	"ReviewRadar/internal/infrastructure/storage"
	"ReviewRadar/internal/infrastructure/telegram"
	"ReviewRadar/internal/logging"
	"ReviewRadar/internal/ports"
	"ReviewRadar/internal/source"
	"ReviewRadar/internal/usecase"
)

// Application wires config to adapters, use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	scheduler *usecase.Scheduler
	server    *httpapi.Server
}

// New assembles the full dependency graph. The store is the only adapter
// whose construction can fail.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var api ports.ReviewSource
	if cfg.Source.APIKey != "" {
		api = places.NewAPIClient(cfg.Source, nil, baseLogger.With("component", "source.api"))
	}
	scraper := places.NewScraper(nil, baseLogger.With("component", "source.scrape"))

	selector := source.NewFallback(api, scraper, baseLogger.With("component", "source"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source: selector,
		Store:  store,
		Scorer: sentiment.NewVaderScorer(),
		Logger: baseLogger.With("component", "pipeline"),
	})

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Pipeline:      pipeline,
		Store:         store,
		Driver:        scheduler.NewCronDriver(),
		Notifier:      notifier,
		Logger:        baseLogger.With("component", "scheduler"),
		MaxConcurrent: cfg.Scheduler.MaxConcurrentRuns,
	})

	server := httpapi.NewServer(cfg.HTTP.Addr, store, sched, baseLogger.With("component", "http"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		scheduler: sched,
		server:    server,
	}, nil
}

// Run registers the configured businesses, starts the scheduler and the HTTP
// listener, then blocks until ctx is cancelled and shuts both down.
func (a *Application) Run(ctx context.Context) error {
	for _, bc := range a.cfg.Businesses {
		business := domain.Business{
			ID:      bc.ID,
			Name:    bc.Name,
			PlaceID: bc.PlaceID,
			PageURL: bc.PageURL,
		}
		if err := a.scheduler.Register(ctx, business, bc.Interval(a.cfg.Scheduler)); err != nil {
			return err
		}
	}

	a.scheduler.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()
	a.logger.Info("http api listening", "addr", a.cfg.HTTP.Addr)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler stop", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close", "error", err)
	}

	return nil
}
