package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/handler"
	"camwatch/internal/logger"
	"camwatch/internal/repository"
	"camwatch/internal/repository/file"
	"camwatch/internal/repository/memory"
	"camwatch/internal/repository/postgres"
	"camwatch/internal/repository/sqlite"
	"camwatch/internal/route"
	"camwatch/internal/service/alert"
	"camwatch/internal/service/notify"
	"camwatch/internal/service/relay"
	"camwatch/internal/service/storage"
	"camwatch/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	frameStore *storage.FrameStore
	hubService *websocket.HubService
	services   route.Services
	closers    []func()
}

// NewApp wires storage, notifier and services from cfg.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{config: cfg, logger: log}

	repo, err := a.openStateRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := a.openNotifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.frameStore = storage.NewFrameStore(cfg.FrameTTL, storage.WithLogger(log))
	a.hubService = websocket.NewHubService(log)

	frames := relay.NewRelayService(a.frameStore, cfg, log)
	state := alert.NewStateService(ctx, repo, cfg, log)

	a.services = route.Services{
		Relay:      frames,
		State:      state,
		Escalation: alert.NewEscalationService(state, notifier, a.hubService, cfg, log),
		Replies:    alert.NewReplyService(state, notifier, frames, cfg, log),
		Hub:        a.hubService,
	}
	return a, nil
}

// OpenStateRepository returns the backend selected by STATE_BACKEND and a function releasing it.
func OpenStateRepository(ctx context.Context, cfg *config.Config) (repository.StateRepository, func(), error) {
	switch cfg.StateBackend {
	case "", "file":
		return file.NewStateRepository(cfg.StateFile), func() {}, nil
	case "memory":
		return memory.NewStateRepository(), func() {}, nil
	case "sqlite":
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewStateRepository(db), func() { db.Close() }, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres state backend")
		}
		repo, err := postgres.NewStateRepository(ctx, cfg.DatabaseURL, 4)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func (a *App) openStateRepository(ctx context.Context) (repository.StateRepository, error) {
	repo, closeRepo, err := OpenStateRepository(ctx, a.config)
	if err != nil {
		return nil, fmt.Errorf("open %s state backend: %w", a.config.StateBackend, err)
	}
	a.closers = append(a.closers, closeRepo)
	a.logger.Info("Alert state backend: %s", a.config.StateBackend)
	return repo, nil
}

func (a *App) openNotifier(ctx context.Context) (notify.Notifier, error) {
	switch a.config.Notifier {
	case "", "log":
		a.logger.Warning("Notifier is log-only; alerts will not leave this process")
		return notify.NewLogNotifier(a.logger), nil
	case "twilio":
		return notify.NewTwilioNotifier(a.config, nil, a.logger)
	case "mqtt":
		n, err := notify.NewMQTTNotifier(ctx, a.config, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Disconnect)
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", a.config.Notifier)
	}
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return route.SetupRoutes(a.services, a.config, a.logger)
}

// Run serves HTTP and the background workers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start background services
	go a.hubService.Run(ctx)
	go a.frameStore.Run(ctx, a.config.FrameSweepInterval)
	if a.config.CamerasPort > 0 {
		go func() {
			if err := handler.UDPCameraHandler(ctx, a.services.Relay, a.logger, a.config); err != nil {
				a.logger.Error("UDP camera ingest stopped: %v", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Camwatch server listening on :%d (frame TTL %s, alert cooldown %s)",
			a.config.Port, a.frameStore.TTL(), a.services.State.Cooldown())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the state backend and the notifier connection.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
