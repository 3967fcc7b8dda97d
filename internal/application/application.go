package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/clock"
	"github.com/mbendtzen/game-show-backend/internal/config"
	"github.com/mbendtzen/game-show-backend/internal/database"
	"github.com/mbendtzen/game-show-backend/internal/handler"
	"github.com/mbendtzen/game-show-backend/internal/router"
	"github.com/mbendtzen/game-show-backend/internal/service"
	"github.com/mbendtzen/game-show-backend/internal/store"
	"github.com/mbendtzen/game-show-backend/internal/store/pgstore"
	"github.com/mbendtzen/game-show-backend/internal/store/redisstore"
)

// API is the HTTP + WebSocket application.
type API struct {
	cfg   *config.Config
	srv   *http.Server
	st    store.Store
	coord *service.Coordinator
}

// NewAPI wires the application: validates config, opens the selected store
// (running migrations for the Postgres backend), and builds the coordinator
// and router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	coord := service.NewCoordinator(cfg, st, clock.New(), logger)
	gameWS := handler.NewGameWSHandler(coord, cfg, logger)
	health := handler.NewHealthHandler(coord)

	r := router.New(gameWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, st: st, coord: coord}, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		return redisstore.New(cfg.RedisURL, cfg.RecordTTL)
	default:
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := database.Open(cfg.DSN())
		if err != nil {
			return nil, err
		}
		return pgstore.New(db), nil
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// everything down: server, sweeper, coordinator state, store.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	log.Printf("HTTP server listening on %s", a.srv.Addr)
	log.Printf("  Status:    http://%s:%s/", host, a.cfg.HTTPPort)
	log.Printf("  Health:    http://%s:%s/api/health", host, a.cfg.HTTPPort)
	log.Printf("  WebSocket: ws://%s:%s/ws", host, a.cfg.HTTPPort)

	a.coord.SetContext(ctx)
	go a.coord.RunSweeper(ctx)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.srv.Shutdown(shutdownCtx)

	a.coord.Teardown()
	_ = a.st.Close()

	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
