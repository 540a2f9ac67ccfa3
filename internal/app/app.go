package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargelink/internal/config"
	"chargelink/internal/handlers"
	"chargelink/internal/ocpp"
	"chargelink/internal/presence"
	"chargelink/internal/registry"
	"chargelink/internal/service"
	"chargelink/internal/storage"
	"chargelink/internal/ws"
)

// App wires the OCPP server dependencies.
type App struct {
	server      *http.Server
	registry    *registry.Registry
	monitor     *storage.Monitor
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph. The durable store is opened lazily:
// a database that is down at boot leaves the server serving from memory
// until the monitor observes it back.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := storage.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	durable := storage.NewPostgresStore(sqlDB)
	fallback := storage.NewMemoryStore()
	monitor := storage.NewMonitor(sqlDB, cfg.ReconnectInterval(), logger)
	monitor.Subscribe(func(connected bool) {
		mode := "in-memory"
		if connected {
			mode = "durable"
		}
		logger.Info("storage mode changed", zap.String("mode", mode))
	})
	store := storage.NewDual(durable, fallback, monitor.Connected)

	var presenceStore registry.Presence
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient, err = presence.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Warn("redis unavailable, presence disabled", zap.Error(err))
		} else {
			presenceStore = presence.NewStore(redisClient, logger)
		}
	}

	stations := service.NewStationService(store, cfg.HeartbeatInterval(), logger)
	queue := service.NewMessageQueue(store, logger)

	router := ocpp.NewRouter(logger)
	handlers.Register(router, stations)

	connections := registry.New(presenceStore, logger)
	wsServer := ws.NewServer(connections, router, queue, cfg.WriteTimeout(), logger)

	mux := chi.NewRouter()
	mux.Get("/health", newHealthHandler(monitor))
	mux.Get("/connections", newConnectionsHandler(connections))
	mux.Get(ocppRoute(cfg.HTTP.PathPrefix), wsServer.HandleUpgrade)

	server := &http.Server{
		Addr:        cfg.HTTPAddress(),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return &App{
		server:      server,
		registry:    connections,
		monitor:     monitor,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

func ocppRoute(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "/ocpp/{identity}"
	}
	return "/" + prefix + "/ocpp/{identity}"
}

// Run starts the connectivity monitor and the HTTP server, then blocks until
// ctx is cancelled or the listener fails. Shutdown order: stop accepting
// upgrades, then close every live station link with 1001.
func (a *App) Run(ctx context.Context) error {
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go a.monitor.Start(monitorCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting ocpp server", zap.String("addr", a.server.Addr))
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := a.server.Shutdown(shutdownCtx)
		a.registry.Shutdown()
		return err
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
