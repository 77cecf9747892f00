// Package app hosts the NetLink HTTP process: the JSON API, the /ws realtime
// endpoint and the wiring of storage, bus and archive backends.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/campaign/policy"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/services/netlink/archive"
	"github.com/zenite-os/zenite/internal/services/netlink/auth"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/service"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/storage/gormstore"
	"github.com/zenite-os/zenite/internal/services/netlink/storage/sqlite"
)

// Server hosts the NetLink HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           storage.Store
	bus             realtime.Bus
	logger          logging.Logger
}

// NewServer opens the configured backends and builds the HTTP server.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	config = config.withDefaults()
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if strings.TrimSpace(config.TokenSecret) == "" {
		return nil, errors.New("token secret is required")
	}

	logger, err := logging.New("netlink", config.Log)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: []byte(config.TokenSecret), TTL: config.TokenTTL})
	if err != nil {
		return nil, fmt.Errorf("init tokens: %w", err)
	}

	store, err := OpenStore(config.DBPath, config.PostgresDSN)
	if err != nil {
		return nil, err
	}
	bus, err := openBus(ctx, config, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	arch, err := archive.Open(ctx, config.Archive)
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return nil, err
	}
	if !arch.Enabled() {
		logger.Info("character archive disabled", nil)
	}

	handler, err := NewHandler(HandlerConfig{
		Store:   store,
		Bus:     bus,
		Archive: arch,
		Tokens:  tokens,
		Logger:  logger,
	})
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return nil, err
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		store:  store,
		bus:    bus,
		logger: logger,
	}, nil
}

// OpenStore opens the Postgres store when dsn is set, else the SQLite file
// at dbPath.
func OpenStore(dbPath, dsn string) (storage.Store, error) {
	if dsn := strings.TrimSpace(dsn); dsn != "" {
		store, err := gormstore.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	}
	path := strings.TrimSpace(dbPath)
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func openBus(ctx context.Context, config Config, logger logging.Logger) (realtime.Bus, error) {
	if url := strings.TrimSpace(config.RedisURL); url != "" {
		bus, err := realtime.NewRedisBus(ctx, url, logger.With(logging.Fields{"bus": "redis"}))
		if err != nil {
			return nil, fmt.Errorf("open redis bus: %w", err)
		}
		return bus, nil
	}
	return realtime.NewMemoryBus(), nil
}

// HandlerConfig wires the NetLink HTTP and websocket routes.
type HandlerConfig struct {
	Store   storage.Store
	Bus     realtime.Bus
	Archive *archive.Archive
	Tokens  *auth.Tokens
	Logger  logging.Logger
	Now     func() time.Time
	NewID   func() (string, error)
}

// NewHandler builds the NetLink routes over already-open dependencies.
func NewHandler(deps HandlerConfig) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	enforcer, err := policy.Default()
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	authService, err := auth.NewService(deps.Store, deps.Tokens, deps.Now, deps.NewID)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(service.Config{
		Store:   deps.Store,
		Bus:     deps.Bus,
		Policy:  enforcer,
		Archive: deps.Archive,
		Logger:  deps.Logger.With(logging.Fields{"layer": "service"}),
		Now:     deps.Now,
		NewID:   deps.NewID,
	})
	if err != nil {
		return nil, err
	}
	hub, err := realtime.NewHub(realtime.HubConfig{
		Bus:     deps.Bus,
		Auth:    authService,
		Members: deps.Store,
		Policy:  enforcer,
		Logger:  deps.Logger.With(logging.Fields{"layer": "realtime"}),
		Now:     deps.Now,
	})
	if err != nil {
		return nil, err
	}
	api := &apiHandler{auth: authService, svc: svc, logger: deps.Logger}
	return api.routes(hub), nil
}

// Run builds and serves NetLink until ctx ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init netlink server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve netlink: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("netlink server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	s.logger.Info("netlink server listening", logging.Fields{"addr": s.httpAddr})
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases the bus and the store.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error("close realtime bus", err, nil)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("close store", err, nil)
		}
	}
}
