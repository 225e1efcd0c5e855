package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/curanet/fhird/internal/service/config"
	"github.com/curanet/fhird/internal/service/fhir/adapters/audit"
	fhirHTTP "github.com/curanet/fhird/internal/service/fhir/adapters/http"
	"github.com/curanet/fhird/internal/service/fhir/adapters/identity"
	"github.com/curanet/fhird/internal/service/fhir/adapters/search"
	"github.com/curanet/fhird/internal/service/fhir/adapters/storage"
	"github.com/curanet/fhird/internal/service/fhir/app/bundle"
	"github.com/curanet/fhird/internal/service/fhir/app/conditional"
	"github.com/curanet/fhird/internal/service/fhir/ports"
	"github.com/curanet/fhird/internal/service/runtime"
)

type Service struct {
	httpServer *http.Server
	logger     *zap.Logger
	closeStore func()
}

// NewFHIRService wires the full stack: store, search, conditional
// coordinator, REST handlers, and the bundle engine dispatching back through
// the same router via the loopback pipeline.
func NewFHIRService() (*Service, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ids := identity.UUID{}

	var (
		store      ports.Store
		closeStore = func() {}
	)
	if cfg.DatabaseDSN != "" {
		if err := storage.RunMigrations(cfg.DatabaseDSN, cfg.MigrationsPath, logger); err != nil {
			return nil, err
		}
		pg, err := storage.NewPostgres(context.Background(), cfg.DatabaseDSN, ids)
		if err != nil {
			return nil, err
		}
		store = pg
		closeStore = pg.Close
		logger.Info("using postgres store")
	} else {
		store = storage.NewMemory(ids)
		logger.Info("using in-memory store")
	}

	searchSvc := search.New(store)
	coordinator := conditional.NewCoordinator(searchSvc)

	server := fhirHTTP.NewServer(store, coordinator, logger)
	router := fhirHTTP.Router(server)

	engine := bundle.New(
		ids,
		searchSvc,
		fhirHTTP.NewLoopback(router),
		store,
		audit.NewSink(logger),
		logger.Named("bundle"),
	)
	server.AttachEngine(engine)

	return &Service{
		httpServer: runtime.NewHTTPServer(cfg, router, logger),
		logger:     logger,
		closeStore: closeStore,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(timeoutCtx); err != nil {
		return err
	}
	s.closeStore()
	s.logger.Info("server stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: bad log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
