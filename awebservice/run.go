// Package awebservice hosts the aweb HTTP server lifecycle.
package awebservice

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aweb-dev/aweb/internal/api"
	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/config"
	"github.com/aweb-dev/aweb/internal/events"
	"github.com/aweb-dev/aweb/internal/kv"
	"github.com/aweb-dev/aweb/internal/logger"
	"github.com/aweb-dev/aweb/internal/services"
	"github.com/aweb-dev/aweb/internal/store"
	"github.com/aweb-dev/aweb/internal/store/memstore"
	"github.com/aweb-dev/aweb/internal/store/postgres"
)

// Run starts the aweb service and blocks until shutdown or error.
func Run() error {
	log := logger.New("aweb")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	ctx, stop := newServerContext()
	defer stop()

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Durable store unavailable")
		return err
	}

	ephemeral, err := kv.Open(cfg.KVDSN)
	if err != nil {
		log.Error().Err(err).Msg("Ephemeral KV unavailable")
		return err
	}

	router := buildRouter(st, ephemeral, cfg, log)

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}
}

// newStore opens Postgres when a DSN is configured; without one the service
// runs on the in-process store (single-node dev mode).
func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.PostgresDSN == "" {
		log.Warn().Msg("No Postgres DSN configured; using in-process store")
		return memstore.New(), nil
	}
	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return postgres.NewWithDB(db), nil
}

// buildRouter wires services and handlers.
func buildRouter(st store.Store, ephemeral kv.KV, cfg *config.Config, log zerolog.Logger) http.Handler {
	bus := events.NewBus(0)
	waiters := services.NewWaiterRegistry()
	presence := services.NewPresence(ephemeral, cfg.HeartbeatTTLSeconds)
	identity := services.NewIdentityService(st, presence)

	return api.NewRouter(api.Deps{
		Auth:         auth.New(st, cfg.TrustProxyHeaders, cfg.InternalAuthSecret),
		Identity:     identity,
		Mail:         services.NewMailService(st, identity, bus),
		Chat:         services.NewChatService(st, identity, presence, bus, waiters, cfg, log),
		Reservations: services.NewReservationService(st, cfg),
		Store:        st,
	})
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: SSE streams and blocking sends outlive any
		// fixed per-request window; deadlines are enforced per handler.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// newServerContext returns a cancellable context that is cancelled on
// SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
