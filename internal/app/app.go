package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/auth"
	"github.com/ringline/ringline-server/internal/callengine"
	"github.com/ringline/ringline-server/internal/callengine/livekit"
	"github.com/ringline/ringline-server/internal/config"
	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/sfu"
	"github.com/ringline/ringline-server/internal/store"
	"github.com/ringline/ringline-server/internal/store/sqlite"
	transporthttp "github.com/ringline/ringline-server/internal/transport/http"
)

// App wires together the call manager, persistence and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	manager         *core.Manager
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}

	sfuClient := sfu.New(sfu.Options{
		Timeout:    cfg.SFU.HTTPTimeout,
		AuthSecret: []byte(cfg.SFU.AuthSecret),
		Issuer:     cfg.JWTIssuer,
		Logger:     logger,
	})

	broadcaster := transporthttp.NewBroadcaster(logger)
	recorder := store.NewRecorder(st, logger)

	manager := core.NewManager(core.Config{
		MaxOfferAge: cfg.Calls.MaxOfferAge,
	}, core.Deps{
		Logger:    logger,
		Observer:  core.MultiObserver(recorder, broadcaster),
		Requester: sfuClient,
		Verifier:  auth.NewHMACVerifier([]byte(cfg.JWTSecret)),
	})
	sfuClient.Bind(manager)

	var engine callengine.Engine
	if cfg.LiveKit.Enabled {
		engine = livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.WSURL)
		logger.Info().Str("ws_url", cfg.LiveKit.WSURL).Msg("livekit engine enabled")
	}

	server := transporthttp.NewServer(manager, broadcaster, st, engine, jwtConfig, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		manager:         manager,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the call manager, database and other resources.
func (a *App) cleanup() {
	if a.manager != nil {
		a.manager.Close()
		a.log.Info().Msg("call manager closed")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
