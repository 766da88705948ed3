package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/windschord/claude-work/internal/api"
	"github.com/windschord/claude-work/internal/auth"
	"github.com/windschord/claude-work/internal/common/config"
	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/db"
	"github.com/windschord/claude-work/internal/events/bus"
	gwws "github.com/windschord/claude-work/internal/gateway/websocket"
	"github.com/windschord/claude-work/internal/session"
	"github.com/windschord/claude-work/internal/store"
	"github.com/windschord/claude-work/internal/tracing"
)

const (
	shutdownTimeout    = 30 * time.Second
	authPurgeInterval  = 10 * time.Minute
	defaultServiceName = "claude-work"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithPath(configDir)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting claude-work", zap.String("version", version))

	conn, closeDB, err := db.Provide(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := closeDB(); err != nil {
			log.Error("database close error", zap.Error(err))
		}
	}()
	st, err := store.New(conn)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	eventBus, err := bus.Provide(cfg.NATS, log)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer eventBus.Close()

	sessionHub := gwws.NewHub("sessions", log)
	terminalHub := gwws.NewHub("terminals", log)

	orch := session.New(st, sessionHub, terminalHub, eventBus, session.OptionsFromConfig(cfg), log)
	authSvc := auth.NewService(st, cfg.Auth, log)
	if authSvc.Enabled() && cfg.Auth.Token == "" {
		log.Warn("auth is enabled but no token is configured; every login will fail")
	}

	broadcaster, err := gwws.RegisterSessionStatusNotifications(ctx, eventBus, sessionHub, log)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session status: %w", err)
	}
	defer broadcaster.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Dependencies{
		Store:       st,
		Sessions:    orch,
		Auth:        authSvc,
		SessionHub:  sessionHub,
		TerminalHub: terminalHub,
		ServiceName: defaultServiceName,
	}, log)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeoutDuration(),
		// no WriteTimeout: sockets stay open for the life of a session
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		purgeAuthSessions(gctx, authSvc, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down claude-work")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		orch.Shutdown(shutdownCtx)
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("claude-work stopped")
	return err
}

// purgeAuthSessions deletes expired login sessions until ctx ends.
func purgeAuthSessions(ctx context.Context, svc *auth.Service, log *logger.Logger) {
	if !svc.Enabled() {
		return
	}
	ticker := time.NewTicker(authPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.PurgeExpired(ctx); err != nil {
				log.Warn("failed to purge expired auth sessions", zap.Error(err))
			}
		}
	}
}
