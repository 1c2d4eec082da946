package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nganya/nganya-web/internal/config"
	redisx "github.com/nganya/nganya-web/internal/redis"
	redisrepo "github.com/nganya/nganya-web/internal/repository/redis"
	"github.com/nganya/nganya-web/internal/service/flow"
	"github.com/nganya/nganya-web/internal/session"
	httpgin "github.com/nganya/nganya-web/internal/transport/http/gin"
	"github.com/nganya/nganya-web/internal/upstream"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sessions   *session.Store
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	cache := redisrepo.New(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.KeyRateLimit(), 10, 1*time.Minute)
	idem := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	api := upstream.New(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Retries: cfg.Upstream.Retries,
		Timeout: cfg.Upstream.Timeout,
	})

	// Initialize services
	flowSvc := flow.New(api, cache, logger, flow.Config{
		AdminPhone: cfg.WhatsApp.AdminPhone,
	})
	sessions := session.NewStore(flowSvc, 30*time.Minute)

	// Initialize Gin router
	router := httpgin.NewRouter(api, sessions, cache, limiter, idem, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Session janitor; closing sessions tears down their poll loops
	g.Go(func() error {
		if err := a.sessions.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
