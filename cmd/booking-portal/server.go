package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/config"
	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/lifecycle"
	"github.com/wellness/booking/internal/domain/portal"
	"github.com/wellness/booking/internal/platform/auth"
	"github.com/wellness/booking/internal/platform/bookingapi"
	"github.com/wellness/booking/internal/platform/db"
	"github.com/wellness/booking/internal/platform/middleware"
	"github.com/wellness/booking/internal/platform/telemetry"
	"github.com/wellness/booking/internal/platform/websocket"
)

// app is the wired portal server.
type app struct {
	echo    *echo.Echo
	portal  *portal.Service
	catalog *bookingapi.CachedCatalog
	pool    *pgxpool.Pool
	metrics *telemetry.Metrics
}

// Close tears down live instances and releases the database pool.
func (a *app) Close() {
	a.portal.Shutdown()
	a.catalog.Purge()
	if a.pool != nil {
		a.pool.Close()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New(telemetry.Config{ServiceName: "booking-portal"})

	// Booking authority
	client := bookingapi.NewClient(cfg.BookingAPIURL, cfg.BookingAPITimeout, logger)
	client.SetObserver(metrics.ObserveRemote)
	catalog := bookingapi.NewCachedCatalog(client, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, logger)
	catalog.OnLookup(metrics.CatalogLookup)

	resolver := availability.NewResolver(client, catalog, availability.Options{
		Window:   window,
		Step:     cfg.SlotStep(),
		Location: loc,
		Logger:   logger,
	})

	// Override audit log
	var pool *pgxpool.Pool
	var overrides lifecycle.OverrideRepository
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Msg("connected to database")
		overrides = lifecycle.NewOverrideRepoPG(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; status overrides are only logged")
		overrides = lifecycle.NewLogAuditor(logger, 0)
	}
	machine := lifecycle.NewMachine(client, overrides, nil, logger)

	// Signal push
	hub := websocket.NewHub(logger)
	hub.OnDrop(func(topic string) {
		kind, _, _ := strings.Cut(topic, "/")
		metrics.FrameDropped(kind)
	})

	svc := portal.NewService(resolver, catalog, client, machine, overrides, portal.Options{
		Location: loc,
		Logger:   logger,
		Metrics:  metrics,
		Hub:      hub,
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Dev-Role", "X-Dev-User", "X-Dev-Specialist"},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))

	// Session middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development sessions enabled; X-Dev-Role is trusted")
		e.Use(auth.DevSessionMiddleware(jwtCfg))
	} else {
		e.Use(auth.SessionMiddleware(jwtCfg))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API
	apiV1 := e.Group("/api/v1")
	submitLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	portal.NewHandler(svc).RegisterRoutes(apiV1, submitLimit)
	websocket.NewHandler(hub, svc.CanFollow, cfg.CORSOrigins, logger).RegisterRoutes(apiV1)

	return &app{echo: e, portal: svc, catalog: catalog, pool: pool, metrics: metrics}, nil
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = a.echo.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = a.echo.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
