package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/coelhotv/meus-remedios/internal/config"
	"github.com/coelhotv/meus-remedios/internal/domain/adherence"
	"github.com/coelhotv/meus-remedios/internal/domain/intakelog"
	"github.com/coelhotv/meus-remedios/internal/domain/medicine"
	"github.com/coelhotv/meus-remedios/internal/domain/protocol"
	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/auth"
	"github.com/coelhotv/meus-remedios/internal/platform/db"
	"github.com/coelhotv/meus-remedios/internal/platform/middleware"
	"github.com/coelhotv/meus-remedios/internal/platform/notification"
	"github.com/coelhotv/meus-remedios/internal/platform/reminder"
	"github.com/coelhotv/meus-remedios/internal/platform/reporting"
	"github.com/coelhotv/meus-remedios/internal/platform/telemetry"
	"github.com/coelhotv/meus-remedios/internal/platform/webhook"
	"github.com/coelhotv/meus-remedios/internal/platform/websocket"
)

const (
	shutdownTimeout      = 10 * time.Second
	cacheCleanupInterval = time.Minute
	limiterPruneInterval = 5 * time.Minute
	notificationHistory  = 100
)

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// app holds the wired services so the HTTP surface and the background jobs
// share one set of instances.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Provider

	medicines     *medicine.Service
	protocols     *protocol.Service
	intakes       *intakelog.Service
	adherence     *adherence.Service
	notifications *notification.Manager
	hub           *websocket.Hub
	limiter       *middleware.RateLimiter
	sweeper       *reminder.Sweeper
	reports       *reporting.Handler
	loc           *time.Location
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, dosing.WithLogger(logger.With().Str("component", "dosing").Logger()))
	engine := dosing.New(opts...)

	metrics := telemetry.NewProvider()
	metrics.RegisterPool(pool)

	medicineSvc := medicine.NewService(medicine.NewMedicineRepoPG(pool))
	protocolSvc := protocol.NewService(protocol.NewProtocolRepoPG(pool), medicineSvc, engine)

	intakeSvc := intakelog.NewService(intakelog.NewIntakeLogRepoPG(pool), protocolSvc, medicineSvc, engine)
	intakeSvc.UseTx(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})
	intakeSvc.UseMetrics(metrics)

	adherenceSvc := adherence.NewService(engine, protocolSvc, intakeSvc, medicineSvc, adherence.Config{
		DefaultWindowDays: cfg.AdherenceWindowDays,
		MaxWindowDays:     cfg.AdherenceMaxWindowDays,
		CacheTTL:          cfg.AdherenceCacheTTL,
		LowStockDays:      cfg.LowStockDays,
	})
	adherenceSvc.UseMetrics(metrics)
	intakeSvc.OnChange(adherenceSvc.Invalidate)
	protocolSvc.OnChange(adherenceSvc.Invalidate)

	hub := websocket.NewHub()
	intakeSvc.OnChange(hub.AdherenceChanged)
	protocolSvc.OnChange(hub.AdherenceChanged)

	var sender notification.Sender = notification.LogSender{Logger: logger.With().Str("component", "notification").Logger()}
	if cfg.NotifyWebhookURL != "" {
		ws, err := webhook.NewSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("NOTIFY_WEBHOOK_URL: %w", err)
		}
		sender = ws
	}
	notifications := notification.NewManager(notification.MultiSender{sender, hub}, notification.NewTemplateEngine(), notificationHistory)

	a := &app{
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics,
		medicines:     medicineSvc,
		protocols:     protocolSvc,
		intakes:       intakeSvc,
		adherence:     adherenceSvc,
		notifications: notifications,
		hub:           hub,
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		reports: reporting.NewHandler(pool, engine.Location(), cfg.AdherenceMaxWindowDays),
		loc:     engine.Location(),
	}

	if cfg.RemindersEnabled {
		a.sweeper = reminder.NewSweeper(reminder.Config{
			Schedule:    cfg.ReminderSchedule,
			Concurrency: cfg.ReminderConcurrency,
		}, protocolSvc, adherenceSvc, notifications, logger)
		a.sweeper.UseMetrics(metrics)
	}
	return a, nil
}

func (a *app) authMiddleware() echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:     a.cfg.AuthIssuer,
		Audience:   a.cfg.AuthAudience,
		SigningKey: []byte(a.cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if a.cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg, a.cfg.DevUserID)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// routes builds the echo instance. healthDB may be nil when no pool is
// available.
func (a *app) routes(healthDB echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	if a.cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if healthDB != nil {
		e.GET("/health/db", healthDB)
	}
	e.GET("/metrics", a.metrics.Handler())

	api := e.Group("/api/v1", a.authMiddleware(), a.limiter.Middleware())
	medicine.NewHandler(a.medicines).RegisterRoutes(api)
	protocol.NewHandler(a.protocols).RegisterRoutes(api)
	intakelog.NewHandler(a.intakes, a.loc).RegisterRoutes(api)
	adherence.NewHandler(a.adherence).RegisterRoutes(api)
	notification.NewHandler(a.notifications).RegisterRoutes(api)
	a.reports.RegisterRoutes(api)
	websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

// startBackground launches cache cleanup, limiter pruning and the reminder
// sweep. They stop when ctx is cancelled.
func (a *app) startBackground(ctx context.Context) error {
	a.adherence.StartCacheCleanup(ctx, cacheCleanupInterval)
	a.limiter.StartPruning(ctx, limiterPruneInterval)
	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) stopBackground() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(cfg, pool, logger)
	if err != nil {
		return err
	}
	e := a.routes(db.HealthHandler(pool))

	if err := a.startBackground(ctx); err != nil {
		return err
	}
	defer a.stopBackground()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
