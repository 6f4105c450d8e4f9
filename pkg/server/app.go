package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/internal/handler/api"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/ratelimit"
	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/internal/usecase"
	"github.com/Zentex1337/crypto-tracker-api/pkg/config"
	xhttp "github.com/Zentex1337/crypto-tracker-api/pkg/http"
	applogger "github.com/Zentex1337/crypto-tracker-api/pkg/logger"
)

// App encapsulates the application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	registry   *subscription.Registry
	scheduler  *usecase.UpdateScheduler
	sweeper    *usecase.HeartbeatSweeper
	limiter    *ratelimit.Limiter
	ws         *api.WSHandler
	alerts     *api.AlertsHandler
	stats      *api.StatsHandler
	events     repository.EventPublisher
	rdb        *redis.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	reg *subscription.Registry,
	sched *usecase.UpdateScheduler,
	sweeper *usecase.HeartbeatSweeper,
	limiter *ratelimit.Limiter,
	ws *api.WSHandler,
	alerts *api.AlertsHandler,
	stats *api.StatsHandler,
	events repository.EventPublisher,
	rdb *redis.Client,
) *App {
	return &App{
		cfg:       cfg,
		logger:    log,
		registry:  reg,
		scheduler: sched,
		sweeper:   sweeper,
		limiter:   limiter,
		ws:        ws,
		alerts:    alerts,
		stats:     stats,
		events:    events,
		rdb:       rdb,
	}
}

type routes []xhttp.Handler

func (r routes) RegisterRoutes(e *echo.Echo) {
	for _, h := range r {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(routes{a.ws, a.alerts, a.stats},
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
	anon := models.AnonymousLimitsFor(a.cfg.Limits.Anonymous)
	a.httpServer.Echo().Use(api.RateLimitMiddleware(a.limiter, anon, "/healthz", a.cfg.Metrics.Path, "/ws"))

	// Fill prices before accepting traffic so the first subscribers do
	// not wait a full interval for data.
	a.scheduler.RunCycleNow(ctx)
	a.scheduler.Start(ctx)
	a.sweeper.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("server started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("symbols", a.cfg.Symbols),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services. Order matters: stop producing
// updates first, then drain connections, then stop the HTTP listener.
func (a *App) shutdown(ctx context.Context) error {
	a.scheduler.Stop()
	a.sweeper.Stop()
	a.registry.Drain()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("redis close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
