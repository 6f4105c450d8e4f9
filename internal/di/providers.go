package di

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/Zentex1337/crypto-tracker-api/internal/alerts"
	"github.com/Zentex1337/crypto-tracker-api/internal/broadcast"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
	"github.com/Zentex1337/crypto-tracker-api/internal/handler/api"
	internalrepo "github.com/Zentex1337/crypto-tracker-api/internal/repository"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/cache"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/coingecko"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/ratelimit"
	"github.com/Zentex1337/crypto-tracker-api/internal/subscription"
	"github.com/Zentex1337/crypto-tracker-api/internal/usecase"
	"github.com/Zentex1337/crypto-tracker-api/pkg/config"
	pkgkafka "github.com/Zentex1337/crypto-tracker-api/pkg/kafka"
	"github.com/Zentex1337/crypto-tracker-api/pkg/logger"
	"github.com/Zentex1337/crypto-tracker-api/pkg/metrics"
	"github.com/Zentex1337/crypto-tracker-api/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideClock creates the wall clock shared by all components.
func ProvideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates the Redis client, or nil when Redis is
// disabled and the in-memory backends are used instead.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideBytesCache picks the snapshot cache backend.
func ProvideBytesCache(rdb *redis.Client) cache.BytesCache {
	if rdb != nil {
		return cache.NewRedisCache(rdb)
	}
	return cache.NewTTLCache()
}

// ProvideRateLimitStore picks the sliding-window store backend.
func ProvideRateLimitStore(rdb *redis.Client) ratelimit.Store {
	if rdb != nil {
		return ratelimit.NewRedisStore(rdb)
	}
	return ratelimit.NewMemoryStore()
}

// ProvideAlertStore picks the alert persistence backend.
func ProvideAlertStore(rdb *redis.Client) repository.AlertStore {
	if rdb != nil {
		return internalrepo.NewRedisAlertStore(rdb)
	}
	return internalrepo.NewMemoryAlertStore()
}

// ProvideEventPublisher creates the Kafka alert-event publisher, or nil
// when no brokers are configured.
func ProvideEventPublisher(cfg *config.Config) (repository.EventPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvidePriceSource creates the CoinGecko price source.
func ProvidePriceSource(cfg *config.Config, c cache.BytesCache) repository.PriceSource {
	return coingecko.New(
		cfg.CoinGecko.BaseURL,
		cfg.CoinGecko.APIKey,
		cfg.CoinGecko.Currency,
		cfg.Symbols,
		c,
		cfg.CoinGecko.CacheTTL,
		cfg.CoinGecko.Timeout,
	)
}

// ProvideRegistry creates the subscription registry.
func ProvideRegistry(cfg *config.Config, clock clockwork.Clock, log *logger.Logger, m repository.Metrics) *subscription.Registry {
	return subscription.NewRegistry(cfg.Limits.MaxConnections, cfg.Symbols, clock, log, m)
}

// ProvideLimiter creates the sliding-window rate limiter.
func ProvideLimiter(store ratelimit.Store, clock clockwork.Clock, log *logger.Logger, m repository.Metrics) *ratelimit.Limiter {
	return ratelimit.New(store, clock, log, m)
}

// ProvideDispatcher creates the broadcast dispatcher.
func ProvideDispatcher(reg *subscription.Registry, log *logger.Logger, m repository.Metrics, events repository.EventPublisher) *broadcast.Dispatcher {
	return broadcast.NewDispatcher(reg, log, m, events)
}

// ProvideEvaluator creates the alert evaluator.
func ProvideEvaluator(store repository.AlertStore, clock clockwork.Clock, log *logger.Logger, m repository.Metrics, cfg *config.Config) *alerts.Evaluator {
	return alerts.NewEvaluator(store, clock, log, m, cfg.Scheduler.Workers)
}

// ProvideScheduler creates the update scheduler.
func ProvideScheduler(
	source repository.PriceSource,
	dispatcher *broadcast.Dispatcher,
	evaluator *alerts.Evaluator,
	clock clockwork.Clock,
	log *logger.Logger,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.UpdateScheduler {
	return usecase.NewUpdateScheduler(
		source,
		dispatcher,
		evaluator,
		clock,
		log,
		m,
		cfg.Scheduler.Interval,
		cfg.Scheduler.ShutdownGrace,
	)
}

// ProvideSweeper creates the stale-connection sweeper.
func ProvideSweeper(reg *subscription.Registry, clock clockwork.Clock, log *logger.Logger, cfg *config.Config) *usecase.HeartbeatSweeper {
	return usecase.NewHeartbeatSweeper(reg, clock, log, cfg.Limits.MaxConnAge)
}

// ProvideWSHandler creates the WebSocket handler.
func ProvideWSHandler(cfg *config.Config, log *logger.Logger, reg *subscription.Registry, limiter *ratelimit.Limiter) *api.WSHandler {
	return api.NewWSHandler(log, reg, limiter, models.AnonymousLimitsFor(cfg.Limits.Anonymous))
}

// ProvideAlertsHandler creates the alert CRUD handler.
func ProvideAlertsHandler(log *logger.Logger, store repository.AlertStore, source repository.PriceSource, reg *subscription.Registry, clock clockwork.Clock) *api.AlertsHandler {
	return api.NewAlertsHandler(log, store, source, reg, clock)
}

// ProvideStatsHandler creates the stats handler.
func ProvideStatsHandler(reg *subscription.Registry, sched *usecase.UpdateScheduler) *api.StatsHandler {
	return api.NewStatsHandler(reg, sched)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	reg *subscription.Registry,
	sched *usecase.UpdateScheduler,
	sweeper *usecase.HeartbeatSweeper,
	limiter *ratelimit.Limiter,
	ws *api.WSHandler,
	alertsHandler *api.AlertsHandler,
	stats *api.StatsHandler,
	events repository.EventPublisher,
	rdb *redis.Client,
) *server.App {
	return server.New(cfg, log, reg, sched, sweeper, limiter, ws, alertsHandler, stats, events, rdb)
}
