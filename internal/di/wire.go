//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/Zentex1337/crypto-tracker-api/pkg/config"
	"github.com/Zentex1337/crypto-tracker-api/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideClock,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideBytesCache,
		ProvideEventPublisher,

		// Repositories
		ProvideRateLimitStore,
		ProvideAlertStore,
		ProvidePriceSource,

		// Core services
		ProvideRegistry,
		ProvideLimiter,
		ProvideDispatcher,
		ProvideEvaluator,
		ProvideScheduler,
		ProvideSweeper,

		// Handlers
		ProvideWSHandler,
		ProvideAlertsHandler,
		ProvideStatsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
