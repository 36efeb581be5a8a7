//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/jtorres-1/mirror-trade/pkg/config"
	"github.com/jtorres-1/mirror-trade/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// State and sinks
		ProvideStateCache,
		ProvideStateStore,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideTradeLog,
		ProvideJournal,

		// Engine
		ProvideClockConverter,
		ProvideDedupGate,
		ProvideRiskLedger,
		ProvideExecutor,
		ProvideScheduler,

		// Sources
		ProvideMessageSources,
		ProvideSignalIntake,
		ProvideKafkaConsumer,
		ProvideKafkaAlertsHandler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
