package di

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/internal/handler/api"
	internalrepo "github.com/jtorres-1/mirror-trade/internal/repository"
	"github.com/jtorres-1/mirror-trade/internal/service/executor"
	"github.com/jtorres-1/mirror-trade/internal/service/ratelimit"
	"github.com/jtorres-1/mirror-trade/internal/service/relay"
	"github.com/jtorres-1/mirror-trade/internal/services/clock"
	"github.com/jtorres-1/mirror-trade/internal/services/dedup"
	"github.com/jtorres-1/mirror-trade/internal/services/risk"
	"github.com/jtorres-1/mirror-trade/internal/usecase"
	"github.com/jtorres-1/mirror-trade/pkg/cache"
	pkgch "github.com/jtorres-1/mirror-trade/pkg/clickhouse"
	"github.com/jtorres-1/mirror-trade/pkg/config"
	xhttp "github.com/jtorres-1/mirror-trade/pkg/http"
	pkgkafka "github.com/jtorres-1/mirror-trade/pkg/kafka"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
	"github.com/jtorres-1/mirror-trade/pkg/metrics"
	"github.com/jtorres-1/mirror-trade/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClockConverter creates the exchange clock.
func ProvideClockConverter(cfg *config.Config) (*clock.Converter, error) {
	opts := []clock.Option{
		clock.WithGrace(cfg.Clock.Grace),
		clock.WithRelevanceWindow(cfg.Clock.RelevancePast, cfg.Clock.RelevanceFuture),
	}
	if cfg.Clock.LocalTimezone != "" {
		loc, err := time.LoadLocation(cfg.Clock.LocalTimezone)
		if err != nil {
			return nil, fmt.Errorf("clock.local_timezone: %w", err)
		}
		opts = append(opts, clock.WithLocation(loc))
	}
	return clock.New(cfg.Trading.ExchangeOffsetMinutes, opts...), nil
}

// ProvideStateCache creates the cache behind the state store.
func ProvideStateCache(cfg *config.Config) (cache.Service, error) {
	if cfg.State.Backend != "redis" {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(100_000),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.State.Redis.Addr),
		cache.WithRedisPassword(cfg.State.Redis.Password),
		cache.WithRedisDB(cfg.State.Redis.DB),
		cache.WithRedisPrefix(cfg.State.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("state redis: %w", err)
	}
	return c, nil
}

// ProvideStateStore creates the ledger and seen-id store.
func ProvideStateStore(c cache.Service, cfg *config.Config) drepo.StateStore {
	return internalrepo.NewCacheStateStore(c, cfg.State.SeenTTL)
}

// ProvideDedupGate creates the admission gate with a persistent seen set.
func ProvideDedupGate(cfg *config.Config, conv *clock.Converter, store drepo.StateStore, l *applogger.Logger) *dedup.Gate {
	return dedup.NewGate(dedup.Config{
		StaleAfter:      cfg.Dedup.StaleMessage,
		DuplicateWindow: cfg.Dedup.DuplicateWindow,
	}, conv, internalrepo.NewPersistentSeenSet(store, l))
}

// ProvideRiskLedger creates the daily stop-loss ledger.
func ProvideRiskLedger(cfg *config.Config, conv *clock.Converter) *risk.Ledger {
	return risk.NewLedger(decimal.NewFromFloat(cfg.Trading.DailyStopLoss), conv, time.Now())
}

// ProvideExecutor selects the trade executor.
func ProvideExecutor(cfg *config.Config, l *applogger.Logger) drepo.TradeExecutor {
	if cfg.Executor.Type == "bridge" {
		return executor.NewBridge(executor.BridgeConfig{
			URL:     cfg.Executor.Bridge.URL,
			Timeout: cfg.Executor.Bridge.Timeout,
		}, l)
	}
	return executor.NewPaper(executor.PaperConfig{
		WinRate:          cfg.Executor.Paper.WinRate,
		Payout:           cfg.Executor.Paper.Payout,
		SettlementBuffer: cfg.Trading.SettlementBuffer,
		Fast:             cfg.Executor.Paper.Fast,
		Seed:             cfg.Executor.Paper.Seed,
	}, l)
}

// ProvideClickHouseClient creates a ClickHouse client, nil when the sink is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	ch := cfg.Sinks.ClickHouse
	if !ch.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + ch.Database}, internalrepo.TradeLogSchema(ch.Database+"."+ch.Table)...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the leg sink producer, nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Sinks.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Sinks.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Sinks.Kafka.Compression),
		pkgkafka.WithRequiredAcks(-1),
		pkgkafka.WithBatchTimeout(20*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideTradeLog combines the enabled sinks.
func ProvideTradeLog(cfg *config.Config, ch *pkgch.Client, producer *pkgkafka.Producer) (drepo.TradeLog, error) {
	var sinks internalrepo.MultiTradeLog
	if cfg.Sinks.CSV.Enabled {
		csvLog, err := internalrepo.NewCSVTradeLog(cfg.Sinks.CSV.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, csvLog)
	}
	if ch != nil {
		sinks = append(sinks, internalrepo.NewClickHouseTradeLog(ch.DB(), ch.Database()+"."+cfg.Sinks.ClickHouse.Table))
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaTradeLog(producer, cfg.Sinks.Kafka.Topic))
	}
	return sinks, nil
}

// ProvideJournal creates the async writer for legs and ledger snapshots.
func ProvideJournal(tl drepo.TradeLog, store drepo.StateStore, m drepo.Metrics, l *applogger.Logger) *usecase.Journal {
	return usecase.NewJournal(tl, store, m, l.With(applogger.String("component", "journal")))
}

// ProvideScheduler creates the execution scheduler.
func ProvideScheduler(
	cfg *config.Config,
	conv *clock.Converter,
	gate *dedup.Gate,
	ledger *risk.Ledger,
	exec drepo.TradeExecutor,
	journal *usecase.Journal,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.Scheduler {
	return usecase.NewScheduler(usecase.SchedulerConfig{
		Chain: usecase.ChainConfig{
			BaseStake:  decimal.NewFromFloat(cfg.Trading.BaseStake),
			Multiplier: decimal.NewFromFloat(cfg.Trading.MartingaleMultiplier),
			MaxStake:   decimal.NewFromFloat(cfg.Trading.MaxStake),
			MaxDepth:   cfg.Trading.MaxReEntryDepth,
			ForceOTC:   cfg.Trading.ForceOTC,
		},
		SettlementBuffer: cfg.Trading.SettlementBuffer,
		SubmitSlack:      cfg.Trading.SubmitSlack,
	}, conv, gate, ledger, exec, journal, m, l.With(applogger.String("component", "scheduler")))
}

// ProvideMessageSources creates the push-style sources.
func ProvideMessageSources(cfg *config.Config, l *applogger.Logger) []drepo.MessageSource {
	var sources []drepo.MessageSource
	if r := cfg.Sources.Relay; r.Enabled {
		sources = append(sources, relay.New(relay.Config{
			URL:            r.URL,
			Channel:        r.Channel,
			Token:          r.Token,
			ReconnectDelay: r.ReconnectDelay,
			PingInterval:   r.PingInterval,
		}, l.With(applogger.String("component", "relay"))))
	}
	return sources
}

// ProvideSignalIntake creates the message intake.
func ProvideSignalIntake(cfg *config.Config, sched *usecase.Scheduler, sources []drepo.MessageSource, m drepo.Metrics, l *applogger.Logger) *usecase.SignalIntake {
	return usecase.NewSignalIntake(sched, sources, m, l.With(applogger.String("component", "intake")), usecase.BackfillConfig{
		Enabled: cfg.Backfill.Enabled,
		Limit:   cfg.Backfill.Limit,
	})
}

// ProvideKafkaConsumer creates the alert consumer, nil when the source is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Sources.Kafka
	if !k.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l.With(applogger.String("component", "kafka_consumer")),
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.GroupID),
		pkgkafka.WithConsumerStartOffset(k.StartOffset),
		pkgkafka.WithConsumerRetry(k.RetryMax, k.BackoffMin, k.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaAlertsHandler creates the handler for the alerts topic, nil
// when the source is disabled.
func ProvideKafkaAlertsHandler(cfg *config.Config, intake *usecase.SignalIntake, m drepo.Metrics) pkgkafka.MessageHandler {
	if !cfg.Sources.Kafka.Enabled {
		return nil
	}
	return usecase.NewKafkaAlertsHandler(cfg.Sources.Kafka.Topic, intake, m)
}

// ProvideHTTPServer creates the status and webhook server.
func ProvideHTTPServer(cfg *config.Config, sched *usecase.Scheduler, intake *usecase.SignalIntake, l *applogger.Logger) *xhttp.Server {
	var (
		in      api.Intake
		limiter *ratelimit.Limiter
	)
	if w := cfg.Sources.Webhook; w.Enabled {
		in = intake
		limiter = ratelimit.New(w.Burst, w.PerSec)
	}
	hl := l.With(applogger.String("component", "http"))

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(api.NewEngineEchoHandler(hl, sched, in, limiter), hl, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	sched *usecase.Scheduler,
	intake *usecase.SignalIntake,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	stateCache cache.Service,
	ch *pkgch.Client,
) *server.App {
	closers := []server.Closer{{Name: "state_cache", Closer: stateCache}}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Closer: ch})
	}
	return server.New(cfg, l, sched, intake, consumer, kh, httpServer, closers...)
}
