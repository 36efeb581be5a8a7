package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/jtorres-1/mirror-trade/pkg/config"
	xhttp "github.com/jtorres-1/mirror-trade/pkg/http"
	pkgkafka "github.com/jtorres-1/mirror-trade/pkg/kafka"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

// Engine is the scheduler loop.
type Engine interface {
	Run(ctx context.Context) error
}

// Intake starts and stops the message sources.
type Intake interface {
	Start(ctx context.Context) error
	Close() error
}

// Closer is a named resource released after the engine stops.
type Closer struct {
	Name string
	io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	engine     Engine
	intake     Intake
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	httpServer *xhttp.Server
	closers    []Closer
}

// New creates a new App instance with all dependencies. consumer and kh may
// be nil when the Kafka source is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	engine Engine,
	intake Intake,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	closers ...Closer,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		engine:     engine,
		intake:     intake,
		consumer:   consumer,
		kh:         kh,
		httpServer: httpServer,
		closers:    closers,
	}
}

// Run starts the application and blocks until ctx ends or the process is
// interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine is stopped after the sources, not with ctx.
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- a.engine.Run(engineCtx)
	}()
	a.l.Info("scheduler started",
		applogger.String("environment", a.cfg.Environment),
		applogger.String("executor", a.cfg.Executor.Type),
		applogger.Float64("base_stake", a.cfg.Trading.BaseStake),
		applogger.Float64("daily_stop_loss", a.cfg.Trading.DailyStopLoss),
	)

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			stopEngine()
			<-engineDone
			return err
		}
	}

	if err := a.intake.Start(ctx); err != nil {
		a.l.Error("intake start error", applogger.Error(err))
		stop()
		return errors.Join(err, a.shutdown(stopEngine, engineDone))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		a.consumer.WithConsumerHook(pkgkafka.LoggingHook{L: a.l})
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			stop()
			return errors.Join(err, a.shutdown(stopEngine, engineDone))
		}
		a.l.Info("kafka alerts source started",
			applogger.String("topic", a.kh.Topic()),
			applogger.Strings("brokers", a.cfg.Sources.Kafka.Brokers),
		)
	}

	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-engineDone:
		engineDone <- err
		a.l.Error("scheduler exited", applogger.Error(err))
	}
	return a.shutdown(stopEngine, engineDone)
}

// shutdown stops sources first, then the engine, then infrastructure.
func (a *App) shutdown(stopEngine context.CancelFunc, engineDone chan error) error {
	a.l.Info("shutting down...")
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.intake.Close(); err != nil {
		a.l.Warn("intake close error", applogger.Error(err))
		errs = append(errs, err)
	}

	stopEngine()
	select {
	case err := <-engineDone:
		if err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	case <-ctx.Done():
		a.l.Error("scheduler did not stop in time")
		errs = append(errs, fmt.Errorf("scheduler stop: %w", ctx.Err()))
	}

	for _, c := range a.closers {
		if c.Closer == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
