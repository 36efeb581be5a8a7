package repository

import (
	"context"
	"errors"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
)

// MultiTradeLog fans a record out to every sink. A failing sink does not stop
// the others.
type MultiTradeLog []drepo.TradeLog

var _ drepo.TradeLog = MultiTradeLog(nil)

func (m MultiTradeLog) Record(ctx context.Context, rec models.LegRecord) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiTradeLog) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sinks returns the wrapped trade logs.
func (m MultiTradeLog) Sinks() []drepo.TradeLog {
	return m
}
