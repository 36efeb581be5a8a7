package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	pkghttp "github.com/jtorres-1/mirror-trade/pkg/http"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

const defaultBridgeURL = "http://127.0.0.1:8787"

var errMalformedOutcome = errors.New("malformed trade outcome")

// BridgeConfig configures the executor sidecar client.
type BridgeConfig struct {
	URL string
	// Timeout bounds a whole request; zero leaves it to the caller's context.
	Timeout time.Duration
}

// Bridge places trades through an HTTP sidecar that drives the broker.
//
//	POST {url}/trades  {client_order_id, chain_id, pair, direction, expiry_minutes, amount, leg}
//	200 {"result":"WIN|LOSS","profit":"1.85"}
//	409 another trade is still open
type Bridge struct {
	base   string
	client *pkghttp.Client
	l      *applogger.Logger
}

// NewBridge creates a sidecar executor.
func NewBridge(cfg BridgeConfig, l *applogger.Logger) *Bridge {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		base = defaultBridgeURL
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Bridge{
		base: base,
		client: pkghttp.NewClient(
			pkghttp.WithTimeout(cfg.Timeout),
			pkghttp.WithUserAgent("mirrortrade/bridge"),
		),
		l: l,
	}
}

func (b *Bridge) Name() string { return "bridge" }

type bridgeOutcome struct {
	Result string          `json:"result"`
	Profit decimal.Decimal `json:"profit"`
}

// Submit posts the trade and blocks until the sidecar reports the settlement.
func (b *Bridge) Submit(ctx context.Context, req models.TradeRequest) (models.TradeOutcome, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var out bridgeOutcome
	err := b.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    b.base + "/trades",
		Body:   req,
	}, &out)
	switch {
	case pkghttp.IsStatus(err, http.StatusConflict):
		return models.TradeOutcome{}, drepo.ErrExecutorBusy
	case err != nil:
		return models.TradeOutcome{}, fmt.Errorf("bridge submit %s: %w", req.ID, err)
	}

	result := models.Result(strings.ToUpper(strings.TrimSpace(out.Result)))
	if !result.Completed() {
		return models.TradeOutcome{}, fmt.Errorf("%w: result %q", errMalformedOutcome, out.Result)
	}

	b.l.Debug("bridge settled trade",
		applogger.String("client_order_id", req.ID),
		applogger.String("result", string(result)),
		applogger.Decimal("profit", out.Profit),
	)
	return models.TradeOutcome{Result: result, Profit: out.Profit}, nil
}
