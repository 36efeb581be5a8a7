package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	"github.com/jtorres-1/mirror-trade/internal/service/ratelimit"
	"github.com/jtorres-1/mirror-trade/internal/usecase"
	xhttp "github.com/jtorres-1/mirror-trade/pkg/http"
	xlogger "github.com/jtorres-1/mirror-trade/pkg/logger"
	"github.com/jtorres-1/mirror-trade/pkg/util"
)

// Engine is the part of the scheduler the API needs.
type Engine interface {
	Snapshot(ctx context.Context) (models.EngineSnapshot, error)
	Cancel(ctx context.Context) (bool, error)
}

// Intake accepts chat messages.
type Intake interface {
	Handle(ctx context.Context, msg models.Message) (usecase.Decision, error)
}

// AlertRequest is a chat message pushed over the webhook.
type AlertRequest struct {
	ID     string `json:"id" validate:"required,max=128"`
	Text   string `json:"text" validate:"required,max=4096"`
	SentAt string `json:"sent_at"`
	Edited bool   `json:"edited"`
}

// EngineEchoHandler serves engine status, the alert webhook and chain control.
type EngineEchoHandler struct {
	logger  *xlogger.Logger
	engine  Engine
	intake  Intake
	limiter *ratelimit.Limiter
	now     func() time.Time
}

// NewEngineEchoHandler creates the handler. A nil intake leaves the webhook
// unregistered and a nil limiter disables rate limiting.
func NewEngineEchoHandler(logger *xlogger.Logger, engine Engine, intake Intake, limiter *ratelimit.Limiter) *EngineEchoHandler {
	return &EngineEchoHandler{logger: logger, engine: engine, intake: intake, limiter: limiter, now: time.Now}
}

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.POST("/chain/cancel", h.CancelChain)
	if h.intake != nil {
		g.POST("/alerts", h.Alert)
	}
}

func (h *EngineEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *EngineEchoHandler) Status(c echo.Context) error {
	snap, err := h.engine.Snapshot(c.Request().Context())
	if err != nil {
		return h.engineError(c, "status", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, snap)
}

func (h *EngineEchoHandler) Alert(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many alerts"))
	}

	req := &AlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sentAt := h.now()
	if strings.TrimSpace(req.SentAt) != "" {
		t, ok := util.ParseTime(req.SentAt)
		if !ok {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code:    "ERR_SENT_AT",
				Field:   "sent_at",
				Message: "sent_at must be RFC3339 or a unix timestamp",
			}})
		}
		sentAt = t
	}

	msg := models.Message{
		ID:     req.ID,
		Text:   req.Text,
		SentAt: sentAt,
		Edited: req.Edited,
		Source: "webhook",
	}
	d, err := h.intake.Handle(c.Request().Context(), msg)
	if err != nil {
		return h.engineError(c, "alert", err)
	}
	return xhttp.AcceptedResponse(c, d)
}

func (h *EngineEchoHandler) CancelChain(c echo.Context) error {
	cancelled, err := h.engine.Cancel(c.Request().Context())
	if err != nil {
		return h.engineError(c, "cancel", err)
	}
	if cancelled {
		h.logger.Info("chain cancelled over api", xlogger.String("remote", c.RealIP()))
	}
	return xhttp.SuccessResponse(c, map[string]bool{"cancelled": cancelled})
}

func (h *EngineEchoHandler) engineError(c echo.Context, op string, err error) error {
	if errors.Is(err, usecase.ErrSchedulerStopped) || errors.Is(err, context.Canceled) {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("engine is not running").WithError(err))
	}
	h.logger.Error("engine request failed", xlogger.String("op", op), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("engine request failed").WithError(err))
}
