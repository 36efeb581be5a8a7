package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

// ConsumerHook observes message handling. A non-nil error from BeforeHandle
// skips the handler and sends the message down the failure path.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}

func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}

type ctxKey string

// CtxTraceID holds the correlation id taken from the trace_id header.
const CtxTraceID ctxKey = "kafka_trace_id"

// TraceID returns the correlation id stored by LoggingHook, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(CtxTraceID).(string)
	return v
}

// LoggingHook threads the trace_id header into the context and logs failed
// attempts with their partition and offset.
type LoggingHook struct {
	L *applogger.Logger
}

func (h LoggingHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	for _, hdr := range km.Headers {
		if hdr.Key == "trace_id" && len(hdr.Value) > 0 {
			return context.WithValue(ctx, CtxTraceID, string(hdr.Value)), nil
		}
	}
	return ctx, nil
}

func (h LoggingHook) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if err == nil || h.L == nil {
		return
	}
	h.L.Warn("kafka handle attempt failed",
		applogger.String("topic", km.Topic),
		applogger.Int("partition", km.Partition),
		applogger.Any("offset", km.Offset),
		applogger.String("trace_id", TraceID(ctx)),
		applogger.Error(err),
	)
}
