package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(50*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.LessOrEqual(t, backoffWithJitter(0, 0, 1), 50*time.Millisecond)
}

func TestLoggingHookThreadsTraceID(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, err := LoggingHook{}.BeforeHandle(context.Background(), km)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))

	ctx, err = LoggingHook{}.BeforeHandle(context.Background(), kafka.Message{})
	require.NoError(t, err)
	assert.Empty(t, TraceID(ctx))
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(b))

	b, err = encode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))
}

func TestConstructorsRequireBrokers(t *testing.T) {
	_, err := NewProducer()
	require.Error(t, err)
	_, err = NewConsumer(nil)
	require.Error(t, err)
}
