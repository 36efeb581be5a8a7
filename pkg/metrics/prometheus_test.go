package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordSignal("accepted")
	r.RecordSignal("accepted")
	r.RecordSignal("duplicate")
	r.RecordLeg("BASE", "LOSS", 1)
	r.RecordLeg("RE1", "WIN", 2.2)
	r.RecordDailyProfit(-3.5, true)
	r.RecordChainActive(true)
	r.RecordExecutorLatency("paper", 0.4)
	r.RecordError("journal_write")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signals.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.legs.WithLabelValues("RE1", "WIN")))
	assert.Equal(t, -3.5, testutil.ToFloat64(r.dailyProfit))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.halted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.chainActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("journal_write")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stake))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))

	r.RecordChainActive(false)
	r.RecordDailyProfit(0, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.chainActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.halted))
}
