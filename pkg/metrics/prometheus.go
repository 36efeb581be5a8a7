package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals     *prometheus.CounterVec
	legs        *prometheus.CounterVec
	stake       *prometheus.HistogramVec
	dailyProfit prometheus.Gauge
	halted      prometheus.Gauge
	chainActive prometheus.Gauge
	latency     *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirrortrade_signals_total",
				Help: "Signals seen by the scheduler, by admission outcome",
			},
			[]string{"outcome"},
		),
		legs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirrortrade_legs_total",
				Help: "Executed chain legs by leg and result",
			},
			[]string{"leg", "result"},
		),
		stake: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirrortrade_leg_stake",
				Help:    "Stake per executed leg",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
			},
			[]string{"leg"},
		),
		dailyProfit: f.NewGauge(prometheus.GaugeOpts{
			Name: "mirrortrade_daily_profit",
			Help: "Cumulative profit for the current trading day",
		}),
		halted: f.NewGauge(prometheus.GaugeOpts{
			Name: "mirrortrade_halted",
			Help: "1 when the daily stop loss has halted trading",
		}),
		chainActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "mirrortrade_chain_active",
			Help: "1 while an execution chain holds the slot",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirrortrade_executor_duration_seconds",
				Help:    "Time from submit to settled outcome",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 960},
			},
			[]string{"executor"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirrortrade_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordSignal counts a signal by outcome.
func (r *Recorder) RecordSignal(outcome string) {
	r.signals.WithLabelValues(outcome).Inc()
}

// RecordLeg counts an executed leg and observes its stake.
func (r *Recorder) RecordLeg(leg, result string, stake float64) {
	r.legs.WithLabelValues(leg, result).Inc()
	r.stake.WithLabelValues(leg).Observe(stake)
}

func (r *Recorder) RecordDailyProfit(profit float64, halted bool) {
	r.dailyProfit.Set(profit)
	r.halted.Set(boolValue(halted))
}

func (r *Recorder) RecordChainActive(active bool) {
	r.chainActive.Set(boolValue(active))
}

// RecordExecutorLatency records submit latency in seconds.
func (r *Recorder) RecordExecutorLatency(executor string, seconds float64) {
	r.latency.WithLabelValues(executor).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
