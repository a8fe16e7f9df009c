package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "scriptorium"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	publishes     *prom.CounterVec
	retries       prom.Counter
	roundTrip     *prom.HistogramVec
	gap           *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of generate, publish and qc stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.publishes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "record_publishes_total",
			Help:      "Record transmissions by kind and outcome",
		}, []string{"kind", "outcome"})
		pr.retries = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_retries_total",
			Help:      "Record transmissions retried after a transient failure",
		})
		pr.roundTrip = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_round_trip_seconds",
			Help:      "Relay request latency by operation",
			Buckets:   prom.DefBuckets,
		}, []string{"op"})
		pr.gap = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_records",
			Help:      "Records found missing, outdated or still missing by the last reconcile",
		}, []string{"state"})
		reg.MustRegister(pr.stageDuration, pr.stageResults, pr.publishes, pr.retries, pr.roundTrip, pr.gap)
	})
	return pr
}

// Registry returns the registry the metrics were registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRecordPublish(kind int, outcome PublishOutcome) {
	if p == nil || p.publishes == nil {
		return
	}
	p.publishes.WithLabelValues(strconv.Itoa(kind), string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncPublishRetry() {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.Inc()
}

func (p *PrometheusRecorder) ObserveRelayRoundTrip(op string, d time.Duration) {
	if p == nil || p.roundTrip == nil {
		return
	}
	p.roundTrip.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetReconcileGap(missing, outdated, stillMissing int) {
	if p == nil || p.gap == nil {
		return
	}
	p.gap.WithLabelValues("missing").Set(float64(missing))
	p.gap.WithLabelValues("outdated").Set(float64(outdated))
	p.gap.WithLabelValues("still_missing").Set(float64(stillMissing))
}
