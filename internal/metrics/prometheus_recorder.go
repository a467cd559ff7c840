package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "devbundle"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	compileDuration   prom.Histogram
	compileOutcomes   *prom.CounterVec
	buildStatus       prom.Gauge
	liveReloadClients prom.Gauge
	liveReloadPushes  prom.Counter
}

// NewPrometheusRecorder constructs and registers the metrics on reg (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.compileDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Duration of development bundle compilations",
			Buckets:   prom.DefBuckets,
		})
		pr.compileOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_outcomes_total",
			Help:      "Compilations by outcome",
		}, []string{"outcome"})
		pr.buildStatus = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "build_status_done",
			Help:      "1 when the last compilation has settled, 0 while pending",
		})
		pr.liveReloadClients = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		})
		pr.liveReloadPushes = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_broadcasts_total",
			Help:      "Live-reload notifications sent",
		})
		reg.MustRegister(pr.compileDuration, pr.compileOutcomes, pr.buildStatus, pr.liveReloadClients, pr.liveReloadPushes)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveCompileDuration(d time.Duration) {
	if p == nil || p.compileDuration == nil {
		return
	}
	p.compileDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCompileOutcome(outcome Outcome) {
	if p == nil || p.compileOutcomes == nil {
		return
	}
	p.compileOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetBuildStatus(done bool) {
	if p == nil || p.buildStatus == nil {
		return
	}
	if done {
		p.buildStatus.Set(1)
		return
	}
	p.buildStatus.Set(0)
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil || p.liveReloadClients == nil {
		return
	}
	p.liveReloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncLiveReloadBroadcast() {
	if p == nil || p.liveReloadPushes == nil {
		return
	}
	p.liveReloadPushes.Inc()
}
