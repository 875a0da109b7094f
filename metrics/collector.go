// Package metrics records call and backend connection statistics with
// Prometheus and keeps a rolling latency summary.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/status"

	"github.com/crazyfrankie/grpcbus/stats"
)

const namespace = "grpcbus"

// Collector is a stats.Handler that exports Prometheus metrics.
type Collector struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	active   prometheus.Gauge
	conns    prometheus.Gauge
	payloads *prometheus.CounterVec
	duration *prometheus.HistogramVec

	latency *Latency
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer, latency *Latency) (*Collector, error) {
	c := &Collector{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_started_total",
			Help:      "Calls started on a backend.",
		}, []string{"method"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_finished_total",
			Help:      "Calls finished, by status code.",
		}, []string{"method", "code"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Calls currently in flight.",
		}),
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_connections",
			Help:      "Open backend connections.",
		}),
		payloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Encoded message bytes exchanged with backends.",
		}, []string{"direction"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from call start to call end.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		latency: latency,
	}

	for _, col := range []prometheus.Collector{c.started, c.finished, c.active, c.conns, c.payloads, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) TagCall(ctx context.Context, info *stats.CallTagInfo) context.Context {
	return stats.WithCallTag(ctx, info)
}

func (c *Collector) HandleCall(ctx context.Context, s stats.CallStats) {
	method := "unknown"
	if info, ok := stats.CallTag(ctx); ok {
		method = info.FullMethodName
	}

	switch s := s.(type) {
	case *stats.Begin:
		c.started.WithLabelValues(method).Inc()
		c.active.Inc()
	case *stats.InPayload:
		c.payloads.WithLabelValues("in").Add(float64(s.Length))
	case *stats.OutPayload:
		c.payloads.WithLabelValues("out").Add(float64(s.Length))
	case *stats.End:
		c.active.Dec()
		c.finished.WithLabelValues(method, status.Code(s.Error).String()).Inc()
		d := s.EndTime.Sub(s.BeginTime)
		c.duration.WithLabelValues(method).Observe(d.Seconds())
		if c.latency != nil {
			c.latency.Add(d)
		}
	}
}

func (c *Collector) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	return stats.WithConnTag(ctx, info)
}

func (c *Collector) HandleConn(_ context.Context, s stats.ConnStats) {
	switch s.(type) {
	case *stats.ConnBegin:
		c.conns.Inc()
	case *stats.ConnEnd:
		c.conns.Dec()
	}
}

// Latency returns the latency window fed by this collector, possibly nil.
func (c *Collector) Latency() *Latency { return c.latency }
