// Package tracing reports proxied calls as OpenTelemetry spans and
// propagates the trace context to backends through call metadata.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope name.
const ScopeName = "github.com/crazyfrankie/grpcbus/tracing"

type config struct {
	filter         Filter
	propagators    propagation.TextMapPropagator
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	messageEvents  bool
}

type Option func(*config)

func newConfig(opts []Option) *config {
	c := &config{
		propagators:    otel.GetTextMapPropagator(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		messageEvents:  true,
	}
	for _, o := range opts {
		o(c)
	}
	if c.filter == nil {
		c.filter = AcceptAll()
	}
	return c
}

// WithPropagators sets the propagators used to read the caller's trace
// context and to pass the call span on to the backend.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(c *config) {
		if p != nil {
			c.propagators = p
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}

// WithFilter selects the calls that get a span.
func WithFilter(f Filter) Option {
	return func(c *config) {
		c.filter = f
	}
}

// WithMessageEvents records one span event per relayed message.
func WithMessageEvents(events bool) Option {
	return func(c *config) {
		c.messageEvents = events
	}
}
