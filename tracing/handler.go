package tracing

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/crazyfrankie/grpcbus/peer"
	"github.com/crazyfrankie/grpcbus/stats"
)

var (
	rpcSystemKey  = attribute.Key("rpc.system")
	rpcServiceKey = attribute.Key("rpc.service")
	rpcMethodKey  = attribute.Key("rpc.method")
	rpcCodeKey    = attribute.Key("rpc.grpc.status_code")
	serviceIDKey  = attribute.Key("grpcbus.service_id")
	callIDKey     = attribute.Key("grpcbus.call_id")
	endpointKey   = attribute.Key("grpcbus.endpoint")
	peerKey       = attribute.Key("grpcbus.peer")
	msgTypeKey    = attribute.Key("rpc.message.type")
	msgIDKey      = attribute.Key("rpc.message.id")
	msgSizeKey    = attribute.Key("rpc.message.uncompressed_size")
)

type callContextKey struct{}

type callContext struct {
	inMessages  int64
	outMessages int64
	metricAttrs []attribute.KeyValue
	record      bool
}

// Handler implements stats.Handler. Each call gets a client span, since the
// server side of a bridge is the gRPC client of the backend.
type Handler struct {
	*config
	tracer trace.Tracer

	duration metric.Float64Histogram
	inSize   metric.Int64Histogram
	outSize  metric.Int64Histogram
}

var _ stats.Handler = (*Handler)(nil)

func NewHandler(opts ...Option) *Handler {
	c := newConfig(opts)
	h := &Handler{config: c}

	h.tracer = c.tracerProvider.Tracer(ScopeName)
	meter := c.meterProvider.Meter(ScopeName)

	var err error
	if h.duration, err = meter.Float64Histogram(
		"grpcbus.call.duration",
		metric.WithDescription("Measures the duration of proxied calls."),
		metric.WithUnit("ms"),
	); err != nil {
		otel.Handle(err)
	}
	if h.inSize, err = meter.Int64Histogram(
		"grpcbus.call.response.size",
		metric.WithDescription("Measures the size of backend response messages."),
		metric.WithUnit("By"),
	); err != nil {
		otel.Handle(err)
	}
	if h.outSize, err = meter.Int64Histogram(
		"grpcbus.call.request.size",
		metric.WithDescription("Measures the size of request messages written to the backend."),
		metric.WithUnit("By"),
	); err != nil {
		otel.Handle(err)
	}
	return h
}

// TagCall starts the call span as a child of the trace context found in the
// call metadata, and forwards the span to the backend.
func (h *Handler) TagCall(ctx context.Context, info *stats.CallTagInfo) context.Context {
	ctx = extract(ctx, h.propagators)

	service, method := splitFullMethod(info.FullMethodName)
	attrs := []attribute.KeyValue{
		rpcSystemKey.String("grpc"),
		rpcServiceKey.String(service),
		rpcMethodKey.String(method),
	}

	cc := &callContext{metricAttrs: attrs, record: h.filter(ctx, info)}
	if cc.record {
		spanAttrs := append([]attribute.KeyValue{
			serviceIDKey.Int64(int64(info.ServiceID)),
			callIDKey.Int64(int64(info.CallID)),
		}, attrs...)
		if p, ok := peer.FromContext(ctx); ok {
			spanAttrs = append(spanAttrs, peerKey.String(p.String()))
		}
		ctx, _ = h.tracer.Start(ctx, service+"/"+method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(spanAttrs...),
		)
		ctx = inject(ctx, h.propagators)
	}
	return context.WithValue(ctx, callContextKey{}, cc)
}

func (h *Handler) HandleCall(ctx context.Context, s stats.CallStats) {
	cc, _ := ctx.Value(callContextKey{}).(*callContext)
	if cc != nil && !cc.record {
		return
	}
	span := trace.SpanFromContext(ctx)

	switch s := s.(type) {
	case *stats.InPayload:
		var id int64
		if cc != nil {
			id = atomic.AddInt64(&cc.inMessages, 1)
			h.inSize.Record(ctx, int64(s.Length), metric.WithAttributes(cc.metricAttrs...))
		}
		if h.messageEvents && span.IsRecording() {
			span.AddEvent("message", trace.WithAttributes(
				msgTypeKey.String("RECEIVED"), msgIDKey.Int64(id), msgSizeKey.Int(s.Length)))
		}
	case *stats.OutPayload:
		var id int64
		if cc != nil {
			id = atomic.AddInt64(&cc.outMessages, 1)
			h.outSize.Record(ctx, int64(s.Length), metric.WithAttributes(cc.metricAttrs...))
		}
		if h.messageEvents && span.IsRecording() {
			span.AddEvent("message", trace.WithAttributes(
				msgTypeKey.String("SENT"), msgIDKey.Int64(id), msgSizeKey.Int(s.Length)))
		}
	case *stats.End:
		if cc != nil {
			elapsed := s.EndTime.Sub(s.BeginTime)
			h.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(cc.metricAttrs...))
		}
		if span.IsRecording() {
			span.SetAttributes(rpcCodeKey.Int64(int64(grpcstatus.Code(s.Error))))
			if s.Error != nil {
				span.RecordError(s.Error)
				span.SetStatus(codes.Error, grpcstatus.Convert(s.Error).Message())
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}
		span.End()
	}
}

// TagConn records the backend of a connection on its context.
func (h *Handler) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	return stats.WithConnTag(ctx, info)
}

// HandleConn adds connection lifecycle events to the current span, if any.
func (h *Handler) HandleConn(ctx context.Context, s stats.ConnStats) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	info, _ := stats.ConnTag(ctx)
	var attrs []attribute.KeyValue
	if info != nil {
		attrs = append(attrs, endpointKey.String(info.Endpoint), rpcServiceKey.String(info.Service))
	}
	if p, ok := peer.FromContext(ctx); ok {
		attrs = append(attrs, peerKey.String(p.String()))
	}
	switch s.(type) {
	case *stats.ConnBegin:
		span.AddEvent("backend connected", trace.WithAttributes(attrs...))
	case *stats.ConnEnd:
		span.AddEvent("backend closed", trace.WithAttributes(attrs...))
	}
}
