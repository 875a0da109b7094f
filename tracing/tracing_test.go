package tracing

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	grpcmd "google.golang.org/grpc/metadata"

	"github.com/crazyfrankie/grpcbus/peer"
	"github.com/crazyfrankie/grpcbus/stats"
)

const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func newHandler(opts ...Option) *Handler {
	return NewHandler(append([]Option{
		WithPropagators(propagation.TraceContext{}),
		WithTracerProvider(noop.NewTracerProvider()),
	}, opts...)...)
}

func info() *stats.CallTagInfo {
	return &stats.CallTagInfo{ServiceID: 1, CallID: 2, FullMethodName: "/mock.Greeter/SayHello"}
}

func TestTagCallPropagates(t *testing.T) {
	h := newHandler()

	ctx := grpcmd.NewOutgoingContext(context.Background(), grpcmd.Pairs("traceparent", parent, "x-app", "bus"))
	ctx = h.TagCall(ctx, info())

	md, ok := grpcmd.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{parent}, md.Get("traceparent"))
	assert.Equal(t, []string{"bus"}, md.Get("x-app"))

	sc := trace.SpanContextFromContext(ctx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	assert.NotPanics(t, func() {
		now := time.Now()
		h.HandleCall(ctx, &stats.Begin{BeginTime: now})
		h.HandleCall(ctx, &stats.OutPayload{Length: 3, SentTime: now})
		h.HandleCall(ctx, &stats.InPayload{Length: 5, RecvTime: now})
		h.HandleCall(ctx, &stats.End{BeginTime: now, EndTime: time.Now(), Error: errors.New("boom")})
	})
}

func TestSpanRecorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	h := newHandler(WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))))

	p := &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000}}
	ctx := peer.NewContext(context.Background(), p)
	ctx = grpcmd.NewOutgoingContext(ctx, grpcmd.MD{})
	ctx = h.TagCall(ctx, info())

	md, _ := grpcmd.FromOutgoingContext(ctx)
	assert.Len(t, md.Get("traceparent"), 1)

	now := time.Now()
	h.HandleCall(ctx, &stats.End{BeginTime: now, EndTime: now})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "mock.Greeter/SayHello", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Contains(t, spans[0].Attributes(), attribute.String("grpcbus.peer", "10.0.0.1:4000"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("grpcbus.service_id", 1))
}

func TestTagCallWithoutMetadata(t *testing.T) {
	h := newHandler()

	ctx := h.TagCall(context.Background(), info())
	md, _ := grpcmd.FromOutgoingContext(ctx)
	assert.Empty(t, md.Get("traceparent"))
}

func TestFilteredCall(t *testing.T) {
	h := newHandler(WithFilter(MethodFilter("/mock.Greeter/SayHelloBidiStream")))

	ctx := grpcmd.NewOutgoingContext(context.Background(), grpcmd.Pairs("x-app", "bus"))
	ctx = h.TagCall(ctx, info())

	cc, ok := ctx.Value(callContextKey{}).(*callContext)
	require.True(t, ok)
	assert.False(t, cc.record)
	h.HandleCall(ctx, &stats.InPayload{Length: 1})
	assert.Zero(t, cc.inMessages)
}

func TestFilters(t *testing.T) {
	ctx := context.Background()
	i := info()

	assert.True(t, AcceptAll()(ctx, i))
	assert.True(t, MethodFilter("/mock.Greeter/SayHello")(ctx, i))
	assert.False(t, MethodFilter("/mock.Greeter/Other")(ctx, i))
	assert.True(t, ServicePrefixFilter("mock.")(ctx, i))
	assert.False(t, ServicePrefixFilter("echo.")(ctx, i))
	assert.True(t, Not(ServicePrefixFilter("echo."))(ctx, i))
	assert.True(t, All()(ctx, i))
	assert.True(t, All(ServicePrefixFilter("mock."), MethodFilter("/mock.Greeter/SayHello"))(ctx, i))
	assert.False(t, All(ServicePrefixFilter("mock."), ServicePrefixFilter("echo."))(ctx, i))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/mock.Greeter/SayHello")
	assert.Equal(t, "mock.Greeter", service)
	assert.Equal(t, "SayHello", method)

	service, method = splitFullMethod("SayHello")
	assert.Equal(t, "", service)
	assert.Equal(t, "SayHello", method)
}
