package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/crazyfrankie/grpcbus/stats"
)

func TestCollectorCalls(t *testing.T) {
	latency := NewLatency(8)
	c, err := NewCollector(prometheus.NewRegistry(), latency)
	require.NoError(t, err)

	ctx := c.TagCall(context.Background(), &stats.CallTagInfo{ServiceID: 1, CallID: 1, FullMethodName: "/mock.Greeter/SayHello"})
	begin := time.Now()
	c.HandleCall(ctx, &stats.Begin{BeginTime: begin})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.active))

	c.HandleCall(ctx, &stats.OutPayload{Length: 7})
	c.HandleCall(ctx, &stats.InPayload{Length: 5})
	c.HandleCall(ctx, &stats.End{BeginTime: begin, EndTime: begin.Add(20 * time.Millisecond)})

	ctx2 := c.TagCall(context.Background(), &stats.CallTagInfo{ServiceID: 1, CallID: 2, FullMethodName: "/mock.Greeter/SayHello"})
	c.HandleCall(ctx2, &stats.Begin{BeginTime: begin})
	c.HandleCall(ctx2, &stats.End{BeginTime: begin, EndTime: begin.Add(10 * time.Millisecond), Error: status.Error(codes.Unavailable, "down")})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.started.WithLabelValues("/mock.Greeter/SayHello")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("/mock.Greeter/SayHello", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("/mock.Greeter/SayHello", "Unavailable")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.payloads.WithLabelValues("out")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.payloads.WithLabelValues("in")))

	s := latency.Summary()
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 15.0, s.Mean, 0.001)
	assert.InDelta(t, 10.0, s.Min, 0.001)
	assert.InDelta(t, 20.0, s.Max, 0.001)
}

func TestCollectorConns(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	ctx := c.TagConn(context.Background(), &stats.ConnTagInfo{Endpoint: "localhost:1", Service: "mock.Greeter"})
	info, ok := stats.ConnTag(ctx)
	require.True(t, ok)
	assert.Equal(t, "mock.Greeter", info.Service)

	c.HandleConn(ctx, &stats.ConnBegin{})
	c.HandleConn(ctx, &stats.ConnBegin{})
	c.HandleConn(ctx, &stats.ConnEnd{})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conns))
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg, nil)
	require.NoError(t, err)
	_, err = NewCollector(reg, nil)
	assert.Error(t, err)
}

func TestLatencyWindow(t *testing.T) {
	l := NewLatency(3)
	assert.Equal(t, Summary{}, l.Summary())

	for _, ms := range []int{1, 2, 3, 4} {
		l.Add(time.Duration(ms) * time.Millisecond)
	}

	s := l.Summary()
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 2.0, s.Min, 0.001)
	assert.InDelta(t, 4.0, s.Max, 0.001)
	assert.InDelta(t, 3.0, s.Median, 0.001)
}
