package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcmd "google.golang.org/grpc/metadata"

	"github.com/crazyfrankie/grpcbus/config"
	"github.com/crazyfrankie/grpcbus/stats"
)

func TestNewTracing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spans.json")
	h, shutdown, err := newTracing(config.Tracing{
		Enabled:        true,
		Output:         out,
		SampleRatio:    1,
		Services:       []string{"mock."},
		ExcludeMethods: []string{"/mock.Greeter/SayHelloBidiStream"},
	})
	require.NoError(t, err)

	call := func(method string) []string {
		ctx := grpcmd.NewOutgoingContext(context.Background(), grpcmd.MD{})
		ctx = h.TagCall(ctx, &stats.CallTagInfo{ServiceID: 1, CallID: 1, FullMethodName: method})
		now := time.Now()
		h.HandleCall(ctx, &stats.End{BeginTime: now, EndTime: now})
		md, _ := grpcmd.FromOutgoingContext(ctx)
		return md.Get("traceparent")
	}

	assert.Len(t, call("/mock.Greeter/SayHello"), 1)
	assert.Empty(t, call("/mock.Greeter/SayHelloBidiStream"))
	assert.Empty(t, call("/other.Echo/Echo"))

	require.NoError(t, shutdown(context.Background()))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mock.Greeter/SayHello")
	assert.NotContains(t, string(data), "SayHelloBidiStream")
	assert.NotContains(t, string(data), "other.Echo")
}

func TestNewTracingBadOutput(t *testing.T) {
	_, _, err := newTracing(config.Tracing{Output: filepath.Join(t.TempDir(), "missing", "spans.json"), SampleRatio: 1})
	assert.Error(t, err)
}
