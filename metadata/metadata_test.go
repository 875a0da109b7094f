package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcmd "google.golang.org/grpc/metadata"
)

func TestPairsLowercasesKeys(t *testing.T) {
	md := Pairs("X-Trace", "a", "x-trace", "b", "User", "c")
	assert.Equal(t, MD{"x-trace": {"a", "b"}, "user": {"c"}}, md)
}

func TestPairsPanicsOnOddInput(t *testing.T) {
	assert.Panics(t, func() { Pairs("k") })
}

func TestJoinKeepsOrder(t *testing.T) {
	md := Join(Pairs("k", "1"), nil, Pairs("k", "2"))
	assert.Equal(t, MD{"k": {"1", "2"}}, md)
	assert.NotNil(t, Join())
}

func TestNewOutgoingContext(t *testing.T) {
	ctx := NewOutgoingContext(context.Background(), MD{"Authorization-Hint": {"x"}})
	out, ok := grpcmd.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, out.Get("authorization-hint"))

	plain := context.Background()
	assert.Equal(t, plain, NewOutgoingContext(plain, nil))
}

func TestNewOutgoingContextDropsReservedKeys(t *testing.T) {
	ctx := NewOutgoingContext(context.Background(), MD{
		":authority":   {"evil"},
		"grpc-timeout": {"1S"},
		"Content-Type": {"text/plain"},
		"x-app":        {"bus"},
	})
	out, ok := grpcmd.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, grpcmd.MD{"x-app": {"bus"}}, out)

	plain := context.Background()
	assert.Equal(t, plain, NewOutgoingContext(plain, MD{"grpc-status": {"0"}}))
}
