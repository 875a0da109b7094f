package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	grpcmd "google.golang.org/grpc/metadata"
)

// metadataCarrier adapts gRPC metadata to a propagation.TextMapCarrier.
type metadataCarrier grpcmd.MD

var _ propagation.TextMapCarrier = metadataCarrier{}

func (c metadataCarrier) Get(key string) string {
	values := c[strings.ToLower(key)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c metadataCarrier) Set(key, value string) {
	c[strings.ToLower(key)] = []string{value}
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// extract reads the trace context the caller put in the call metadata.
func extract(ctx context.Context, p propagation.TextMapPropagator) context.Context {
	md, ok := grpcmd.FromOutgoingContext(ctx)
	if !ok {
		return ctx
	}
	return p.Extract(ctx, metadataCarrier(md))
}

// inject replaces the trace context in the outgoing metadata with the one in
// ctx.
func inject(ctx context.Context, p propagation.TextMapPropagator) context.Context {
	md, _ := grpcmd.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = grpcmd.MD{}
	}
	p.Inject(ctx, metadataCarrier(md))
	return grpcmd.NewOutgoingContext(ctx, md)
}
