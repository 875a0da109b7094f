// Package metadata holds the per-call key/value pairs a client attaches to a
// call and the server forwards to the backend.
package metadata

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	grpcmd "google.golang.org/grpc/metadata"
)

// MD maps lowercase keys to one or more values. It travels in
// callCreate.info.metadata.
type MD map[string][]string

// Pairs builds an MD from alternating keys and values. Keys are lowercased
// and repeated keys collect their values in order. Pairs panics if len(kv)
// is odd.
func Pairs(kv ...string) MD {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("metadata: odd number of arguments to Pairs: %d", len(kv)))
	}
	md := make(MD, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k := strings.ToLower(kv[i])
		md[k] = append(md[k], kv[i+1])
	}
	return md
}

// Join merges mds into a new MD. Values of a key keep the order of the mds
// they come from. The result is never nil.
func Join(mds ...MD) MD {
	out := MD{}
	for _, md := range mds {
		for k, v := range md {
			out[k] = append(out[k], v...)
		}
	}
	return out
}

// reserved reports keys a backend call must not carry from a client: HTTP/2
// pseudo headers and the headers the gRPC library sets itself.
func reserved(k string) bool {
	return strings.HasPrefix(k, ":") || strings.HasPrefix(k, "grpc-") ||
		k == "content-type" || k == "te" || k == "user-agent"
}

// NewOutgoingContext attaches md to ctx as outgoing gRPC metadata, so a
// backend call started with the returned context carries it. md comes
// straight off the wire, so keys are lowercased again and reserved keys are
// dropped.
func NewOutgoingContext(ctx context.Context, md MD) context.Context {
	if len(md) == 0 {
		return ctx
	}
	out := make(grpcmd.MD, len(md))
	for k, v := range md {
		key := strings.ToLower(k)
		if reserved(key) {
			zap.L().Debug("drop reserved call metadata", zap.String("key", key))
			continue
		}
		out[key] = append(out[key], v...)
	}
	if len(out) == 0 {
		return ctx
	}
	return grpcmd.NewOutgoingContext(ctx, out)
}
