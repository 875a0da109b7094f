package tracing

import (
	"context"
	"strings"

	"github.com/crazyfrankie/grpcbus/stats"
)

// Filter is a predicate used to determine whether a given call should be
// traced. A Filter must be concurrent safe.
type Filter func(ctx context.Context, info *stats.CallTagInfo) bool

// AcceptAll returns a Filter that accepts all calls.
func AcceptAll() Filter {
	return func(context.Context, *stats.CallTagInfo) bool {
		return true
	}
}

// MethodFilter accepts only calls of the given full method names.
func MethodFilter(methods ...string) Filter {
	methodSet := make(map[string]struct{}, len(methods))
	for _, method := range methods {
		methodSet[method] = struct{}{}
	}
	return func(_ context.Context, info *stats.CallTagInfo) bool {
		_, ok := methodSet[info.FullMethodName]
		return ok
	}
}

// ServicePrefixFilter accepts calls whose service path starts with any of the
// given prefixes, e.g. "mock.".
func ServicePrefixFilter(prefixes ...string) Filter {
	return func(_ context.Context, info *stats.CallTagInfo) bool {
		service, _ := splitFullMethod(info.FullMethodName)
		for _, prefix := range prefixes {
			if strings.HasPrefix(service, prefix) {
				return true
			}
		}
		return false
	}
}

// All accepts a call when every f accepts it. All() accepts every call.
func All(fs ...Filter) Filter {
	return func(ctx context.Context, info *stats.CallTagInfo) bool {
		for _, f := range fs {
			if !f(ctx, info) {
				return false
			}
		}
		return true
	}
}

// Not inverts f.
func Not(f Filter) Filter {
	return func(ctx context.Context, info *stats.CallTagInfo) bool {
		return !f(ctx, info)
	}
}

func splitFullMethod(fullMethod string) (service, method string) {
	name := strings.TrimPrefix(fullMethod, "/")
	pos := strings.LastIndex(name, "/")
	if pos < 0 {
		return "", name
	}
	return name[:pos], name[pos+1:]
}
