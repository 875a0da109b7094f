// Package discovery maps the endpoints named in service creation requests to
// dialable backend addresses.
package discovery

import (
	"context"
	"errors"
)

var (
	ErrNoServers = errors.New("discovery: no available servers")
)

// Resolver maps an endpoint to an address. An endpoint the resolver does not
// handle is returned unchanged with a nil error.
type Resolver interface {
	Resolve(ctx context.Context, endpoint string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, endpoint string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, endpoint string) (string, error) {
	return f(ctx, endpoint)
}

// Chain applies each resolver in turn, feeding the output of one into the
// next.
func Chain(rs ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, endpoint string) (string, error) {
		addr := endpoint
		for _, r := range rs {
			if r == nil {
				continue
			}
			var err error
			if addr, err = r.Resolve(ctx, addr); err != nil {
				return "", err
			}
		}
		return addr, nil
	})
}
