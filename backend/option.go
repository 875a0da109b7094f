package backend

import (
	"google.golang.org/grpc"

	"github.com/crazyfrankie/grpcbus/discovery"
)

type dialOption struct {
	dialOptions []grpc.DialOption
	resolver    discovery.Resolver
}

func defaultDialOption() *dialOption {
	return &dialOption{}
}

type Option func(*dialOption)

// WithDialOptions appends options passed to grpc.NewClient.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(opt *dialOption) {
		opt.dialOptions = append(opt.dialOptions, opts...)
	}
}

// WithResolver maps endpoints to dial targets before dialing.
func WithResolver(r discovery.Resolver) Option {
	return func(opt *dialOption) {
		opt.resolver = r
	}
}
