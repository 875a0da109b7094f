package bridge

import (
	"github.com/crazyfrankie/grpcbus/client"
	"github.com/crazyfrankie/grpcbus/server"
	"github.com/crazyfrankie/grpcbus/transport"
)

type hostOption struct {
	serverOptions    []server.Option
	transportOptions []transport.Option
}

type HostOption func(*hostOption)

// WithServerOptions configures the Server created for every connection.
func WithServerOptions(opts ...server.Option) HostOption {
	return func(opt *hostOption) {
		opt.serverOptions = append(opt.serverOptions, opts...)
	}
}

// WithHostTransportOptions configures every accepted connection.
func WithHostTransportOptions(opts ...transport.Option) HostOption {
	return func(opt *hostOption) {
		opt.transportOptions = append(opt.transportOptions, opts...)
	}
}

type dialOption struct {
	clientOptions    []client.Option
	transportOptions []transport.Option
}

type DialOption func(*dialOption)

// WithClientOptions configures the Client of a dialed connection.
func WithClientOptions(opts ...client.Option) DialOption {
	return func(opt *dialOption) {
		opt.clientOptions = append(opt.clientOptions, opts...)
	}
}

// WithTransportOptions configures a dialed connection.
func WithTransportOptions(opts ...transport.Option) DialOption {
	return func(opt *dialOption) {
		opt.transportOptions = append(opt.transportOptions, opts...)
	}
}
