package client

import "github.com/crazyfrankie/grpcbus/metadata"

type clientOption struct {
	// metadata is sent with every call, before call-specific metadata
	metadata metadata.MD
}

func defaultClientOption() *clientOption {
	return &clientOption{}
}

type Option func(*clientOption)

// WithDefaultMetadata attaches md to every call of the client.
func WithDefaultMetadata(md metadata.MD) Option {
	return func(opt *clientOption) {
		opt.metadata = metadata.Join(opt.metadata, md)
	}
}

type callOption struct {
	metadata  metadata.MD
	listeners map[EventKind][]Listener
}

type CallOption func(*callOption)

// WithMetadata attaches md to one call. The server forwards it to the backend
// as request headers.
func WithMetadata(md metadata.MD) CallOption {
	return func(opt *callOption) {
		opt.metadata = metadata.Join(opt.metadata, md)
	}
}

// WithListener registers l before the call is sent, so no event can be missed
// when envelopes are handled on another goroutine.
func WithListener(kind EventKind, l Listener) CallOption {
	return func(opt *callOption) {
		if opt.listeners == nil {
			opt.listeners = make(map[EventKind][]Listener)
		}
		opt.listeners[kind] = append(opt.listeners[kind], l)
	}
}
