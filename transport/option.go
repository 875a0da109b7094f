package transport

import "time"

// defaultMaxMessageSize bounds inbound frames when no limit is configured.
const defaultMaxMessageSize = 4 << 20

type transportOpt struct {
	maxMessageSize int
	// readTimeout closes a connection idle for that long, when the underlying
	// stream supports deadlines.
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func defaultTransportOpt() *transportOpt {
	return &transportOpt{maxMessageSize: defaultMaxMessageSize}
}

type Option func(*transportOpt)

// WithMaxMessageSize bounds the size of a received frame body. Zero or less
// removes the bound.
func WithMaxMessageSize(n int) Option {
	return func(opt *transportOpt) {
		opt.maxMessageSize = n
	}
}

// WithReadTimeout fails Recv when no frame arrives within d.
func WithReadTimeout(d time.Duration) Option {
	return func(opt *transportOpt) {
		opt.readTimeout = d
	}
}

// WithWriteTimeout fails a frame write that takes longer than d.
func WithWriteTimeout(d time.Duration) Option {
	return func(opt *transportOpt) {
		opt.writeTimeout = d
	}
}
