package server

import (
	"time"

	"github.com/crazyfrankie/grpcbus/peer"
	"github.com/crazyfrankie/grpcbus/stats"
)

const (
	defaultDialTimeout = 5 * time.Second
)

type serverOption struct {
	// callTimeout bounds every backend call, zero means no deadline
	callTimeout time.Duration
	// dialTimeout bounds endpoint resolution and stub creation
	dialTimeout  time.Duration
	statsHandler stats.Handler
	peer         *peer.Peer
}

func defaultServerOption() *serverOption {
	return &serverOption{
		dialTimeout: defaultDialTimeout,
	}
}

type Option func(*serverOption)

// WithCallTimeout sets a deadline on every backend call. A call that runs past
// it fails with codes.DeadlineExceeded.
func WithCallTimeout(d time.Duration) Option {
	return func(opt *serverOption) {
		opt.callTimeout = d
	}
}

// WithDialTimeout bounds the creation of a backend connection.
func WithDialTimeout(d time.Duration) Option {
	return func(opt *serverOption) {
		opt.dialTimeout = d
	}
}

// WithStatsHandler reports call and connection lifecycles to h.
func WithStatsHandler(h stats.Handler) Option {
	return func(opt *serverOption) {
		opt.statsHandler = h
	}
}

// WithPeer names the client the server serves. It is logged with failures and
// attached to the context of every backend call and connection.
func WithPeer(p *peer.Peer) Option {
	return func(opt *serverOption) {
		opt.peer = p
	}
}
