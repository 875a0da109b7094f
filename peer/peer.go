// Package peer describes the remote end of a bridge connection.
package peer

import (
	"context"
	"net"
)

// Peer holds the addresses of a connection. Either may be nil when the
// connection is not a network connection, e.g. a pipe.
type Peer struct {
	Addr      net.Addr
	LocalAddr net.Addr
}

func (p *Peer) String() string {
	if p == nil || p.Addr == nil {
		return "<local>"
	}
	return p.Addr.String()
}

type addressed interface {
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// FromConn returns the addresses of c if it has any.
func FromConn(c any) *Peer {
	a, ok := c.(addressed)
	if !ok {
		return &Peer{}
	}
	return &Peer{Addr: a.RemoteAddr(), LocalAddr: a.LocalAddr()}
}

type peerKey struct{}

// NewContext creates a new context with peer information attached.
func NewContext(ctx context.Context, p *Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// FromContext returns the peer information in ctx if it exists.
func FromContext(ctx context.Context) (p *Peer, ok bool) {
	p, ok = ctx.Value(peerKey{}).(*Peer)
	return
}
