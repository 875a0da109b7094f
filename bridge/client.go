package bridge

import (
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/client"
	"github.com/crazyfrankie/grpcbus/schema"
	"github.com/crazyfrankie/grpcbus/transport"
)

// ClientConn runs a client.Client over one connection.
type ClientConn struct {
	conn   *transport.Conn
	client *client.Client

	done chan struct{}
}

// Dial connects to a Host listening on addr over TCP.
func Dial(ctx context.Context, addr string, reg *schema.Registry, opts ...DialOption) (*ClientConn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClientConn(c, reg, opts...), nil
}

// NewClientConn starts a client over rwc and owns it from then on.
func NewClientConn(rwc io.ReadWriteCloser, reg *schema.Registry, opts ...DialOption) *ClientConn {
	opt := &dialOption{}
	for _, o := range opts {
		o(opt)
	}

	conn := transport.NewConn(rwc, opt.transportOptions...)
	cc := &ClientConn{
		conn:   conn,
		client: client.New(reg, conn.SendClient, opt.clientOptions...),
		done:   make(chan struct{}),
	}
	go cc.readLoop()
	return cc
}

// Client returns the client bound to the connection.
func (cc *ClientConn) Client() *client.Client { return cc.client }

// Done is closed once the connection is gone and every call is disposed.
func (cc *ClientConn) Done() <-chan struct{} { return cc.done }

// Close releases every service and closes the connection.
func (cc *ClientConn) Close() error {
	cc.client.Reset()
	err := cc.conn.Close()
	<-cc.done
	return err
}

func (cc *ClientConn) readLoop() {
	defer close(cc.done)
	for {
		msg, err := cc.conn.RecvServer()
		if err != nil {
			if transport.IsClosed(err) {
				zap.L().Info("bridge: server connection closed")
			} else {
				zap.L().Warn("bridge: failed to read envelope", zap.Error(err))
			}
			cc.conn.Close()
			// Nothing the server held survives the connection.
			cc.client.Reset()
			return
		}
		cc.client.HandleMessage(msg)
	}
}
