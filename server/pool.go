package server

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/backend"
	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
	"github.com/crazyfrankie/grpcbus/stats"
)

// connKey identifies a backend connection. Two schema services at one
// endpoint get separate connections.
type connKey struct {
	endpoint string
	service  string
}

// serviceConn is one backend stub shared by every client service id that
// resolves to the same connKey.
type serviceConn struct {
	key  connKey
	svc  *schema.Service
	stub backend.Stub
	refs map[int32]struct{}

	statsCtx context.Context
	closed   bool
	// onDispose removes the connection from its pool.
	onDispose func()
}

func (c *serviceConn) add(id int32) {
	c.refs[id] = struct{}{}
}

// release drops the reference held by id and destroys the connection once no
// reference is left.
func (c *serviceConn) release(id int32, h stats.Handler) {
	if c.closed {
		return
	}
	delete(c.refs, id)
	if len(c.refs) == 0 {
		c.destroy(h)
	}
}

func (c *serviceConn) destroy(h stats.Handler) {
	c.closed = true
	if c.stub != nil {
		if err := c.stub.Close(); err != nil {
			zap.L().Warn("close backend connection failed",
				zap.String("endpoint", c.key.endpoint),
				zap.String("service", c.key.service),
				zap.Error(err))
		}
		if h != nil {
			h.HandleConn(c.statsCtx, &stats.ConnEnd{EndTime: time.Now()})
		}
		c.stub = nil
	}
	c.onDispose()
}

// initStub resolves the schema service and dials the backend. It is a no-op
// on a connection that already has a stub.
func (c *serviceConn) initStub(ctx context.Context, reg *schema.Registry, dialer backend.Dialer, h stats.Handler) error {
	if c.stub != nil {
		return nil
	}

	svc, err := reg.Service(c.key.service)
	if err != nil {
		return err
	}
	stub, err := dialer.Dial(ctx, c.key.endpoint, svc)
	if err != nil {
		return err
	}
	c.svc = svc
	c.stub = stub

	if h != nil {
		// The tag outlives the dial, so keep the values of ctx but not its deadline.
		c.statsCtx = h.TagConn(context.WithoutCancel(ctx), &stats.ConnTagInfo{
			Endpoint: c.key.endpoint,
			Service:  c.key.service,
		})
		h.HandleConn(c.statsCtx, &stats.ConnBegin{BeginTime: time.Now()})
	}
	return nil
}

func (c *serviceConn) serviceIDs() []int32 {
	ids := make([]int32, 0, len(c.refs))
	for id := range c.refs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// pool hands out serviceConns, creating one on first reference.
type pool struct {
	conns map[connKey]*serviceConn
}

func newPool() *pool {
	return &pool{conns: make(map[connKey]*serviceConn)}
}

// get returns the connection for info with id added to its references.
func (p *pool) get(id int32, info *protocol.ServiceInfo) *serviceConn {
	key := connKey{endpoint: info.Endpoint, service: info.ServiceID}
	c, ok := p.conns[key]
	if !ok {
		c = &serviceConn{key: key, refs: make(map[int32]struct{})}
		c.onDispose = func() {
			if p.conns[key] == c {
				delete(p.conns, key)
			}
		}
		p.conns[key] = c
	}
	c.add(id)
	return c
}

// sorted returns the live connections ordered by endpoint then service.
func (p *pool) sorted() []*serviceConn {
	out := make([]*serviceConn, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.endpoint != out[j].key.endpoint {
			return out[i].key.endpoint < out[j].key.endpoint
		}
		return out[i].key.service < out[j].key.service
	})
	return out
}
