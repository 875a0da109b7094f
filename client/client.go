// Package client exposes the services of a schema as callable handles whose
// calls travel as envelopes to a grpcbus server.
package client

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/internal/serial"
	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
)

// Sender delivers one envelope to the server. It is never called with the
// client locked, so it may call straight into the server.
type Sender func(msg *protocol.ClientMessage)

// Client is the client side of one channel. It is safe for concurrent use.
//
// Envelopes, callbacks and listeners run after the client's lock is
// released, in the order they were produced, so they may call back into the
// client.
type Client struct {
	reg  *schema.Registry
	send Sender
	opt  *clientOption

	effects *serial.Queue

	mu            sync.Mutex
	nextServiceID int32
	// callSeq orders calls across services by creation.
	callSeq  uint64
	services map[int32]*Service
}

// New returns a client resolving services in reg.
func New(reg *schema.Registry, send Sender, opts ...Option) *Client {
	opt := defaultClientOption()
	for _, o := range opts {
		o(opt)
	}

	return &Client{
		reg:           reg,
		send:          send,
		opt:           opt,
		effects:       serial.New("client"),
		nextServiceID: 1,
		services:      make(map[int32]*Service),
	}
}

// locked runs f with the client locked, then runs the effects f produced.
func (c *Client) locked(f func()) {
	c.mu.Lock()
	f()
	c.mu.Unlock()
	c.effects.Flush()
}

// post queues msg for sending. The client must be locked.
func (c *Client) post(msg *protocol.ClientMessage) {
	c.effects.Push(func() { c.send(msg) })
}

// later queues f to run once the client is unlocked.
func (c *Client) later(f func()) {
	c.effects.Push(f)
}

// NewService asks the server to bind a new service id to the schema service
// at path, served at endpoint.
func (c *Client) NewService(path, endpoint string) (*PendingService, error) {
	desc, err := c.reg.Service(path)
	if err != nil {
		return nil, err
	}

	var pending *PendingService
	c.locked(func() {
		id := c.nextServiceID
		c.nextServiceID++

		info := protocol.ServiceInfo{Endpoint: endpoint, ServiceID: path}
		svc := newService(c, id, info, desc)
		c.services[id] = svc
		pending = svc.pending

		c.post(&protocol.ClientMessage{ServiceCreate: &protocol.CreateService{
			ServiceID:   id,
			ServiceInfo: &info,
		}})
	})
	return pending, nil
}

// HandleMessage processes one envelope from the server. Envelopes addressed
// to unknown ids are dropped.
func (c *Client) HandleMessage(msg *protocol.ServerMessage) {
	if msg == nil {
		return
	}
	c.locked(func() {
		if m := msg.ServiceCreate; m != nil {
			if svc, ok := c.service(m.ServiceID, msg); ok {
				svc.handleCreateResult(m)
			}
		}
		if m := msg.ServiceRelease; m != nil {
			// Our own releases are acknowledged after the service is gone,
			// so a known id means the server released it.
			if svc, ok := c.service(m.ServiceID, msg); ok {
				svc.serverReleased = true
				svc.dispose()
			}
		}
		if m := msg.CallCreate; m != nil {
			if call, ok := c.call(m.ServiceID, m.CallID, msg); ok {
				call.handleCreateResult(m)
			}
		}
		if m := msg.CallEvent; m != nil {
			if call, ok := c.call(m.ServiceID, m.CallID, msg); ok {
				call.handleEvent(m)
			}
		}
		if m := msg.CallEnded; m != nil {
			if call, ok := c.call(m.ServiceID, m.CallID, msg); ok {
				call.dispose()
			}
		}
	})
}

func (c *Client) service(id int32, msg *protocol.ServerMessage) (*Service, bool) {
	svc, ok := c.services[id]
	if !ok {
		zap.L().Debug("drop envelope for unknown service", zap.String("kind", msg.Kind()), zap.Int32("service_id", id))
	}
	return svc, ok
}

func (c *Client) call(serviceID, callID int32, msg *protocol.ServerMessage) (*Call, bool) {
	svc, ok := c.service(serviceID, msg)
	if !ok {
		return nil, false
	}
	call, ok := svc.calls[callID]
	if !ok {
		zap.L().Debug("drop envelope for unknown call", zap.String("kind", msg.Kind()),
			zap.Int32("service_id", serviceID), zap.Int32("call_id", callID))
	}
	return call, ok
}

// Reset terminates every call in creation order, then releases every service
// in creation order. Ids are not reused afterwards.
func (c *Client) Reset() {
	c.locked(func() {
		var calls []*Call
		for _, svc := range c.services {
			for _, call := range svc.calls {
				calls = append(calls, call)
			}
		}
		sort.Slice(calls, func(i, j int) bool { return calls[i].seq < calls[j].seq })
		for _, call := range calls {
			call.terminate()
		}

		for _, svc := range c.sortedServices() {
			svc.dispose()
		}
	})
}

// Services returns the live services in creation order.
func (c *Client) Services() []*Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedServices()
}

func (c *Client) sortedServices() []*Service {
	out := make([]*Service, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
