// Package server executes calls received as envelopes from a grpcbus client
// against real backends, and relays the results back as envelopes.
package server

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/backend"
	"github.com/crazyfrankie/grpcbus/internal/serial"
	"github.com/crazyfrankie/grpcbus/peer"
	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
)

var errServiceInfoRequired = errors.New("Service info, service ID must be given")

// Sender delivers one envelope to the client. It is called in the server's
// serialized context, in envelope order, and must not block for long. It may
// call HandleMessage but not Connections.
type Sender func(msg *protocol.ServerMessage)

// Server is the server side of one client channel.
//
// Inbound envelopes, backend events and Dispose run one at a time, in the
// order they arrive, on whichever goroutine is draining the server's queue.
type Server struct {
	reg    *schema.Registry
	dialer backend.Dialer
	send   Sender
	opt    *serverOption

	queue *serial.Queue

	mu       sync.Mutex
	stores   map[int32]*callStore
	pool     *pool
	disposed bool
}

// NewServer returns a server resolving services in reg and dialing backends
// with dialer.
func NewServer(reg *schema.Registry, dialer backend.Dialer, send Sender, opts ...Option) *Server {
	opt := defaultServerOption()
	for _, o := range opts {
		o(opt)
	}

	return &Server{
		reg:    reg,
		dialer: dialer,
		send:   send,
		opt:    opt,
		queue:  serial.New("server"),
		stores: make(map[int32]*callStore),
		pool:   newPool(),
	}
}

// baseContext is the root of every backend call and dial.
func (s *Server) baseContext() context.Context {
	ctx := context.Background()
	if s.opt.peer != nil {
		ctx = peer.NewContext(ctx, s.opt.peer)
	}
	return ctx
}

// HandleMessage processes one envelope from the client. Every populated field
// is handled, in declaration order.
func (s *Server) HandleMessage(msg *protocol.ClientMessage) {
	if msg == nil {
		return
	}
	s.do(func() {
		if s.disposed {
			zap.L().Debug("drop envelope for disposed server", zap.String("kind", msg.Kind()))
			return
		}
		if msg.ServiceCreate != nil {
			s.handleServiceCreate(msg.ServiceCreate)
		}
		if msg.ServiceRelease != nil {
			s.handleServiceRelease(msg.ServiceRelease)
		}
		if msg.CallCreate != nil {
			s.handleCallCreate(msg.CallCreate)
		}
		if msg.CallEnd != nil {
			s.handleCallEnd(msg.CallEnd)
		}
		if msg.CallSend != nil {
			s.handleCallSend(msg.CallSend)
		}
	})
}

// Dispose ends every call and releases every service, notifying the client of
// each, then closes all backend connections. Later envelopes are dropped.
func (s *Server) Dispose() {
	s.do(func() {
		if s.disposed {
			return
		}
		s.disposed = true

		for _, id := range s.serviceIDs() {
			s.releaseService(id)
		}
	})
}

// do runs f in the serialized context with the server locked.
func (s *Server) do(f func()) {
	s.queue.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		f()
	})
}

func (s *Server) serviceIDs() []int32 {
	ids := make([]int32, 0, len(s.stores))
	for id := range s.stores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Server) handleServiceCreate(msg *protocol.CreateService) {
	res := &protocol.CreateServiceResult{ServiceID: msg.ServiceID, Result: protocol.Success}

	if _, ok := s.stores[msg.ServiceID]; msg.ServiceID == 0 || ok {
		res.Result = protocol.InvalidID
		res.ErrorDetails = protocol.DetailsIDInUse
	} else if err := s.createService(msg.ServiceID, msg.ServiceInfo); err != nil {
		res.Result = protocol.BackendError
		res.ErrorDetails = err.Error()
	}

	s.send(&protocol.ServerMessage{ServiceCreate: res})
}

func (s *Server) createService(id int32, info *protocol.ServiceInfo) error {
	if info == nil || info.ServiceID == "" {
		return errServiceInfoRequired
	}

	ctx := s.baseContext()
	if d := s.opt.dialTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	conn := s.pool.get(id, info)
	if err := conn.initStub(ctx, s.reg, s.dialer, s.opt.statsHandler); err != nil {
		conn.release(id, s.opt.statsHandler)
		zap.L().Warn("create service failed",
			zap.Stringer("peer", s.opt.peer),
			zap.Int32("service_id", id),
			zap.String("endpoint", info.Endpoint),
			zap.String("service", info.ServiceID),
			zap.Error(err))
		return err
	}

	s.stores[id] = newCallStore(s, id, conn)
	return nil
}

// handleServiceRelease always answers, so the client may release an id the
// server no longer knows.
func (s *Server) handleServiceRelease(msg *protocol.ReleaseService) {
	if _, ok := s.stores[msg.ServiceID]; ok {
		s.releaseService(msg.ServiceID)
		return
	}
	s.send(&protocol.ServerMessage{ServiceRelease: &protocol.ReleaseServiceResult{ServiceID: msg.ServiceID}})
}

func (s *Server) releaseService(id int32) {
	store := s.stores[id]
	delete(s.stores, id)
	store.dispose()
	s.send(&protocol.ServerMessage{ServiceRelease: &protocol.ReleaseServiceResult{ServiceID: id}})
}

func (s *Server) handleCallCreate(msg *protocol.CreateCall) {
	res := &protocol.CreateCallResult{ServiceID: msg.ServiceID, CallID: msg.CallID, Result: protocol.Success}

	store, ok := s.stores[msg.ServiceID]
	switch {
	case !ok:
		res.Result = protocol.InvalidID
		res.ErrorDetails = protocol.DetailsServiceNotFound
	case msg.CallID == 0 || store.calls[msg.CallID] != nil:
		res.Result = protocol.InvalidID
		res.ErrorDetails = protocol.DetailsIDInUse
	default:
		if err := store.initCall(msg); err != nil {
			res.Result = protocol.BackendError
			res.ErrorDetails = err.Error()
		}
	}

	s.send(&protocol.ServerMessage{CallCreate: res})
}

func (s *Server) lookupCall(serviceID, callID int32) (*call, bool) {
	store, ok := s.stores[serviceID]
	if !ok {
		return nil, false
	}
	c, ok := store.calls[callID]
	return c, ok
}

func (s *Server) handleCallEnd(msg *protocol.EndCall) {
	c, ok := s.lookupCall(msg.ServiceID, msg.CallID)
	if !ok {
		zap.L().Debug("drop callEnd for unknown call", zap.Int32("service_id", msg.ServiceID), zap.Int32("call_id", msg.CallID))
		return
	}
	c.dispose()
}

func (s *Server) handleCallSend(msg *protocol.SendCall) {
	c, ok := s.lookupCall(msg.ServiceID, msg.CallID)
	if !ok {
		zap.L().Debug("drop callSend for unknown call", zap.Int32("service_id", msg.ServiceID), zap.Int32("call_id", msg.CallID))
		return
	}
	c.send(msg)
}

// ConnectionInfo describes one open backend connection.
type ConnectionInfo struct {
	Endpoint   string  `json:"endpoint"`
	Service    string  `json:"service"`
	ServiceIDs []int32 `json:"serviceIds"`
	Calls      int     `json:"calls"`
}

// Connections returns a snapshot of the open backend connections.
func (s *Server) Connections() []ConnectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := s.pool.sorted()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		info := ConnectionInfo{
			Endpoint:   c.key.endpoint,
			Service:    c.key.service,
			ServiceIDs: c.serviceIDs(),
		}
		for _, id := range info.ServiceIDs {
			if store, ok := s.stores[id]; ok {
				info.Calls += len(store.calls)
			}
		}
		out = append(out, info)
	}
	return out
}
