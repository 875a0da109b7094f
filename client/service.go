package client

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/protobuf/proto"

	"github.com/crazyfrankie/grpcbus/metadata"
	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
)

// PendingService resolves once the server answers the service creation.
type PendingService struct {
	done chan struct{}
	svc  *Service
	err  error
}

// Done is closed once the outcome is known.
func (p *PendingService) Done() <-chan struct{} { return p.done }

// Wait blocks until the service is ready or refused, or ctx ends. A refusal is
// a *CreateError.
func (p *PendingService) Wait(ctx context.Context) (*Service, error) {
	select {
	case <-p.done:
		return p.svc, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Service is a remote schema service bound to one endpoint.
type Service struct {
	c       *Client
	id      int32
	info    protocol.ServiceInfo
	desc    *schema.Service
	stubs   []*Stub
	byName  map[string]*Stub
	pending *PendingService

	calls      map[int32]*Call
	nextCallID int32

	resolved       bool
	serverReleased bool
	disposed       bool
}

func newService(c *Client, id int32, info protocol.ServiceInfo, desc *schema.Service) *Service {
	s := &Service{
		c:          c,
		id:         id,
		info:       info,
		desc:       desc,
		byName:     make(map[string]*Stub),
		pending:    &PendingService{done: make(chan struct{})},
		calls:      make(map[int32]*Call),
		nextCallID: 1,
	}
	for _, m := range desc.Methods() {
		st := &Stub{svc: s, method: m}
		s.stubs = append(s.stubs, st)
		s.byName[m.StubName()] = st
	}
	return s
}

func (s *Service) ID() int32                  { return s.id }
func (s *Service) Info() protocol.ServiceInfo { return s.info }
func (s *Service) Descriptor() *schema.Service { return s.desc }

// Stubs returns one stub per method, in declaration order.
func (s *Service) Stubs() []*Stub { return s.stubs }

// Stub looks a stub up by its lower-camel-cased name, e.g. "sayHello", or
// by the declared method name.
func (s *Service) Stub(name string) (*Stub, bool) {
	if st, ok := s.byName[name]; ok {
		return st, true
	}
	if m, ok := s.desc.Method(name); ok {
		return s.byName[m.StubName()], true
	}
	return nil, false
}

// Call starts a call on the stub called name. See Stub.Call.
func (s *Service) Call(name string, arg proto.Message, cb Callback, opts ...CallOption) (*Call, error) {
	st, ok := s.Stub(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchMethod, name)
	}
	return st.Call(arg, cb, opts...)
}

// Invoke runs a unary call and waits for its response.
func (s *Service) Invoke(ctx context.Context, name string, arg proto.Message, opts ...CallOption) (proto.Message, error) {
	type result struct {
		resp proto.Message
		err  error
	}
	ch := make(chan result, 1)

	call, err := s.Call(name, arg, func(resp proto.Message, err error) {
		ch <- result{resp, err}
	}, opts...)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		call.Terminate()
		return nil, ctx.Err()
	}
}

// End terminates every call of the service and releases it.
func (s *Service) End() {
	s.c.locked(s.dispose)
}

func (s *Service) handleCreateResult(m *protocol.CreateServiceResult) {
	if s.resolved {
		return
	}
	if m.Result == protocol.Success {
		s.resolve(s, nil)
		return
	}
	s.resolve(nil, &CreateError{Code: m.Result, Details: m.ErrorDetails})
	// The server holds nothing for a refused id.
	s.serverReleased = true
	s.dispose()
}

func (s *Service) resolve(svc *Service, err error) {
	s.resolved = true
	s.pending.svc = svc
	s.pending.err = err
	close(s.pending.done)
}

// dispose terminates the calls in id order and, unless the server released
// the service, sends a release. The client must be locked.
func (s *Service) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true

	ids := make([]int32, 0, len(s.calls))
	for id := range s.calls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s.calls[id].terminate()
	}

	if !s.serverReleased {
		s.c.post(&protocol.ClientMessage{ServiceRelease: &protocol.ReleaseService{ServiceID: s.id}})
	}
	if !s.resolved {
		s.resolve(nil, ErrServiceClosed)
	}
	delete(s.c.services, s.id)
}

// Stub starts calls of one method.
type Stub struct {
	svc    *Service
	method *schema.Method
}

// Name is the method name lower-camel-cased.
func (st *Stub) Name() string            { return st.method.StubName() }
func (st *Stub) Method() *schema.Method { return st.method }

// Call starts a call. Methods without a request stream take an argument,
// methods with one must not. Methods without a response stream take a
// callback, methods with one must not and report through Call.On instead.
func (st *Stub) Call(arg proto.Message, cb Callback, opts ...CallOption) (*Call, error) {
	m := st.method
	switch {
	case m.ClientStreaming() && arg != nil:
		return nil, ErrArgumentForRequestStream
	case !m.ClientStreaming() && arg == nil:
		return nil, ErrArgumentRequired
	case m.ServerStreaming() && cb != nil:
		return nil, ErrCallbackForResponseStream
	case !m.ServerStreaming() && cb == nil:
		return nil, ErrCallbackRequired
	}

	var bin []byte
	if arg != nil {
		var err error
		if bin, err = m.Input().Encode(arg); err != nil {
			return nil, err
		}
	}

	opt := &callOption{}
	for _, o := range opts {
		o(opt)
	}

	s := st.svc
	var (
		call *Call
		err  error
	)
	s.c.locked(func() {
		if s.disposed {
			err = ErrServiceClosed
			return
		}

		id := s.nextCallID
		s.nextCallID++
		s.c.callSeq++
		call = newCall(s, id, s.c.callSeq, m, cb)
		for kind, ls := range opt.listeners {
			call.listeners[kind] = append(call.listeners[kind], ls...)
		}
		s.calls[id] = call

		s.c.post(&protocol.ClientMessage{CallCreate: &protocol.CreateCall{
			ServiceID: s.id,
			CallID:    id,
			Info: &protocol.CallInfo{
				MethodID:    m.Name(),
				BinArgument: bin,
				Metadata:    metadata.Join(s.c.opt.metadata, opt.metadata),
			},
		}})
	})
	if err != nil {
		return nil, err
	}
	return call, nil
}
