package server

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/crazyfrankie/grpcbus/backend"
	"github.com/crazyfrankie/grpcbus/internal/mock"
	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
	"github.com/crazyfrankie/grpcbus/stats"
)

// testRegistry holds mock.Greeter plus echo.Echo, a second service used to
// check that connections are keyed by service as well as endpoint.
func testRegistry() *schema.Registry {
	echo := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("echo.proto"),
		Package: proto.String("echo"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Msg")},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("Echo"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{Name: proto.String("Echo"), InputType: proto.String(".echo.Msg"), OutputType: proto.String(".echo.Msg")},
				},
			},
		},
	}
	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{mock.FileDescriptor(), echo},
	})
	if err != nil {
		panic(err)
	}
	reg, err := schema.NewRegistry(files)
	if err != nil {
		panic(err)
	}
	return reg
}

type fakeDialer struct {
	stubs []*fakeStub
	err   error
	// onStart runs inside every call initiator of the stubs it dials.
	onStart func(*fakeCall)
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string, svc *schema.Service) (backend.Stub, error) {
	if d.err != nil {
		return nil, d.err
	}
	st := &fakeStub{endpoint: endpoint, service: svc.FullName(), onStart: d.onStart}
	d.stubs = append(d.stubs, st)
	return st, nil
}

type fakeStub struct {
	endpoint string
	service  string
	closed   int
	calls    []*fakeCall
	startErr error
	onStart  func(*fakeCall)
}

func (s *fakeStub) start(ctx context.Context, m *schema.Method, arg []byte, done func([]byte, error), obs backend.Observer) (backend.Handle, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	c := &fakeCall{ctx: ctx, method: m, arg: arg, done: done, obs: obs}
	s.calls = append(s.calls, c)
	if s.onStart != nil {
		s.onStart(c)
	}
	return c, nil
}

func (s *fakeStub) Unary(ctx context.Context, m *schema.Method, arg []byte, done func([]byte, error)) (backend.Handle, error) {
	return s.start(ctx, m, arg, done, nil)
}

func (s *fakeStub) ClientStream(ctx context.Context, m *schema.Method, done func([]byte, error)) (backend.Handle, error) {
	return s.start(ctx, m, nil, done, nil)
}

func (s *fakeStub) ServerStream(ctx context.Context, m *schema.Method, arg []byte, obs backend.Observer) (backend.Handle, error) {
	return s.start(ctx, m, arg, nil, obs)
}

func (s *fakeStub) BidiStream(ctx context.Context, m *schema.Method, obs backend.Observer) (backend.Handle, error) {
	return s.start(ctx, m, nil, nil, obs)
}

func (s *fakeStub) Close() error {
	s.closed++
	return nil
}

type fakeCall struct {
	ctx    context.Context
	method *schema.Method
	arg    []byte
	done   func([]byte, error)
	obs    backend.Observer

	writes     [][]byte
	closedSend bool
	canceled   bool
}

func (c *fakeCall) Write(data []byte) error {
	if c.closedSend {
		return errors.New("closed")
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeCall) CloseSend() error {
	c.closedSend = true
	return nil
}

func (c *fakeCall) Cancel() {
	c.canceled = true
}

type recordingStats struct {
	calls []stats.CallStats
	conns []stats.ConnStats
}

func (r *recordingStats) TagCall(ctx context.Context, info *stats.CallTagInfo) context.Context {
	return stats.WithCallTag(ctx, info)
}

func (r *recordingStats) HandleCall(_ context.Context, s stats.CallStats) {
	r.calls = append(r.calls, s)
}

func (r *recordingStats) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	return stats.WithConnTag(ctx, info)
}

func (r *recordingStats) HandleConn(_ context.Context, s stats.ConnStats) {
	r.conns = append(r.conns, s)
}

// recorder collects every envelope the server sends.
type recorder struct {
	msgs []*protocol.ServerMessage
}

func (r *recorder) send(msg *protocol.ServerMessage) {
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) take() []*protocol.ServerMessage {
	out := r.msgs
	r.msgs = nil
	return out
}

type lockedRecorder struct {
	mu   sync.Mutex
	msgs []*protocol.ServerMessage
}

func (r *lockedRecorder) send(msg *protocol.ServerMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *lockedRecorder) all() []*protocol.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.ServerMessage(nil), r.msgs...)
}
