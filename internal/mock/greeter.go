package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

// FailName makes every Greeter method fail with codes.InvalidArgument when it
// is received as a request name.
const FailName = "fail"

// GreeterServer is the handler type of the mock.Greeter service.
type GreeterServer interface {
	Received() []string
}

// Greeter answers "Hello" on SayHello, SayHelloClientStream and
// SayHelloServerStream, and echoes request names on SayHelloBidiStream.
type Greeter struct {
	mu       sync.Mutex
	received []string
}

// Received returns the names of the methods invoked so far, once per request
// message.
func (g *Greeter) Received() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.received...)
}

func (g *Greeter) record(method string) {
	g.mu.Lock()
	g.received = append(g.received, method)
	g.mu.Unlock()
}

// Register adds g to s under mock.Greeter.
func Register(s *grpc.Server, g *Greeter) {
	s.RegisterService(serviceDesc(), g)
}

func newRequest() *dynamicpb.Message {
	return dynamicpb.NewMessage(messageDescriptor("mock.HelloRequest"))
}

func rejected() error {
	return status.Error(codes.InvalidArgument, "name is not accepted")
}

func serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*GreeterServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: SayHello, Handler: sayHelloHandler},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: SayHelloClientStream, Handler: clientStreamHandler, ClientStreams: true},
			{StreamName: SayHelloServerStream, Handler: serverStreamHandler, ServerStreams: true},
			{StreamName: SayHelloBidiStream, Handler: bidiStreamHandler, ClientStreams: true, ServerStreams: true},
		},
		Metadata: "mock.proto",
	}
}

func sayHelloHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := newRequest()
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		g := srv.(*Greeter)
		g.record(SayHello)
		if Name(req.(*dynamicpb.Message)) == FailName {
			return nil, rejected()
		}
		return HelloReply("Hello"), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + SayHello}
	return interceptor(ctx, in, info, handler)
}

func clientStreamHandler(srv any, stream grpc.ServerStream) error {
	g := srv.(*Greeter)
	for {
		in := newRequest()
		err := stream.RecvMsg(in)
		if errors.Is(err, io.EOF) {
			return stream.SendMsg(HelloReply("Hello"))
		}
		if err != nil {
			return err
		}
		g.record(SayHelloClientStream)
		if Name(in) == FailName {
			return rejected()
		}
	}
}

func serverStreamHandler(srv any, stream grpc.ServerStream) error {
	g := srv.(*Greeter)
	in := newRequest()
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	g.record(SayHelloServerStream)
	if Name(in) == FailName {
		return rejected()
	}
	return stream.SendMsg(HelloReply("Hello"))
}

func bidiStreamHandler(srv any, stream grpc.ServerStream) error {
	g := srv.(*Greeter)
	for {
		in := newRequest()
		err := stream.RecvMsg(in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		g.record(SayHelloBidiStream)
		if Name(in) == FailName {
			return rejected()
		}
		if err := stream.SendMsg(HelloReply(Name(in))); err != nil {
			return err
		}
	}
}
