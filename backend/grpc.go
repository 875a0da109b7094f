package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/crazyfrankie/grpcbus/schema"
)

// GRPCDialer dials backends with grpc-go. Messages are relayed in their
// encoded form and never decoded on the way.
type GRPCDialer struct {
	opt *dialOption
}

func NewGRPCDialer(opts ...Option) *GRPCDialer {
	opt := defaultDialOption()
	for _, o := range opts {
		o(opt)
	}
	return &GRPCDialer{opt: opt}
}

func (d *GRPCDialer) Dial(ctx context.Context, endpoint string, svc *schema.Service) (Stub, error) {
	target := endpoint
	if d.opt.resolver != nil {
		var err error
		if target, err = d.opt.resolver.Resolve(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	}
	opts = append(opts, d.opt.dialOptions...)

	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	zap.L().Info("backend connection opened",
		zap.String("endpoint", endpoint),
		zap.String("target", target),
		zap.String("service", svc.FullName()))

	return &grpcStub{cc: cc, target: target, service: svc.FullName()}, nil
}

type grpcStub struct {
	cc      *grpc.ClientConn
	target  string
	service string
}

func (s *grpcStub) Unary(ctx context.Context, m *schema.Method, arg []byte, done func([]byte, error)) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := newCallHandle(cancel, false)

	go func() {
		defer cancel()

		var out frame
		if err := s.cc.Invoke(ctx, m.FullMethod(), &frame{data: arg}, &out); err != nil {
			done(nil, err)
			return
		}
		done(out.data, nil)
	}()

	return h, nil
}

func (s *grpcStub) ClientStream(ctx context.Context, m *schema.Method, done func([]byte, error)) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := newCallHandle(cancel, true)

	go func() {
		defer cancel()

		cs, err := s.cc.NewStream(ctx, &grpc.StreamDesc{ClientStreams: true}, m.FullMethod())
		if err != nil {
			done(nil, err)
			return
		}
		go h.pump(ctx, cs)

		var out frame
		if err := cs.RecvMsg(&out); err != nil {
			done(nil, err)
			return
		}
		done(out.data, nil)
	}()

	return h, nil
}

func (s *grpcStub) ServerStream(ctx context.Context, m *schema.Method, arg []byte, obs Observer) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := newCallHandle(cancel, false)

	go func() {
		defer cancel()

		cs, err := s.cc.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, m.FullMethod())
		if err != nil {
			fail(obs, err)
			return
		}
		// io.EOF from SendMsg means the stream is already broken; RecvMsg
		// reports the actual status.
		if err := cs.SendMsg(&frame{data: arg}); err != nil && !errors.Is(err, io.EOF) {
			fail(obs, err)
			return
		}
		if err := cs.CloseSend(); err != nil {
			fail(obs, err)
			return
		}
		receive(cs, obs)
	}()

	return h, nil
}

func (s *grpcStub) BidiStream(ctx context.Context, m *schema.Method, obs Observer) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := newCallHandle(cancel, true)

	go func() {
		defer cancel()

		cs, err := s.cc.NewStream(ctx, &grpc.StreamDesc{ClientStreams: true, ServerStreams: true}, m.FullMethod())
		if err != nil {
			fail(obs, err)
			return
		}
		go h.pump(ctx, cs)
		receive(cs, obs)
	}()

	return h, nil
}

func (s *grpcStub) Close() error {
	zap.L().Info("backend connection closed",
		zap.String("target", s.target),
		zap.String("service", s.service))
	return s.cc.Close()
}

func receive(cs grpc.ClientStream, obs Observer) {
	for {
		var out frame
		err := cs.RecvMsg(&out)
		if errors.Is(err, io.EOF) {
			obs.OnEnd()
			obs.OnStatus(status.New(codes.OK, ""))
			return
		}
		if err != nil {
			fail(obs, err)
			return
		}
		obs.OnData(out.data)
	}
}

func fail(obs Observer, err error) {
	st := status.Convert(err)
	obs.OnError(st.Err())
	obs.OnStatus(st)
}
