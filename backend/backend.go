// Package backend opens connections to real RPC endpoints and issues calls in
// the four streaming shapes on behalf of the server.
package backend

import (
	"context"
	"errors"

	"google.golang.org/grpc/status"

	"github.com/crazyfrankie/grpcbus/schema"
)

var (
	ErrNotStreaming = errors.New("backend: call does not stream requests")
	ErrSendClosed   = errors.New("backend: request stream already closed")
	ErrCanceled     = errors.New("backend: call canceled")
)

// Dialer creates stubs bound to one endpoint and schema service.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, svc *schema.Service) (Stub, error)
}

// Stub issues calls to one backend. Call initiators return immediately; the
// outcome is reported through done or the Observer, possibly from another
// goroutine and possibly before the initiator returns.
//
// Payloads are encoded messages of the method's input and output types.
type Stub interface {
	// Unary reports the response or the error to done exactly once.
	Unary(ctx context.Context, m *schema.Method, arg []byte, done func([]byte, error)) (Handle, error)
	// ClientStream accepts requests through the Handle and reports the
	// single response or error to done exactly once.
	ClientStream(ctx context.Context, m *schema.Method, done func([]byte, error)) (Handle, error)
	// ServerStream reports responses to obs.
	ServerStream(ctx context.Context, m *schema.Method, arg []byte, obs Observer) (Handle, error)
	// BidiStream accepts requests through the Handle and reports responses to obs.
	BidiStream(ctx context.Context, m *schema.Method, obs Observer) (Handle, error)
	// Close tears the connection down.
	Close() error
}

// Handle controls one call in flight.
type Handle interface {
	// Write queues one request message.
	Write(data []byte) error
	// CloseSend half-closes the request stream.
	CloseSend() error
	// Cancel aborts the call. No further events are guaranteed after it.
	Cancel()
}

// Observer receives the events of a response stream. A stream that completes
// reports OnData any number of times, then OnEnd, then OnStatus with an OK
// status. A stream that fails reports OnError, then OnStatus with the failure.
// OnStatus is always the last event.
type Observer interface {
	OnData(data []byte)
	OnError(err error)
	OnEnd()
	OnStatus(st *status.Status)
}
