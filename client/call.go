package client

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
)

// Call is one invocation of a stub.
type Call struct {
	svc    *Service
	id     int32
	seq    uint64
	method *schema.Method
	cb     Callback

	listeners  map[EventKind][]Listener
	endEmitted bool
	disposed   bool
	done       chan struct{}
}

func newCall(svc *Service, id int32, seq uint64, method *schema.Method, cb Callback) *Call {
	return &Call{
		svc:       svc,
		id:        id,
		seq:       seq,
		method:    method,
		cb:        cb,
		listeners: make(map[EventKind][]Listener),
		done:      make(chan struct{}),
	}
}

func (c *Call) ID() int32               { return c.id }
func (c *Call) Method() *schema.Method { return c.method }

// Done is closed once the call is disposed.
func (c *Call) Done() <-chan struct{} { return c.done }

// On registers l for events of kind. Listeners of a kind run in registration
// order.
func (c *Call) On(kind EventKind, l Listener) {
	c.svc.c.locked(func() {
		c.listeners[kind] = append(c.listeners[kind], l)
	})
}

// Off removes every listener of kind.
func (c *Call) Off(kind EventKind) {
	c.svc.c.locked(func() {
		delete(c.listeners, kind)
	})
}

// Write sends one message on the request stream.
func (c *Call) Write(msg proto.Message) error {
	if !c.method.ClientStreaming() {
		return ErrWriteNonStreaming
	}
	bin, err := c.method.Input().Encode(msg)
	if err != nil {
		return err
	}
	return c.sendLocked(&protocol.SendCall{ServiceID: c.svc.id, CallID: c.id, BinData: bin})
}

// End half-closes the request stream.
func (c *Call) End() error {
	return c.sendLocked(&protocol.SendCall{ServiceID: c.svc.id, CallID: c.id, IsEnd: true})
}

func (c *Call) sendLocked(m *protocol.SendCall) error {
	var err error
	c.svc.c.locked(func() {
		if c.disposed {
			err = ErrCallClosed
			return
		}
		c.svc.c.post(&protocol.ClientMessage{CallSend: m})
	})
	return err
}

// Terminate cancels the call on the server and disposes it.
func (c *Call) Terminate() {
	c.svc.c.locked(c.terminate)
}

func (c *Call) terminate() {
	if c.disposed {
		return
	}
	c.svc.c.post(&protocol.ClientMessage{CallEnd: &protocol.EndCall{ServiceID: c.svc.id, CallID: c.id}})
	c.dispose()
}

func (c *Call) handleCreateResult(m *protocol.CreateCallResult) {
	if m.Result == protocol.Success {
		return
	}
	// The server never registered the call, so there is nothing to end.
	c.terminateWithError(&CreateError{Code: m.Result, Details: m.ErrorDetails})
}

func (c *Call) handleEvent(m *protocol.CallEvent) {
	switch m.Event {
	case protocol.EventData:
		msg, err := c.method.Output().Decode(m.BinData)
		if err != nil {
			st := status.New(codes.Internal, err.Error())
			c.emit(Event{Kind: EventError, Err: st.Err(), Status: st})
			if c.cb != nil {
				c.terminateWithError(st.Err())
			}
			return
		}
		c.emit(Event{Kind: EventData, Message: msg})
		if c.cb != nil {
			c.terminateWithData(msg)
		}
	case protocol.EventError:
		st := protocol.DecodeStatus(m.JSONData)
		c.emit(Event{Kind: EventError, Err: st.Err(), Status: st})
		if c.cb != nil {
			c.terminateWithError(st.Err())
		}
	case protocol.EventStatus:
		c.emit(Event{Kind: EventStatus, Status: protocol.DecodeStatus(m.JSONData)})
	case protocol.EventEnd:
		c.emit(Event{Kind: EventEnd})
	}
}

func (c *Call) terminateWithError(err error) {
	if c.cb != nil {
		c.complete(nil, err)
	} else {
		c.emit(Event{Kind: EventError, Err: err})
	}
	c.dispose()
}

func (c *Call) terminateWithData(msg proto.Message) {
	c.complete(msg, nil)
	c.dispose()
}

// complete queues the callback. It runs at most once per call.
func (c *Call) complete(resp proto.Message, err error) {
	cb := c.cb
	if cb == nil {
		return
	}
	c.cb = nil
	c.svc.c.later(func() { cb(resp, err) })
}

// emit queues the listeners of ev.Kind. The client must be locked.
func (c *Call) emit(ev Event) {
	if c.disposed {
		return
	}
	if ev.Kind == EventEnd {
		c.endEmitted = true
	}
	ls := c.listeners[ev.Kind]
	if len(ls) == 0 {
		return
	}
	ls = append([]Listener(nil), ls...)
	c.svc.c.later(func() {
		for _, l := range ls {
			l(ev)
		}
	})
}

// dispose emits the end event if the server never did, fails a callback that
// never ran with ErrCallClosed and forgets the call.
func (c *Call) dispose() {
	if c.disposed {
		return
	}
	if !c.endEmitted {
		c.emit(Event{Kind: EventEnd, Err: ErrCallClosed})
	}
	c.complete(nil, ErrCallClosed)
	c.disposed = true
	close(c.done)
	delete(c.svc.calls, c.id)
}
