package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/crazyfrankie/grpcbus/backend"
	"github.com/crazyfrankie/grpcbus/metadata"
	"github.com/crazyfrankie/grpcbus/protocol"
	"github.com/crazyfrankie/grpcbus/schema"
	"github.com/crazyfrankie/grpcbus/stats"
)

var errCallInfoRequired = errors.New(protocol.DetailsCallInfoRequired)

// call drives one backend call and relays its events to the client. Every
// method runs in the server's serialized context.
type call struct {
	s      *Server
	store  *callStore
	id     int32
	method *schema.Method
	handle backend.Handle
	cancel context.CancelFunc

	statsCtx context.Context
	begin    time.Time
	err      error

	disposed bool
}

func (c *call) init(info *protocol.CallInfo) error {
	if info == nil || info.MethodID == "" {
		return errCallInfoRequired
	}
	m, ok := c.store.conn.svc.Method(info.MethodID)
	if !ok {
		return fmt.Errorf("method %s not found", info.MethodID)
	}
	c.method = m

	// An absent argument is the empty message, whose encoding is empty.
	var arg []byte
	if len(info.BinArgument) > 0 {
		if _, err := m.Input().Decode(info.BinArgument); err != nil {
			return err
		}
		arg = info.BinArgument
	}

	ctx := metadata.NewOutgoingContext(c.s.baseContext(), info.Metadata)
	c.begin = time.Now()
	if sh := c.s.opt.statsHandler; sh != nil {
		// The backend call runs under the tagged context, so a handler may
		// add outgoing metadata.
		ctx = sh.TagCall(ctx, &stats.CallTagInfo{
			ServiceID:      c.store.serviceID,
			CallID:         c.id,
			FullMethodName: m.FullMethod(),
		})
		c.statsCtx = ctx
		sh.HandleCall(ctx, &stats.Begin{
			BeginTime:      c.begin,
			IsClientStream: m.ClientStreaming(),
			IsServerStream: m.ServerStreaming(),
		})
	}
	if d := c.s.opt.callTimeout; d > 0 {
		ctx, c.cancel = context.WithTimeout(ctx, d)
	} else {
		ctx, c.cancel = context.WithCancel(ctx)
	}

	stub := c.store.conn.stub
	var (
		h   backend.Handle
		err error
	)
	switch {
	case !m.ClientStreaming() && !m.ServerStreaming():
		h, err = stub.Unary(ctx, m, arg, c.onDone)
	case m.ClientStreaming() && !m.ServerStreaming():
		h, err = stub.ClientStream(ctx, m, c.onDone)
	case !m.ClientStreaming() && m.ServerStreaming():
		h, err = stub.ServerStream(ctx, m, arg, observer{c})
	default:
		h, err = stub.BidiStream(ctx, m, observer{c})
	}
	if err != nil {
		c.cancel()
		if sh := c.s.opt.statsHandler; sh != nil {
			sh.HandleCall(c.statsCtx, &stats.End{BeginTime: c.begin, EndTime: time.Now(), Error: err})
			c.statsCtx = nil
		}
		return err
	}
	c.handle = h

	// Request streams take an argument sent along with the create as their
	// first message.
	if m.ClientStreaming() && arg != nil {
		if err := h.Write(arg); err != nil {
			zap.L().Debug("write initial argument failed", zap.String("method", m.FullMethod()), zap.Error(err))
		}
	}

	return nil
}

// send forwards a callSend to the request stream. It is ignored for methods
// without one.
func (c *call) send(msg *protocol.SendCall) {
	if !c.method.ClientStreaming() || c.handle == nil {
		return
	}

	if !msg.IsEnd || len(msg.BinData) > 0 {
		if err := c.handle.Write(msg.BinData); err != nil {
			zap.L().Debug("write to backend failed", zap.String("method", c.method.FullMethod()), zap.Error(err))
			return
		}
		if sh := c.s.opt.statsHandler; sh != nil {
			sh.HandleCall(c.statsCtx, &stats.OutPayload{Length: len(msg.BinData), SentTime: time.Now()})
		}
	}
	if msg.IsEnd {
		if err := c.handle.CloseSend(); err != nil {
			zap.L().Debug("close request stream failed", zap.String("method", c.method.FullMethod()), zap.Error(err))
		}
	}
}

// onDone completes a unary or client streaming call. It may run on any
// goroutine, including inside the call initiator.
func (c *call) onDone(data []byte, err error) {
	c.s.do(func() {
		if c.disposed {
			return
		}
		if err != nil {
			c.fail(err)
		} else {
			c.data(data)
		}
		c.dispose()
	})
}

func (c *call) data(data []byte) {
	if sh := c.s.opt.statsHandler; sh != nil {
		sh.HandleCall(c.statsCtx, &stats.InPayload{Length: len(data), RecvTime: time.Now()})
	}
	c.emit(protocol.EventData, data, "")
}

func (c *call) fail(err error) {
	st := status.Convert(err)
	c.err = st.Err()
	zap.L().Warn("backend call failed",
		zap.Stringer("peer", c.s.opt.peer),
		zap.String("method", c.method.FullMethod()),
		zap.Int32("service_id", c.store.serviceID),
		zap.Int32("call_id", c.id),
		zap.Error(c.err))
	c.emit(protocol.EventError, nil, protocol.EncodeStatus(st))
}

func (c *call) emit(event string, data []byte, jsonData string) {
	c.s.send(&protocol.ServerMessage{CallEvent: &protocol.CallEvent{
		ServiceID: c.store.serviceID,
		CallID:    c.id,
		Event:     event,
		BinData:   data,
		JSONData:  jsonData,
	}})
}

// dispose acknowledges the end of the call to the client, then aborts the
// backend call if it is still running. It runs at most once.
func (c *call) dispose() {
	if c.disposed {
		return
	}
	c.disposed = true

	c.s.send(&protocol.ServerMessage{CallEnded: &protocol.CallEnded{
		ServiceID: c.store.serviceID,
		CallID:    c.id,
	}})

	if c.handle != nil {
		c.handle.Cancel()
		c.handle = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if sh := c.s.opt.statsHandler; sh != nil && c.statsCtx != nil {
		sh.HandleCall(c.statsCtx, &stats.End{BeginTime: c.begin, EndTime: time.Now(), Error: c.err})
	}
	c.store.remove(c.id)
}

// observer relays response stream events into the server's serialized
// context. The final status disposes the call.
type observer struct {
	c *call
}

func (o observer) OnData(data []byte) {
	o.c.s.do(func() {
		if !o.c.disposed {
			o.c.data(data)
		}
	})
}

func (o observer) OnError(err error) {
	o.c.s.do(func() {
		if !o.c.disposed {
			o.c.fail(err)
		}
	})
}

func (o observer) OnEnd() {
	o.c.s.do(func() {
		if !o.c.disposed {
			o.c.emit(protocol.EventEnd, nil, "")
		}
	})
}

func (o observer) OnStatus(st *status.Status) {
	o.c.s.do(func() {
		if o.c.disposed {
			return
		}
		o.c.emit(protocol.EventStatus, nil, protocol.EncodeStatus(st))
		o.c.dispose()
	})
}
