// Package bridge runs the protocol over real connections: a Host serves one
// server.Server per accepted connection and a ClientConn drives a
// client.Client over a dialed one.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/backend"
	"github.com/crazyfrankie/grpcbus/peer"
	"github.com/crazyfrankie/grpcbus/schema"
	"github.com/crazyfrankie/grpcbus/server"
	"github.com/crazyfrankie/grpcbus/transport"
)

var ErrHostClosed = errors.New("bridge: host closed")

// Host accepts connections and serves the protocol on each of them.
type Host struct {
	reg    *schema.Registry
	dialer backend.Dialer
	opt    *hostOption

	mu       sync.Mutex
	lis      map[net.Listener]struct{}
	sessions map[*transport.Conn]*session
	nextID   uint64

	serveWG    sync.WaitGroup
	inShutdown int32
	done       chan struct{}
}

type session struct {
	id   uint64
	peer *peer.Peer
	srv  *server.Server
}

// Session describes one served connection.
type Session struct {
	ID          uint64                  `json:"id"`
	Peer        string                  `json:"peer"`
	Connections []server.ConnectionInfo `json:"connections"`
}

func NewHost(reg *schema.Registry, dialer backend.Dialer, opts ...HostOption) *Host {
	opt := &hostOption{}
	for _, o := range opts {
		o(opt)
	}

	return &Host{
		reg:      reg,
		dialer:   dialer,
		opt:      opt,
		lis:      make(map[net.Listener]struct{}),
		sessions: make(map[*transport.Conn]*session),
		done:     make(chan struct{}),
	}
}

// Serve accepts connections on lis until Stop. It always returns a non-nil
// error, ErrHostClosed after Stop.
func (h *Host) Serve(lis net.Listener) error {
	h.mu.Lock()
	if h.isShutDown() {
		h.mu.Unlock()
		lis.Close()
		return ErrHostClosed
	}
	h.lis[lis] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.lis, lis)
		h.mu.Unlock()
	}()

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		conn, err := lis.Accept()
		if err != nil {
			if h.isShutDown() {
				return ErrHostClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() || isRecoverableError(err) {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				zap.L().Warn("bridge: accept error, retrying", zap.Error(err), zap.Duration("delay", tempDelay))
				timer := time.NewTimer(tempDelay)
				select {
				case <-timer.C:
				case <-h.done:
					timer.Stop()
					return ErrHostClosed
				}
				continue
			}
			return err
		}
		tempDelay = 0

		h.serveWG.Add(1)
		go func() {
			defer h.serveWG.Done()
			h.ServeConn(context.Background(), conn)
		}()
	}
}

// ServeConn serves the protocol on rwc until the peer hangs up, ctx ends or
// the host stops. Everything the peer opened is released on return.
func (h *Host) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) {
	conn := transport.NewConn(rwc, h.opt.transportOptions...)
	sess, ok := h.addSession(conn)
	if !ok {
		conn.Close()
		return
	}

	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			ss := runtime.Stack(buf, false)
			buf = buf[:ss]
			zap.L().Error(fmt.Sprintf("bridge: serving %s panic error: %v, stack:\n %s", sess.peer, err, buf))
		}
		sess.srv.Dispose()
		h.removeSession(conn)
		conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	zap.L().Info("bridge: connection opened", zap.Uint64("session", sess.id), zap.Stringer("peer", sess.peer))
	for {
		msg, err := conn.RecvClient()
		if err != nil {
			if transport.IsClosed(err) {
				zap.L().Info("bridge: connection closed", zap.Uint64("session", sess.id), zap.Stringer("peer", sess.peer))
			} else {
				zap.L().Warn("bridge: failed to read envelope", zap.Uint64("session", sess.id),
					zap.Stringer("peer", sess.peer), zap.Error(err))
			}
			return
		}
		sess.srv.HandleMessage(msg)
	}
}

func (h *Host) addSession(conn *transport.Conn) (*session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isShutDown() {
		return nil, false
	}

	h.nextID++
	p := conn.Peer()
	opts := append([]server.Option{server.WithPeer(p)}, h.opt.serverOptions...)
	sess := &session{
		id:   h.nextID,
		peer: p,
		srv:  server.NewServer(h.reg, h.dialer, conn.SendServer, opts...),
	}
	h.sessions[conn] = sess
	return sess, true
}

func (h *Host) removeSession(conn *transport.Conn) {
	h.mu.Lock()
	delete(h.sessions, conn)
	h.mu.Unlock()
}

// Sessions returns the served connections ordered by id.
func (h *Host) Sessions() []Session {
	h.mu.Lock()
	list := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	out := make([]Session, 0, len(list))
	for _, s := range list {
		out = append(out, Session{ID: s.id, Peer: s.peer.String(), Connections: s.srv.Connections()})
	}
	return out
}

// Stop closes the listeners and every connection, then waits for the
// connection loops to release their backend resources.
func (h *Host) Stop() {
	if !atomic.CompareAndSwapInt32(&h.inShutdown, 0, 1) {
		return
	}
	close(h.done)

	h.mu.Lock()
	for lis := range h.lis {
		lis.Close()
	}
	conns := make([]*transport.Conn, 0, len(h.sessions))
	for c := range h.sessions {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	h.serveWG.Wait()
}

func (h *Host) isShutDown() bool {
	return atomic.LoadInt32(&h.inShutdown) == 1
}

func isRecoverableError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EINTR)
}
