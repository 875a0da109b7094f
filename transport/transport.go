// Package transport carries protocol envelopes over any byte stream.
//
// Every envelope is one frame (see protocol.Encode). Sending never blocks the
// caller: frames are queued and written by a goroutine owned by the Conn, so
// a client and a server wired together through two Conns cannot deadlock.
package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/peer"
	"github.com/crazyfrankie/grpcbus/protocol"
)

var ErrClosed = errors.New("transport: connection closed")

// flushTimeout bounds how long Close waits for queued frames to be written.
const flushTimeout = time.Second

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Conn is a framed connection. Send may be called from any goroutine; Recv
// calls are serialized.
type Conn struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader
	opt *transportOpt

	rmu sync.Mutex

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	err    error
	notify chan struct{}
	done   chan struct{}
	// written is closed when the writer goroutine exits.
	written chan struct{}
}

// NewConn wraps rwc. The Conn owns rwc and closes it on Close.
func NewConn(rwc io.ReadWriteCloser, opts ...Option) *Conn {
	opt := defaultTransportOpt()
	for _, o := range opts {
		o(opt)
	}

	c := &Conn{
		rwc:     rwc,
		r:       bufio.NewReader(rwc),
		opt:     opt,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Peer describes the remote end when rwc is a network connection.
func (c *Conn) Peer() *peer.Peer {
	return peer.FromConn(c.rwc)
}

// Send queues one *protocol.ClientMessage or *protocol.ServerMessage.
func (c *Conn) Send(msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue = append(c.queue, data)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// SendClient adapts Send to a client.Sender. Failures are logged and close
// the connection.
func (c *Conn) SendClient(msg *protocol.ClientMessage) {
	c.sendOrClose(msg)
}

// SendServer adapts Send to a server.Sender.
func (c *Conn) SendServer(msg *protocol.ServerMessage) {
	c.sendOrClose(msg)
}

func (c *Conn) sendOrClose(msg any) {
	err := c.Send(msg)
	if err == nil || errors.Is(err, ErrClosed) {
		return
	}
	zap.L().Warn("transport: send failed", zap.Error(err))
	c.fail(err)
}

// RecvClient reads the next client envelope.
func (c *Conn) RecvClient() (*protocol.ClientMessage, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	c.setReadDeadline()
	msg, err := protocol.ReadClientMessage(c.r, c.opt.maxMessageSize)
	return msg, c.readErr(err)
}

// RecvServer reads the next server envelope.
func (c *Conn) RecvServer() (*protocol.ServerMessage, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	c.setReadDeadline()
	msg, err := protocol.ReadServerMessage(c.r, c.opt.maxMessageSize)
	return msg, c.readErr(err)
}

func (c *Conn) setReadDeadline() {
	if c.opt.readTimeout <= 0 {
		return
	}
	if d, ok := c.rwc.(deadliner); ok {
		d.SetReadDeadline(time.Now().Add(c.opt.readTimeout))
	}
}

func (c *Conn) readErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return err
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that closed the connection, or nil after Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops the writer after it flushes the queued frames, then closes the
// underlying stream.
func (c *Conn) Close() error {
	if !c.shutdown(nil) {
		return nil
	}
	select {
	case <-c.written:
	case <-time.After(flushTimeout):
	}
	return c.rwc.Close()
}

func (c *Conn) fail(err error) {
	if c.shutdown(err) {
		c.rwc.Close()
	}
}

func (c *Conn) shutdown(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.err = err
	close(c.done)
	return true
}

func (c *Conn) writeLoop() {
	defer close(c.written)
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		closed := c.closed
		failed := c.err != nil
		c.mu.Unlock()

		if failed {
			return
		}
		for _, data := range batch {
			if err := c.write(data); err != nil {
				zap.L().Warn("transport: write failed", zap.Error(err))
				c.fail(err)
				return
			}
		}
		if closed {
			return
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-c.notify:
		case <-c.done:
		}
	}
}

func (c *Conn) write(data []byte) error {
	if c.opt.writeTimeout > 0 {
		if d, ok := c.rwc.(deadliner); ok {
			d.SetWriteDeadline(time.Now().Add(c.opt.writeTimeout))
		}
	}
	_, err := c.rwc.Write(data)
	return err
}

// IsClosed reports whether err only means the peer or the local side closed
// the stream.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
