package transport

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/grpcbus/protocol"
)

func pipe(t *testing.T, opts ...Option) (*Conn, *Conn) {
	p1, p2 := net.Pipe()
	a, b := NewConn(p1), NewConn(p2, opts...)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestRoundTrip(t *testing.T) {
	a, b := pipe(t)

	in := &protocol.ClientMessage{CallCreate: &protocol.CreateCall{
		ServiceID: 1,
		CallID:    2,
		Info:      &protocol.CallInfo{MethodID: "SayHello", BinArgument: []byte{0x0a, 0x01, 'x'}},
	}}
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Send(in))
	}
	for i := 0; i < 3; i++ {
		out, err := b.RecvClient()
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}

	reply := &protocol.ServerMessage{CallEvent: &protocol.CallEvent{ServiceID: 1, CallID: 2, Event: protocol.EventEnd}}
	b.SendServer(reply)
	out, err := a.RecvServer()
	require.NoError(t, err)
	assert.Equal(t, reply, out)
}

func TestWrongKind(t *testing.T) {
	a, b := pipe(t)

	require.NoError(t, a.Send(&protocol.ServerMessage{CallEnded: &protocol.CallEnded{ServiceID: 1, CallID: 1}}))
	_, err := b.RecvClient()
	assert.ErrorIs(t, err, protocol.ErrWrongKind)
}

func TestMaxMessageSize(t *testing.T) {
	a, b := pipe(t, WithMaxMessageSize(64))

	big := &protocol.ClientMessage{CallSend: &protocol.SendCall{ServiceID: 1, CallID: 1, BinData: []byte(strings.Repeat("x", 256))}}
	require.NoError(t, a.Send(big))
	_, err := b.RecvClient()
	assert.ErrorIs(t, err, protocol.ErrMessageTooLong)
}

func TestSendNeverBlocks(t *testing.T) {
	a, _ := pipe(t)

	// Nobody reads the other end, so every frame stays queued.
	for i := int32(1); i <= 100; i++ {
		require.NoError(t, a.Send(&protocol.ClientMessage{ServiceRelease: &protocol.ReleaseService{ServiceID: i}}))
	}
}

func TestClose(t *testing.T) {
	a, b := pipe(t)

	require.NoError(t, a.Send(&protocol.ClientMessage{ServiceRelease: &protocol.ReleaseService{ServiceID: 7}}))
	go a.Close()

	// Frames queued before Close are still delivered.
	msg, err := b.RecvClient()
	require.NoError(t, err)
	assert.Equal(t, int32(7), msg.ServiceRelease.ServiceID)

	_, err = b.RecvClient()
	assert.True(t, IsClosed(err), "got %v", err)

	<-a.Done()
	assert.ErrorIs(t, a.Send(&protocol.ClientMessage{ServiceRelease: &protocol.ReleaseService{ServiceID: 8}}), ErrClosed)
	_, err = a.RecvServer()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, a.Err())
	assert.NoError(t, a.Close())
}

func TestSendRejectsOtherTypes(t *testing.T) {
	a, _ := pipe(t)
	assert.Error(t, a.Send("hello"))
}

func TestPeer(t *testing.T) {
	a, _ := pipe(t)
	p := a.Peer()
	require.NotNil(t, p)
	assert.Equal(t, "pipe", p.Addr.String())
}
