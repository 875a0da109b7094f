package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFrameRoundTrip(t *testing.T) {
	in := &ClientMessage{CallCreate: &CreateCall{
		ServiceID: 1,
		CallID:    2,
		Info:      &CallInfo{MethodID: "SayHello", BinArgument: []byte{0x0a, 0x01, 'a'}},
	}}

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := ReadClientMessage(bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "callCreate", out.Kind())
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	for i := int32(1); i <= 3; i++ {
		data, err := Encode(&ServerMessage{CallEnded: &CallEnded{ServiceID: 1, CallID: i}})
		require.NoError(t, err)
		buf.Write(data)
	}

	for i := int32(1); i <= 3; i++ {
		msg, err := ReadServerMessage(&buf, 0)
		require.NoError(t, err)
		assert.Equal(t, i, msg.CallEnded.CallID)
	}

	_, err := ReadServerMessage(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameRejectsWrongKind(t *testing.T) {
	data, err := Encode(&ServerMessage{ServiceRelease: &ReleaseServiceResult{ServiceID: 4}})
	require.NoError(t, err)

	_, err = ReadClientMessage(bytes.NewReader(data), 0)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestFrameRejectsOversizedBody(t *testing.T) {
	data, err := Encode(&ClientMessage{CallSend: &SendCall{ServiceID: 1, CallID: 1, BinData: make([]byte, 512)}})
	require.NoError(t, err)

	_, err = ReadClientMessage(bytes.NewReader(data), 64)
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestFrameRejectsBadMagic(t *testing.T) {
	_, err := ReadClientMessage(bytes.NewReader([]byte{0x00, 1, 1, 0, 0, 0, 0, 0}), 0)
	assert.Error(t, err)
}

func TestEnvelopeFieldNames(t *testing.T) {
	data, err := json.Marshal(&ClientMessage{ServiceCreate: &CreateService{
		ServiceID:   1,
		ServiceInfo: &ServiceInfo{Endpoint: "localhost:3000", ServiceID: "mock.Greeter"},
	}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"serviceCreate":{"serviceId":1,"serviceInfo":{"endpoint":"localhost:3000","serviceId":"mock.Greeter"}}}`,
		string(data))

	data, err = json.Marshal(&ServerMessage{ServiceCreate: &CreateServiceResult{ServiceID: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"serviceCreate":{"serviceId":1,"result":0}}`, string(data))
}

func TestStatusPayload(t *testing.T) {
	st := status.New(codes.NotFound, "no such greeter")
	got := DecodeStatus(EncodeStatus(st))
	assert.Equal(t, codes.NotFound, got.Code())
	assert.Equal(t, "no such greeter", got.Message())

	raw := DecodeStatus("plain text")
	assert.Equal(t, codes.Unknown, raw.Code())
	assert.Equal(t, "plain text", raw.Message())
}
