package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/crazyfrankie/grpcbus/mem"
)

const (
	// magicNumber identifies a grpcbus frame.
	magicNumber byte = 0x67
	// Version is the frame format version.
	Version byte = 1

	headerLen = 8
)

var (
	ErrWrongKind      = errors.New("protocol: unexpected frame kind")
	ErrMessageTooLong = errors.New("protocol: message exceeds the size limit")
)

// FrameKind tells which side produced a frame.
type FrameKind byte

const (
	// ClientFrame carries a ClientMessage.
	ClientFrame FrameKind = iota + 1
	// ServerFrame carries a ServerMessage.
	ServerFrame
)

// Header is the fixed size prefix of every frame.
// Format: magic(1) version(1) kind(1) reserved(1) bodyLen(4, big endian).
type Header [headerLen]byte

// CheckMagicNumber checks for a grpcbus frame.
func (h *Header) CheckMagicNumber() bool {
	return h[0] == magicNumber
}

// Version returns the frame format version.
func (h *Header) Version() byte { return h[1] }

// Kind returns the frame kind.
func (h *Header) Kind() FrameKind { return FrameKind(h[2]) }

// BodyLen returns the length of the JSON body that follows the header.
func (h *Header) BodyLen() uint32 {
	return binary.BigEndian.Uint32(h[4:])
}

func newHeader(kind FrameKind, bodyLen int) Header {
	var h Header
	h[0] = magicNumber
	h[1] = Version
	h[2] = byte(kind)
	binary.BigEndian.PutUint32(h[4:], uint32(bodyLen))
	return h
}

// Encode renders one frame holding a ClientMessage or a ServerMessage.
func Encode(v any) ([]byte, error) {
	var kind FrameKind
	switch v.(type) {
	case *ClientMessage:
		kind = ClientFrame
	case *ServerMessage:
		kind = ServerFrame
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", v)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	h := newHeader(kind, len(body))
	data := make([]byte, headerLen+len(body))
	copy(data, h[:])
	copy(data[headerLen:], body)

	return data, nil
}

// readHeader reads and checks a frame header. maxLength bounds the body size
// when positive.
func readHeader(r io.Reader, maxLength int) (Header, error) {
	var h Header
	if _, err := io.ReadFull(r, h[:1]); err != nil {
		return h, err
	}
	if !h.CheckMagicNumber() {
		return h, fmt.Errorf("protocol: wrong magic number: %v", h[0])
	}
	if _, err := io.ReadFull(r, h[1:]); err != nil {
		return h, err
	}
	if h.Version() != Version {
		return h, fmt.Errorf("protocol: unsupported version %d", h.Version())
	}
	if l := h.BodyLen(); maxLength > 0 && int64(l) > int64(maxLength) {
		return h, fmt.Errorf("%w: limit %d, got %d", ErrMessageTooLong, maxLength, l)
	}
	return h, nil
}

// readInto decodes the body of a frame of the wanted kind into v. The body
// lives in a pooled buffer for the duration of the decode.
func readInto(r io.Reader, maxLength int, want FrameKind, v any) error {
	name := "client"
	if want == ServerFrame {
		name = "server"
	}

	h, err := readHeader(r, maxLength)
	if err != nil {
		return err
	}

	pool := mem.DefaultBufferPool()
	buf := pool.Get(int(h.BodyLen()))
	defer pool.Put(buf)
	if _, err := io.ReadFull(r, *buf); err != nil {
		return err
	}
	if h.Kind() != want {
		return ErrWrongKind
	}
	if err := json.Unmarshal(*buf, v); err != nil {
		return fmt.Errorf("protocol: decode %s message: %w", name, err)
	}
	return nil
}

// ReadClientMessage reads one client frame.
func ReadClientMessage(r io.Reader, maxLength int) (*ClientMessage, error) {
	msg := new(ClientMessage)
	if err := readInto(r, maxLength, ClientFrame, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ReadServerMessage reads one server frame.
func ReadServerMessage(r io.Reader, maxLength int) (*ServerMessage, error) {
	msg := new(ServerMessage)
	if err := readInto(r, maxLength, ServerFrame, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
