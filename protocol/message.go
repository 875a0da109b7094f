// Package protocol defines the envelopes exchanged between a grpcbus client and
// server, and the frame format used to carry them over a byte stream.
package protocol

import "github.com/crazyfrankie/grpcbus/metadata"

// ResultCode is the outcome of a service or call creation request.
type ResultCode int32

const (
	// Success means the service or call was created.
	Success ResultCode = iota
	// InvalidID means the identifier was missing, duplicated or unknown.
	InvalidID
	// BackendError means the backend rejected the connection or call start.
	BackendError
)

func (c ResultCode) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case InvalidID:
		return "INVALID_ID"
	case BackendError:
		return "GRPC_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Fixed error details for identifier conflicts.
const (
	DetailsIDInUse          = "ID is not set or is already in use."
	DetailsServiceNotFound  = "Service ID not found."
	DetailsCallInfoRequired = "Call info, method ID must be given"
)

// Call event names carried in CallEvent.Event.
const (
	EventData   = "data"
	EventError  = "error"
	EventEnd    = "end"
	EventStatus = "status"
)

// ServiceInfo names a schema service and the backend endpoint serving it.
type ServiceInfo struct {
	Endpoint  string `json:"endpoint,omitempty"`
	ServiceID string `json:"serviceId,omitempty"`
}

// CreateService asks the server to bind a client service id to a backend service.
type CreateService struct {
	ServiceID   int32        `json:"serviceId,omitempty"`
	ServiceInfo *ServiceInfo `json:"serviceInfo,omitempty"`
}

// ReleaseService releases a client service id and every call under it.
type ReleaseService struct {
	ServiceID int32 `json:"serviceId,omitempty"`
}

// CallInfo describes the method to invoke and its encoded argument.
type CallInfo struct {
	MethodID    string      `json:"methodId,omitempty"`
	BinArgument []byte      `json:"binArgument,omitempty"`
	Metadata    metadata.MD `json:"metadata,omitempty"`
}

// CreateCall starts a call on a client service.
type CreateCall struct {
	ServiceID int32     `json:"serviceId,omitempty"`
	CallID    int32     `json:"callId,omitempty"`
	Info      *CallInfo `json:"info,omitempty"`
}

// EndCall terminates a call.
type EndCall struct {
	ServiceID int32 `json:"serviceId,omitempty"`
	CallID    int32 `json:"callId,omitempty"`
}

// SendCall writes a message to a request stream, or half-closes it when IsEnd is set.
type SendCall struct {
	ServiceID int32  `json:"serviceId,omitempty"`
	CallID    int32  `json:"callId,omitempty"`
	BinData   []byte `json:"binData,omitempty"`
	IsEnd     bool   `json:"isEnd,omitempty"`
}

// ClientMessage is a client to server envelope. Exactly one field is set.
type ClientMessage struct {
	ServiceCreate  *CreateService  `json:"serviceCreate,omitempty"`
	ServiceRelease *ReleaseService `json:"serviceRelease,omitempty"`
	CallCreate     *CreateCall     `json:"callCreate,omitempty"`
	CallEnd        *EndCall        `json:"callEnd,omitempty"`
	CallSend       *SendCall       `json:"callSend,omitempty"`
}

// CreateServiceResult answers a CreateService.
type CreateServiceResult struct {
	ServiceID    int32      `json:"serviceId,omitempty"`
	Result       ResultCode `json:"result"`
	ErrorDetails string     `json:"errorDetails,omitempty"`
}

// ReleaseServiceResult acknowledges a release, or announces a server-initiated one.
type ReleaseServiceResult struct {
	ServiceID int32 `json:"serviceId,omitempty"`
}

// CreateCallResult answers a CreateCall.
type CreateCallResult struct {
	ServiceID    int32      `json:"serviceId,omitempty"`
	CallID       int32      `json:"callId,omitempty"`
	Result       ResultCode `json:"result"`
	ErrorDetails string     `json:"errorDetails,omitempty"`
}

// CallEvent relays one backend event. Data events carry BinData, error and
// status events carry a JSON encoded google.rpc.Status in JSONData.
type CallEvent struct {
	ServiceID int32  `json:"serviceId,omitempty"`
	CallID    int32  `json:"callId,omitempty"`
	Event     string `json:"event,omitempty"`
	BinData   []byte `json:"binData,omitempty"`
	JSONData  string `json:"jsonData,omitempty"`
}

// CallEnded reports that the server released a call.
type CallEnded struct {
	ServiceID int32 `json:"serviceId,omitempty"`
	CallID    int32 `json:"callId,omitempty"`
}

// ServerMessage is a server to client envelope. Exactly one field is set.
type ServerMessage struct {
	ServiceCreate  *CreateServiceResult  `json:"serviceCreate,omitempty"`
	ServiceRelease *ReleaseServiceResult `json:"serviceRelease,omitempty"`
	CallCreate     *CreateCallResult     `json:"callCreate,omitempty"`
	CallEvent      *CallEvent            `json:"callEvent,omitempty"`
	CallEnded      *CallEnded            `json:"callEnded,omitempty"`
}

// Kind returns the name of the populated envelope field, or "" for an empty message.
func (m *ClientMessage) Kind() string {
	switch {
	case m.ServiceCreate != nil:
		return "serviceCreate"
	case m.ServiceRelease != nil:
		return "serviceRelease"
	case m.CallCreate != nil:
		return "callCreate"
	case m.CallEnd != nil:
		return "callEnd"
	case m.CallSend != nil:
		return "callSend"
	}
	return ""
}

// Kind returns the name of the populated envelope field, or "" for an empty message.
func (m *ServerMessage) Kind() string {
	switch {
	case m.ServiceCreate != nil:
		return "serviceCreateResult"
	case m.ServiceRelease != nil:
		return "serviceReleaseResult"
	case m.CallCreate != nil:
		return "callCreateResult"
	case m.CallEvent != nil:
		return "callEvent"
	case m.CallEnded != nil:
		return "callEnded"
	}
	return ""
}
