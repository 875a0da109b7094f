package client

import (
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// EventKind is the kind of a call event.
type EventKind int

const (
	// EventData carries one response message.
	EventData EventKind = iota
	// EventError carries the error that failed the call.
	EventError
	// EventEnd marks the end of the response stream. It is delivered once,
	// also when the call is torn down without the server reporting an end,
	// in which case Err is ErrCallClosed.
	EventEnd
	// EventStatus carries the final status of a streaming call.
	EventStatus
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	case EventStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is one event of a call. Message is set for EventData, Err for
// EventError and Status for EventStatus. Error events from the backend also
// carry their Status.
type Event struct {
	Kind    EventKind
	Message proto.Message
	Err     error
	Status  *status.Status
}

// Listener receives the events of one kind.
type Listener func(Event)

// Callback receives the outcome of a call without a response stream, exactly
// once.
type Callback func(resp proto.Message, err error)
