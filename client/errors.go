package client

import (
	"errors"
	"fmt"

	"github.com/crazyfrankie/grpcbus/protocol"
)

// Argument and callback arity errors, returned before anything is sent.
var (
	ErrArgumentForRequestStream  = errors.New("Argument should not be specified for a request stream.")
	ErrArgumentRequired          = errors.New("Argument must be specified for a non-streaming request.")
	ErrCallbackForResponseStream = errors.New("Callback should not be specified for a response stream.")
	ErrCallbackRequired          = errors.New("Callback should be specified for a non-streaming response.")
	ErrWriteNonStreaming         = errors.New("Cannot write to a non-streaming request.")
)

var (
	ErrCallClosed    = errors.New("client: call is closed")
	ErrServiceClosed = errors.New("client: service is closed")
	ErrNoSuchMethod  = errors.New("client: no such method")
)

// CreateError reports a service or call the server refused to create.
type CreateError struct {
	Code    protocol.ResultCode
	Details string
}

func (e *CreateError) Error() string {
	if e.Details != "" {
		return e.Details
	}
	return fmt.Sprintf("Error %d", e.Code)
}
