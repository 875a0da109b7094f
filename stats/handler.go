// Package stats reports the lifecycle of proxied calls and backend
// connections to an observer.
package stats

import (
	"context"
	"time"
)

// Handler defines the interface for call stats collection. Methods are called
// from the server's serialized context and must not block.
type Handler interface {
	// TagCall can attach some information to the given context.
	// The context used for the rest lifetime of the call will be derived from
	// the returned context.
	TagCall(ctx context.Context, info *CallTagInfo) context.Context
	// HandleCall processes the call stats.
	HandleCall(ctx context.Context, stats CallStats)
	// TagConn can attach some information to the given context.
	// The returned context will be used for stats handling.
	TagConn(ctx context.Context, info *ConnTagInfo) context.Context
	// HandleConn processes the backend connection stats.
	HandleConn(ctx context.Context, stats ConnStats)
}

// CallStats contains stats information about calls.
type CallStats interface {
	isCallStats()
}

// ConnStats contains stats information about backend connections.
type ConnStats interface {
	isConnStats()
}

// CallTagInfo defines the relevant information needed by call context tagger.
type CallTagInfo struct {
	// ServiceID and CallID are the client-assigned identifiers.
	ServiceID int32
	CallID    int32
	// FullMethodName is the method in the format of /package.service/method.
	FullMethodName string
}

// ConnTagInfo defines the relevant information needed by connection context tagger.
type ConnTagInfo struct {
	// Endpoint is the backend address as requested by the client.
	Endpoint string
	// Service is the dotted schema path of the service.
	Service string
}

// Begin contains stats when a call begins.
type Begin struct {
	// BeginTime is the time when the call begins.
	BeginTime time.Time
	// IsClientStream indicates whether the call is a client streaming call.
	IsClientStream bool
	// IsServerStream indicates whether the call is a server streaming call.
	IsServerStream bool
}

// InPayload contains the information for a message received from the backend.
type InPayload struct {
	// Length is the length of the encoded message.
	Length int
	// RecvTime is the time when the payload is received.
	RecvTime time.Time
}

// OutPayload contains the information for a message written to the backend.
type OutPayload struct {
	// Length is the length of the encoded message.
	Length int
	// SentTime is the time when the payload is sent.
	SentTime time.Time
}

// End contains stats when a call ends.
type End struct {
	// BeginTime is the time when the call began.
	BeginTime time.Time
	// EndTime is the time when the call ends.
	EndTime time.Time
	// Error is the error the call ended with, nil on success or when the call
	// was ended by the client before it completed. It is an error generated
	// from status.Status.
	Error error
}

// ConnBegin contains the stats of a backend connection when it is established.
type ConnBegin struct {
	BeginTime time.Time
}

// ConnEnd contains the stats of a backend connection when it is closed.
type ConnEnd struct {
	EndTime time.Time
}

func (*Begin) isCallStats()      {}
func (*InPayload) isCallStats()  {}
func (*OutPayload) isCallStats() {}
func (*End) isCallStats()        {}
func (*ConnBegin) isConnStats()  {}
func (*ConnEnd) isConnStats()    {}

type callTagKey struct{}
type connTagKey struct{}

// WithCallTag stores info in ctx so that HandleCall can recover it.
func WithCallTag(ctx context.Context, info *CallTagInfo) context.Context {
	return context.WithValue(ctx, callTagKey{}, info)
}

// CallTag returns the info stored by WithCallTag.
func CallTag(ctx context.Context) (*CallTagInfo, bool) {
	info, ok := ctx.Value(callTagKey{}).(*CallTagInfo)
	return info, ok
}

// WithConnTag stores info in ctx so that HandleConn can recover it.
func WithConnTag(ctx context.Context, info *ConnTagInfo) context.Context {
	return context.WithValue(ctx, connTagKey{}, info)
}

// ConnTag returns the info stored by WithConnTag.
func ConnTag(ctx context.Context) (*ConnTagInfo, bool) {
	info, ok := ctx.Value(connTagKey{}).(*ConnTagInfo)
	return info, ok
}
