package protocol

import (
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// EncodeStatus renders st as protojson for the JSONData field of a CallEvent.
func EncodeStatus(st *status.Status) string {
	b, err := protojson.Marshal(st.Proto())
	if err != nil {
		return st.Message()
	}
	return string(b)
}

// DecodeStatus parses a JSONData payload. Text that is not a status becomes an
// Unknown status carrying the raw text as its message.
func DecodeStatus(data string) *status.Status {
	var p spb.Status
	if err := protojson.Unmarshal([]byte(data), &p); err != nil {
		return status.New(codes.Unknown, data)
	}
	return status.FromProto(&p)
}
