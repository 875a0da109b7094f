// Package mock provides the mock.Greeter schema and a gRPC implementation of it
// built on dynamic messages, for tests and the mock-backend command.
package mock

import (
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/crazyfrankie/grpcbus/schema"
)

const (
	ServiceName = "mock.Greeter"

	SayHello             = "SayHello"
	SayHelloClientStream = "SayHelloClientStream"
	SayHelloServerStream = "SayHelloServerStream"
	SayHelloBidiStream   = "SayHelloBidiStream"
)

var (
	once     sync.Once
	files    *protoregistry.Files
	registry *schema.Registry
	buildErr error
)

// FileDescriptor returns the descriptor of mock.proto.
func FileDescriptor() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()

	method := func(name string, cs, ss bool) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:            proto.String(name),
			InputType:       proto.String(".mock.HelloRequest"),
			OutputType:      proto.String(".mock.HelloReply"),
			ClientStreaming: proto.Bool(cs),
			ServerStreaming: proto.Bool(ss),
		}
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("mock.proto"),
		Package: proto.String("mock"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("HelloRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("name"), Number: proto.Int32(1), Type: str, Label: optional, JsonName: proto.String("name")},
				},
			},
			{
				Name: proto.String("HelloReply"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("message"), Number: proto.Int32(1), Type: str, Label: optional, JsonName: proto.String("message")},
				},
			},
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{
			{
				Name: proto.String("EDummyEnum"),
				Value: []*descriptorpb.EnumValueDescriptorProto{
					{Name: proto.String("DUMMY"), Number: proto.Int32(0)},
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("Greeter"),
				Method: []*descriptorpb.MethodDescriptorProto{
					method(SayHello, false, false),
					method(SayHelloClientStream, true, false),
					method(SayHelloServerStream, false, true),
					method(SayHelloBidiStream, true, true),
				},
			},
		},
	}
}

func build() {
	files, buildErr = protodesc.NewFiles(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{FileDescriptor()},
	})
	if buildErr != nil {
		return
	}
	registry, buildErr = schema.NewRegistry(files)
}

// Files returns the mock schema as a file registry.
func Files() *protoregistry.Files {
	once.Do(build)
	if buildErr != nil {
		panic(buildErr)
	}
	return files
}

// Registry returns the mock schema indexed by dotted path.
func Registry() *schema.Registry {
	once.Do(build)
	if buildErr != nil {
		panic(buildErr)
	}
	return registry
}

func messageDescriptor(name protoreflect.FullName) protoreflect.MessageDescriptor {
	d, err := Files().FindDescriptorByName(name)
	if err != nil {
		panic(err)
	}
	return d.(protoreflect.MessageDescriptor)
}

// HelloRequest builds a mock.HelloRequest.
func HelloRequest(name string) proto.Message {
	md := messageDescriptor("mock.HelloRequest")
	msg := dynamicpb.NewMessage(md)
	if name != "" {
		msg.Set(md.Fields().ByName("name"), protoreflect.ValueOfString(name))
	}
	return msg
}

// HelloReply builds a mock.HelloReply.
func HelloReply(message string) proto.Message {
	md := messageDescriptor("mock.HelloReply")
	msg := dynamicpb.NewMessage(md)
	if message != "" {
		msg.Set(md.Fields().ByName("message"), protoreflect.ValueOfString(message))
	}
	return msg
}

// Name reads the name field of a HelloRequest.
func Name(m proto.Message) string {
	return stringField(m, "name")
}

// Message reads the message field of a HelloReply.
func Message(m proto.Message) string {
	return stringField(m, "message")
}

func stringField(m proto.Message, field protoreflect.Name) string {
	if m == nil {
		return ""
	}
	r := m.ProtoReflect()
	fd := r.Descriptor().Fields().ByName(field)
	if fd == nil {
		return ""
	}
	return r.Get(fd).String()
}
