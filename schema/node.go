package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Kind tags the variant of a Node.
type Kind int

const (
	KindNamespace Kind = iota
	KindMessage
	KindEnum
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindMessage:
		return "message"
	case KindEnum:
		return "enum"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Node is one entry of the schema tree. The set of implementations is closed:
// *Namespace, *Message, *Enum and *Service.
type Node interface {
	Kind() Kind
	// Name is the last component of FullName.
	Name() string
	// FullName is the dotted path of the node, "" for the root namespace.
	FullName() string

	isNode()
}

// Namespace is a package path component.
type Namespace struct {
	name     string
	fullName string
	children map[string]Node
}

func newNamespace(name, fullName string) *Namespace {
	return &Namespace{name: name, fullName: fullName, children: make(map[string]Node)}
}

func (n *Namespace) Kind() Kind       { return KindNamespace }
func (n *Namespace) Name() string     { return n.name }
func (n *Namespace) FullName() string { return n.fullName }
func (*Namespace) isNode()            {}

// Children returns the direct children sorted by name.
func (n *Namespace) Children() []Node {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Node, 0, len(names))
	for _, name := range names {
		out = append(out, n.children[name])
	}
	return out
}

// Child returns the direct child called name.
func (n *Namespace) Child(name string) (Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Message is a message type together with its binary codec.
type Message struct {
	desc protoreflect.MessageDescriptor
}

func newMessage(desc protoreflect.MessageDescriptor) *Message {
	return &Message{desc: desc}
}

func (m *Message) Kind() Kind       { return KindMessage }
func (m *Message) Name() string     { return string(m.desc.Name()) }
func (m *Message) FullName() string { return string(m.desc.FullName()) }
func (*Message) isNode()            {}

// Descriptor returns the protobuf descriptor of the message.
func (m *Message) Descriptor() protoreflect.MessageDescriptor { return m.desc }

// New returns an empty value of the message type.
func (m *Message) New() *dynamicpb.Message {
	return dynamicpb.NewMessage(m.desc)
}

// FromJSON builds a value from its protojson form.
func (m *Message) FromJSON(data []byte) (proto.Message, error) {
	msg := m.New()
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("schema: decode %s from json: %w", m.FullName(), err)
	}
	return msg, nil
}

// Encode marshals v, which must be a value of this message type.
func (m *Message) Encode(v proto.Message) ([]byte, error) {
	if v == nil {
		return nil, errors.New("schema: cannot encode a nil message")
	}
	if got := v.ProtoReflect().Descriptor().FullName(); got != m.desc.FullName() {
		return nil, fmt.Errorf("schema: cannot encode %s as %s", got, m.desc.FullName())
	}
	return proto.Marshal(v)
}

// Decode unmarshals data into a new value of this message type.
func (m *Message) Decode(data []byte) (proto.Message, error) {
	msg := m.New()
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", m.FullName(), err)
	}
	return msg, nil
}

// Enum is an enum type.
type Enum struct {
	desc protoreflect.EnumDescriptor
}

func (e *Enum) Kind() Kind       { return KindEnum }
func (e *Enum) Name() string     { return string(e.desc.Name()) }
func (e *Enum) FullName() string { return string(e.desc.FullName()) }
func (*Enum) isNode()            {}

// Descriptor returns the protobuf descriptor of the enum.
func (e *Enum) Descriptor() protoreflect.EnumDescriptor { return e.desc }

// Number returns the number of the value called name.
func (e *Enum) Number(name string) (int32, bool) {
	v := e.desc.Values().ByName(protoreflect.Name(name))
	if v == nil {
		return 0, false
	}
	return int32(v.Number()), true
}

// ValueName returns the name of the value numbered n.
func (e *Enum) ValueName(n int32) (string, bool) {
	v := e.desc.Values().ByNumber(protoreflect.EnumNumber(n))
	if v == nil {
		return "", false
	}
	return string(v.Name()), true
}

// Service is an RPC service and its methods in declaration order.
type Service struct {
	desc    protoreflect.ServiceDescriptor
	methods []*Method
	byName  map[string]*Method
}

func newService(desc protoreflect.ServiceDescriptor) *Service {
	s := &Service{desc: desc, byName: make(map[string]*Method)}
	ms := desc.Methods()
	for i := 0; i < ms.Len(); i++ {
		md := ms.Get(i)
		m := &Method{
			desc:    md,
			service: s,
			input:   newMessage(md.Input()),
			output:  newMessage(md.Output()),
		}
		s.methods = append(s.methods, m)
		s.byName[m.Name()] = m
	}
	return s
}

func (s *Service) Kind() Kind       { return KindService }
func (s *Service) Name() string     { return string(s.desc.Name()) }
func (s *Service) FullName() string { return string(s.desc.FullName()) }
func (*Service) isNode()            {}

// Descriptor returns the protobuf descriptor of the service.
func (s *Service) Descriptor() protoreflect.ServiceDescriptor { return s.desc }

// Methods returns the methods in declaration order.
func (s *Service) Methods() []*Method { return s.methods }

// Method looks a method up by its declared name, e.g. "SayHello".
func (s *Service) Method(name string) (*Method, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Method is one RPC of a Service.
type Method struct {
	desc    protoreflect.MethodDescriptor
	service *Service
	input   *Message
	output  *Message
}

// Name is the declared method name.
func (m *Method) Name() string { return string(m.desc.Name()) }

// StubName is the name with its first letter lowercased, e.g. "sayHello".
func (m *Method) StubName() string {
	name := m.Name()
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// FullMethod is the gRPC path, e.g. "/mock.Greeter/SayHello".
func (m *Method) FullMethod() string {
	return "/" + m.service.FullName() + "/" + m.Name()
}

func (m *Method) Service() *Service     { return m.service }
func (m *Method) Input() *Message       { return m.input }
func (m *Method) Output() *Message      { return m.output }
func (m *Method) ClientStreaming() bool { return m.desc.IsStreamingClient() }
func (m *Method) ServerStreaming() bool { return m.desc.IsStreamingServer() }

// Descriptor returns the protobuf descriptor of the method.
func (m *Method) Descriptor() protoreflect.MethodDescriptor { return m.desc }

// LookupError reports a path that is missing or names the wrong kind of node.
type LookupError struct {
	Path    string
	Want    Kind
	Got     Kind
	Missing bool
}

func (e *LookupError) Error() string {
	if e.Missing {
		return e.Path + " was not found"
	}
	return fmt.Sprintf("%s is a %s not a %s", e.Path, e.Got, e.Want)
}
