package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/crazyfrankie/grpcbus/internal/mock"
	"github.com/crazyfrankie/grpcbus/schema"
)

func TestLookup(t *testing.T) {
	reg := mock.Registry()

	root, ok := reg.Lookup("")
	require.True(t, ok)
	assert.Equal(t, schema.KindNamespace, root.Kind())

	ns, ok := reg.Lookup("mock")
	require.True(t, ok)
	assert.Equal(t, schema.KindNamespace, ns.Kind())

	names := []string{}
	for _, child := range ns.(*schema.Namespace).Children() {
		names = append(names, child.Name())
	}
	assert.Equal(t, []string{"EDummyEnum", "Greeter", "HelloReply", "HelloRequest"}, names)

	svc, err := reg.Service("mock.Greeter")
	require.NoError(t, err)
	assert.Equal(t, "Greeter", svc.Name())

	enum, ok := reg.Lookup("mock.EDummyEnum")
	require.True(t, ok)
	n, ok := enum.(*schema.Enum).Number("DUMMY")
	assert.True(t, ok)
	assert.Equal(t, int32(0), n)
}

func TestLookupErrors(t *testing.T) {
	reg := mock.Registry()

	_, err := reg.Service("mock.wow.NotExist")
	require.Error(t, err)
	assert.Equal(t, "mock.wow.NotExist was not found", err.Error())

	_, err = reg.Service("mock.HelloRequest")
	var lookupErr *schema.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.False(t, lookupErr.Missing)
	assert.Equal(t, schema.KindMessage, lookupErr.Got)
	assert.Equal(t, "mock.HelloRequest is a message not a service", err.Error())

	_, err = reg.Message("mock.Greeter")
	assert.Equal(t, "mock.Greeter is a service not a message", err.Error())
}

func TestMethods(t *testing.T) {
	svc, err := mock.Registry().Service("mock.Greeter")
	require.NoError(t, err)

	tests := []struct {
		name       string
		stub       string
		clientSide bool
		serverSide bool
	}{
		{name: "SayHello", stub: "sayHello"},
		{name: "SayHelloClientStream", stub: "sayHelloClientStream", clientSide: true},
		{name: "SayHelloServerStream", stub: "sayHelloServerStream", serverSide: true},
		{name: "SayHelloBidiStream", stub: "sayHelloBidiStream", clientSide: true, serverSide: true},
	}

	methods := svc.Methods()
	require.Len(t, methods, len(tests))
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := methods[i]
			assert.Equal(t, tt.name, m.Name())
			assert.Equal(t, tt.stub, m.StubName())
			assert.Equal(t, "/mock.Greeter/"+tt.name, m.FullMethod())
			assert.Equal(t, tt.clientSide, m.ClientStreaming())
			assert.Equal(t, tt.serverSide, m.ServerStreaming())
			assert.Equal(t, "mock.HelloRequest", m.Input().FullName())
			assert.Equal(t, "mock.HelloReply", m.Output().FullName())
		})
	}
}

func TestMessageCodec(t *testing.T) {
	msg, err := mock.Registry().Message("mock.HelloRequest")
	require.NoError(t, err)

	data, err := msg.Encode(mock.HelloRequest("kappa"))
	require.NoError(t, err)

	decoded, err := msg.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "kappa", mock.Name(decoded))
	assert.True(t, proto.Equal(mock.HelloRequest("kappa"), decoded))

	_, err = msg.Encode(mock.HelloReply("nope"))
	assert.Error(t, err)

	_, err = msg.Decode([]byte{0xff, 0xff})
	assert.Error(t, err)

	fromJSON, err := msg.FromJSON([]byte(`{"name":"json"}`))
	require.NoError(t, err)
	assert.Equal(t, "json", mock.Name(fromJSON))
}

func TestWalk(t *testing.T) {
	var visited []string
	err := schema.Walk(mock.Registry().Root(), func(n schema.Node) error {
		visited = append(visited, n.FullName())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "mock", "mock.EDummyEnum", "mock.Greeter", "mock.HelloReply", "mock.HelloRequest"}, visited)
}

func TestLoadDescriptorSets(t *testing.T) {
	set := &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{mock.FileDescriptor()}}
	data, err := proto.Marshal(set)
	require.NoError(t, err)

	dir := t.TempDir()
	first := filepath.Join(dir, "a.pb")
	second := filepath.Join(dir, "b.pb")
	require.NoError(t, os.WriteFile(first, data, 0o600))
	require.NoError(t, os.WriteFile(second, data, 0o600))

	reg, err := schema.LoadDescriptorSets(first, second)
	require.NoError(t, err)
	_, err = reg.Service("mock.Greeter")
	assert.NoError(t, err)

	_, err = schema.LoadDescriptorSets(filepath.Join(dir, "missing.pb"))
	assert.Error(t, err)
}
