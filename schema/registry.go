// Package schema resolves dotted schema paths to typed nodes and provides the
// binary codecs of message types. It is built once from protobuf descriptors.
package schema

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Registry is an immutable lookup table from dotted path to Node.
type Registry struct {
	root  *Namespace
	nodes map[string]Node
}

// NewRegistry indexes every file in files.
func NewRegistry(files *protoregistry.Files) (*Registry, error) {
	r := &Registry{
		root:  newNamespace("", ""),
		nodes: make(map[string]Node),
	}
	r.nodes[""] = r.root

	var err error
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		err = r.addFile(fd)
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// NewRegistryFromSet indexes a FileDescriptorSet, as produced by
// protoc --descriptor_set_out --include_imports.
func NewRegistryFromSet(set *descriptorpb.FileDescriptorSet) (*Registry, error) {
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("schema: build files: %w", err)
	}
	return NewRegistry(files)
}

// LoadDescriptorSets reads and merges descriptor set files.
func LoadDescriptorSets(paths ...string) (*Registry, error) {
	merged := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]bool)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", path, err)
		}

		var set descriptorpb.FileDescriptorSet
		if err := proto.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", path, err)
		}

		for _, f := range set.GetFile() {
			if seen[f.GetName()] {
				continue
			}
			seen[f.GetName()] = true
			merged.File = append(merged.File, f)
		}
	}

	return NewRegistryFromSet(merged)
}

// Root returns the root namespace.
func (r *Registry) Root() *Namespace { return r.root }

// Lookup resolves a dotted path. The empty path is the root namespace.
func (r *Registry) Lookup(path string) (Node, bool) {
	n, ok := r.nodes[path]
	return n, ok
}

// Service resolves path to a service.
func (r *Registry) Service(path string) (*Service, error) {
	n, ok := r.nodes[path]
	if !ok {
		return nil, &LookupError{Path: path, Want: KindService, Missing: true}
	}
	s, ok := n.(*Service)
	if !ok {
		return nil, &LookupError{Path: path, Want: KindService, Got: n.Kind()}
	}
	return s, nil
}

// Message resolves path to a message type.
func (r *Registry) Message(path string) (*Message, error) {
	n, ok := r.nodes[path]
	if !ok {
		return nil, &LookupError{Path: path, Want: KindMessage, Missing: true}
	}
	m, ok := n.(*Message)
	if !ok {
		return nil, &LookupError{Path: path, Want: KindMessage, Got: n.Kind()}
	}
	return m, nil
}

// Walk visits base and every namespace descendant depth first, children in
// name order. Returning an error from fn stops the walk.
func Walk(base Node, fn func(Node) error) error {
	if err := fn(base); err != nil {
		return err
	}
	ns, ok := base.(*Namespace)
	if !ok {
		return nil
	}
	for _, child := range ns.Children() {
		if err := Walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) addFile(fd protoreflect.FileDescriptor) error {
	ns, err := r.namespace(string(fd.Package()))
	if err != nil {
		return err
	}

	msgs := fd.Messages()
	for i := 0; i < msgs.Len(); i++ {
		if err := r.addMessage(ns, msgs.Get(i)); err != nil {
			return err
		}
	}

	enums := fd.Enums()
	for i := 0; i < enums.Len(); i++ {
		if err := r.insert(ns, &Enum{desc: enums.Get(i)}); err != nil {
			return err
		}
	}

	services := fd.Services()
	for i := 0; i < services.Len(); i++ {
		if err := r.insert(ns, newService(services.Get(i))); err != nil {
			return err
		}
	}

	return nil
}

// addMessage registers md and its nested types. Nested types are reachable by
// path but are not children of the namespace.
func (r *Registry) addMessage(ns *Namespace, md protoreflect.MessageDescriptor) error {
	if md.IsMapEntry() {
		return nil
	}
	if err := r.insert(ns, newMessage(md)); err != nil {
		return err
	}

	nested := md.Messages()
	for i := 0; i < nested.Len(); i++ {
		if err := r.addMessage(nil, nested.Get(i)); err != nil {
			return err
		}
	}
	enums := md.Enums()
	for i := 0; i < enums.Len(); i++ {
		if err := r.insert(nil, &Enum{desc: enums.Get(i)}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) insert(parent *Namespace, n Node) error {
	if _, ok := r.nodes[n.FullName()]; ok {
		return fmt.Errorf("schema: duplicate definition of %s", n.FullName())
	}
	r.nodes[n.FullName()] = n
	if parent != nil {
		parent.children[n.Name()] = n
	}
	return nil
}

// namespace returns the namespace for a package, creating missing components.
func (r *Registry) namespace(pkg string) (*Namespace, error) {
	ns := r.root
	if pkg == "" {
		return ns, nil
	}

	var full string
	for _, name := range strings.Split(pkg, ".") {
		if full == "" {
			full = name
		} else {
			full = full + "." + name
		}

		child, ok := ns.children[name]
		if !ok {
			next := newNamespace(name, full)
			ns.children[name] = next
			r.nodes[full] = next
			ns = next
			continue
		}

		next, ok := child.(*Namespace)
		if !ok {
			return nil, fmt.Errorf("schema: package %s collides with %s %s", pkg, child.Kind(), full)
		}
		ns = next
	}
	return ns, nil
}
