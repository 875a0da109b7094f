package client

import (
	"fmt"
	"strings"

	"github.com/crazyfrankie/grpcbus/schema"
)

// Tree is a view of the schema rooted at one node. Namespaces are navigated
// with Child and Lookup, services are opened with Service.
type Tree struct {
	c    *Client
	node schema.Node
}

// BuildTree returns the tree rooted at base, a dotted path. The empty path is
// the root namespace.
func (c *Client) BuildTree(base string) (*Tree, error) {
	n, ok := c.reg.Lookup(base)
	if !ok {
		return nil, fmt.Errorf("Base identifier %s not found.", base)
	}
	return &Tree{c: c, node: n}, nil
}

func (t *Tree) Node() schema.Node { return t.node }
func (t *Tree) Kind() schema.Kind { return t.node.Kind() }

// Child returns the direct child called name of a namespace.
func (t *Tree) Child(name string) (*Tree, bool) {
	ns, ok := t.node.(*schema.Namespace)
	if !ok {
		return nil, false
	}
	n, ok := ns.Child(name)
	if !ok {
		return nil, false
	}
	return &Tree{c: t.c, node: n}, true
}

// Lookup follows a dotted path of children.
func (t *Tree) Lookup(path string) (*Tree, bool) {
	cur := t
	for _, name := range strings.Split(path, ".") {
		var ok bool
		if cur, ok = cur.Child(name); !ok {
			return nil, false
		}
	}
	return cur, true
}

// Children returns the direct children of a namespace sorted by name, and nil
// for any other node.
func (t *Tree) Children() []*Tree {
	ns, ok := t.node.(*schema.Namespace)
	if !ok {
		return nil
	}
	var out []*Tree
	for _, n := range ns.Children() {
		out = append(out, &Tree{c: t.c, node: n})
	}
	return out
}

// Service opens the service at this node, served at endpoint.
func (t *Tree) Service(endpoint string) (*PendingService, error) {
	if t.node.Kind() != schema.KindService {
		return nil, &schema.LookupError{Path: t.node.FullName(), Want: schema.KindService, Got: t.node.Kind()}
	}
	return t.c.NewService(t.node.FullName(), endpoint)
}

// Message returns the message type at this node.
func (t *Tree) Message() (*schema.Message, bool) {
	m, ok := t.node.(*schema.Message)
	return m, ok
}

// Enum returns the enum type at this node.
func (t *Tree) Enum() (*schema.Enum, bool) {
	e, ok := t.node.(*schema.Enum)
	return e, ok
}
