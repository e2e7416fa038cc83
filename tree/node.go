// Package tree implements an in-memory namespace of named nodes.
//
// A [Container] exclusively owns its children; a [Leaf] carries opaque content
// and a fixed size. Nothing in this package locks, logs or prints: callers that
// share a tree between goroutines must impose their own discipline (see
// filesystem.SyncFS).
package tree

import "strings"

// Node is implemented by *Leaf and *Container only.
type Node interface {
	// Name returns the node's name; constant for the node's lifetime
	Name() string
	// Size returns the byte size; recursive sum for containers
	Size() uint64
	// Visit applies fn to this leaf, or to every descendant of a container.
	// See [Container.Visit] for ordering.
	Visit(fn func(Node))
	// Parent returns the owning container or nil if detached
	Parent() *Container
	// Path returns the node's path from its topmost ancestor
	Path() string

	base() *nodeBase
}

// nodeBase holds the fields common to all node variants
type nodeBase struct {
	name   string
	parent *Container // non-owning back reference; nil when detached
}

func (n *nodeBase) base() *nodeBase { return n }

// Name returns the node's immutable name.
func (n *nodeBase) Name() string {
	return n.name
}

func (n *nodeBase) Parent() *Container {
	return n.parent
}

// Path returns the names from the topmost ancestor (excluded) down to this node
// joined by "/". A detached node or a root returns "".
func (n *nodeBase) Path() string {
	if n.parent == nil {
		return ""
	}
	segs := []string{n.name}
	for p := n.parent; p.parent != nil; p = p.parent {
		segs = append(segs, p.name)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}
