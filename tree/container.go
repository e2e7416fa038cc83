package tree

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
)

// RootName is the name given to containers created by [NewRoot]
const RootName = "/"

// SkipContainer may be returned by a [WalkFunc] to skip the container it was
// called with. Returned for a leaf it is ignored.
var SkipContainer = errors.New("skip this container")

// WalkFunc is called by [Container.Walk] for every descendant. segments is the
// node's path relative to the walked container and may be retained.
type WalkFunc func(segments []string, n Node) error

// Container is a node owning an ordered set of uniquely named children.
//
// children keeps insertion order for listing while index provides the
// uniqueness check and O(1) lookups.
type Container struct {
	nodeBase
	children []Node
	index    *xsync.Map[string, Node]
}

// NewContainer creates an empty detached container.
func NewContainer(name string) (*Container, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return newContainer(name), nil
}

// NewRoot creates an empty container named [RootName]
func NewRoot() *Container {
	return newContainer(RootName)
}

func newContainer(name string) *Container {
	return &Container{
		nodeBase: nodeBase{name: name},
		children: make([]Node, 0),
		index:    xsync.NewMap[string, Node](),
	}
}

// Lookup returns the direct child called name
func (c *Container) Lookup(name string) (Node, error) {
	if child, ok := c.index.Load(name); ok {
		return child, nil
	}
	return nil, &NodeError{Op: "lookup", Name: name, Err: ErrNotFound}
}

// Insert appends node to the children and makes c its owner.
// Fails with ErrAlreadyExists, leaving c unchanged, when a child of the same
// name exists.
//
// Panics if node is nil, already owned by a container, or is c itself or one
// of c's ancestors.
func (c *Container) Insert(node Node) error {
	if node == nil {
		panic("tree: insert of nil node")
	}
	b := node.base()
	if b.parent != nil {
		panic(fmt.Sprintf("tree: insert of %q already owned by %q", b.name, b.parent.name))
	}
	if sub, ok := node.(*Container); ok && sub.isAncestorOf(c) {
		panic(fmt.Sprintf("tree: insert of %q into its own subtree", b.name))
	}

	if _, loaded := c.index.LoadOrStore(b.name, node); loaded {
		return &NodeError{Op: "insert", Name: b.name, Err: ErrAlreadyExists}
	}
	c.children = append(c.children, node)
	b.parent = c
	return nil
}

// isAncestorOf reports whether c is n or one of n's ancestors
func (c *Container) isAncestorOf(n *Container) bool {
	for p := n; p != nil; p = p.parent {
		if p == c {
			return true
		}
	}
	return false
}

// Remove detaches the child called name and returns it with its subtree.
// Fails with ErrNotFound, leaving c unchanged, when there is no such child.
func (c *Container) Remove(name string) (Node, error) {
	child, ok := c.index.LoadAndDelete(name)
	if !ok {
		return nil, &NodeError{Op: "remove", Name: name, Err: ErrNotFound}
	}
	c.children = slices.DeleteFunc(c.children, func(n Node) bool { return n == child })
	child.base().parent = nil
	return child, nil
}

// List returns the names of the direct children in insertion order
func (c *Container) List() []string {
	names := make([]string, 0, len(c.children))
	for _, child := range c.children {
		names = append(names, child.Name())
	}
	return names
}

// ListRecursive returns a lazy depth-first sequence of the names of all leaves
// below c. Containers are descended into but not yielded. The sequence can be
// ranged over any number of times; it reflects the tree at iteration time.
func (c *Container) ListRecursive() iter.Seq[string] {
	return func(yield func(string) bool) {
		c.yieldLeaves(yield)
	}
}

func (c *Container) yieldLeaves(yield func(string) bool) bool {
	for _, child := range c.children {
		switch n := child.(type) {
		case *Container:
			if !n.yieldLeaves(yield) {
				return false
			}
		case *Leaf:
			if !yield(n.name) {
				return false
			}
		}
	}
	return true
}

// Find searches the whole subtree below c depth-first, in pre-order, and
// returns the first node called name. A child is compared before its own
// subtree is searched, and a subtree is exhausted before the next sibling.
func (c *Container) Find(name string) (Node, error) {
	for _, child := range c.children {
		if child.Name() == name {
			return child, nil
		}
		sub, ok := child.(*Container)
		if !ok {
			continue
		}
		found, err := sub.Find(name)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, &NodeError{Op: "find", Name: name, Err: ErrNotFound}
}

// Size returns the sum of all leaf sizes below c. Never cached.
func (c *Container) Size() uint64 {
	var total uint64
	for _, child := range c.children {
		total += child.Size()
	}
	return total
}

// Visit applies fn to every descendant of c, leaves and containers, depth-first
// in pre-order following child order. fn is not applied to c itself.
func (c *Container) Visit(fn func(Node)) {
	for _, child := range c.children {
		fn(child)
		if sub, ok := child.(*Container); ok {
			sub.Visit(fn)
		}
	}
}

// Walk calls fn for every descendant in the same order as [Container.Visit].
// Returning SkipContainer skips that container's subtree; any other error stops
// the walk and is returned.
func (c *Container) Walk(fn WalkFunc) error {
	return c.walk(nil, fn)
}

func (c *Container) walk(prefix []string, fn WalkFunc) error {
	for _, child := range c.children {
		segs := append(slices.Clip(prefix), child.Name())
		err := fn(segs, child)
		if errors.Is(err, SkipContainer) {
			continue
		}
		if err != nil {
			return err
		}
		if sub, ok := child.(*Container); ok {
			if err := sub.walk(segs, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Children returns a copy of the direct children in insertion order
func (c *Container) Children() []Node {
	return slices.Clone(c.children)
}

// Len returns the number of direct children
func (c *Container) Len() int {
	return len(c.children)
}
