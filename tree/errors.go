package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a name does not exist where it was looked for
	ErrNotFound = errors.New("no such node")
	// ErrAlreadyExists is returned when an insert collides with a sibling name
	ErrAlreadyExists = errors.New("node already exists")
	// ErrInvalidName is returned when constructing a node with an empty name
	ErrInvalidName = errors.New("invalid node name")
	// ErrNotContainer is returned when a container is required but a leaf was found
	ErrNotContainer = errors.New("not a container")
)

// NodeError records a failed operation on a container's children
type NodeError struct {
	Op   string // "lookup", "insert", "remove", "find"
	Name string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// ResolveError reports the first path segment that could not be resolved
type ResolveError struct {
	Segment string
	Index   int // position of Segment in the resolved sequence
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve segment %d %q: %v", e.Index, e.Segment, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
