package tree

// Resolve looks up each segment in turn starting at start and returns the final
// node. An empty segments resolves to start. Segments are expected to be
// validated by the caller.
//
// On failure the returned error is a *ResolveError naming the first segment
// that could not be found. A leaf in a non-final position has no children, so
// the segment after it is reported as not found.
func Resolve(start *Container, segments []string) (Node, error) {
	var cur Node = start
	for i, seg := range segments {
		dir, ok := cur.(*Container)
		if !ok {
			return nil, &ResolveError{Segment: seg, Index: i, Err: ErrNotFound}
		}
		next, err := dir.Lookup(seg)
		if err != nil {
			return nil, &ResolveError{Segment: seg, Index: i, Err: err}
		}
		cur = next
	}
	return cur, nil
}

// ResolveContainer is [Resolve] requiring the final node to be a container.
func ResolveContainer(start *Container, segments []string) (*Container, error) {
	n, err := Resolve(start, segments)
	if err != nil {
		return nil, err
	}
	dir, ok := n.(*Container)
	if !ok {
		seg := n.Name()
		return nil, &ResolveError{Segment: seg, Index: len(segments) - 1, Err: ErrNotContainer}
	}
	return dir, nil
}
