package tree

// Leaf is a content bearing node with no children
type Leaf struct {
	nodeBase
	content []byte
	size    uint64
	uuid    string // Optional id to enable linking by the content layer
}

// NewLeaf creates a detached Leaf whose size is the length of content.
// content is retained, not copied.
func NewLeaf(name string, content []byte) (*Leaf, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return &Leaf{
		nodeBase: nodeBase{name: name},
		content:  content,
		size:     uint64(len(content)),
	}, nil
}

// NewSizedLeaf creates a detached Leaf without content reporting a fixed size,
// for content layers that keep the payload elsewhere.
func NewSizedLeaf(name string, size uint64) (*Leaf, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return &Leaf{nodeBase: nodeBase{name: name}, size: size}, nil
}

// WithUUID sets the leaf's link id and returns the leaf
func (l *Leaf) WithUUID(id string) *Leaf {
	l.uuid = id
	return l
}

func (l *Leaf) UUID() string {
	return l.uuid
}

// Content returns the stored payload; nil for sized leaves
func (l *Leaf) Content() []byte {
	return l.content
}

func (l *Leaf) Size() uint64 {
	return l.size
}

// Visit applies fn to the leaf itself
func (l *Leaf) Visit(fn func(Node)) {
	fn(l)
}
