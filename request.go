// Package memfs contains the request types consumed by the memfs host layer
// to build an in-memory namespace.
package memfs

// NodeRequest has common fields embedded in concrete request types
type NodeRequest struct {
	Path string
	Type NodeCreateRequestType
	UUID string // Optional UUID to enable linking at request time
	Size uint64 // Used for files without Content
}

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType "dir"
type NodeCreateRequestType string

const (
	FileNodeType NodeCreateRequestType = "file"
	DirNodeType  NodeCreateRequestType = "dir"
)

// FileCreateRequest creates a leaf. When Content is non-nil the leaf's size is
// len(Content) and Size is ignored.
type FileCreateRequest struct {
	NodeRequest
	Content []byte
}

type DirCreateRequest struct {
	NodeRequest
}
