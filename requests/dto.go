package requests

import "github.com/brettbedarf/memfs"

// NodeRequestDTO is the JSON/YAML representation of [memfs.NodeRequest]
type NodeRequestDTO struct {
	Path string                      `json:"path" yaml:"path"`
	Type memfs.NodeCreateRequestType `json:"type" yaml:"type"`
	UUID *string                     `json:"uuid,omitempty" yaml:"uuid,omitempty"` // Optional UUID to enable linking at request time
	Size *uint64                     `json:"size,omitempty" yaml:"size,omitempty"` // Optional size in bytes when content is absent
}

// FileRequestDTO is the JSON/YAML representation of [memfs.FileCreateRequest]
type FileRequestDTO struct {
	NodeRequestDTO `yaml:",inline"`
	Content        *string `json:"content,omitempty" yaml:"content,omitempty"`
}

type DirRequestDTO struct {
	NodeRequestDTO `yaml:",inline"`
}
