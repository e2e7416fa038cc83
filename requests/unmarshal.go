package requests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/memfs"
)

// Manifest holds the requests of a nodes definition file, in file order per kind
type Manifest struct {
	Dirs  []*memfs.DirCreateRequest
	Files []*memfs.FileCreateRequest
}

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (memfs.NodeCreateRequestType, error) {
	var meta struct {
		Type memfs.NodeCreateRequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.Type, nil
}

// UnmarshalFileRequest handles file-specific unmarshaling
func UnmarshalFileRequest(data []byte) (*memfs.FileCreateRequest, error) {
	var dto FileRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	req := &memfs.FileCreateRequest{NodeRequest: convertNodeDTO(dto.NodeRequestDTO)}
	if dto.Content != nil {
		req.Content = []byte(*dto.Content)
		req.Size = uint64(len(req.Content))
	}
	return req, nil
}

// UnmarshalDirRequest handles explicit directory unmarshaling
func UnmarshalDirRequest(data []byte) (*memfs.DirCreateRequest, error) {
	var dto DirRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	return &memfs.DirCreateRequest{
		NodeRequest: convertNodeDTO(dto.NodeRequestDTO),
	}, nil
}

// ParseManifest parses a list of node definitions. ext selects the format:
// ".json", ".yaml" or ".yml".
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var rawNodes []json.RawMessage

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &rawNodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
	case ".yaml", ".yml":
		// YAML entries are re-encoded so both formats share the JSON DTOs
		var items []map[string]any
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
		for i, item := range items {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("manifest entry %d: %w", i, err)
			}
			rawNodes = append(rawNodes, raw)
		}
	default:
		return nil, fmt.Errorf("unknown manifest file extension: %s", ext)
	}

	m := &Manifest{}
	for i, rawNode := range rawNodes {
		nodeType, err := GetNodeType(rawNode)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}

		switch nodeType {
		case memfs.FileNodeType:
			req, err := UnmarshalFileRequest(rawNode)
			if err != nil {
				return nil, fmt.Errorf("manifest entry %d: %w", i, err)
			}
			m.Files = append(m.Files, req)
		case memfs.DirNodeType:
			req, err := UnmarshalDirRequest(rawNode)
			if err != nil {
				return nil, fmt.Errorf("manifest entry %d: %w", i, err)
			}
			m.Dirs = append(m.Dirs, req)
		default:
			return nil, fmt.Errorf("manifest entry %d: unknown node type %q", i, nodeType)
		}
	}
	return m, nil
}

// LoadManifestFile reads and parses a nodes definition file, choosing the
// format from its extension.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data, filepath.Ext(path))
}

// Conversion logic with defaults in the unmarshaling layer
func convertNodeDTO(dto NodeRequestDTO) memfs.NodeRequest {
	return memfs.NodeRequest{
		Path: dto.Path,
		Type: dto.Type,
		UUID: valueOrDefault(dto.UUID, uuid.New().String()),
		Size: valueOrDefault(dto.Size, 0),
	}
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
