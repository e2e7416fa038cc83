package filesystem

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/tree"
)

// ErrInvalidPath is returned when a path string cannot be split into valid segments
var ErrInvalidPath = errors.New("invalid path")

// FileSystem is the host layer over a [tree.Container] root. It turns path
// strings into segments, creates missing ancestors and logs mutations.
// It is not safe for concurrent use; see [SyncFS].
type FileSystem struct {
	cfg  *config.Config
	root *tree.Container // Root of node tree
}

// NewFS creates an empty FileSystem. A nil cfg uses the defaults.
func NewFS(cfg *config.Config) *FileSystem {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &FileSystem{cfg: cfg, root: tree.NewRoot()}
}

func (fs *FileSystem) Root() *tree.Container {
	return fs.root
}

// Separator returns the configured path segment separator
func (fs *FileSystem) Separator() string {
	return fs.cfg.Separator
}

// PathOf returns the absolute path of n built with the configured separator.
// The root, and any node detached from a parent, is rendered as the separator alone.
func (fs *FileSystem) PathOf(n tree.Node) string {
	var segs []string
	for cur := n; cur.Parent() != nil; cur = cur.Parent() {
		segs = append(segs, cur.Name())
	}
	slices.Reverse(segs)
	return fs.cfg.Separator + strings.Join(segs, fs.cfg.Separator)
}

// SplitPath splits p on the configured separator. Leading and trailing
// separators are ignored so "", "/" both name the root. Empty inner segments
// and segments or depths over the configured limits are rejected with
// ErrInvalidPath.
func (fs *FileSystem) SplitPath(p string) ([]string, error) {
	sep := fs.cfg.Separator
	trimmed := strings.TrimSuffix(strings.TrimPrefix(p, sep), sep)
	if trimmed == "" {
		return nil, nil
	}

	segs := strings.Split(trimmed, sep)
	if fs.cfg.MaxDepth > 0 && len(segs) > fs.cfg.MaxDepth {
		return nil, fmt.Errorf("%w: %q has %d segments, max %d", ErrInvalidPath, p, len(segs), fs.cfg.MaxDepth)
	}
	for i, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment at %d", ErrInvalidPath, p, i)
		}
		if fs.cfg.MaxNameLen > 0 && len(seg) > fs.cfg.MaxNameLen {
			return nil, fmt.Errorf("%w: segment %q longer than %d bytes", ErrInvalidPath, seg, fs.cfg.MaxNameLen)
		}
	}
	return segs, nil
}

// Stat returns the node at p
func (fs *FileSystem) Stat(p string) (tree.Node, error) {
	segs, err := fs.SplitPath(p)
	if err != nil {
		return nil, err
	}
	return tree.Resolve(fs.root, segs)
}

// AddFileNode adds a new leaf to the filesystem. It will add any missing
// directories in the path and return the newly created leaf.
// If a node already exists at the requested path, it returns an error
// matching tree.ErrAlreadyExists.
func (fs *FileSystem) AddFileNode(req *memfs.FileCreateRequest) (*tree.Leaf, error) {
	logger := util.GetLogger("FS.AddFileNode")

	segs, err := fs.SplitPath(req.Path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: file path %q names the root", ErrInvalidPath, req.Path)
	}

	dirSegs, name := segs[:len(segs)-1], segs[len(segs)-1]
	parent, err := fs.ensureDirs(dirSegs)
	if err != nil {
		logger.Debug().Err(err).Str("path", req.Path).Msg("Failed to create file's ancestor directory(s)")
		return nil, err
	}

	var leaf *tree.Leaf
	if req.Content != nil {
		leaf, err = tree.NewLeaf(name, req.Content)
	} else {
		leaf, err = tree.NewSizedLeaf(name, req.Size)
	}
	if err != nil {
		return nil, err
	}
	leaf.WithUUID(req.UUID)

	if err := parent.Insert(leaf); err != nil {
		logger.Debug().Err(err).Str("path", req.Path).Msg("Failed to create file")
		return nil, err
	}
	logger.Debug().Str("path", req.Path).Uint64("size", leaf.Size()).Msg("Added new file node")
	return leaf, nil
}

// AddDirNode recursively adds all missing directories in the request's path
// and returns the last one.
// It is equivalent to calling `mkdir -p` from a shell and similarly will only create
// directories that do not already exist and will not error if the leaf already exists.
func (fs *FileSystem) AddDirNode(req *memfs.DirCreateRequest) (*tree.Container, error) {
	segs, err := fs.SplitPath(req.Path)
	if err != nil {
		return nil, err
	}
	return fs.ensureDirs(segs)
}

// ensureDirs walks segs from the root creating missing containers.
// A leaf in the way fails with tree.ErrAlreadyExists.
func (fs *FileSystem) ensureDirs(segs []string) (*tree.Container, error) {
	logger := util.GetLogger("FS.ensureDirs")

	cur := fs.root
	newCnt := 0
	for _, name := range segs {
		child, err := cur.Lookup(name)
		if err == nil {
			dir, ok := child.(*tree.Container)
			if !ok {
				return nil, &tree.NodeError{Op: "mkdir", Name: child.Path(), Err: tree.ErrAlreadyExists}
			}
			cur = dir
			continue
		}

		dir, err := tree.NewContainer(name)
		if err != nil {
			return nil, err
		}
		if err := cur.Insert(dir); err != nil {
			return nil, err
		}
		newCnt++
		cur = dir
	}
	if newCnt > 0 {
		logger.Debug().Str("path", strings.Join(segs, fs.cfg.Separator)).Msg(fmt.Sprintf("Created %d new dir(s)", newCnt))
	}
	return cur, nil
}

// Remove detaches the node at p from its parent and returns it
func (fs *FileSystem) Remove(p string) (tree.Node, error) {
	logger := util.GetLogger("FS.Remove")

	segs, err := fs.SplitPath(p)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: cannot remove the root", ErrInvalidPath)
	}
	parent, err := tree.ResolveContainer(fs.root, segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	removed, err := parent.Remove(segs[len(segs)-1])
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("path", p).Msg("Removed node")
	return removed, nil
}

// List returns the direct child names of the container at p
func (fs *FileSystem) List(p string) ([]string, error) {
	dir, err := fs.container(p)
	if err != nil {
		return nil, err
	}
	return dir.List(), nil
}

// ListRecursive returns the leaf names below the container at p.
// See [tree.Container.ListRecursive].
func (fs *FileSystem) ListRecursive(p string) (iter.Seq[string], error) {
	dir, err := fs.container(p)
	if err != nil {
		return nil, err
	}
	return dir.ListRecursive(), nil
}

// Find searches below the container at p for name. See [tree.Container.Find].
func (fs *FileSystem) Find(p, name string) (tree.Node, error) {
	dir, err := fs.container(p)
	if err != nil {
		return nil, err
	}
	return dir.Find(name)
}

// Size returns the size of the node at p
func (fs *FileSystem) Size(p string) (uint64, error) {
	n, err := fs.Stat(p)
	if err != nil {
		return 0, err
	}
	return n.Size(), nil
}

// Walk walks the container at p. See [tree.Container.Walk].
func (fs *FileSystem) Walk(p string, fn tree.WalkFunc) error {
	dir, err := fs.container(p)
	if err != nil {
		return err
	}
	return dir.Walk(fn)
}

func (fs *FileSystem) container(p string) (*tree.Container, error) {
	segs, err := fs.SplitPath(p)
	if err != nil {
		return nil, err
	}
	return tree.ResolveContainer(fs.root, segs)
}
