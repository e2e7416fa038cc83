// Package fusebridge exposes a memfs tree read-only as a FUSE filesystem.
// [Bridge] implements go-fuse's raw protocol API over a [filesystem.SyncFS]:
// every request runs under the filesystem's read lock, so the host may keep
// mutating the tree through write contexts while it is mounted.
package fusebridge

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/tree"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const (
	dirMode  = uint32(syscall.S_IFDIR | 0o555)
	fileMode = uint32(syscall.S_IFREG | 0o444)
	blksize  = 4096 // preferred size for fs ops
)

// Bridge implements [fuse.RawFileSystem] for a [filesystem.SyncFS].
// Operations it does not serve fall through to go-fuse's default
// implementation, which answers ENOSYS.
type Bridge struct {
	fuse.RawFileSystem

	sfs     *filesystem.SyncFS
	root    *tree.Container
	inodes  *InodeTable
	owner   fuse.Owner
	created time.Time
	server  *fuse.Server
	// Entry and attribute cache timeouts handed to the kernel
	EntryTimeout time.Duration
	AttrTimeout  time.Duration
}

func New(sfs *filesystem.SyncFS) *Bridge {
	ctx := sfs.ReadCtx()
	root := ctx.FS().Root()
	ctx.Close()

	return &Bridge{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		sfs:           sfs,
		root:          root,
		inodes:        NewInodeTable(root),
		owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		created:      time.Now(),
		EntryTimeout: time.Second,
		AttrTimeout:  time.Second,
	}
}

func (b *Bridge) Inodes() *InodeTable {
	return b.inodes
}

func (b *Bridge) String() string {
	return "memfs"
}

func (b *Bridge) Init(s *fuse.Server) {
	logger := util.GetLogger("FuseBridge")
	logger.Debug().Msg("FUSE server initialized")
}

func (b *Bridge) OnUnmount() {
	logger := util.GetLogger("FuseBridge")
	logger.Debug().Msg("FUSE server unmounted")
}

// Lookup resolves name inside the directory header.NodeId
func (b *Bridge) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("FuseBridge")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	ctx := b.sfs.ReadCtx()
	defer ctx.Close()

	dir, status := b.container(header.NodeId)
	if !status.Ok() {
		return status
	}
	child, err := dir.Lookup(name)
	if err != nil {
		return ToStatus(err)
	}

	out.Attr = b.Attr(child)
	out.NodeId = out.Attr.Ino
	out.SetEntryTimeout(b.EntryTimeout)
	out.SetAttrTimeout(b.AttrTimeout)
	return fuse.OK
}

// Forget is called when the kernel drops nodeid from its cache. Inode
// numbers are not reference counted so nlookup is ignored.
func (b *Bridge) Forget(nodeid, nlookup uint64) {
	b.inodes.Forget(nodeid)
}

func (b *Bridge) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	ctx := b.sfs.ReadCtx()
	defer ctx.Close()

	n, status := b.node(input.NodeId)
	if !status.Ok() {
		return status
	}
	out.Attr = b.Attr(n)
	out.SetTimeout(b.AttrTimeout)
	return fuse.OK
}

// OpenDir only checks that the inode is a directory; listings are rebuilt
// on every ReadDir so no handle state is kept.
func (b *Bridge) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ctx := b.sfs.ReadCtx()
	defer ctx.Close()

	_, status := b.container(input.NodeId)
	return status
}

// ReadDir fills out with the entries of input.NodeId from input.Offset on,
// stopping once the kernel buffer is full.
func (b *Bridge) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	ctx := b.sfs.ReadCtx()
	defer ctx.Close()

	entries, status := b.Entries(input.NodeId)
	if !status.Ok() {
		return status
	}
	start := min(input.Offset, uint64(len(entries)))
	for _, e := range entries[start:] {
		if !out.AddDirEntry(e) {
			break
		}
	}
	return fuse.OK
}

// Open accepts read-only opens of leaves
func (b *Bridge) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ctx := b.sfs.ReadCtx()
	defer ctx.Close()

	n, status := b.node(input.NodeId)
	if !status.Ok() {
		return status
	}
	if _, ok := n.(*tree.Container); ok {
		return fuse.EISDIR
	}
	if input.Flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return fuse.EROFS
	}
	return fuse.OK
}

// Read serves leaf content. Sized leaves have no content and read as zeros.
func (b *Bridge) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	ctx := b.sfs.ReadCtx()
	defer ctx.Close()

	n, status := b.node(input.NodeId)
	if !status.Ok() {
		return nil, status
	}
	leaf, ok := n.(*tree.Leaf)
	if !ok {
		return nil, fuse.EISDIR
	}
	return fuse.ReadResultData(readLeaf(leaf, input.Offset, buf)), fuse.OK
}

func readLeaf(leaf *tree.Leaf, off uint64, buf []byte) []byte {
	size := leaf.Size()
	if off >= size {
		return buf[:0]
	}
	n := min(size-off, uint64(len(buf)))
	if content := leaf.Content(); content != nil {
		return content[off : off+n]
	}
	clear(buf[:n])
	return buf[:n]
}

// Attr builds the attributes of n, allocating its inode number if needed.
// Containers report their recursive size and 2 + child containers links.
func (b *Bridge) Attr(n tree.Node) fuse.Attr {
	size := n.Size()
	attr := fuse.Attr{
		Ino:       b.inodes.EnsureIno(n),
		Size:      size,
		Blocks:    (size + 511) / 512,
		Owner:     b.owner,
		Atime:     uint64(b.created.Unix()),
		Mtime:     uint64(b.created.Unix()),
		Ctime:     uint64(b.created.Unix()),
		Atimensec: uint32(b.created.Nanosecond()),
		Mtimensec: uint32(b.created.Nanosecond()),
		Ctimensec: uint32(b.created.Nanosecond()),
		Blksize:   blksize,
	}

	switch n := n.(type) {
	case *tree.Container:
		attr.Mode = dirMode
		attr.Nlink = 2
		for _, child := range n.Children() {
			if _, ok := child.(*tree.Container); ok {
				attr.Nlink++
			}
		}
	default:
		attr.Mode = fileMode
		attr.Nlink = 1
	}
	return attr
}

// Entries lists the container registered as ino, starting with "." and ".."
// followed by the children in insertion order. Callers hold the read lock.
func (b *Bridge) Entries(ino uint64) ([]fuse.DirEntry, fuse.Status) {
	dir, status := b.container(ino)
	if !status.Ok() {
		return nil, status
	}

	parentIno := ino // parent of root is root
	if p := dir.Parent(); p != nil {
		parentIno = b.inodes.EnsureIno(p)
	}
	entries := make([]fuse.DirEntry, 0, dir.Len()+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Mode: dirMode, Ino: ino},
		fuse.DirEntry{Name: "..", Mode: dirMode, Ino: parentIno},
	)
	for _, child := range dir.Children() {
		mode := fileMode
		if _, ok := child.(*tree.Container); ok {
			mode = dirMode
		}
		entries = append(entries, fuse.DirEntry{
			Name: child.Name(),
			Mode: mode,
			Ino:  b.inodes.EnsureIno(child),
		})
	}
	return entries, fuse.OK
}

// node returns the node registered as ino if it is still part of the tree.
// Inodes of removed nodes are dropped from the table and reported as ENOENT.
func (b *Bridge) node(ino uint64) (tree.Node, fuse.Status) {
	n, ok := b.inodes.Lookup(ino)
	if !ok {
		return nil, fuse.ENOENT
	}
	if !b.attached(n) {
		b.inodes.Forget(ino)
		return nil, fuse.ENOENT
	}
	return n, fuse.OK
}

func (b *Bridge) attached(n tree.Node) bool {
	for n != b.root {
		p := n.Parent()
		if p == nil {
			return false
		}
		n = p
	}
	return true
}

func (b *Bridge) container(ino uint64) (*tree.Container, fuse.Status) {
	n, status := b.node(ino)
	if !status.Ok() {
		return nil, status
	}
	dir, ok := n.(*tree.Container)
	if !ok {
		return nil, fuse.ENOTDIR
	}
	return dir, fuse.OK
}

// ToStatus maps tree errors onto FUSE status codes
func ToStatus(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, tree.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, tree.ErrAlreadyExists):
		return fuse.Status(syscall.EEXIST)
	case errors.Is(err, tree.ErrNotContainer):
		return fuse.ENOTDIR
	case errors.Is(err, tree.ErrInvalidName):
		return fuse.EINVAL
	default:
		return fuse.EIO
	}
}
