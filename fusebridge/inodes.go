package fusebridge

import (
	"sync/atomic"

	"github.com/brettbedarf/memfs/tree"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// InodeTable assigns kernel facing inode numbers to tree nodes on demand.
// Numbers are session only and never reused.
//
// An entry holds its node until the kernel forgets the inode, even after the
// node is detached with Container.Remove. [Bridge] drops such entries itself
// the next time the kernel asks for a detached inode.
type InodeTable struct {
	// last inode number assigned
	lastIno atomic.Uint64
	byIno   *xsync.Map[uint64, tree.Node]
	byNode  *xsync.Map[tree.Node, uint64]
}

// NewInodeTable registers root as fuse.FUSE_ROOT_ID
func NewInodeTable(root *tree.Container) *InodeTable {
	t := &InodeTable{
		byIno:  xsync.NewMap[uint64, tree.Node](),
		byNode: xsync.NewMap[tree.Node, uint64](),
	}
	t.lastIno.Store(fuse.FUSE_ROOT_ID)
	t.byIno.Store(fuse.FUSE_ROOT_ID, root)
	t.byNode.Store(root, fuse.FUSE_ROOT_ID)
	return t
}

// EnsureIno retrieves or allocates the inode number of n
func (t *InodeTable) EnsureIno(n tree.Node) uint64 {
	// fast path
	if ino, ok := t.byNode.Load(n); ok {
		return ino
	}
	newIno := t.lastIno.Add(1)
	// only one store wins; a losing allocation is simply skipped
	ino, loaded := t.byNode.LoadOrStore(n, newIno)
	if !loaded {
		t.byIno.Store(ino, n)
	}
	return ino
}

func (t *InodeTable) Lookup(ino uint64) (tree.Node, bool) {
	return t.byIno.Load(ino)
}

// Forget drops the entry for ino. The root is never forgotten.
func (t *InodeTable) Forget(ino uint64) {
	if ino == fuse.FUSE_ROOT_ID {
		return
	}
	if n, ok := t.byIno.LoadAndDelete(ino); ok {
		t.byNode.Delete(n)
	}
}

// Len returns the number of registered nodes including the root
func (t *InodeTable) Len() int {
	return t.byIno.Size()
}
