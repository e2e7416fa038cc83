package fusebridge

import (
	"fmt"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/tree"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFS creates "/a.txt" (10 bytes of content) and "/sub/b.txt" (sized 1000)
func buildFS(t *testing.T) (*filesystem.SyncFS, *tree.Container, *tree.Leaf) {
	t.Helper()
	sfs := filesystem.NewSyncFS(nil)
	ctx := sfs.WriteCtx()
	defer ctx.Close()

	root := ctx.FS().Root()
	a, err := tree.NewLeaf("a.txt", []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, root.Insert(a))
	sub, err := tree.NewContainer("sub")
	require.NoError(t, err)
	require.NoError(t, root.Insert(sub))
	b, err := tree.NewSizedLeaf("b.txt", 1000)
	require.NoError(t, err)
	require.NoError(t, sub.Insert(b))
	return sfs, sub, b
}

func header(ino uint64) fuse.InHeader {
	return fuse.InHeader{NodeId: ino}
}

func TestInodeTable(t *testing.T) {
	t.Parallel()

	sfs, sub, b := buildFS(t)
	ctx := sfs.ReadCtx()
	defer ctx.Close()
	root := ctx.FS().Root()
	inodes := NewInodeTable(root)

	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), inodes.EnsureIno(root))
	subIno := inodes.EnsureIno(sub)
	assert.Equal(t, subIno, inodes.EnsureIno(sub), "ino is stable")
	bIno := inodes.EnsureIno(b)
	assert.NotEqual(t, subIno, bIno)

	got, ok := inodes.Lookup(bIno)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, 3, inodes.Len())

	inodes.Forget(bIno)
	_, ok = inodes.Lookup(bIno)
	assert.False(t, ok)
	assert.NotEqual(t, bIno, inodes.EnsureIno(b), "numbers are not reused")

	inodes.Forget(fuse.FUSE_ROOT_ID)
	_, ok = inodes.Lookup(fuse.FUSE_ROOT_ID)
	assert.True(t, ok, "root is never forgotten")
}

func TestInodeTable_ConcurrentEnsure(t *testing.T) {
	t.Parallel()

	root := tree.NewRoot()
	var leaves []*tree.Leaf
	for i := range 10 {
		leaf, err := tree.NewLeaf(fmt.Sprintf("f%d", i), nil)
		require.NoError(t, err)
		require.NoError(t, root.Insert(leaf))
		leaves = append(leaves, leaf)
	}
	inodes := NewInodeTable(root)

	var wg sync.WaitGroup
	results := make([][]uint64, 8)
	for g := range results {
		wg.Go(func() {
			for _, leaf := range leaves {
				results[g] = append(results[g], inodes.EnsureIno(leaf))
			}
		})
	}
	wg.Wait()

	for g := 1; g < len(results); g++ {
		assert.Equal(t, results[0], results[g], "all goroutines must agree on inode numbers")
	}
	assert.Equal(t, 11, inodes.Len())
}

func TestBridge_ImplementsRawFileSystem(t *testing.T) {
	t.Parallel()

	sfs, _, _ := buildFS(t)
	var raw fuse.RawFileSystem = New(sfs)
	assert.Equal(t, "memfs", raw.String())

	var out fuse.StatfsOut
	assert.Equal(t, fuse.ENOSYS, raw.StatFs(nil, &fuse.InHeader{}, &out), "unserved ops use the default implementation")
}

func TestBridge_Attr(t *testing.T) {
	t.Parallel()

	sfs, sub, b := buildFS(t)
	bridge := New(sfs)

	rootAttr := bridge.Attr(bridge.root)
	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), rootAttr.Ino)
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), rootAttr.Mode)
	assert.Equal(t, uint32(3), rootAttr.Nlink, "2 + one child container")
	assert.Equal(t, uint64(1010), rootAttr.Size)

	subAttr := bridge.Attr(sub)
	assert.Equal(t, uint32(2), subAttr.Nlink)

	fileAttr := bridge.Attr(b)
	assert.Equal(t, uint32(syscall.S_IFREG|0o444), fileAttr.Mode)
	assert.Equal(t, uint32(1), fileAttr.Nlink)
	assert.Equal(t, uint64(1000), fileAttr.Size)
	assert.Equal(t, uint64(2), fileAttr.Blocks)
	assert.Equal(t, uint32(4096), fileAttr.Blksize)
}

func TestBridge_GetAttr(t *testing.T) {
	t.Parallel()

	sfs, _, _ := buildFS(t)
	bridge := New(sfs)
	bridge.AttrTimeout = 3 * time.Second

	var out fuse.AttrOut
	assert.Equal(t, fuse.OK, bridge.GetAttr(nil, &fuse.GetAttrIn{InHeader: header(fuse.FUSE_ROOT_ID)}, &out))
	assert.Equal(t, uint64(1010), out.Size)
	assert.Equal(t, uint64(3), out.AttrValid)

	assert.Equal(t, fuse.ENOENT, bridge.GetAttr(nil, &fuse.GetAttrIn{InHeader: header(999)}, &out))
}

func TestBridge_Lookup(t *testing.T) {
	t.Parallel()

	sfs, sub, b := buildFS(t)
	bridge := New(sfs)
	bridge.EntryTimeout = 2 * time.Second

	rootHeader := header(fuse.FUSE_ROOT_ID)
	var out fuse.EntryOut
	require.Equal(t, fuse.OK, bridge.Lookup(nil, &rootHeader, "sub", &out))
	assert.Equal(t, bridge.Inodes().EnsureIno(sub), out.NodeId)
	assert.Equal(t, uint64(2), out.EntryValid)

	subHeader := header(out.NodeId)
	require.Equal(t, fuse.OK, bridge.Lookup(nil, &subHeader, "b.txt", &out))
	assert.Equal(t, bridge.Inodes().EnsureIno(b), out.NodeId)
	assert.Equal(t, uint64(1000), out.Attr.Size)

	fileHeader := header(out.NodeId)
	missingHeader := header(12345)
	assert.Equal(t, fuse.ENOENT, bridge.Lookup(nil, &rootHeader, "b.txt", &out))
	assert.Equal(t, fuse.ENOTDIR, bridge.Lookup(nil, &fileHeader, "x", &out))
	assert.Equal(t, fuse.ENOENT, bridge.Lookup(nil, &missingHeader, "x", &out))
}

func TestBridge_Entries(t *testing.T) {
	t.Parallel()

	sfs, sub, _ := buildFS(t)
	bridge := New(sfs)

	entries, status := bridge.Entries(fuse.FUSE_ROOT_ID)
	require.Equal(t, fuse.OK, status)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{".", "..", "a.txt", "sub"}, names)
	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), entries[1].Ino, "parent of root is root")
	assert.Equal(t, uint32(syscall.S_IFREG|0o444), entries[2].Mode)
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), entries[3].Mode)

	subIno := bridge.Inodes().EnsureIno(sub)
	entries, status = bridge.Entries(subIno)
	require.Equal(t, fuse.OK, status)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), entries[1].Ino)
	assert.Equal(t, "b.txt", entries[2].Name)

	_, status = bridge.Entries(entries[2].Ino)
	assert.Equal(t, fuse.ENOTDIR, status)
}

func TestBridge_ReadDir(t *testing.T) {
	t.Parallel()

	sfs, _, _ := buildFS(t)
	bridge := New(sfs)
	in := func(off uint64) *fuse.ReadIn {
		return &fuse.ReadIn{InHeader: header(fuse.FUSE_ROOT_ID), Offset: off}
	}

	var open fuse.OpenOut
	require.Equal(t, fuse.OK, bridge.OpenDir(nil, &fuse.OpenIn{InHeader: header(fuse.FUSE_ROOT_ID)}, &open))

	list := fuse.NewDirEntryList(make([]byte, 4096), 0)
	require.Equal(t, fuse.OK, bridge.ReadDir(nil, in(0), list))
	assert.Equal(t, uint64(4), list.Offset, ". .. a.txt sub")

	list = fuse.NewDirEntryList(make([]byte, 4096), 2)
	require.Equal(t, fuse.OK, bridge.ReadDir(nil, in(2), list))
	assert.Equal(t, uint64(4), list.Offset, "resumes after the entries already returned")

	list = fuse.NewDirEntryList(make([]byte, 40), 0)
	require.Equal(t, fuse.OK, bridge.ReadDir(nil, in(0), list))
	assert.Equal(t, uint64(1), list.Offset, "stops when the buffer is full")

	list = fuse.NewDirEntryList(make([]byte, 4096), 9)
	require.Equal(t, fuse.OK, bridge.ReadDir(nil, in(9), list))
	assert.Equal(t, uint64(9), list.Offset, "offsets past the end add nothing")

	var attr fuse.EntryOut
	rootHeader := header(fuse.FUSE_ROOT_ID)
	require.Equal(t, fuse.OK, bridge.Lookup(nil, &rootHeader, "a.txt", &attr))
	assert.Equal(t, fuse.ENOTDIR, bridge.OpenDir(nil, &fuse.OpenIn{InHeader: header(attr.NodeId)}, &open))
}

func TestBridge_OpenRead(t *testing.T) {
	t.Parallel()

	sfs, sub, b := buildFS(t)
	bridge := New(sfs)

	var entry fuse.EntryOut
	rootHeader := header(fuse.FUSE_ROOT_ID)
	require.Equal(t, fuse.OK, bridge.Lookup(nil, &rootHeader, "a.txt", &entry))
	aIno := entry.NodeId
	bIno := bridge.Inodes().EnsureIno(b)
	subIno := bridge.Inodes().EnsureIno(sub)

	var open fuse.OpenOut
	assert.Equal(t, fuse.OK, bridge.Open(nil, &fuse.OpenIn{InHeader: header(aIno), Flags: syscall.O_RDONLY}, &open))
	assert.Equal(t, fuse.EROFS, bridge.Open(nil, &fuse.OpenIn{InHeader: header(aIno), Flags: syscall.O_WRONLY}, &open))
	assert.Equal(t, fuse.EISDIR, bridge.Open(nil, &fuse.OpenIn{InHeader: header(subIno)}, &open))

	read := func(ino, off uint64, buf []byte) ([]byte, fuse.Status) {
		t.Helper()
		res, status := bridge.Read(nil, &fuse.ReadIn{InHeader: header(ino), Offset: off}, buf)
		if !status.Ok() {
			return nil, status
		}
		data, status := res.Bytes(buf)
		require.Equal(t, fuse.OK, status)
		return data, fuse.OK
	}

	data, status := read(aIno, 2, make([]byte, 4))
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, "2345", string(data))

	data, _ = read(aIno, 8, make([]byte, 4))
	assert.Equal(t, "89", string(data), "short read at the end of content")

	data, _ = read(aIno, 10, make([]byte, 4))
	assert.Empty(t, data)

	buf := []byte{0xff, 0xff, 0xff, 0xff}
	data, _ = read(bIno, 998, buf)
	assert.Equal(t, []byte{0, 0}, data, "sized leaves read as zeros")

	_, status = read(subIno, 0, make([]byte, 4))
	assert.Equal(t, fuse.EISDIR, status)
}

func TestBridge_DetachedNodesAreDropped(t *testing.T) {
	t.Parallel()

	sfs, sub, b := buildFS(t)
	bridge := New(sfs)
	subIno := bridge.Inodes().EnsureIno(sub)
	bIno := bridge.Inodes().EnsureIno(b)
	require.Equal(t, 3, bridge.Inodes().Len())

	ctx := sfs.WriteCtx()
	_, err := ctx.FS().Remove("sub")
	ctx.Close()
	require.NoError(t, err)

	var out fuse.AttrOut
	assert.Equal(t, fuse.ENOENT, bridge.GetAttr(nil, &fuse.GetAttrIn{InHeader: header(bIno)}, &out),
		"a descendant of a removed container is detached too")
	subHeader := header(subIno)
	var entry fuse.EntryOut
	assert.Equal(t, fuse.ENOENT, bridge.Lookup(nil, &subHeader, "b.txt", &entry))

	_, ok := bridge.Inodes().Lookup(subIno)
	assert.False(t, ok)
	_, ok = bridge.Inodes().Lookup(bIno)
	assert.False(t, ok)
	assert.Equal(t, 1, bridge.Inodes().Len())
}

func TestBridge_WaitsForWriters(t *testing.T) {
	t.Parallel()

	sfs, _, _ := buildFS(t)
	bridge := New(sfs)

	w := sfs.WriteCtx()
	done := make(chan fuse.Status, 1)
	go func() {
		var out fuse.AttrOut
		done <- bridge.GetAttr(nil, &fuse.GetAttrIn{InHeader: header(fuse.FUSE_ROOT_ID)}, &out)
	}()

	select {
	case <-done:
		t.Fatal("GetAttr must wait for the write context to close")
	case <-time.After(50 * time.Millisecond):
	}
	w.Close()
	assert.Equal(t, fuse.OK, <-done)
}

func TestBridge_ServeErrors(t *testing.T) {
	t.Parallel()

	sfs, _, _ := buildFS(t)
	bridge := New(sfs)
	assert.NoError(t, bridge.Unmount(), "unmount before serve is a no-op")

	missing := filepath.Join(t.TempDir(), "missing")
	assert.Error(t, bridge.Serve(missing, config.NewDefaultConfig().MountOptions))
}

func TestToStatus(t *testing.T) {
	t.Parallel()

	root := tree.NewRoot()
	sub, _ := tree.NewContainer("sub")
	require.NoError(t, root.Insert(sub))
	leaf, _ := tree.NewLeaf("a.txt", nil)
	require.NoError(t, root.Insert(leaf))

	_, notFound := root.Lookup("nope")
	_, notDir := tree.ResolveContainer(root, []string{"a.txt"})
	dup, _ := tree.NewLeaf("a.txt", nil)
	exists := root.Insert(dup)

	assert.Equal(t, fuse.OK, ToStatus(nil))
	assert.Equal(t, fuse.ENOENT, ToStatus(notFound))
	assert.Equal(t, fuse.ENOTDIR, ToStatus(notDir))
	assert.Equal(t, fuse.Status(syscall.EEXIST), ToStatus(exists))
	assert.Equal(t, fuse.EINVAL, ToStatus(tree.ErrInvalidName))
	assert.Equal(t, fuse.EIO, ToStatus(fmt.Errorf("boom")))
}
