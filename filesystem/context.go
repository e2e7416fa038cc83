package filesystem

import (
	"sync"

	"github.com/brettbedarf/memfs/config"
)

// SyncFS imposes a single-writer/multi-reader discipline over a [FileSystem].
// All access goes through an [FSContext] obtained from ReadCtx or WriteCtx.
type SyncFS struct {
	fs *FileSystem
	mu sync.RWMutex
}

func NewSyncFS(cfg *config.Config) *SyncFS {
	return &SyncFS{fs: NewFS(cfg)}
}

// ReadCtx RLocks the filesystem and returns a context for traversal only.
// Callers must not mutate the tree through a read context.
func (s *SyncFS) ReadCtx() *FSContext {
	s.mu.RLock()
	ctx := &FSContext{fs: s.fs}
	ctx.AddClose(s.mu.RUnlock)
	return ctx
}

// WriteCtx Locks the filesystem and returns a context allowing mutations
func (s *SyncFS) WriteCtx() *FSContext {
	s.mu.Lock()
	ctx := &FSContext{fs: s.fs, writable: true}
	ctx.AddClose(s.mu.Unlock)
	return ctx
}

// FSContext wraps a locked [FileSystem].
// Calling FSContext.Close() unwinds all unlocking/cleanup callbacks in reverse order.
//
// NOTE: FSContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type FSContext struct {
	fs       *FileSystem
	closeFns []func()
	writable bool
}

// FS returns the locked filesystem; only valid until Close
func (ctx *FSContext) FS() *FileSystem {
	return ctx.fs
}

// Writable reports whether the context holds the write lock
func (ctx *FSContext) Writable() bool {
	return ctx.writable
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *FSContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil or already closed; it is
// a no-op in those cases, so you can `defer ctx.Close()` unconditionally.
//
// Example:
//
//	ctx := sfs.ReadCtx()
//	defer ctx.Close()
func (ctx *FSContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
	ctx.fs = nil
}
