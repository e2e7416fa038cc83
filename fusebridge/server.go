package fusebridge

import (
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Serve mounts the bridge read-only at mountPoint and serves requests in the
// background. It returns once the kernel has acknowledged the mount.
func (b *Bridge) Serve(mountPoint string, opts config.MountOptions) error {
	srv, err := fuse.NewServer(b, mountPoint, &fuse.MountOptions{
		Name:    opts.Name,
		FsName:  opts.FsName,
		Debug:   opts.Debug,
		Options: []string{"ro"},
		Logger:  util.NewLogLogger("FuseServer", util.DebugLevel),
	})
	if err != nil {
		return err
	}
	b.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

// Unmount cleanly unmounts the filesystem. It is a no-op if Serve never succeeded.
func (b *Bridge) Unmount() error {
	if b.server == nil {
		return nil
	}
	return b.server.Unmount()
}
