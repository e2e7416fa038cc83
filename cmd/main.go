package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/fusebridge"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/requests"
	"github.com/brettbedarf/memfs/tree"
)

// Exit codes
const (
	InternalError = iota + 1
	BadArgument
	NotFound
)

// app holds the config and filesystem built by the Before hook for the command actions
type app struct {
	cfg *config.Config
	sfs *filesystem.SyncFS
}

func newApp() *cli.App {
	a := &app{}
	return &cli.App{
		Name:  "memfs",
		Usage: "inspect an in-memory namespace built from a nodes definition file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nodes",
				Aliases: []string{"n"},
				Usage:   "path to nodes def file (.json, .yaml, .yml)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config override file (.json, .yaml, .yml)",
			},
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log verbosity level between 1 (error) and 5 (trace)",
				Value:   config.InfoVerbose,
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "list the children of a directory",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "list every file below the directory"},
				},
				Action: a.ls,
			},
			{
				Name:      "find",
				Usage:     "search a directory tree depth-first for the first node with the given name",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "directory to search below (default root)"},
				},
				Action: a.find,
			},
			{
				Name:      "du",
				Usage:     "print the size in bytes of a node",
				ArgsUsage: "[path]",
				Action:    a.du,
			},
			{
				Name:      "tree",
				Usage:     "print a directory tree",
				ArgsUsage: "[path]",
				Action:    a.tree,
			},
			{
				Name:      "stat",
				Usage:     "describe a node",
				ArgsUsage: "<path>",
				Action:    a.stat,
			},
			{
				Name:      "mount",
				Usage:     "serve the namespace read-only over FUSE until interrupted",
				ArgsUsage: "<mountpoint>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "umount",
						Aliases: []string{"u"},
						Usage:   "unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.",
					},
				},
				Action: a.mount,
			},
		},
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg := config.NewDefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(path); err != nil {
			return cli.Exit(fmt.Sprintf("loading config %q failed: %s", path, err), BadArgument)
		}
	}
	// the flag wins over the config file
	if c.IsSet("verbose") || c.String("config") == "" {
		cfg.LogLvl = config.VerboseToLogLevel(c.Int("verbose"))
	}
	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	a.cfg = cfg
	a.sfs = filesystem.NewSyncFS(cfg)
	nodesDef := c.String("nodes")
	if nodesDef == "" {
		logger.Warn().Msg("No nodes file provided")
		return nil
	}
	manifest, err := requests.LoadManifestFile(nodesDef)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loading nodes %q failed: %s", nodesDef, err), BadArgument)
	}
	logger.Debug().
		Int("files", len(manifest.Files)).
		Int("directories", len(manifest.Dirs)).
		Str("nodes", nodesDef).
		Msg("Successfully loaded node requests")

	ctx := a.sfs.WriteCtx()
	dirs, files := loadNodes(ctx.FS(), manifest)
	ctx.Close()
	logger.Info().Int("directories", dirs).Int("files", files).Msg("Added new nodes to filesystem")
	return nil
}

// loadNodes adds directories first, then files, skipping requests that fail
func loadNodes(fs *filesystem.FileSystem, m *requests.Manifest) (dirs, files int) {
	logger := util.GetLogger("loadNodes")
	for _, req := range m.Dirs {
		if _, err := fs.AddDirNode(req); err != nil {
			logger.Warn().Err(err).Str("path", req.Path).Msg("Failed to add directory request")
			continue
		}
		dirs++
	}
	for _, req := range m.Files {
		if _, err := fs.AddFileNode(req); err != nil {
			logger.Warn().Err(err).Str("path", req.Path).Msg("Failed to add file request")
			continue
		}
		files++
	}
	return dirs, files
}

// pathArg returns the first argument or "", which names the root for any separator
func pathArg(c *cli.Context) string {
	if c.Args().Present() {
		return c.Args().First()
	}
	return ""
}

// displayPath renders p for output, showing the root as the separator
func displayPath(fs *filesystem.FileSystem, p string) string {
	if p == "" {
		return fs.Separator()
	}
	return p
}

func (a *app) ls(c *cli.Context) error {
	ctx := a.sfs.ReadCtx()
	defer ctx.Close()
	fs := ctx.FS()

	p := pathArg(c)
	w := c.App.Writer
	if c.Bool("recursive") {
		seq, err := fs.ListRecursive(p)
		if err != nil {
			return userError(err)
		}
		for name := range seq {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	names, err := fs.List(p)
	if err != nil {
		return userError(err)
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

func (a *app) find(c *cli.Context) error {
	if !c.Args().Present() {
		return cli.Exit("find requires a name", BadArgument)
	}
	ctx := a.sfs.ReadCtx()
	defer ctx.Close()
	fs := ctx.FS()

	n, err := fs.Find(c.String("from"), c.Args().First())
	if err != nil {
		return userError(err)
	}
	fmt.Fprintln(c.App.Writer, fs.PathOf(n))
	return nil
}

func (a *app) du(c *cli.Context) error {
	ctx := a.sfs.ReadCtx()
	defer ctx.Close()
	fs := ctx.FS()

	p := pathArg(c)
	size, err := fs.Size(p)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(c.App.Writer, "%d\t%s\n", size, displayPath(fs, p))
	return nil
}

func (a *app) tree(c *cli.Context) error {
	ctx := a.sfs.ReadCtx()
	defer ctx.Close()
	fs := ctx.FS()

	p := pathArg(c)
	w := c.App.Writer
	fmt.Fprintln(w, displayPath(fs, p))
	err := fs.Walk(p, func(segs []string, n tree.Node) error {
		printEntry(w, len(segs), n, fs.Separator())
		return nil
	})
	if err != nil {
		return userError(err)
	}
	return nil
}

func printEntry(w io.Writer, depth int, n tree.Node, sep string) {
	indent := strings.Repeat("  ", depth)
	if _, ok := n.(*tree.Container); ok {
		fmt.Fprintf(w, "%s%s%s\n", indent, n.Name(), sep)
		return
	}
	fmt.Fprintf(w, "%s%s (%d)\n", indent, n.Name(), n.Size())
}

func (a *app) stat(c *cli.Context) error {
	if !c.Args().Present() {
		return cli.Exit("stat requires a path", BadArgument)
	}
	ctx := a.sfs.ReadCtx()
	defer ctx.Close()
	fs := ctx.FS()

	n, err := fs.Stat(c.Args().First())
	if err != nil {
		return userError(err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "name: %s\npath: %s\nsize: %d\n", n.Name(), fs.PathOf(n), n.Size())
	switch n := n.(type) {
	case *tree.Container:
		fmt.Fprintf(w, "type: dir\nchildren: %d\n", n.Len())
	case *tree.Leaf:
		fmt.Fprintf(w, "type: file\nuuid: %s\n", n.UUID())
	}
	return nil
}

// mount serves the filesystem read-only at the given mountpoint until SIGINT,
// SIGTERM or SIGQUIT arrives, then unmounts it
func (a *app) mount(c *cli.Context) error {
	if !c.Args().Present() {
		return cli.Exit("mount requires a mountpoint", BadArgument)
	}
	mnt := c.Args().First()
	logger := util.GetLogger("main")

	// Try unmount if requested
	if c.Bool("umount") { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	opts := a.cfg.MountOptions
	opts.Debug = opts.Debug || a.cfg.LogLvl == util.TraceLevel
	bridge := fusebridge.New(a.sfs)
	if err := bridge.Serve(mnt, opts); err != nil {
		return cli.Exit(fmt.Sprintf("mounting %q failed: %s", mnt, err), InternalError)
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(signalChan)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	if err := bridge.Unmount(); err != nil {
		return cli.Exit(fmt.Sprintf("unmounting %q failed: %s", mnt, err), InternalError)
	}
	logger.Info().Msg("Filesystem unmounted successfully")
	return nil
}

// userError reports expected lookup failures with their own exit codes
func userError(err error) error {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		return cli.Exit(err.Error(), NotFound)
	case errors.Is(err, tree.ErrNotContainer), errors.Is(err, filesystem.ErrInvalidPath):
		return cli.Exit(err.Error(), BadArgument)
	default:
		return cli.Exit(err.Error(), InternalError)
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger := util.GetLogger("main")
		logger.Fatal().Err(err).Msg("memfs failed")
	}
}
