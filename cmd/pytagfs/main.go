// Command pytagfs mounts a tagged-file store as a FUSE filesystem: every
// directory component below the mount point is a tag, and a file is
// visible wherever every tag in the path is one of its tags (SPEC_FULL.md
// §1, §8).
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	pytagfs "pytagfs/internal/fs"
	"pytagfs/internal/logging"
	"pytagfs/internal/planner"
	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var logger = logging.GetLogger()

func main() {
	mountPoint := flag.String("m", "", "mount point (required)")
	flag.StringVar(mountPoint, "mount", "", "mount point (required)")
	dataDir := flag.String("d", "", "datastore directory (required)")
	flag.StringVar(dataDir, "datastore", "", "datastore directory (required)")
	mountOpts := flag.String("o", "", "comma-separated FUSE mount options (allow_other, ro, ...)")
	maxHidden := flag.Int("max-hidden", 0, "cap on hidden file entries per readdir (0 = unlimited)")
	verbose := flag.Bool("v", false, "enable debug logging")
	veryVerbose := flag.Bool("vv", false, "enable trace logging")
	flag.Parse()

	switch {
	case *veryVerbose:
		logger.SetLevel(logging.LevelTrace)
	case *verbose:
		logger.SetLevel(logging.LevelDebug)
	}

	if *mountPoint == "" || *dataDir == "" {
		logger.Error("both -mount and -datastore are required")
		flag.Usage()
		os.Exit(1)
	}

	cleanMount := filepath.Clean(*mountPoint)
	cleanData := filepath.Clean(*dataDir)

	logger.Info("opening datastore at %q", cleanData)
	s, err := store.Open(cleanData)
	if err != nil {
		logger.Error("failed to open datastore: %v", err)
		os.Exit(1)
	}
	defer s.Close()
	logger.Debug("store instance id: %s", s.InstanceID())

	logger.Info("rebuilding tag index")
	idx, err := tagindex.Rebuild(s)
	if err != nil {
		logger.Error("failed to rebuild tag index: %v", err)
		os.Exit(1)
	}

	p := planner.New(s, idx)
	uid := safeIntToUint32(os.Getuid())
	gid := safeIntToUint32(os.Getgid())
	vfs := pytagfs.New(p, idx, uid, gid, *maxHidden)

	options := []fuse.MountOption{
		fuse.FSName("pytagfs"),
		fuse.Subtype("pytagfs"),
		fuse.DefaultPermissions(),
	}
	for _, opt := range strings.Split(*mountOpts, ",") {
		switch strings.TrimSpace(opt) {
		case "":
		case "allow_other":
			options = append(options, fuse.AllowOther())
		case "ro":
			options = append(options, fuse.ReadOnly())
		default:
			logger.Warn("ignoring unrecognized mount option %q", opt)
		}
	}

	logger.Info("mounting %q", cleanMount)
	c, err := fuse.Mount(cleanMount, options...)
	if err != nil {
		logger.Error("mount failed: %v", err)
		os.Exit(2)
	}
	defer c.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("serving filesystem")
		if err := fusefs.Serve(c, vfs); err != nil {
			logger.Error("FUSE server error: %v", err)
		}
		logger.Debug("FUSE server stopped")
	}()

	go func() {
		sig := <-sigChan
		logger.Info("received signal %v, unmounting", sig)
		if err := fuse.Unmount(cleanMount); err != nil {
			logger.Error("unmount error: %v", err)
		}
	}()

	wg.Wait()
	logger.Info("clean shutdown complete")
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
