package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bamsammich/magicmount/internal/event"
	"github.com/bamsammich/magicmount/internal/module"
	"github.com/bamsammich/magicmount/internal/stats"
)

// DefaultTempDirCandidates are tried in order when no temp dir is configured.
var DefaultTempDirCandidates = []string{"/mnt/vendor", "/mnt", "/debug_ramdisk"}

const workDirName = "workdir"

// RunConfig describes a complete mount run.
type RunConfig struct {
	ModuleDir   string
	TempDir     string
	MountSource string
	Partitions  []string

	// Tree, when set, is mounted instead of building one from ModuleDir.
	// It is consumed by the run.
	Tree *module.Node

	Umount    bool
	Registrar Registrar

	Sys Syscalls

	// Root is the real filesystem root. Defaults to "/".
	Root string

	Stats  *stats.Collector
	Events chan<- event.Event
}

// Run builds the merged tree from the module store and mounts it. A private
// scratch tmpfs is mounted under TempDir for the duration of the run and is
// always detached and removed afterwards.
func Run(cfg RunConfig) error {
	root := cfg.Tree
	if root == nil {
		var err error
		if root, err = BuildTree(cfg); err != nil {
			return err
		}
	}
	if root == nil {
		slog.Info("no modules to mount, skipping")
		return nil
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("collected module tree", "digest", root.Digest())
		slog.Debug("collected:\n" + root.String())
	}

	workDir, err := prepareWorkDir(cfg.TempDir)
	if err != nil {
		return err
	}

	if err := cfg.Sys.MountTmpfs(cfg.MountSource, workDir); err != nil {
		os.Remove(workDir) //nolint:errcheck // best-effort
		return fmt.Errorf("mount tmp %s: %w", workDir, err)
	}
	defer func() {
		if err := cfg.Sys.DetachUnmount(workDir); err != nil {
			slog.Error("failed to unmount tmp", "path", workDir, "error", err)
		}
		os.Remove(workDir) //nolint:errcheck // best-effort cleanup
	}()

	if err := cfg.Sys.MakePrivate(workDir); err != nil {
		return fmt.Errorf("make tmp private %s: %w", workDir, err)
	}

	m := &Materializer{
		Root:      cfg.Root,
		WorkDir:   workDir,
		Sys:       cfg.Sys,
		Umount:    cfg.Umount,
		Registrar: cfg.Registrar,
		Stats:     cfg.Stats,
		Events:    cfg.Events,
	}
	return m.Materialize(root)
}

// BuildTree collects the merged tree described by cfg. It returns nil when
// no module contributes anything.
func BuildTree(cfg RunConfig) (*module.Node, error) {
	b := module.Builder{
		ModuleDir:  cfg.ModuleDir,
		Partitions: cfg.Partitions,
		Root:       cfg.Root,
	}
	root, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("collect module files: %w", err)
	}
	return root, nil
}

// prepareWorkDir creates the scratch mount point under tempDir. A leftover
// non-empty work dir from an earlier run is left alone and a unique name is
// used instead.
func prepareWorkDir(tempDir string) (string, error) {
	if err := EnsureDir(tempDir); err != nil {
		return "", err
	}

	dir := filepath.Join(tempDir, workDirName)
	if !isEmptyDir(dir) {
		if _, err := os.Lstat(dir); err == nil {
			dir = filepath.Join(tempDir, fmt.Sprintf("%s-%s", workDirName, uuid.New().String()[:8]))
			slog.Warn("work dir in use, using a unique one", "path", dir)
		}
	}
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureDir creates dir if needed and checks that it is a directory.
func EnsureDir(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if info, statErr := os.Stat(dir); err != nil || statErr != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a regular directory", dir)
	}
	return nil
}

// SelectTempDir returns the first candidate that exists and is empty.
func SelectTempDir(candidates []string) (string, error) {
	slog.Debug("searching for a suitable tmpfs mount point")
	for _, candidate := range candidates {
		slog.Debug("checking tmpfs candidate", "path", candidate)
		if isEmptyDir(candidate) {
			slog.Info("selected tmpfs", "path", candidate)
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no writable tmpfs found in candidates: %s", strings.Join(candidates, ", "))
}

func isEmptyDir(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return errors.Is(err, io.EOF)
}
