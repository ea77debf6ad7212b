package mount

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bamsammich/magicmount/internal/event"
	"github.com/bamsammich/magicmount/internal/module"
	"github.com/bamsammich/magicmount/internal/stats"
)

// Materializer installs a merged module tree onto the real filesystem.
//
// Directories that cannot be overlaid with plain bind mounts are rebuilt
// as shadows under WorkDir: the real entries are mirrored into the shadow,
// module entries are added, and the finished shadow is moved over the real
// directory in one step.
type Materializer struct {
	// Root is the real filesystem root. Defaults to "/".
	Root string

	// WorkDir is a private scratch tmpfs where shadows are assembled.
	WorkDir string

	Sys Syscalls

	// Umount enables registration of installed mounts with Registrar.
	Umount    bool
	Registrar Registrar

	Stats  *stats.Collector
	Events chan<- event.Event
}

// Materialize walks the tree depth-first and installs every mount it
// describes. The tree is consumed.
//
// Mounts already moved onto real paths are left in place when a later step
// fails.
func (m *Materializer) Materialize(root *module.Node) error {
	base := m.Root
	if base == "" {
		base = "/"
	}
	return m.walk(base, m.WorkDir, root, false)
}

// walk installs n below parent. hasTmpfs means an ancestor shadow is open
// and everything must be written under parentWork instead of parent.
func (m *Materializer) walk(parent, parentWork string, n *module.Node, hasTmpfs bool) error {
	path := filepath.Join(parent, n.Name)
	work := filepath.Join(parentWork, n.Name)

	switch n.Type {
	case module.RegularFile:
		return m.mountFile(path, work, n, hasTmpfs)
	case module.Symlink:
		return m.mountSymlink(path, work, n, hasTmpfs)
	case module.Directory:
		return m.mountDir(path, work, n, hasTmpfs)
	case module.Whiteout:
		slog.Debug("file is removed", "path", path)
		m.Stats.AddWhiteouts(1)
		m.emit(event.Whiteout, path, n.ModulePath, nil)
	}
	return nil
}

func (m *Materializer) mountFile(path, work string, n *module.Node, hasTmpfs bool) error {
	if n.ModulePath == "" {
		return fmt.Errorf("mount root file %s: %w", path, ErrRootOnly)
	}

	target := path
	if hasTmpfs {
		if err := createEmpty(work); err != nil {
			return err
		}
		target = work
	}

	slog.Debug("mount module file", "source", n.ModulePath, "target", target)
	if err := m.Sys.BindMount(n.ModulePath, target); err != nil {
		if m.Umount {
			m.register(target)
		}
		return fmt.Errorf("mount module file %s -> %s: %w", n.ModulePath, target, err)
	}
	// Some namespaces refuse flag changes on bind mounts.
	if err := m.Sys.RemountReadOnly(target); err != nil {
		slog.Warn("make file read-only", "path", target, "error", err)
	}

	m.Stats.AddFilesMounted(1)
	m.emit(event.FileMounted, path, n.ModulePath, nil)
	return nil
}

func (m *Materializer) mountSymlink(path, work string, n *module.Node, hasTmpfs bool) error {
	if n.ModulePath == "" {
		return fmt.Errorf("mount root symlink %s: %w", path, ErrRootOnly)
	}

	target := path
	if hasTmpfs {
		target = work
	}
	if err := m.cloneSymlink(n.ModulePath, target); err != nil {
		return fmt.Errorf("create module symlink %s -> %s: %w", n.ModulePath, target, err)
	}

	m.Stats.AddSymlinksCloned(1)
	m.emit(event.SymlinkCloned, path, n.ModulePath, nil)
	return nil
}

func (m *Materializer) mountDir(path, work string, n *module.Node, hasTmpfs bool) error {
	createTmpfs := !hasTmpfs && n.Replace && n.ModulePath != ""
	if !hasTmpfs && !createTmpfs {
		createTmpfs = m.needsShadow(path, n)
	}
	hasTmpfs = hasTmpfs || createTmpfs

	if hasTmpfs {
		if err := m.shadowSkeleton(path, work, n); err != nil {
			return err
		}
	}

	if createTmpfs {
		slog.Debug("creating tmpfs", "path", path, "work", work)
		// A shadow must be a mount point of its own before it can be moved.
		if err := m.Sys.BindMount(work, work); err != nil {
			return fmt.Errorf("creating tmpfs for %s at %s: bind self: %w", path, work, err)
		}
		m.Stats.AddShadowsCreated(1)
		m.emit(event.ShadowCreated, path, n.ModulePath, nil)
	}

	if exists(path) && !n.Replace {
		entries, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			var err error
			if child, ok := n.Children[name]; ok {
				delete(n.Children, name)
				if child.Skip {
					continue
				}
				err = m.walk(path, work, child, hasTmpfs)
			} else if hasTmpfs {
				err = m.mirror(path, work, entry)
			}
			if cerr := m.childDone(path, name, hasTmpfs, err); cerr != nil {
				return cerr
			}
		}
	}

	if n.Replace {
		if n.ModulePath == "" {
			return fmt.Errorf("dir %s is declared as replaced: %w", path, ErrRootOnly)
		}
		slog.Debug("dir is replaced", "path", path)
	}

	for _, name := range n.SortedNames() {
		child := n.Children[name]
		delete(n.Children, name)
		if child.Skip {
			continue
		}
		err := m.walk(path, work, child, hasTmpfs)
		if cerr := m.childDone(path, name, hasTmpfs, err); cerr != nil {
			return cerr
		}
	}

	if createTmpfs {
		return m.installShadow(path, work)
	}
	return nil
}

// needsShadow decides whether dir must be rebuilt in a shadow before its
// children can be mounted. Children that need one while dir has no module
// content to source the shadow from are marked Skip instead.
func (m *Materializer) needsShadow(path string, n *module.Node) bool {
	for _, name := range n.SortedNames() {
		child := n.Children[name]
		realPath := filepath.Join(path, name)

		var need bool
		switch child.Type {
		case module.Symlink:
			need = true
		case module.Whiteout:
			_, err := os.Lstat(realPath)
			need = err == nil
		default:
			info, err := os.Lstat(realPath)
			if err != nil {
				need = true
				break
			}
			typ, ok := module.FileTypeOf(info.Mode())
			need = !ok || typ != child.Type || typ == module.Symlink
		}
		if !need {
			continue
		}

		if n.ModulePath == "" {
			slog.Error("cannot create tmpfs, ignoring child", "path", path, "child", name)
			child.Skip = true
			m.Stats.AddSkipped(1)
			m.emit(event.ChildSkipped, realPath, child.ModulePath, ErrRootOnly)
			continue
		}
		return true
	}
	return false
}

// shadowSkeleton creates the shadow directory for path and copies mode,
// owner and label from the real directory, or from the module directory
// when the real one does not exist.
func (m *Materializer) shadowSkeleton(path, work string, n *module.Node) error {
	slog.Debug("creating tmpfs skeleton", "path", path, "work", work)
	if err := os.MkdirAll(work, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", work, err)
	}

	src := path
	info, err := os.Stat(path)
	if err != nil {
		if n.ModulePath == "" {
			return fmt.Errorf("mount root dir %s: %w", path, ErrRootOnly)
		}
		src = n.ModulePath
		if info, err = os.Stat(src); err != nil {
			return fmt.Errorf("stat %s: %w", src, err)
		}
	}
	return m.copyMetadata(work, src, info)
}

func (m *Materializer) installShadow(path, work string) error {
	slog.Debug("moving tmpfs", "from", work, "to", path)
	if err := m.Sys.RemountReadOnly(work); err != nil {
		slog.Warn("make dir read-only", "path", path, "error", err)
	}
	if err := m.Sys.MoveMount(work, path); err != nil {
		return fmt.Errorf("moving tmpfs %s -> %s: %w", work, path, err)
	}
	// Private propagation keeps the peer group small.
	if err := m.Sys.MakePrivate(path); err != nil {
		slog.Warn("make dir private", "path", path, "error", err)
	}
	m.emit(event.ShadowMoved, path, work, nil)

	if m.Umount {
		m.register(path)
	}
	return nil
}

// childDone applies the failure isolation rule: inside a shadow a child
// error aborts the shadow, outside it is logged and the walk goes on.
func (m *Materializer) childDone(dir, name string, hasTmpfs bool, err error) error {
	if err == nil {
		return nil
	}
	path := filepath.Join(dir, name)
	err = fmt.Errorf("magic mount %s: %w", path, err)
	if hasTmpfs {
		return err
	}
	slog.Error("mount child failed", "path", path, "error", err)
	m.Stats.AddFailed(1)
	m.emit(event.ChildFailed, path, "", err)
	return nil
}

// copyMetadata gives dst the permission bits, owner and security label of
// src. info must describe src.
func (m *Materializer) copyMetadata(dst, src string, info fs.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported stat type for %s", src)
	}

	mode := info.Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	if err := os.Chmod(dst, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := m.Sys.Lchown(dst, int(stat.Uid), int(stat.Gid)); err != nil {
		return fmt.Errorf("chown %s: %w", dst, err)
	}
	return m.copyLabel(dst, src)
}

func (m *Materializer) copyLabel(dst, src string) error {
	label, err := m.Sys.GetLabel(src)
	if err != nil {
		return fmt.Errorf("get label of %s: %w", src, err)
	}
	if err := m.Sys.SetLabel(dst, label); err != nil {
		return fmt.Errorf("set label of %s: %w", dst, err)
	}
	return nil
}

func (m *Materializer) cloneSymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", dst, target, err)
	}
	if err := m.copyLabel(dst, src); err != nil {
		return err
	}
	slog.Debug("clone symlink", "path", dst, "target", target)
	return nil
}

func (m *Materializer) register(path string) {
	if m.Registrar == nil {
		return
	}
	if err := m.Registrar.Register(path); err != nil {
		slog.Debug("register unmountable path", "path", path, "error", err)
	}
}

func (m *Materializer) emit(typ event.Type, path, source string, err error) {
	if m.Events == nil {
		return
	}
	m.Events <- event.Event{
		Type:      typ,
		Timestamp: time.Now(),
		Path:      path,
		Source:    source,
		Error:     err,
	}
}

func createEmpty(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
