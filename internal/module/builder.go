package module

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// SystemPartition is the partition every module may target.
const SystemPartition = "system"

type builtinPartition struct {
	name string
	// requireSymlink: only promote when /system/<name> is a symlink, i.e.
	// the partition is merged into system on this device.
	requireSymlink bool
}

var builtinPartitions = []builtinPartition{
	{name: "vendor", requireSymlink: true},
	{name: "system_ext", requireSymlink: true},
	{name: "product", requireSymlink: true},
	{name: "odm", requireSymlink: false},
}

func isBuiltinPartition(name string) bool {
	return slices.ContainsFunc(builtinPartitions, func(p builtinPartition) bool {
		return p.name == name
	})
}

// Builder folds every enabled module under ModuleDir into one merged tree.
type Builder struct {
	ModuleDir string

	// Partitions lists extra partitions searched besides system.
	Partitions []string

	// Root is the real filesystem root consulted for partition promotion.
	// Defaults to "/".
	Root string
}

func (b *Builder) root() string {
	if b.Root == "" {
		return "/"
	}
	return b.Root
}

// searchPartitions returns system followed by the sorted, deduplicated
// extra partitions.
func (b *Builder) searchPartitions() []string {
	extra := make([]string, 0, len(b.Partitions))
	for _, p := range b.Partitions {
		if p == "" || p == SystemPartition || slices.Contains(extra, p) {
			continue
		}
		extra = append(extra, p)
	}
	slices.Sort(extra)
	return append([]string{SystemPartition}, extra...)
}

// Build scans the module store and returns the merged root, or nil when no
// module contributes anything. Modules are visited in name order, so the
// first module (by name) to introduce a leaf path owns it.
func (b *Builder) Build() (*Node, error) {
	entries, err := os.ReadDir(b.ModuleDir)
	if err != nil {
		return nil, fmt.Errorf("read module dir %s: %w", b.ModuleDir, err)
	}

	slog.Debug("collecting module files", "dir", b.ModuleDir)

	root := NewRoot("")
	system := NewRoot(SystemPartition)
	partitions := b.searchPartitions()

	var contributed bool
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ok, err := b.collectModule(system, entry.Name(), partitions)
		if err != nil {
			return nil, err
		}
		contributed = contributed || ok
	}

	if !contributed {
		return nil, nil
	}

	b.promote(root, system)
	root.Children[SystemPartition] = system
	return root, nil
}

func (b *Builder) collectModule(system *Node, name string, partitions []string) (bool, error) {
	dir := filepath.Join(b.ModuleDir, name)

	prop, err := ReadProp(filepath.Join(dir, PropFileName))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("skipping module without module.prop", "module", name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("module %s: %w", name, err)
	}

	id := prop.Get("id", name)
	if err := ValidateID(id); err != nil {
		return false, fmt.Errorf("module %s: %w", name, err)
	}
	if id != name {
		slog.Warn("module id does not match its directory", "module", name, "id", id)
	}

	if marker, ok := Excluded(dir); ok {
		slog.Debug("skipping module", "module", id, "marker", marker)
		return false, nil
	}

	var contributed bool
	for _, p := range partitions {
		src := filepath.Join(dir, p)
		info, err := os.Lstat(src)
		if err != nil || !info.IsDir() {
			continue
		}

		var ok bool
		if p == SystemPartition {
			ok, err = system.collect(src)
		} else {
			ok, err = system.collectEntry(p, src)
		}
		if err != nil {
			return false, fmt.Errorf("module %s: collect %s: %w", id, p, err)
		}
		contributed = contributed || ok
	}

	if contributed {
		slog.Debug("collected module", "module", id)
	} else {
		slog.Debug("module changes nothing", "module", id)
	}
	return contributed, nil
}

// collect folds the entries of the module directory dir into n. It reports
// whether a leaf was introduced or a directory was marked opaque.
func (n *Node) collect(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dir, err)
	}

	var contributed bool
	for _, entry := range entries {
		if entry.Name() == ReplaceFileName {
			continue
		}
		ok, err := n.collectEntry(entry.Name(), filepath.Join(dir, entry.Name()))
		if err != nil {
			return false, err
		}
		contributed = contributed || ok
	}
	return contributed, nil
}

func (n *Node) collectEntry(name, path string) (bool, error) {
	child, occupied := n.Children[name]
	switch {
	case !occupied:
		c, err := newModuleNode(name, path)
		if err != nil {
			return false, err
		}
		if c == nil {
			slog.Debug("ignoring unsupported module entry", "path", path)
			return false, nil
		}
		n.Children[name] = c
		child = c

	case child.Type == Directory:
		info, err := os.Lstat(path)
		if err != nil {
			return false, fmt.Errorf("lstat %s: %w", path, err)
		}
		if !info.IsDir() {
			slog.Warn("module entry conflicts with an earlier directory",
				"path", path, "kept", child.ModulePath)
			return false, nil
		}
		if !child.Replace && child.ModulePath != "" && IsOpaqueDir(path) {
			child.Replace = true
		}
	}

	if child.Type != Directory {
		return true, nil
	}
	ok, err := child.collect(path)
	if err != nil {
		return false, err
	}
	return ok || child.Replace, nil
}

func (b *Builder) promote(root, system *Node) {
	for _, p := range builtinPartitions {
		b.promotePartition(root, system, p.name, p.requireSymlink)
	}
	for _, p := range b.Partitions {
		if p == SystemPartition || isBuiltinPartition(p) {
			continue
		}
		b.promotePartition(root, system, p, false)
	}
}

func (b *Builder) promotePartition(root, system *Node, name string, requireSymlink bool) {
	info, err := os.Stat(filepath.Join(b.root(), name))
	if err != nil || !info.IsDir() {
		return
	}
	if requireSymlink {
		info, err := os.Lstat(filepath.Join(b.root(), SystemPartition, name))
		if err != nil || info.Mode()&fs.ModeSymlink == 0 {
			return
		}
	}

	node, ok := system.Children[name]
	if !ok {
		return
	}
	delete(system.Children, name)
	root.Children[name] = node
	slog.Debug("attached partition to root", "partition", name)
}
