package module

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
)

// FileType identifies what a node turns into once mounted.
type FileType int

const (
	RegularFile FileType = iota
	Directory
	Symlink
	Whiteout // a char device with rdev 0: the path must be absent
)

var fileTypeNames = [...]string{
	RegularFile: "RegularFile",
	Directory:   "Directory",
	Symlink:     "Symlink",
	Whiteout:    "Whiteout",
}

func (t FileType) String() string {
	if t >= 0 && int(t) < len(fileTypeNames) {
		return fileTypeNames[t]
	}
	return "Unknown"
}

// FileTypeOf maps a file mode to a FileType. Whiteouts cannot be detected
// from the mode alone, so only regular files, directories and symlinks are
// recognized.
func FileTypeOf(mode fs.FileMode) (FileType, bool) {
	switch {
	case mode.IsRegular():
		return RegularFile, true
	case mode.IsDir():
		return Directory, true
	case mode&fs.ModeSymlink != 0:
		return Symlink, true
	default:
		return 0, false
	}
}

// Node is the desired final state of one path in the merged view.
type Node struct {
	Name     string
	Type     FileType
	Children map[string]*Node

	// ModulePath is where the content lives in the module store. Empty for
	// synthetic nodes that only exist because a descendant needs them.
	ModulePath string

	// Replace marks an opaque directory: real children below it are hidden.
	Replace bool

	// Skip is set during materialization for children that cannot be
	// mounted safely in this run.
	Skip bool
}

// NewRoot returns a synthetic directory node.
func NewRoot(name string) *Node {
	return &Node{
		Name:     name,
		Type:     Directory,
		Children: make(map[string]*Node),
	}
}

// newModuleNode classifies the module entry at path. It returns nil for
// entry types that cannot be overlaid (sockets, fifos, real devices).
func newModuleNode(name, path string) (*Node, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}

	var typ FileType
	if isWhiteout(info) {
		typ = Whiteout
	} else {
		var ok bool
		typ, ok = FileTypeOf(info.Mode())
		if !ok {
			return nil, nil
		}
	}

	n := &Node{
		Name:       name,
		Type:       typ,
		ModulePath: path,
	}
	if typ == Directory {
		n.Children = make(map[string]*Node)
		n.Replace = IsOpaqueDir(path)
	}
	return n, nil
}

func isWhiteout(info fs.FileInfo) bool {
	if info.Mode()&fs.ModeCharDevice == 0 {
		return false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return uint64(stat.Rdev) == 0 //nolint:unconvert // Rdev width differs per arch
}

// IsOpaqueDir reports whether the module directory at path hides the real
// directory it targets, either through the overlayfs opaque xattr or the
// marker file.
func IsOpaqueDir(path string) bool {
	if v, err := lgetxattr(path, OpaqueXattr); err == nil && string(v) == "y" {
		return true
	}
	_, err := os.Lstat(filepath.Join(path, ReplaceFileName))
	return err == nil
}

// SortedNames returns the child names in lexical order.
func (n *Node) SortedNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// String renders the subtree, one node per line, for debug output.
func (n *Node) String() string {
	var b strings.Builder
	n.format(&b, 0)
	return b.String()
}

func (n *Node) format(b *strings.Builder, depth int) {
	name := n.Name
	if name == "" {
		name = "/"
	}
	fmt.Fprintf(b, "%s%s [%s]", strings.Repeat("  ", depth), name, n.Type)
	if n.Replace {
		b.WriteString(" replace")
	}
	if n.ModulePath != "" {
		fmt.Fprintf(b, " <- %s", n.ModulePath)
	}
	b.WriteByte('\n')
	for _, child := range n.SortedNames() {
		n.Children[child].format(b, depth+1)
	}
}
