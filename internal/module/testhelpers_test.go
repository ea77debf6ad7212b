package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// writeProp creates <moduleDir>/<id>/module.prop.
func writeProp(t *testing.T, moduleDir, id string, extra ...string) string {
	t.Helper()
	dir := filepath.Join(moduleDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "id=" + id + "\n"
	for _, line := range extra {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, PropFileName), []byte(content), 0o644))
	return dir
}

// writeFile creates a file below root, making parents as needed.
func writeFile(t *testing.T, root string, rel ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, rel...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	return path
}

// mknodWhiteout creates a whiteout below root or skips the test when the
// caller cannot create device nodes.
func mknodWhiteout(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	if err := unix.Mknod(path, unix.S_IFCHR|0o600, 0); err != nil {
		t.Skipf("cannot create whiteout: %v", err)
	}
}

// child walks names from n and fails the test when a node is missing.
func child(t *testing.T, n *Node, names ...string) *Node {
	t.Helper()
	for _, name := range names {
		require.NotNil(t, n, "walking to %q", name)
		c, ok := n.Children[name]
		require.True(t, ok, "missing child %q", name)
		n = c
	}
	return n
}
