package mount

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/magicmount/internal/event"
)

// mirror reproduces the real entry dir/entry inside the shadow workDir:
// files are bound, directories are recreated with the same metadata and
// mirrored recursively, symlinks are cloned.
func (m *Materializer) mirror(dir, workDir string, entry fs.DirEntry) error {
	path := filepath.Join(dir, entry.Name())
	work := filepath.Join(workDir, entry.Name())

	switch typ := entry.Type(); {
	case typ.IsRegular():
		slog.Debug("mount mirror file", "path", path, "work", work)
		if err := createEmpty(work); err != nil {
			return err
		}
		if err := m.Sys.BindMount(path, work); err != nil {
			return fmt.Errorf("bind %s -> %s: %w", path, work, err)
		}
		m.Stats.AddMirroredFiles(1)

	case typ.IsDir():
		slog.Debug("mount mirror dir", "path", path, "work", work)
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := os.Mkdir(work, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", work, err)
		}
		if err := m.copyMetadata(work, path, info); err != nil {
			return err
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for _, e := range entries {
			if err := m.mirror(path, work, e); err != nil {
				return err
			}
		}
		m.Stats.AddMirroredDirs(1)

	case typ&fs.ModeSymlink != 0:
		slog.Debug("create mirror symlink", "path", path, "work", work)
		if err := m.cloneSymlink(path, work); err != nil {
			return err
		}
		m.Stats.AddMirroredSymlinks(1)

	default:
		slog.Debug("not mirroring special file", "path", path, "type", typ.String())
		return nil
	}

	m.emit(event.Mirrored, work, path, nil)
	return nil
}
