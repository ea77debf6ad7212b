package module

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Info describes a module that will take part in a mount.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// Scan lists the modules under moduleDir that would be mounted: they carry
// a module.prop, target system or one of partitions, and are not disabled,
// removed or marked skip_mount. Unreadable entries are skipped.
func Scan(moduleDir string, partitions []string) []Info {
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		slog.Debug("scan modules", "dir", moduleDir, "error", err)
		return nil
	}

	b := Builder{Partitions: partitions}
	search := b.searchPartitions()

	var modules []Info
	for _, entry := range entries {
		dir := filepath.Join(moduleDir, entry.Name())
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}

		prop, err := ReadProp(filepath.Join(dir, PropFileName))
		if err != nil {
			continue
		}
		if !slices.ContainsFunc(search, func(p string) bool { return isDir(filepath.Join(dir, p)) }) {
			continue
		}
		if _, skip := Excluded(dir); skip {
			continue
		}

		id := entry.Name()
		modules = append(modules, Info{
			ID:          id,
			Name:        prop.Get("name", id),
			Version:     prop.Get("version", "unknown"),
			Author:      prop.Get("author", "unknown"),
			Description: prop.Get("description", "unknown"),
		})
	}

	slices.SortFunc(modules, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return modules
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
