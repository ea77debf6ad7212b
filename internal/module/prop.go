package module

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Names of the files a module directory may carry.
const (
	PropFileName      = "module.prop"
	DisableFileName   = "disable"
	RemoveFileName    = "remove"
	SkipMountFileName = "skip_mount"
	ReplaceFileName   = ".replace"

	// OpaqueXattr is the overlayfs attribute marking a directory opaque.
	OpaqueXattr = "trusted.overlay.opaque"
)

// ErrInvalidID is returned for module ids outside the allowed charset.
var ErrInvalidID = errors.New("invalid module id")

var idPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]+$`)

// ValidateID checks a module id. Ids start with a letter and continue with
// letters, digits, '.', '_' or '-'; a single character is not enough.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Prop holds the key=value pairs of a module.prop file.
type Prop map[string]string

// Get returns the value for key, or def when the key is missing or empty.
func (p Prop) Get(key, def string) string {
	if v := p[key]; v != "" {
		return v
	}
	return def
}

// ReadProp parses a module.prop file. Lines without '=' and comment lines
// are ignored; the first occurrence of a key wins.
func ReadProp(path string) (Prop, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	prop := make(Prop)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := prop[key]; seen {
			continue
		}
		prop[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return prop, nil
}

// Excluded reports whether a marker file disables mounting of the module.
func Excluded(dir string) (string, bool) {
	for _, name := range []string{DisableFileName, RemoveFileName, SkipMountFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return name, true
		}
	}
	return "", false
}
