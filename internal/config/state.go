package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultStatePath records the outcome of the last mount run.
const DefaultStatePath = "/data/adb/magic_mount/state.toml"

// statePathOverride allows tests to redirect the state file path.
var statePathOverride string //nolint:gochecknoglobals // test hook

// SetStatePathOverride sets a test override for the state path. Pass "" to
// restore the default.
func SetStatePathOverride(path string) {
	statePathOverride = path
}

// State describes the last completed mount run. `magicmount tree` compares
// it with the current module store to tell whether a reboot would change
// anything.
type State struct {
	Digest    string    `toml:"digest"`
	MountedAt time.Time `toml:"mounted_at"`
	Modules   []string  `toml:"modules"`
	Summary   string    `toml:"summary"`
}

// StatePath returns the path to the state file.
func StatePath() string {
	if statePathOverride != "" {
		return statePathOverride
	}
	return DefaultStatePath
}

// WriteState writes the state file, creating its directory if needed.
func WriteState(s State) error {
	path := StatePath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	//nolint:gosec // G306: readable by module scripts
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadState reads the state file. Returns os.ErrNotExist if no run has been
// recorded.
func ReadState() (State, error) {
	var s State
	_, err := toml.DecodeFile(StatePath(), &s)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, os.ErrNotExist
		}
		return State{}, err
	}
	return s, nil
}

// RemoveState removes the state file (best-effort).
func RemoveState() {
	os.Remove(StatePath()) //nolint:errcheck // best-effort
}
