package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the config file is looked up when none is given.
const DefaultPath = "/data/adb/magic_mount/config.toml"

// Defaults for fields missing from the config file.
const (
	DefaultModuleDir   = "/data/adb/modules/"
	DefaultMountSource = "KSU"
	DefaultLogFile     = "/data/adb/magic_mount/mm.log"
)

// Config represents the magic mount configuration file.
type Config struct {
	ModuleDir   string   `toml:"moduledir"`
	TempDir     string   `toml:"tempdir,omitempty"`
	MountSource string   `toml:"mountsource"`
	LogFile     string   `toml:"logfile"`
	Verbose     bool     `toml:"verbose"`
	Partitions  []string `toml:"partitions"`
	Umount      bool     `toml:"umount"`
}

// Default returns a config with every field at its default. An empty
// TempDir means the temp dir is picked automatically.
func Default() Config {
	return Config{
		ModuleDir:   DefaultModuleDir,
		MountSource: DefaultMountSource,
		LogFile:     DefaultLogFile,
		Partitions:  []string{},
	}
}

// Load reads the config file at path. Fields absent from the file keep
// their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault reads the config at DefaultPath. A missing file yields the
// defaults without an error.
func LoadDefault() (Config, error) {
	cfg, err := Load(DefaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes cfg to path, creating the parent directory if needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	//nolint:gosec // G306: config carries no secrets
	if err := os.WriteFile(path, []byte(c.String()), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// String returns the TOML encoding of c.
func (c Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return ""
	}
	return buf.String()
}

// Example returns the default config as TOML.
func Example() string {
	return Default().String()
}
