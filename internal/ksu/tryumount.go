// Package ksu registers mounts with KernelSU so they can be force-unmounted
// for processes on the deny list.
package ksu

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bamsammich/magicmount/internal/module"
)

// Default locations used by KernelSU and Zygisk Next.
const (
	DefaultModuleDir    = "/data/adb/modules"
	DefaultDenylistFile = "/data/adb/zygisksu/denylist_enforce"

	zygiskModuleID = "zygisksu"
)

// ErrCancelled is returned when registration is suppressed by policy.
var ErrCancelled = errors.New("try_umount cancelled")

// TryUmount hands mount points to the KernelSU driver's try_umount list.
type TryUmount struct {
	ModuleDir    string
	DenylistFile string

	// send issues the driver call. Overridden in tests.
	send func(path string) error
}

// New returns a TryUmount using the default KernelSU locations.
func New() *TryUmount {
	return &TryUmount{
		ModuleDir:    DefaultModuleDir,
		DenylistFile: DefaultDenylistFile,
	}
}

// Register adds path to the kernel's try_umount list unless an enabled
// Zygisk Next module enforces its own deny list.
func (t *TryUmount) Register(path string) error {
	cancel, err := t.zygiskEnforcing()
	if err != nil {
		return err
	}
	if cancel {
		slog.Warn("zygisk next detected, try_umount cancelled", "path", path)
		return ErrCancelled
	}

	send := t.send
	if send == nil {
		send = sendTryUmount
	}
	return send(path)
}

func (t *TryUmount) zygiskEnforcing() (bool, error) {
	dir := filepath.Join(t.ModuleDir, zygiskModuleID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false, nil
	}
	if _, err := os.Stat(filepath.Join(dir, module.PropFileName)); err != nil {
		return false, nil
	}
	if _, disabled := module.Excluded(dir); disabled {
		return false, nil
	}

	data, err := os.ReadFile(t.DenylistFile)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", t.DenylistFile, err)
	}
	return strings.TrimSpace(string(data)) != "0", nil
}
