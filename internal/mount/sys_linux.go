//go:build linux

package mount

import (
	"errors"

	"golang.org/x/sys/unix"
)

// SELinuxXattr holds a path's security context.
const SELinuxXattr = "security.selinux"

var _ Syscalls = unixSyscalls{}

type unixSyscalls struct{}

// NewSyscalls returns the real mount(2)-backed implementation.
//
//nolint:ireturn // callers only need the interface
func NewSyscalls() Syscalls { return unixSyscalls{} }

func (unixSyscalls) BindMount(source, target string) error {
	return unix.Mount(source, target, "", unix.MS_BIND, "")
}

// RemountReadOnly needs MS_REMOUNT|MS_BIND to change per-mount flags.
func (unixSyscalls) RemountReadOnly(target string) error {
	return unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, "")
}

func (unixSyscalls) MoveMount(source, target string) error {
	return unix.Mount(source, target, "", unix.MS_MOVE, "")
}

func (unixSyscalls) MakePrivate(target string) error {
	return unix.Mount("", target, "", unix.MS_PRIVATE, "")
}

func (unixSyscalls) MountTmpfs(source, target string) error {
	return unix.Mount(source, target, "tmpfs", 0, "")
}

func (unixSyscalls) DetachUnmount(target string) error {
	return unix.Unmount(target, unix.MNT_DETACH)
}

func (unixSyscalls) Lchown(path string, uid, gid int) error {
	return unix.Lchown(path, uid, gid)
}

func (unixSyscalls) GetLabel(path string) (string, error) {
	sz, err := unix.Lgetxattr(path, SELinuxXattr, nil)
	if noLabel(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	buf := make([]byte, sz)
	n, err := unix.Lgetxattr(path, SELinuxXattr, buf)
	if noLabel(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func (unixSyscalls) SetLabel(path, label string) error {
	if label == "" {
		return nil
	}
	return unix.Lsetxattr(path, SELinuxXattr, []byte(label), 0)
}

func noLabel(err error) bool {
	return errors.Is(err, unix.ENODATA) || errors.Is(err, unix.ENOTSUP)
}
