package mount

import "errors"

// ErrRootOnly is returned when a node needs module content to source its
// metadata but only exists as a synthetic ancestor.
var ErrRootOnly = errors.New("no module content to source from")

// Syscalls is the filesystem and mount surface the materializer drives.
type Syscalls interface {
	// BindMount binds source onto target.
	BindMount(source, target string) error
	// RemountReadOnly flips an existing bind mount to read-only.
	RemountReadOnly(target string) error
	// MoveMount atomically moves the mount at source onto target.
	MoveMount(source, target string) error
	// MakePrivate sets the propagation of the mount at target to private.
	MakePrivate(target string) error
	// MountTmpfs mounts a fresh tmpfs labeled source at target.
	MountTmpfs(source, target string) error
	// DetachUnmount lazily unmounts target.
	DetachUnmount(target string) error

	Lchown(path string, uid, gid int) error

	// GetLabel returns the security label of path without following
	// symlinks. A path without a label yields "".
	GetLabel(path string) (string, error)
	// SetLabel sets the security label of path without following symlinks.
	SetLabel(path, label string) error
}

// Registrar is told about mounts that a privileged component must be able
// to force-unmount later. Registration is fire-and-forget.
type Registrar interface {
	Register(path string) error
}
