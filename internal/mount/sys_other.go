//go:build !linux

package mount

import "errors"

var _ Syscalls = unsupported{}

type unsupported struct{}

// NewSyscalls returns an implementation that fails every call; mounting is
// only supported on Linux.
//
//nolint:ireturn // callers only need the interface
func NewSyscalls() Syscalls { return unsupported{} }

func (unsupported) BindMount(string, string) error { return errors.ErrUnsupported }
func (unsupported) RemountReadOnly(string) error { return errors.ErrUnsupported }
func (unsupported) MoveMount(string, string) error { return errors.ErrUnsupported }
func (unsupported) MakePrivate(string) error { return errors.ErrUnsupported }
func (unsupported) MountTmpfs(string, string) error { return errors.ErrUnsupported }
func (unsupported) DetachUnmount(string) error { return errors.ErrUnsupported }
func (unsupported) Lchown(string, int, int) error { return errors.ErrUnsupported }
func (unsupported) GetLabel(string) (string, error) { return "", errors.ErrUnsupported }
func (unsupported) SetLabel(string, string) error { return errors.ErrUnsupported }
