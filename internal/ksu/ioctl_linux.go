//go:build linux

package ksu

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	installMagic1 = 0xDEADBEEF
	installMagic2 = 0xCAFEBABE

	// _IOW('K', 18, 0)
	ioctlAddTryUmount = 1<<30 | 'K'<<8 | 18

	tryUmountFlags = 2
	tryUmountMode  = 1
)

type addTryUmount struct {
	arg   uint64
	flags uint32
	mode  uint8
}

var driverFD = sync.OnceValue(func() int32 {
	fd := int32(-1)
	// KernelSU hands out its driver fd through a magic reboot(2) call.
	// fd stays -1 when the driver is absent.
	_, _, _ = unix.Syscall6(unix.SYS_REBOOT, installMagic1, installMagic2, 0,
		uintptr(unsafe.Pointer(&fd)), 0, 0)
	return fd
})

func sendTryUmount(path string) error {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return fmt.Errorf("try_umount %s: %w", path, err)
	}
	cmd := addTryUmount{
		arg:   uint64(uintptr(unsafe.Pointer(p))),
		flags: tryUmountFlags,
		mode:  tryUmountMode,
	}

	fd := driverFD()
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlAddTryUmount, uintptr(unsafe.Pointer(&cmd)))
	runtime.KeepAlive(p)
	if errno != 0 {
		// The driver may be absent; callers never act on this.
		slog.Error("umount failed", "path", path, "error", errno)
		return nil
	}
	slog.Info("umount successful", "path", path)
	return nil
}
