package vmxcap

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// KVM ioctls on the /dev/kvm system file descriptor.
const (
	ioctlKVMGetAPIVersion          = 0xAE00
	ioctlKVMCheckExtension         = 0xAE03
	ioctlKVMGetMSRFeatureIndexList = 0xC004AE0A
	ioctlKVMGetMSRs                = 0xC008AE88
)

const (
	kvmAPIVersion = 12

	// KVM_CAP_GET_MSR_FEATURES
	kvmCapGetMSRFeatures = 153
)

// https://github.com/golang/sys/blob/master/unix/syscall_unix.go#L33
func errnoErr(e syscall.Errno) error {
	switch e {
	case 0:
		return nil
	case unix.EAGAIN:
		return syscall.EAGAIN
	case unix.EINVAL:
		return syscall.EINVAL
	case unix.ENOENT:
		return syscall.ENOENT
	case unix.EINTR:
		return syscall.EINTR
	}
	return e
}

// ioctler is an interface capable of calling ioctl
type ioctler interface {
	ioctl(fd uintptr, req uint, arg uintptr) (ret uintptr, err error)
}

// An osIoctler struct does OS calls to ioctl.
type osIoctler struct{}

func (osIoctler) ioctl(fd uintptr, req uint, arg uintptr) (ret uintptr, err error) {
	ret, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		fd,
		uintptr(req),
		arg,
	)
	if errno != 0 {
		err = errnoErr(errno)
	}

	return
}
