package vmxcap

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var osIoctl ioctler = &osIoctler{}

const kvmPath = "/dev/kvm"

// kvmMSREntry is struct kvm_msr_entry.
type kvmMSREntry struct {
	index    uint32
	reserved uint32
	data     uint64
}

// kvmMSRs is struct kvm_msrs with room for a single entry.
type kvmMSRs struct {
	nmsrs   uint32
	pad     uint32
	entries [1]kvmMSREntry
}

// KVM reads feature MSRs through KVM_GET_MSRS on the /dev/kvm system
// descriptor. The VMX capability MSRs are only reported when the kvm_intel
// module has nested virtualization enabled.
type KVM struct {
	file  *os.File
	ioctl ioctler
}

// OpenKVM opens /dev/kvm and checks the API version.
func OpenKVM() (*KVM, error) {
	file, err := os.OpenFile(kvmPath, os.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	k := &KVM{file: file, ioctl: osIoctl}
	if err := k.check(); err != nil {
		file.Close()
		return nil, err
	}
	return k, nil
}

func (k *KVM) check() error {
	fd := k.file.Fd()
	version, err := k.ioctl.ioctl(fd, ioctlKVMGetAPIVersion, 0)
	if err != nil {
		return fmt.Errorf("KVM_GET_API_VERSION: %w", err)
	}
	if version != kvmAPIVersion {
		return fmt.Errorf("%s: unsupported api version %d", kvmPath, version)
	}
	ok, err := k.ioctl.ioctl(fd, ioctlKVMCheckExtension, kvmCapGetMSRFeatures)
	if err != nil {
		return fmt.Errorf("KVM_CHECK_EXTENSION: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%s: no KVM_CAP_GET_MSR_FEATURES", kvmPath)
	}
	return nil
}

// ReadMSR implements Reader.
func (k *KVM) ReadMSR(msr uint32) (uint64, error) {
	req := kvmMSRs{nmsrs: 1}
	req.entries[0].index = msr
	n, err := k.ioctl.ioctl(k.file.Fd(), ioctlKVMGetMSRs, uintptr(unsafe.Pointer(&req)))
	if err != nil {
		return 0, fmt.Errorf("KVM_GET_MSRS %#x: %w", msr, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("KVM_GET_MSRS %#x: %w", msr, ErrUnavailable)
	}
	return req.entries[0].data, nil
}

// Close releases /dev/kvm.
func (k *KVM) Close() error { return k.file.Close() }
