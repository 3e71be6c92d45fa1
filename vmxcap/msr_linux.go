package vmxcap

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Device reads MSRs from /dev/cpu/N/msr. It needs the msr module and
// CAP_SYS_RAWIO.
type Device struct {
	fd  int
	cpu int
}

// OpenDevice opens the MSR device of logical core cpu.
func OpenDevice(cpu int) (*Device, error) {
	path := fmt.Sprintf("/dev/cpu/%d/msr", cpu)
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &Device{fd: fd, cpu: cpu}, nil
}

// ReadMSR implements Reader. The MSR number is the file offset.
func (d *Device) ReadMSR(msr uint32) (uint64, error) {
	var buf [8]byte
	n, err := unix.Pread(d.fd, buf[:], int64(msr))
	if err != nil {
		return 0, fmt.Errorf("cpu %d: rdmsr %#x: %w", d.cpu, msr, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("cpu %d: rdmsr %#x: %w", d.cpu, msr, ErrUnavailable)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Close closes the device.
func (d *Device) Close() error { return unix.Close(d.fd) }
