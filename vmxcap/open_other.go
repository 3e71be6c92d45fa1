//go:build !linux
// +build !linux

package vmxcap

import "errors"

var errNotLinux = errors.New("vmxcap: only supported on linux")

// KVM is unavailable off linux.
type KVM struct{}

// OpenKVM always fails off linux.
func OpenKVM() (*KVM, error) { return nil, errNotLinux }

func (*KVM) ReadMSR(uint32) (uint64, error) { return 0, errNotLinux }

func (*KVM) Close() error { return nil }

// Device is unavailable off linux.
type Device struct{}

// OpenDevice always fails off linux.
func OpenDevice(int) (*Device, error) { return nil, errNotLinux }

func (*Device) ReadMSR(uint32) (uint64, error) { return 0, errNotLinux }

func (*Device) Close() error { return nil }
