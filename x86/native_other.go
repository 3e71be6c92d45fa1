//go:build !amd64
// +build !amd64

package x86

import "errors"

// ErrUnsupported is returned on architectures without VMX.
var ErrUnsupported = errors.New("x86: not supported on this platform")

// CPUID returns zeros on non-amd64 platforms.
func CPUID(leaf, subleaf uint32) CPUIDResult {
	return CPUIDResult{}
}

// Native returns an error on non-amd64 platforms.
func Native() (Processor, error) {
	return nil, ErrUnsupported
}
