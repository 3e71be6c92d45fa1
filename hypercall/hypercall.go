// Package hypercall defines the guest-visible hypercall ABI.
//
// A guest issues a hypercall by executing CPUID with Magic in EAX and the
// reason in ECX. The monitor intercepts the CPUID exit before any real
// CPUID runs and answers in EAX, EBX, ECX and EDX. Unknown reasons are
// answered with zeros, so probing is safe on any kernel, hypervised or not.
package hypercall

import (
	"fmt"

	"github.com/hankjacobs/hypervisor/x86"
)

// Magic is "rsty" in EAX.
const Magic = 0x7273_7479

// Reason selects what a hypercall does.
type Reason uint32

const (
	// ReasonVersion returns major, minor and patch in EAX, EBX and ECX.
	// EDX is reserved and zero.
	ReasonVersion Reason = 1
)

func (r Reason) String() string {
	switch r {
	case ReasonVersion:
		return "version"
	}
	return fmt.Sprintf("Reason(%d)", uint32(r))
}

// Result is the register file returned by a hypercall.
type Result struct {
	Reason  Reason
	Results [4]uint32
}

// Invoke issues a hypercall from the current core.
func Invoke(reason Reason) Result {
	r := x86.CPUID(Magic, uint32(reason))
	return Result{Reason: reason, Results: [4]uint32{r.Eax, r.Ebx, r.Ecx, r.Edx}}
}

// Version is the monitor version reported by a ReasonVersion hypercall.
type Version struct {
	Major, Minor, Patch uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Zero reports whether no monitor answered.
func (v Version) Zero() bool { return v == Version{} }

// Version decodes a ReasonVersion result.
func (r Result) Version() (Version, error) {
	if r.Reason != ReasonVersion {
		return Version{}, fmt.Errorf("hypercall: %v result is not a version", r.Reason)
	}
	return Version{Major: r.Results[0], Minor: r.Results[1], Patch: r.Results[2]}, nil
}

// QueryVersion asks the monitor for its version. Without a monitor the
// CPUID leaf is just out of range and the result is usually zero or junk;
// callers should treat a zero version as "not present".
func QueryVersion() (Version, error) {
	return Invoke(ReasonVersion).Version()
}
