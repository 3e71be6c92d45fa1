//go:build amd64
// +build amd64

package hypervisor

// Implemented in entry_amd64.s.
func addrOfHostEntrypoint() uintptr

func isrAddrs(out *[exceptionVectors]uintptr)

func addrOfDefaultISR() uintptr

// hostEntrypointAddr is the VM-exit entry point written to HOST_RIP.
func hostEntrypointAddr() uintptr { return addrOfHostEntrypoint() }

func defaultISRAddr() uintptr { return addrOfDefaultISR() }

func isrAddresses() [exceptionVectors]uintptr {
	var out [exceptionVectors]uintptr
	isrAddrs(&out)
	return out
}
