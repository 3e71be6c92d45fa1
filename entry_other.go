//go:build !amd64
// +build !amd64

package hypervisor

func hostEntrypointAddr() uintptr { return 0 }

func defaultISRAddr() uintptr { return 0 }

func isrAddresses() [exceptionVectors]uintptr {
	return [exceptionVectors]uintptr{}
}
