package hypervisor

import (
	"sync"
	"unsafe"

	"github.com/davecgh/go-spew/spew"
)

const (
	exceptionVectors = 20
	idtVectors       = 256

	// unknownVector marks a frame from the default stub, which cannot tell
	// which vector fired.
	unknownVector = 0x100

	// Present, DPL 0, 64-bit interrupt gate.
	interruptGateFlags = 0x8e
)

// gate64 is an IA-32e mode IDT gate descriptor.
type gate64 struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	flags      uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func newGate(handler uintptr, cs uint16) gate64 {
	return gate64{
		offsetLow:  uint16(handler),
		selector:   cs,
		flags:      interruptGateFlags,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(uint64(handler) >> 32),
	}
}

func (g gate64) offset() uint64 {
	return uint64(g.offsetLow) | uint64(g.offsetMid)<<16 | uint64(g.offsetHigh)<<32
}

// hostIDT is the table every core uses in VMX root operation. It is built
// once under mu by Load and only read after that.
var hostIDT struct {
	mu          sync.Mutex
	initialized bool
	gates       [idtVectors]gate64
}

// initInterruptHandlers points the exception vectors at their entry stubs
// and every other vector at the default stub, all with code selector cs.
// Later calls are no-ops.
func initInterruptHandlers(cs uint16) {
	hostIDT.mu.Lock()
	defer hostIDT.mu.Unlock()
	if hostIDT.initialized {
		return
	}
	def := defaultISRAddr()
	for i := range hostIDT.gates {
		hostIDT.gates[i] = newGate(def, cs)
	}
	for i, addr := range isrAddresses() {
		hostIDT.gates[i] = newGate(addr, cs)
	}
	hostIDT.initialized = true
}

func hostIDTBase() uint64 {
	return uint64(uintptr(unsafe.Pointer(&hostIDT.gates[0])))
}

// interruptDispatch is called by the exception stubs. An exception in
// root operation is always a monitor bug, so it logs the frame and halts.
//
//go:nosplit
func interruptDispatch(frame *InterruptFrame) {
	l := Logger()
	if frame.Vector == unknownVector {
		l.Errorf("PANIC: unexpected interrupt at %#x", frame.Rip)
	} else {
		l.Errorf("PANIC: exception %d error code %#x at %#x", frame.Vector, frame.ErrorCode, frame.Rip)
	}
	l.Error(spew.Sdump(frame))
	if cpu := global.processor(); cpu != nil {
		cpu.Halt()
	}
	for {
	}
}
