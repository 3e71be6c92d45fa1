package hypervisor

import (
	"unsafe"

	"github.com/hankjacobs/hypervisor/x86"
)

// SegmentDescriptor is one 8-byte entry of a descriptor table.
type SegmentDescriptor uint64

// Access-byte and flag bits of a segment descriptor.
const (
	SegmentDescriptorPresent = 1 << 7
	SegmentDescriptorSystem  = 1 << 4 // set for code and data segments

	SegmentFlagGranularity = 1 << 3
	SegmentFlagLong        = 1 << 1
)

// SegmentUnusable is the "segment unusable" bit of VMCS access rights
// (SDM vol. 3C table 24-2).
const SegmentUnusable = 1 << 16

// SelectorTableLDT is the table indicator bit of a segment selector.
const SelectorTableLDT = 1 << 2

// Base returns bits 31:0 of the segment base.
func (d SegmentDescriptor) Base() uint32 {
	return uint32((d>>16)&0xffffff) | uint32((d>>56)&0xff)<<24
}

// Limit returns the raw 20-bit limit.
func (d SegmentDescriptor) Limit() uint32 {
	return uint32(d&0xffff) | uint32((d>>48)&0xf)<<16
}

// Access returns the access byte: type, S, DPL and P.
func (d SegmentDescriptor) Access() uint8 { return uint8(d >> 40) }

// Flags returns the G, D/B, L and AVL nibble.
func (d SegmentDescriptor) Flags() uint8 { return uint8(d>>52) & 0xf }

// Present reports whether the P bit is set.
func (d SegmentDescriptor) Present() bool { return d.Access()&SegmentDescriptorPresent != 0 }

// System reports whether this is a system descriptor (LDT, TSS, gate). In
// IA-32e mode these occupy two slots.
func (d SegmentDescriptor) System() bool { return d.Access()&SegmentDescriptorSystem == 0 }

// UnpackedSegment is a descriptor in the form the VMCS guest and host
// segment fields take.
type UnpackedSegment struct {
	Base         uint64
	Limit        uint32
	AccessRights uint32
	Selector     uint16
}

// Usable reports whether VM entry would treat the segment as usable.
func (s UnpackedSegment) Usable() bool { return s.AccessRights&SegmentUnusable == 0 }

// UnpackGDTEntry decodes the entry selector refers to. The null selector,
// selectors with the table indicator set, selectors past the end of the
// table and non-present descriptors come back unusable. LDT descriptors
// are not decoded.
func UnpackGDTEntry(gdt []SegmentDescriptor, selector uint16) UnpackedSegment {
	if selector&SelectorTableLDT != 0 {
		return UnpackedSegment{Selector: selector, AccessRights: SegmentUnusable}
	}
	index := int(selector >> 3)
	if index == 0 || index >= len(gdt) {
		return UnpackedSegment{AccessRights: SegmentUnusable}
	}

	d := gdt[index]
	s := UnpackedSegment{
		Selector:     selector,
		Base:         uint64(d.Base()),
		Limit:        d.Limit(),
		AccessRights: (uint32(d.Access()) | uint32(d.Flags())<<12) & 0xf0ff,
	}
	if d.Flags()&SegmentFlagGranularity != 0 {
		s.Limit = s.Limit<<12 | 0xfff
	}
	if d.System() && index+1 < len(gdt) {
		s.Base |= uint64(uint32(gdt[index+1])) << 32
	}
	if !d.Present() {
		s.AccessRights |= SegmentUnusable
	}
	return s
}

// currentGDT returns the live descriptor table as a slice over its memory.
func currentGDT(cpu x86.Processor) []SegmentDescriptor {
	p := cpu.GDT()
	if p.Base == 0 {
		return nil
	}
	n := (int(p.Limit) + 1) / 8
	return unsafe.Slice((*SegmentDescriptor)(unsafe.Pointer(uintptr(p.Base))), n)
}
