package x86

// Model-specific registers.
const (
	MSRIA32FeatureControl           = 0x0000_003a
	MSRIA32SysenterCS               = 0x0000_0174
	MSRIA32SysenterESP              = 0x0000_0175
	MSRIA32SysenterEIP              = 0x0000_0176
	MSRIA32DebugControl             = 0x0000_01d9
	MSRIA32VMXBasic                 = 0x0000_0480
	MSRIA32VMXPinBasedControls      = 0x0000_0481
	MSRIA32VMXProcBasedControls     = 0x0000_0482
	MSRIA32VMXExitControls          = 0x0000_0483
	MSRIA32VMXEntryControls         = 0x0000_0484
	MSRIA32VMXMisc                  = 0x0000_0485
	MSRIA32VMXCR0Fixed0             = 0x0000_0486
	MSRIA32VMXCR0Fixed1             = 0x0000_0487
	MSRIA32VMXCR4Fixed0             = 0x0000_0488
	MSRIA32VMXCR4Fixed1             = 0x0000_0489
	MSRIA32VMXVMCSEnum              = 0x0000_048a
	MSRIA32VMXProcBasedControls2    = 0x0000_048b
	MSRIA32VMXEPTVPIDCap            = 0x0000_048c
	MSRIA32VMXTruePinBasedControls  = 0x0000_048d
	MSRIA32VMXTrueProcBasedControls = 0x0000_048e
	MSRIA32VMXTrueExitControls      = 0x0000_048f
	MSRIA32VMXTrueEntryControls     = 0x0000_0490
	MSRIA32VMXVMFunc                = 0x0000_0491
	MSRIA32EFER                     = 0xc000_0080
	MSRIA32FSBase                   = 0xc000_0100
	MSRIA32GSBase                   = 0xc000_0101
)

// IA32_FEATURE_CONTROL bits.
const (
	FeatureControlLocked        = 1 << 0
	FeatureControlVMXOutsideSMX = 1 << 2
)

// CPUID leaf 1 (processor info and feature bits).
const (
	CPUIDLeafFeatureInfo = 0x1
	CPUIDFeatureECXVMX   = 1 << 5
)

// Useful bits.
const (
	CR0PE = 1 << 0
	CR0NE = 1 << 5
	CR0PG = 1 << 31

	CR4PAE  = 1 << 5
	CR4VMXE = 1 << 13

	RFlagsReserved = 1 << 1
	RFlagsIF       = 1 << 9
)

// PageSize is the size of the regions handed to VMX instructions.
const PageSize = 0x1000

// IsPageAligned reports whether addr lies on a page boundary.
func IsPageAligned(addr uint64) bool {
	return addr&(PageSize-1) == 0
}

// Split returns the high and low halves of a 64-bit MSR value, in the
// EDX:EAX order RDMSR produces them.
func Split(value uint64) (hi, lo uint32) {
	return uint32(value >> 32), uint32(value)
}
