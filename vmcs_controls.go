package hypervisor

// FieldWidth is bits 14:13 of a field encoding.
type FieldWidth uint8

const (
	Width16 FieldWidth = iota
	Width64
	Width32
	WidthNatural
)

// FieldType is bits 11:10 of a field encoding.
type FieldType uint8

const (
	FieldControl FieldType = iota
	FieldExitInformation
	FieldGuestState
	FieldHostState
)

// Width returns the width of the field.
func (f VmcsField) Width() FieldWidth { return FieldWidth((f >> 13) & 3) }

// Type returns the field's area of the VMCS.
func (f VmcsField) Type() FieldType { return FieldType((f >> 10) & 3) }

// High reports whether f is the upper half of a 64-bit field.
func (f VmcsField) High() bool { return f&1 == 1 }

// ReadOnly reports whether VMWRITE to f fails with error 13.
func (f VmcsField) ReadOnly() bool { return f.Type() == FieldExitInformation }

// Pin-based VM-execution controls.
const (
	PinBasedControlsExternalInterruptExiting = 1 << 0
	PinBasedControlsNmiExiting               = 1 << 3
	PinBasedControlsVirtualNmi               = 1 << 5
	PinBasedControlsVmxPreemption            = 1 << 6
	PinBasedControlsPostedInterrupts         = 1 << 7
)

// Primary processor-based VM-execution controls.
const (
	CpuBasedControlsInterruptWindowExiting = 1 << 2
	CpuBasedControlsTscOffsetting          = 1 << 3
	CpuBasedControlsHltExiting             = 1 << 7
	CpuBasedControlsInvlpgExiting          = 1 << 9
	CpuBasedControlsMwaitExiting           = 1 << 10
	CpuBasedControlsRdpmcExiting           = 1 << 11
	CpuBasedControlsRdtscExiting           = 1 << 12
	CpuBasedControlsCr3LdExiting           = 1 << 15
	CpuBasedControlsCr3StExiting           = 1 << 16
	CpuBasedControlsCr8LdExiting           = 1 << 19
	CpuBasedControlsCr8StExiting           = 1 << 20
	CpuBasedControlsTprShadow              = 1 << 21
	CpuBasedControlsNmiWindowExiting       = 1 << 22
	CpuBasedControlsMovDrExiting           = 1 << 23
	CpuBasedControlsIoExiting              = 1 << 24
	CpuBasedControlsIoBitmaps              = 1 << 25
	CpuBasedControlsMonitorTrapFlagEnable  = 1 << 27
	CpuBasedControlsMsrBitmaps             = 1 << 28
	CpuBasedControlsMonitorExiting         = 1 << 29
	CpuBasedControlsPauseExiting           = 1 << 30
	CpuBasedControlsSecondaryEnable        = 1 << 31
)

// Secondary processor-based VM-execution controls.
const (
	SecondaryCpuBasedControlsVirtualApic            = 1 << 0
	SecondaryCpuBasedControlsEptEnable              = 1 << 1
	SecondaryCpuBasedControlsDtExiting              = 1 << 2
	SecondaryCpuBasedControlsRdtscpEnable           = 1 << 3
	SecondaryCpuBasedControlsX2ApicEnable           = 1 << 4
	SecondaryCpuBasedControlsVpidEnable             = 1 << 5
	SecondaryCpuBasedControlsWbinvdExiting          = 1 << 6
	SecondaryCpuBasedControlsUnrestrictedGuest      = 1 << 7
	SecondaryCpuBasedControlsVirtualApicRegister    = 1 << 8
	SecondaryCpuBasedControlsVirtualInterruptEnable = 1 << 9
	SecondaryCpuBasedControlsPauseLoopExiting       = 1 << 10
	SecondaryCpuBasedControlsRdrandExiting          = 1 << 11
	SecondaryCpuBasedControlsInvpcidEnable          = 1 << 12
	SecondaryCpuBasedControlsVmfuncEnable           = 1 << 13
	SecondaryCpuBasedControlsVmcsShadow             = 1 << 14
	SecondaryCpuBasedControlsEnclsExiting           = 1 << 15
	SecondaryCpuBasedControlsRdseedExiting          = 1 << 16
	SecondaryCpuBasedControlsPmlEnable              = 1 << 17
	SecondaryCpuBasedControlsEptVeEnable            = 1 << 18
	SecondaryCpuBasedControlsPtConcealVmx           = 1 << 19
	SecondaryCpuBasedControlsXSavesEnable           = 1 << 20
	SecondaryCpuBasedControlsEptExecuteControl      = 1 << 22
	SecondaryCpuBasedControlsTscScalingEnable       = 1 << 25
)

// VM-exit controls (SDM vol. 3C table 24-11).
const (
	VmExitIa32eMode                  = 1 << 9
	VmExitAcknowledgeInterruptOnExit = 1 << 15
	VmExitConcealVmxFromPt           = 1 << 24
)

// VM-entry controls (SDM vol. 3C table 24-13).
const (
	VmEntryIa32eMode = 1 << 9
)

// Interruption-information fields (VM-entry and VM-exit).
const (
	InterruptInfoVectorMask    = 0xff
	InterruptInfoTypeMask      = 0x7 << 8
	InterruptTypeExternal      = 0 << 8
	InterruptInfoValid         = 1 << 31
	InterruptibilityBlockSTI   = 1 << 0
	InterruptibilityBlockMovSS = 1 << 1
)
