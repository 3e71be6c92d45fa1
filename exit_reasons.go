package hypervisor

import "fmt"

// ExitReason is the basic exit reason, bits 15:0 of the exit-reason VMCS
// field (SDM vol. 3D appendix C).
type ExitReason uint16

const (
	ExitReasonExceptionOrNmi         ExitReason = 0
	ExitReasonExternalInterrupt      ExitReason = 1
	ExitReasonTripleFault            ExitReason = 2
	ExitReasonInitSignal             ExitReason = 3
	ExitReasonStartupIpi             ExitReason = 4
	ExitReasonIoSmi                  ExitReason = 5
	ExitReasonOtherSmi               ExitReason = 6
	ExitReasonInterruptWindow        ExitReason = 7
	ExitReasonNmiWindow              ExitReason = 8
	ExitReasonTaskSwitch             ExitReason = 9
	ExitReasonCpuid                  ExitReason = 10
	ExitReasonGetsec                 ExitReason = 11
	ExitReasonHlt                    ExitReason = 12
	ExitReasonInvd                   ExitReason = 13
	ExitReasonInvlpg                 ExitReason = 14
	ExitReasonRdpmc                  ExitReason = 15
	ExitReasonRdtsc                  ExitReason = 16
	ExitReasonRsm                    ExitReason = 17
	ExitReasonVmcall                 ExitReason = 18
	ExitReasonVmclear                ExitReason = 19
	ExitReasonVmlaunch               ExitReason = 20
	ExitReasonVmptrld                ExitReason = 21
	ExitReasonVmptrst                ExitReason = 22
	ExitReasonVmread                 ExitReason = 23
	ExitReasonVmresume               ExitReason = 24
	ExitReasonVmwrite                ExitReason = 25
	ExitReasonVmxoff                 ExitReason = 26
	ExitReasonVmxon                  ExitReason = 27
	ExitReasonControlRegisterAccess  ExitReason = 28
	ExitReasonMovDr                  ExitReason = 29
	ExitReasonIoInstruction          ExitReason = 30
	ExitReasonRdmsr                  ExitReason = 31
	ExitReasonWrmsr                  ExitReason = 32
	ExitReasonInvalidGuestState      ExitReason = 33
	ExitReasonMsrLoading             ExitReason = 34
	ExitReasonMwait                  ExitReason = 36
	ExitReasonMonitorTrapFlag        ExitReason = 37
	ExitReasonMonitor                ExitReason = 39
	ExitReasonPause                  ExitReason = 40
	ExitReasonMachineCheck           ExitReason = 41
	ExitReasonTprBelowThreshold      ExitReason = 43
	ExitReasonApicAccess             ExitReason = 44
	ExitReasonVirtualizedEoi         ExitReason = 45
	ExitReasonGdtrIdtrAccess         ExitReason = 46
	ExitReasonLdtrTrAccess           ExitReason = 47
	ExitReasonEptViolation           ExitReason = 48
	ExitReasonEptMisconfig           ExitReason = 49
	ExitReasonInvept                 ExitReason = 50
	ExitReasonRdtscp                 ExitReason = 51
	ExitReasonPreemptionTimerExpired ExitReason = 52
	ExitReasonInvvpid                ExitReason = 53
	ExitReasonWbinvd                 ExitReason = 54
	ExitReasonXsetbv                 ExitReason = 55
	ExitReasonApicWrite              ExitReason = 56
	ExitReasonRdrand                 ExitReason = 57
	ExitReasonInvpcid                ExitReason = 58
	ExitReasonVmfunc                 ExitReason = 59
	ExitReasonEncls                  ExitReason = 60
	ExitReasonRdseed                 ExitReason = 61
	ExitReasonPmlFull                ExitReason = 62
	ExitReasonXsaves                 ExitReason = 63
	ExitReasonXrstors                ExitReason = 64
	ExitReasonSppEvent               ExitReason = 66
	ExitReasonUmwait                 ExitReason = 67
	ExitReasonTpause                 ExitReason = 68
)

var exitReasonNames = map[ExitReason]string{
	ExitReasonExceptionOrNmi:         "exception or NMI",
	ExitReasonExternalInterrupt:      "external interrupt",
	ExitReasonTripleFault:            "triple fault",
	ExitReasonInitSignal:             "INIT signal",
	ExitReasonStartupIpi:             "start-up IPI",
	ExitReasonIoSmi:                  "I/O SMI",
	ExitReasonOtherSmi:               "other SMI",
	ExitReasonInterruptWindow:        "interrupt window",
	ExitReasonNmiWindow:              "NMI window",
	ExitReasonTaskSwitch:             "task switch",
	ExitReasonCpuid:                  "CPUID",
	ExitReasonGetsec:                 "GETSEC",
	ExitReasonHlt:                    "HLT",
	ExitReasonInvd:                   "INVD",
	ExitReasonInvlpg:                 "INVLPG",
	ExitReasonRdpmc:                  "RDPMC",
	ExitReasonRdtsc:                  "RDTSC",
	ExitReasonRsm:                    "RSM",
	ExitReasonVmcall:                 "VMCALL",
	ExitReasonVmclear:                "VMCLEAR",
	ExitReasonVmlaunch:               "VMLAUNCH",
	ExitReasonVmptrld:                "VMPTRLD",
	ExitReasonVmptrst:                "VMPTRST",
	ExitReasonVmread:                 "VMREAD",
	ExitReasonVmresume:               "VMRESUME",
	ExitReasonVmwrite:                "VMWRITE",
	ExitReasonVmxoff:                 "VMXOFF",
	ExitReasonVmxon:                  "VMXON",
	ExitReasonControlRegisterAccess:  "control-register access",
	ExitReasonMovDr:                  "MOV DR",
	ExitReasonIoInstruction:          "I/O instruction",
	ExitReasonRdmsr:                  "RDMSR",
	ExitReasonWrmsr:                  "WRMSR",
	ExitReasonInvalidGuestState:      "VM-entry failure due to invalid guest state",
	ExitReasonMsrLoading:             "VM-entry failure due to MSR loading",
	ExitReasonMwait:                  "MWAIT",
	ExitReasonMonitorTrapFlag:        "monitor trap flag",
	ExitReasonMonitor:                "MONITOR",
	ExitReasonPause:                  "PAUSE",
	ExitReasonMachineCheck:           "VM-entry failure due to machine-check event",
	ExitReasonTprBelowThreshold:      "TPR below threshold",
	ExitReasonApicAccess:             "APIC access",
	ExitReasonVirtualizedEoi:         "virtualized EOI",
	ExitReasonGdtrIdtrAccess:         "access to GDTR or IDTR",
	ExitReasonLdtrTrAccess:           "access to LDTR or TR",
	ExitReasonEptViolation:           "EPT violation",
	ExitReasonEptMisconfig:           "EPT misconfiguration",
	ExitReasonInvept:                 "INVEPT",
	ExitReasonRdtscp:                 "RDTSCP",
	ExitReasonPreemptionTimerExpired: "VMX-preemption timer expired",
	ExitReasonInvvpid:                "INVVPID",
	ExitReasonWbinvd:                 "WBINVD or WBNOINVD",
	ExitReasonXsetbv:                 "XSETBV",
	ExitReasonApicWrite:              "APIC write",
	ExitReasonRdrand:                 "RDRAND",
	ExitReasonInvpcid:                "INVPCID",
	ExitReasonVmfunc:                 "VMFUNC",
	ExitReasonEncls:                  "ENCLS",
	ExitReasonRdseed:                 "RDSEED",
	ExitReasonPmlFull:                "page-modification log full",
	ExitReasonXsaves:                 "XSAVES",
	ExitReasonXrstors:                "XRSTORS",
	ExitReasonSppEvent:               "SPP-related event",
	ExitReasonUmwait:                 "UMWAIT",
	ExitReasonTpause:                 "TPAUSE",
}

func (r ExitReason) String() string {
	if name, ok := exitReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("exit reason %d", uint16(r))
}

// exitReasonEntryFailure is set in the exit-reason field when VM entry
// failed after the checks that produce VMfailValid.
const exitReasonEntryFailure = 1 << 31

// ExitInfo is the decoded exit-reason field.
type ExitInfo struct {
	Reason       ExitReason
	EntryFailure bool
	Raw          uint64
}

// DecodeExitReason splits the raw exit-reason field.
func DecodeExitReason(raw uint64) ExitInfo {
	return ExitInfo{
		Reason:       ExitReason(raw & 0xffff),
		EntryFailure: raw&exitReasonEntryFailure != 0,
		Raw:          raw,
	}
}
