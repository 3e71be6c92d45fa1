package hypervisor

import "fmt"

// VmcsField is the architectural encoding of a VMCS field (Intel SDM
// vol. 3, appendix B). A 64-bit field's High companion accesses bits 63:32
// on their own.
type VmcsField uint32

const (
	VirtualProcessorID          VmcsField = 0x00000000
	PostedIntrNV                VmcsField = 0x00000002
	EptpIndex                   VmcsField = 0x00000004
	GuestEsSelector             VmcsField = 0x00000800
	GuestCsSelector             VmcsField = 0x00000802
	GuestSsSelector             VmcsField = 0x00000804
	GuestDsSelector             VmcsField = 0x00000806
	GuestFsSelector             VmcsField = 0x00000808
	GuestGsSelector             VmcsField = 0x0000080a
	GuestLdtrSelector           VmcsField = 0x0000080c
	GuestTrSelector             VmcsField = 0x0000080e
	GuestIntrStatus             VmcsField = 0x00000810
	GuestPmlIndex               VmcsField = 0x00000812
	HostEsSelector              VmcsField = 0x00000c00
	HostCsSelector              VmcsField = 0x00000c02
	HostSsSelector              VmcsField = 0x00000c04
	HostDsSelector              VmcsField = 0x00000c06
	HostFsSelector              VmcsField = 0x00000c08
	HostGsSelector              VmcsField = 0x00000c0a
	HostTrSelector              VmcsField = 0x00000c0c
	IoBitmapA                   VmcsField = 0x00002000
	IoBitmapAHigh               VmcsField = 0x00002001
	IoBitmapB                   VmcsField = 0x00002002
	IoBitmapBHigh               VmcsField = 0x00002003
	MsrBitmap                   VmcsField = 0x00002004
	MsrBitmapHigh               VmcsField = 0x00002005
	VmExitMsrStoreAddr          VmcsField = 0x00002006
	VmExitMsrStoreAddrHigh      VmcsField = 0x00002007
	VmExitMsrLoadAddr           VmcsField = 0x00002008
	VmExitMsrLoadAddrHigh       VmcsField = 0x00002009
	VmEntryMsrLoadAddr          VmcsField = 0x0000200a
	VmEntryMsrLoadAddrHigh      VmcsField = 0x0000200b
	ExecutiveVmcsPointer        VmcsField = 0x0000200c
	ExecutiveVmcsPointerHigh    VmcsField = 0x0000200d
	PmlAddress                  VmcsField = 0x0000200e
	PmlAddressHigh              VmcsField = 0x0000200f
	TscOffset                   VmcsField = 0x00002010
	TscOffsetHigh               VmcsField = 0x00002011
	VirtualApicPageAddr         VmcsField = 0x00002012
	VirtualApicPageAddrHigh     VmcsField = 0x00002013
	ApicAccessAddr              VmcsField = 0x00002014
	ApicAccessAddrHigh          VmcsField = 0x00002015
	PostedIntrDescAddr          VmcsField = 0x00002016
	PostedIntrDescAddrHigh      VmcsField = 0x00002017
	VmFunctionControls          VmcsField = 0x00002018
	VmFunctionControlsHigh      VmcsField = 0x00002019
	EptPointer                  VmcsField = 0x0000201a
	EptPointerHigh              VmcsField = 0x0000201b
	EoiExitBitmap0              VmcsField = 0x0000201c
	EoiExitBitmap0High          VmcsField = 0x0000201d
	EoiExitBitmap1              VmcsField = 0x0000201e
	EoiExitBitmap1High          VmcsField = 0x0000201f
	EoiExitBitmap2              VmcsField = 0x00002020
	EoiExitBitmap2High          VmcsField = 0x00002021
	EoiExitBitmap3              VmcsField = 0x00002022
	EoiExitBitmap3High          VmcsField = 0x00002023
	EptpListAddress             VmcsField = 0x00002024
	EptpListAddressHigh         VmcsField = 0x00002025
	VmReadBitmap                VmcsField = 0x00002026
	VmReadBitmapHigh            VmcsField = 0x00002027
	VmWriteBitmap               VmcsField = 0x00002028
	VmWriteBitmapHigh           VmcsField = 0x00002029
	VeInfoAddress               VmcsField = 0x0000202a
	VeInfoAddressHigh           VmcsField = 0x0000202b
	XssExitBitmap               VmcsField = 0x0000202c
	XssExitBitmapHigh           VmcsField = 0x0000202d
	EnclsExitingBitmap          VmcsField = 0x0000202e
	EnclsExitingBitmapHigh      VmcsField = 0x0000202f
	SppTablePointer             VmcsField = 0x00002030
	SppTablePointerHigh         VmcsField = 0x00002031
	TscMultiplier               VmcsField = 0x00002032
	TscMultiplierHigh           VmcsField = 0x00002033
	TertiaryVmExecControl       VmcsField = 0x00002034
	TertiaryVmExecControlHigh   VmcsField = 0x00002035
	EnclvExitingBitmap          VmcsField = 0x00002036
	EnclvExitingBitmapHigh      VmcsField = 0x00002037
	GuestPhysicalAddress        VmcsField = 0x00002400
	GuestPhysicalAddressHigh    VmcsField = 0x00002401
	VmcsLinkPointer             VmcsField = 0x00002800
	VmcsLinkPointerHigh         VmcsField = 0x00002801
	GuestIA32Debugctl           VmcsField = 0x00002802
	GuestIA32DebugctlHigh       VmcsField = 0x00002803
	GuestIA32Pat                VmcsField = 0x00002804
	GuestIA32PatHigh            VmcsField = 0x00002805
	GuestIA32Efer               VmcsField = 0x00002806
	GuestIA32EferHigh           VmcsField = 0x00002807
	GuestIA32PerfGlobalCtrl     VmcsField = 0x00002808
	GuestIA32PerfGlobalCtrlHigh VmcsField = 0x00002809
	GuestPDPtr0                 VmcsField = 0x0000280a
	GuestPDPtr0High             VmcsField = 0x0000280b
	GuestPDPtr1                 VmcsField = 0x0000280c
	GuestPDPtr1High             VmcsField = 0x0000280d
	GuestPDPtr2                 VmcsField = 0x0000280e
	GuestPDPtr2High             VmcsField = 0x0000280f
	GuestPDPtr3                 VmcsField = 0x00002810
	GuestPDPtr3High             VmcsField = 0x00002811
	GuestBndcfgs                VmcsField = 0x00002812
	GuestBndcfgsHigh            VmcsField = 0x00002813
	GuestIA32RtitCtl            VmcsField = 0x00002814
	GuestIA32RtitCtlHigh        VmcsField = 0x00002815
	GuestIA32LbrCtl             VmcsField = 0x00002816
	GuestIA32LbrCtlHigh         VmcsField = 0x00002817
	GuestIA32Pkrs               VmcsField = 0x00002818
	GuestIA32PkrsHigh           VmcsField = 0x00002819
	HostIA32Pat                 VmcsField = 0x00002c00
	HostIA32PatHigh             VmcsField = 0x00002c01
	HostIA32Efer                VmcsField = 0x00002c02
	HostIA32EferHigh            VmcsField = 0x00002c03
	HostIA32PerfGlobalCtrl      VmcsField = 0x00002c04
	HostIA32PerfGlobalCtrlHigh  VmcsField = 0x00002c05
	HostIA32Pkrs                VmcsField = 0x00002c06
	HostIA32PkrsHigh            VmcsField = 0x00002c07
	PinBasedVmExecControl       VmcsField = 0x00004000
	CpuBasedVmExecControl       VmcsField = 0x00004002
	ExceptionBitmap             VmcsField = 0x00004004
	PageFaultErrorCodeMask      VmcsField = 0x00004006
	PageFaultErrorCodeMatch     VmcsField = 0x00004008
	Cr3TargetCount              VmcsField = 0x0000400a
	VmExitControls              VmcsField = 0x0000400c
	VmExitMsrStoreCount         VmcsField = 0x0000400e
	VmExitMsrLoadCount          VmcsField = 0x00004010
	VmEntryControls             VmcsField = 0x00004012
	VmEntryMsrLoadCount         VmcsField = 0x00004014
	VmEntryIntrInfoField        VmcsField = 0x00004016
	VmEntryExceptionErrorCode   VmcsField = 0x00004018
	VmEntryInstructionLen       VmcsField = 0x0000401a
	TprThreshold                VmcsField = 0x0000401c
	SecondaryVmExecControl      VmcsField = 0x0000401e
	PleGap                      VmcsField = 0x00004020
	PleWindow                   VmcsField = 0x00004022
	VmInstructionError          VmcsField = 0x00004400
	VmExitReason                VmcsField = 0x00004402
	VmExitIntrInfo              VmcsField = 0x00004404
	VmExitIntrErrorCode         VmcsField = 0x00004406
	IdtVectoringInfoField       VmcsField = 0x00004408
	IdtVectoringErrorCode       VmcsField = 0x0000440a
	VmExitInstructionLen        VmcsField = 0x0000440c
	VmxInstructionInfo          VmcsField = 0x0000440e
	GuestEsLimit                VmcsField = 0x00004800
	GuestCsLimit                VmcsField = 0x00004802
	GuestSsLimit                VmcsField = 0x00004804
	GuestDsLimit                VmcsField = 0x00004806
	GuestFsLimit                VmcsField = 0x00004808
	GuestGsLimit                VmcsField = 0x0000480a
	GuestLdtrLimit              VmcsField = 0x0000480c
	GuestTrLimit                VmcsField = 0x0000480e
	GuestGdtrLimit              VmcsField = 0x00004810
	GuestIdtrLimit              VmcsField = 0x00004812
	GuestEsArBytes              VmcsField = 0x00004814
	GuestCsArBytes              VmcsField = 0x00004816
	GuestSsArBytes              VmcsField = 0x00004818
	GuestDsArBytes              VmcsField = 0x0000481a
	GuestFsArBytes              VmcsField = 0x0000481c
	GuestGsArBytes              VmcsField = 0x0000481e
	GuestLdtrArBytes            VmcsField = 0x00004820
	GuestTrArBytes              VmcsField = 0x00004822
	GuestInterruptibilityInfo   VmcsField = 0x00004824
	GuestActivityState          VmcsField = 0x00004826
	GuestSmbase                 VmcsField = 0x00004828
	GuestSysenterCs             VmcsField = 0x0000482a
	VmxPreemptionTimerValue     VmcsField = 0x0000482e
	HostIA32SysenterCs          VmcsField = 0x00004c00
	Cr0GuestHostMask            VmcsField = 0x00006000
	Cr4GuestHostMask            VmcsField = 0x00006002
	Cr0ReadShadow               VmcsField = 0x00006004
	Cr4ReadShadow               VmcsField = 0x00006006
	Cr3TargetValue0             VmcsField = 0x00006008
	Cr3TargetValue1             VmcsField = 0x0000600a
	Cr3TargetValue2             VmcsField = 0x0000600c
	Cr3TargetValue3             VmcsField = 0x0000600e
	ExitQualification           VmcsField = 0x00006400
	IoRcx                       VmcsField = 0x00006402
	IoRsi                       VmcsField = 0x00006404
	IoRdi                       VmcsField = 0x00006406
	IoRip                       VmcsField = 0x00006408
	GuestLinearAddress          VmcsField = 0x0000640a
	GuestCr0                    VmcsField = 0x00006800
	GuestCr3                    VmcsField = 0x00006802
	GuestCr4                    VmcsField = 0x00006804
	GuestEsBase                 VmcsField = 0x00006806
	GuestCsBase                 VmcsField = 0x00006808
	GuestSsBase                 VmcsField = 0x0000680a
	GuestDsBase                 VmcsField = 0x0000680c
	GuestFsBase                 VmcsField = 0x0000680e
	GuestGsBase                 VmcsField = 0x00006810
	GuestLdtrBase               VmcsField = 0x00006812
	GuestTrBase                 VmcsField = 0x00006814
	GuestGdtrBase               VmcsField = 0x00006816
	GuestIdtrBase               VmcsField = 0x00006818
	GuestDr7                    VmcsField = 0x0000681a
	GuestRsp                    VmcsField = 0x0000681c
	GuestRip                    VmcsField = 0x0000681e
	GuestRFlags                 VmcsField = 0x00006820
	GuestPendingDbgExceptions   VmcsField = 0x00006822
	GuestSysenterEsp            VmcsField = 0x00006824
	GuestSysenterEip            VmcsField = 0x00006826
	GuestIA32SCet               VmcsField = 0x00006828
	GuestSsp                    VmcsField = 0x0000682a
	GuestIntrSspTable           VmcsField = 0x0000682c
	HostCr0                     VmcsField = 0x00006c00
	HostCr3                     VmcsField = 0x00006c02
	HostCr4                     VmcsField = 0x00006c04
	HostFsBase                  VmcsField = 0x00006c06
	HostGsBase                  VmcsField = 0x00006c08
	HostTrBase                  VmcsField = 0x00006c0a
	HostGdtrBase                VmcsField = 0x00006c0c
	HostIdtrBase                VmcsField = 0x00006c0e
	HostIA32SysenterEsp         VmcsField = 0x00006c10
	HostIA32SysenterEip         VmcsField = 0x00006c12
	HostRsp                     VmcsField = 0x00006c14
	HostRip                     VmcsField = 0x00006c16
	HostIA32SCet                VmcsField = 0x00006c18
	HostSsp                     VmcsField = 0x00006c1a
	HostIntrSspTable            VmcsField = 0x00006c1c
)

// VmcsFields lists every field in encoding order.
var VmcsFields = []VmcsField{
	VirtualProcessorID,
	PostedIntrNV,
	EptpIndex,
	GuestEsSelector,
	GuestCsSelector,
	GuestSsSelector,
	GuestDsSelector,
	GuestFsSelector,
	GuestGsSelector,
	GuestLdtrSelector,
	GuestTrSelector,
	GuestIntrStatus,
	GuestPmlIndex,
	HostEsSelector,
	HostCsSelector,
	HostSsSelector,
	HostDsSelector,
	HostFsSelector,
	HostGsSelector,
	HostTrSelector,
	IoBitmapA,
	IoBitmapAHigh,
	IoBitmapB,
	IoBitmapBHigh,
	MsrBitmap,
	MsrBitmapHigh,
	VmExitMsrStoreAddr,
	VmExitMsrStoreAddrHigh,
	VmExitMsrLoadAddr,
	VmExitMsrLoadAddrHigh,
	VmEntryMsrLoadAddr,
	VmEntryMsrLoadAddrHigh,
	ExecutiveVmcsPointer,
	ExecutiveVmcsPointerHigh,
	PmlAddress,
	PmlAddressHigh,
	TscOffset,
	TscOffsetHigh,
	VirtualApicPageAddr,
	VirtualApicPageAddrHigh,
	ApicAccessAddr,
	ApicAccessAddrHigh,
	PostedIntrDescAddr,
	PostedIntrDescAddrHigh,
	VmFunctionControls,
	VmFunctionControlsHigh,
	EptPointer,
	EptPointerHigh,
	EoiExitBitmap0,
	EoiExitBitmap0High,
	EoiExitBitmap1,
	EoiExitBitmap1High,
	EoiExitBitmap2,
	EoiExitBitmap2High,
	EoiExitBitmap3,
	EoiExitBitmap3High,
	EptpListAddress,
	EptpListAddressHigh,
	VmReadBitmap,
	VmReadBitmapHigh,
	VmWriteBitmap,
	VmWriteBitmapHigh,
	VeInfoAddress,
	VeInfoAddressHigh,
	XssExitBitmap,
	XssExitBitmapHigh,
	EnclsExitingBitmap,
	EnclsExitingBitmapHigh,
	SppTablePointer,
	SppTablePointerHigh,
	TscMultiplier,
	TscMultiplierHigh,
	TertiaryVmExecControl,
	TertiaryVmExecControlHigh,
	EnclvExitingBitmap,
	EnclvExitingBitmapHigh,
	GuestPhysicalAddress,
	GuestPhysicalAddressHigh,
	VmcsLinkPointer,
	VmcsLinkPointerHigh,
	GuestIA32Debugctl,
	GuestIA32DebugctlHigh,
	GuestIA32Pat,
	GuestIA32PatHigh,
	GuestIA32Efer,
	GuestIA32EferHigh,
	GuestIA32PerfGlobalCtrl,
	GuestIA32PerfGlobalCtrlHigh,
	GuestPDPtr0,
	GuestPDPtr0High,
	GuestPDPtr1,
	GuestPDPtr1High,
	GuestPDPtr2,
	GuestPDPtr2High,
	GuestPDPtr3,
	GuestPDPtr3High,
	GuestBndcfgs,
	GuestBndcfgsHigh,
	GuestIA32RtitCtl,
	GuestIA32RtitCtlHigh,
	GuestIA32LbrCtl,
	GuestIA32LbrCtlHigh,
	GuestIA32Pkrs,
	GuestIA32PkrsHigh,
	HostIA32Pat,
	HostIA32PatHigh,
	HostIA32Efer,
	HostIA32EferHigh,
	HostIA32PerfGlobalCtrl,
	HostIA32PerfGlobalCtrlHigh,
	HostIA32Pkrs,
	HostIA32PkrsHigh,
	PinBasedVmExecControl,
	CpuBasedVmExecControl,
	ExceptionBitmap,
	PageFaultErrorCodeMask,
	PageFaultErrorCodeMatch,
	Cr3TargetCount,
	VmExitControls,
	VmExitMsrStoreCount,
	VmExitMsrLoadCount,
	VmEntryControls,
	VmEntryMsrLoadCount,
	VmEntryIntrInfoField,
	VmEntryExceptionErrorCode,
	VmEntryInstructionLen,
	TprThreshold,
	SecondaryVmExecControl,
	PleGap,
	PleWindow,
	VmInstructionError,
	VmExitReason,
	VmExitIntrInfo,
	VmExitIntrErrorCode,
	IdtVectoringInfoField,
	IdtVectoringErrorCode,
	VmExitInstructionLen,
	VmxInstructionInfo,
	GuestEsLimit,
	GuestCsLimit,
	GuestSsLimit,
	GuestDsLimit,
	GuestFsLimit,
	GuestGsLimit,
	GuestLdtrLimit,
	GuestTrLimit,
	GuestGdtrLimit,
	GuestIdtrLimit,
	GuestEsArBytes,
	GuestCsArBytes,
	GuestSsArBytes,
	GuestDsArBytes,
	GuestFsArBytes,
	GuestGsArBytes,
	GuestLdtrArBytes,
	GuestTrArBytes,
	GuestInterruptibilityInfo,
	GuestActivityState,
	GuestSmbase,
	GuestSysenterCs,
	VmxPreemptionTimerValue,
	HostIA32SysenterCs,
	Cr0GuestHostMask,
	Cr4GuestHostMask,
	Cr0ReadShadow,
	Cr4ReadShadow,
	Cr3TargetValue0,
	Cr3TargetValue1,
	Cr3TargetValue2,
	Cr3TargetValue3,
	ExitQualification,
	IoRcx,
	IoRsi,
	IoRdi,
	IoRip,
	GuestLinearAddress,
	GuestCr0,
	GuestCr3,
	GuestCr4,
	GuestEsBase,
	GuestCsBase,
	GuestSsBase,
	GuestDsBase,
	GuestFsBase,
	GuestGsBase,
	GuestLdtrBase,
	GuestTrBase,
	GuestGdtrBase,
	GuestIdtrBase,
	GuestDr7,
	GuestRsp,
	GuestRip,
	GuestRFlags,
	GuestPendingDbgExceptions,
	GuestSysenterEsp,
	GuestSysenterEip,
	GuestIA32SCet,
	GuestSsp,
	GuestIntrSspTable,
	HostCr0,
	HostCr3,
	HostCr4,
	HostFsBase,
	HostGsBase,
	HostTrBase,
	HostGdtrBase,
	HostIdtrBase,
	HostIA32SysenterEsp,
	HostIA32SysenterEip,
	HostRsp,
	HostRip,
	HostIA32SCet,
	HostSsp,
	HostIntrSspTable,
}

var vmcsFieldNames = map[VmcsField]string{
	VirtualProcessorID:          "VirtualProcessorID",
	PostedIntrNV:                "PostedIntrNV",
	EptpIndex:                   "EptpIndex",
	GuestEsSelector:             "GuestEsSelector",
	GuestCsSelector:             "GuestCsSelector",
	GuestSsSelector:             "GuestSsSelector",
	GuestDsSelector:             "GuestDsSelector",
	GuestFsSelector:             "GuestFsSelector",
	GuestGsSelector:             "GuestGsSelector",
	GuestLdtrSelector:           "GuestLdtrSelector",
	GuestTrSelector:             "GuestTrSelector",
	GuestIntrStatus:             "GuestIntrStatus",
	GuestPmlIndex:               "GuestPmlIndex",
	HostEsSelector:              "HostEsSelector",
	HostCsSelector:              "HostCsSelector",
	HostSsSelector:              "HostSsSelector",
	HostDsSelector:              "HostDsSelector",
	HostFsSelector:              "HostFsSelector",
	HostGsSelector:              "HostGsSelector",
	HostTrSelector:              "HostTrSelector",
	IoBitmapA:                   "IoBitmapA",
	IoBitmapAHigh:               "IoBitmapAHigh",
	IoBitmapB:                   "IoBitmapB",
	IoBitmapBHigh:               "IoBitmapBHigh",
	MsrBitmap:                   "MsrBitmap",
	MsrBitmapHigh:               "MsrBitmapHigh",
	VmExitMsrStoreAddr:          "VmExitMsrStoreAddr",
	VmExitMsrStoreAddrHigh:      "VmExitMsrStoreAddrHigh",
	VmExitMsrLoadAddr:           "VmExitMsrLoadAddr",
	VmExitMsrLoadAddrHigh:       "VmExitMsrLoadAddrHigh",
	VmEntryMsrLoadAddr:          "VmEntryMsrLoadAddr",
	VmEntryMsrLoadAddrHigh:      "VmEntryMsrLoadAddrHigh",
	ExecutiveVmcsPointer:        "ExecutiveVmcsPointer",
	ExecutiveVmcsPointerHigh:    "ExecutiveVmcsPointerHigh",
	PmlAddress:                  "PmlAddress",
	PmlAddressHigh:              "PmlAddressHigh",
	TscOffset:                   "TscOffset",
	TscOffsetHigh:               "TscOffsetHigh",
	VirtualApicPageAddr:         "VirtualApicPageAddr",
	VirtualApicPageAddrHigh:     "VirtualApicPageAddrHigh",
	ApicAccessAddr:              "ApicAccessAddr",
	ApicAccessAddrHigh:          "ApicAccessAddrHigh",
	PostedIntrDescAddr:          "PostedIntrDescAddr",
	PostedIntrDescAddrHigh:      "PostedIntrDescAddrHigh",
	VmFunctionControls:          "VmFunctionControls",
	VmFunctionControlsHigh:      "VmFunctionControlsHigh",
	EptPointer:                  "EptPointer",
	EptPointerHigh:              "EptPointerHigh",
	EoiExitBitmap0:              "EoiExitBitmap0",
	EoiExitBitmap0High:          "EoiExitBitmap0High",
	EoiExitBitmap1:              "EoiExitBitmap1",
	EoiExitBitmap1High:          "EoiExitBitmap1High",
	EoiExitBitmap2:              "EoiExitBitmap2",
	EoiExitBitmap2High:          "EoiExitBitmap2High",
	EoiExitBitmap3:              "EoiExitBitmap3",
	EoiExitBitmap3High:          "EoiExitBitmap3High",
	EptpListAddress:             "EptpListAddress",
	EptpListAddressHigh:         "EptpListAddressHigh",
	VmReadBitmap:                "VmReadBitmap",
	VmReadBitmapHigh:            "VmReadBitmapHigh",
	VmWriteBitmap:               "VmWriteBitmap",
	VmWriteBitmapHigh:           "VmWriteBitmapHigh",
	VeInfoAddress:               "VeInfoAddress",
	VeInfoAddressHigh:           "VeInfoAddressHigh",
	XssExitBitmap:               "XssExitBitmap",
	XssExitBitmapHigh:           "XssExitBitmapHigh",
	EnclsExitingBitmap:          "EnclsExitingBitmap",
	EnclsExitingBitmapHigh:      "EnclsExitingBitmapHigh",
	SppTablePointer:             "SppTablePointer",
	SppTablePointerHigh:         "SppTablePointerHigh",
	TscMultiplier:               "TscMultiplier",
	TscMultiplierHigh:           "TscMultiplierHigh",
	TertiaryVmExecControl:       "TertiaryVmExecControl",
	TertiaryVmExecControlHigh:   "TertiaryVmExecControlHigh",
	EnclvExitingBitmap:          "EnclvExitingBitmap",
	EnclvExitingBitmapHigh:      "EnclvExitingBitmapHigh",
	GuestPhysicalAddress:        "GuestPhysicalAddress",
	GuestPhysicalAddressHigh:    "GuestPhysicalAddressHigh",
	VmcsLinkPointer:             "VmcsLinkPointer",
	VmcsLinkPointerHigh:         "VmcsLinkPointerHigh",
	GuestIA32Debugctl:           "GuestIA32Debugctl",
	GuestIA32DebugctlHigh:       "GuestIA32DebugctlHigh",
	GuestIA32Pat:                "GuestIA32Pat",
	GuestIA32PatHigh:            "GuestIA32PatHigh",
	GuestIA32Efer:               "GuestIA32Efer",
	GuestIA32EferHigh:           "GuestIA32EferHigh",
	GuestIA32PerfGlobalCtrl:     "GuestIA32PerfGlobalCtrl",
	GuestIA32PerfGlobalCtrlHigh: "GuestIA32PerfGlobalCtrlHigh",
	GuestPDPtr0:                 "GuestPDPtr0",
	GuestPDPtr0High:             "GuestPDPtr0High",
	GuestPDPtr1:                 "GuestPDPtr1",
	GuestPDPtr1High:             "GuestPDPtr1High",
	GuestPDPtr2:                 "GuestPDPtr2",
	GuestPDPtr2High:             "GuestPDPtr2High",
	GuestPDPtr3:                 "GuestPDPtr3",
	GuestPDPtr3High:             "GuestPDPtr3High",
	GuestBndcfgs:                "GuestBndcfgs",
	GuestBndcfgsHigh:            "GuestBndcfgsHigh",
	GuestIA32RtitCtl:            "GuestIA32RtitCtl",
	GuestIA32RtitCtlHigh:        "GuestIA32RtitCtlHigh",
	GuestIA32LbrCtl:             "GuestIA32LbrCtl",
	GuestIA32LbrCtlHigh:         "GuestIA32LbrCtlHigh",
	GuestIA32Pkrs:               "GuestIA32Pkrs",
	GuestIA32PkrsHigh:           "GuestIA32PkrsHigh",
	HostIA32Pat:                 "HostIA32Pat",
	HostIA32PatHigh:             "HostIA32PatHigh",
	HostIA32Efer:                "HostIA32Efer",
	HostIA32EferHigh:            "HostIA32EferHigh",
	HostIA32PerfGlobalCtrl:      "HostIA32PerfGlobalCtrl",
	HostIA32PerfGlobalCtrlHigh:  "HostIA32PerfGlobalCtrlHigh",
	HostIA32Pkrs:                "HostIA32Pkrs",
	HostIA32PkrsHigh:            "HostIA32PkrsHigh",
	PinBasedVmExecControl:       "PinBasedVmExecControl",
	CpuBasedVmExecControl:       "CpuBasedVmExecControl",
	ExceptionBitmap:             "ExceptionBitmap",
	PageFaultErrorCodeMask:      "PageFaultErrorCodeMask",
	PageFaultErrorCodeMatch:     "PageFaultErrorCodeMatch",
	Cr3TargetCount:              "Cr3TargetCount",
	VmExitControls:              "VmExitControls",
	VmExitMsrStoreCount:         "VmExitMsrStoreCount",
	VmExitMsrLoadCount:          "VmExitMsrLoadCount",
	VmEntryControls:             "VmEntryControls",
	VmEntryMsrLoadCount:         "VmEntryMsrLoadCount",
	VmEntryIntrInfoField:        "VmEntryIntrInfoField",
	VmEntryExceptionErrorCode:   "VmEntryExceptionErrorCode",
	VmEntryInstructionLen:       "VmEntryInstructionLen",
	TprThreshold:                "TprThreshold",
	SecondaryVmExecControl:      "SecondaryVmExecControl",
	PleGap:                      "PleGap",
	PleWindow:                   "PleWindow",
	VmInstructionError:          "VmInstructionError",
	VmExitReason:                "VmExitReason",
	VmExitIntrInfo:              "VmExitIntrInfo",
	VmExitIntrErrorCode:         "VmExitIntrErrorCode",
	IdtVectoringInfoField:       "IdtVectoringInfoField",
	IdtVectoringErrorCode:       "IdtVectoringErrorCode",
	VmExitInstructionLen:        "VmExitInstructionLen",
	VmxInstructionInfo:          "VmxInstructionInfo",
	GuestEsLimit:                "GuestEsLimit",
	GuestCsLimit:                "GuestCsLimit",
	GuestSsLimit:                "GuestSsLimit",
	GuestDsLimit:                "GuestDsLimit",
	GuestFsLimit:                "GuestFsLimit",
	GuestGsLimit:                "GuestGsLimit",
	GuestLdtrLimit:              "GuestLdtrLimit",
	GuestTrLimit:                "GuestTrLimit",
	GuestGdtrLimit:              "GuestGdtrLimit",
	GuestIdtrLimit:              "GuestIdtrLimit",
	GuestEsArBytes:              "GuestEsArBytes",
	GuestCsArBytes:              "GuestCsArBytes",
	GuestSsArBytes:              "GuestSsArBytes",
	GuestDsArBytes:              "GuestDsArBytes",
	GuestFsArBytes:              "GuestFsArBytes",
	GuestGsArBytes:              "GuestGsArBytes",
	GuestLdtrArBytes:            "GuestLdtrArBytes",
	GuestTrArBytes:              "GuestTrArBytes",
	GuestInterruptibilityInfo:   "GuestInterruptibilityInfo",
	GuestActivityState:          "GuestActivityState",
	GuestSmbase:                 "GuestSmbase",
	GuestSysenterCs:             "GuestSysenterCs",
	VmxPreemptionTimerValue:     "VmxPreemptionTimerValue",
	HostIA32SysenterCs:          "HostIA32SysenterCs",
	Cr0GuestHostMask:            "Cr0GuestHostMask",
	Cr4GuestHostMask:            "Cr4GuestHostMask",
	Cr0ReadShadow:               "Cr0ReadShadow",
	Cr4ReadShadow:               "Cr4ReadShadow",
	Cr3TargetValue0:             "Cr3TargetValue0",
	Cr3TargetValue1:             "Cr3TargetValue1",
	Cr3TargetValue2:             "Cr3TargetValue2",
	Cr3TargetValue3:             "Cr3TargetValue3",
	ExitQualification:           "ExitQualification",
	IoRcx:                       "IoRcx",
	IoRsi:                       "IoRsi",
	IoRdi:                       "IoRdi",
	IoRip:                       "IoRip",
	GuestLinearAddress:          "GuestLinearAddress",
	GuestCr0:                    "GuestCr0",
	GuestCr3:                    "GuestCr3",
	GuestCr4:                    "GuestCr4",
	GuestEsBase:                 "GuestEsBase",
	GuestCsBase:                 "GuestCsBase",
	GuestSsBase:                 "GuestSsBase",
	GuestDsBase:                 "GuestDsBase",
	GuestFsBase:                 "GuestFsBase",
	GuestGsBase:                 "GuestGsBase",
	GuestLdtrBase:               "GuestLdtrBase",
	GuestTrBase:                 "GuestTrBase",
	GuestGdtrBase:               "GuestGdtrBase",
	GuestIdtrBase:               "GuestIdtrBase",
	GuestDr7:                    "GuestDr7",
	GuestRsp:                    "GuestRsp",
	GuestRip:                    "GuestRip",
	GuestRFlags:                 "GuestRFlags",
	GuestPendingDbgExceptions:   "GuestPendingDbgExceptions",
	GuestSysenterEsp:            "GuestSysenterEsp",
	GuestSysenterEip:            "GuestSysenterEip",
	GuestIA32SCet:               "GuestIA32SCet",
	GuestSsp:                    "GuestSsp",
	GuestIntrSspTable:           "GuestIntrSspTable",
	HostCr0:                     "HostCr0",
	HostCr3:                     "HostCr3",
	HostCr4:                     "HostCr4",
	HostFsBase:                  "HostFsBase",
	HostGsBase:                  "HostGsBase",
	HostTrBase:                  "HostTrBase",
	HostGdtrBase:                "HostGdtrBase",
	HostIdtrBase:                "HostIdtrBase",
	HostIA32SysenterEsp:         "HostIA32SysenterEsp",
	HostIA32SysenterEip:         "HostIA32SysenterEip",
	HostRsp:                     "HostRsp",
	HostRip:                     "HostRip",
	HostIA32SCet:                "HostIA32SCet",
	HostSsp:                     "HostSsp",
	HostIntrSspTable:            "HostIntrSspTable",
}

func (f VmcsField) String() string {
	if name, ok := vmcsFieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("VmcsField(%#x)", uint32(f))
}
