package dev9

// Expansion bus registers, as offsets from iop.DEV9Base. They are 16 bits
// wide.
const (
	Reg1460  = 0x1460
	RegProbe = 0x1462
	Reg1464  = 0x1464
	Reg1466  = 0x1466
	RegPower = 0x146c
	RegRev   = 0x146e
)

// Sub-system bus registers, as offsets from iop.DEV9Base. They are 32 bits
// wide.
const (
	SSBUSReg1418 = 0x1418
	SSBUSReg141c = 0x141c
	SSBUSReg1420 = 0x1420
)

// Register bits.
const (
	ProbeAbsent    = 0x1
	PowerHoldClear = 0x1
	PowerOn        = 0x4
	Ready1460      = 0x1
)

// Sub-system bus timings written when the expansion interface starts.
const (
	SSBUS1420Init uint32 = 0x00051011
	SSBUS1418Init uint32 = 0xe01a3043
	SSBUS141cInit uint32 = 0xef1a3043
)

// Interface is the kind of interface behind the expansion bus.
type Interface int

// Interfaces, told apart by the revision register.
const (
	InterfaceUnknown Interface = iota
	InterfacePCCard
	InterfaceExpansion
)

func (i Interface) String() string {
	switch i {
	case InterfacePCCard:
		return "pc-card"
	case InterfaceExpansion:
		return "expansion-device"
	default:
		return "unknown"
	}
}

// InterfaceOf classifies a revision register value.
func InterfaceOf(rev uint16) Interface {
	switch rev & 0xf0 {
	case 0x20:
		return InterfacePCCard
	case 0x30:
		return InterfaceExpansion
	default:
		return InterfaceUnknown
	}
}
