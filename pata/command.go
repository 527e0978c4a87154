// Package pata connects a storage port to the I/O coprocessor. It issues
// commands, drives DMA transfers through the remote command channel, serves
// the coprocessor's requests and programs the controller's transfer modes.
package pata

import (
	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/iop"
)

// Protocol is the protocol a command uses to move data.
type Protocol int

// Command protocols.
const (
	ProtocolNoData Protocol = iota
	ProtocolPIO
	ProtocolDMA
	ProtocolATAPI
	ProtocolATAPIDMA
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNoData:
		return "nodata"
	case ProtocolPIO:
		return "pio"
	case ProtocolDMA:
		return "dma"
	case ProtocolATAPI:
		return "atapi"
	case ProtocolATAPIDMA:
		return "atapi-dma"
	default:
		return "unknown"
	}
}

// A TaskFile holds the values loaded into the device's command registers.
type TaskFile struct {
	Command uint8
	Feature uint8
	NSect   uint8
	LBAL    uint8
	LBAM    uint8
	LBAH    uint8
	Device  uint8

	Protocol Protocol
	Write    bool
	Polling  bool
}

// A QueuedCmd is one storage command handed to the port by the adaptation
// layer.
type QueuedCmd struct {
	Tag int
	TF  TaskFile
	SG  []ata.SGEntry

	finalPhase bool
}

// MarkFinalPhase records that the last packet of the command's transfer has
// been built.
func (qc *QueuedCmd) MarkFinalPhase() {
	qc.finalPhase = true
}

// FinalPhase reports whether the last packet has been built.
func (qc *QueuedCmd) FinalPhase() bool {
	return qc.finalPhase
}

// Host is the adaptation layer above the port. It owns the task-file
// registers and the PIO path, and it is told how commands end.
type Host interface {
	LoadTaskFile(tf *TaskFile)
	ExecCommand(tf *TaskFile)
	IssuePIO(qc *QueuedCmd) error
	OnCommandComplete(qc *QueuedCmd)
	OnCommandError(qc *QueuedCmd, kind iop.ErrorKind)
}

// State is the state of a port.
type State int

// Port states.
const (
	StateIdle State = iota
	StateAwaitingBounceBufferAck
	StateReady
	StateTransferInFlight
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBounceBufferAck:
		return "awaiting-bounce-buffer-ack"
	case StateReady:
		return "ready"
	case StateTransferInFlight:
		return "transfer-in-flight"
	default:
		return "unknown"
	}
}
