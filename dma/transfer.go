package dma

import (
	"github.com/ps2iop/iopata/ata"
)

// Direction is the direction of a transfer as seen from the host.
type Direction int

// Transfer directions.
const (
	// Read moves data from the device to host memory.
	Read Direction = iota
	// Write moves data from host memory to the device.
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}

	return "read"
}

// A FinalPhaseMarker is told when the last packet of its transfer has been
// built.
type FinalPhaseMarker interface {
	MarkFinalPhase()
}

// A Listener is notified when a transfer ends.
type Listener interface {
	TransferCompleted(t *Transfer)
	TransferFailed(t *Transfer, err error)
}

type transferState int

const (
	transferInFlight transferState = iota
	transferCompleted
	transferFailed
)

// A Transfer walks a scatter-gather list one packet at a time. Only the engine
// that created it advances it.
type Transfer struct {
	ID        string
	Direction Direction

	entries []ata.SGEntry
	cursor  int
	packets int
	owner   FinalPhaseMarker
	state   transferState
	err     error
}

// Owner returns the command descriptor the transfer belongs to.
func (t *Transfer) Owner() FinalPhaseMarker {
	return t.owner
}

// Len returns the number of entries in the scatter-gather list.
func (t *Transfer) Len() int {
	return len(t.entries)
}

// Remaining returns the number of entries not yet packetized.
func (t *Transfer) Remaining() int {
	return len(t.entries) - t.cursor
}

// Packets returns the number of packets built so far.
func (t *Transfer) Packets() int {
	return t.packets
}

// Done reports whether the transfer has completed or failed.
func (t *Transfer) Done() bool {
	return t.state != transferInFlight
}

// Completed reports whether every packet was acknowledged.
func (t *Transfer) Completed() bool {
	return t.state == transferCompleted
}

// Err returns the error that aborted the transfer.
func (t *Transfer) Err() error {
	return t.err
}

// Bytes returns the total size of the scatter-gather list.
func (t *Transfer) Bytes() uint64 {
	var n uint64
	for _, e := range t.entries {
		n += uint64(e.Size)
	}

	return n
}
