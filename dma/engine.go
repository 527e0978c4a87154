// Package dma turns scatter-gather lists into a pipeline of ScatterGather
// packets, one in flight at a time, advanced by the coprocessor's
// acknowledgments.
package dma

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/sif"
	"github.com/ps2iop/iopata/tracing"
)

// An Engine packetizes transfers and sends them through a channel. It keeps
// no state of its own between calls, and callers must serialize calls that
// touch the same Transfer.
type Engine struct {
	hooking.Base

	channel  sif.Channel
	cmd      sif.CmdID
	codec    ata.Codec
	capacity int
	listener Listener
	log      logrus.FieldLogger
}

// Capacity returns the number of entries a packet can carry.
func (e *Engine) Capacity() int {
	return e.capacity
}

// BeginTransfer creates a transfer and sends its first packet. Write
// transfers are rejected without sending anything. Errors are returned to the
// caller and are not reported to the listener.
func (e *Engine) BeginTransfer(
	dir Direction,
	entries []ata.SGEntry,
	owner FinalPhaseMarker,
) (*Transfer, error) {
	if dir == Write {
		return nil, iop.Errorf(iop.InvalidOperation, "begin-transfer",
			"write-direction DMA is disabled")
	}

	if len(entries) == 0 {
		return nil, iop.Errorf(iop.InvalidOperation, "begin-transfer",
			"empty scatter-gather list")
	}

	t := &Transfer{
		ID:        sif.GetIDGenerator().Generate(),
		Direction: dir,
		entries:   append([]ata.SGEntry(nil), entries...),
		owner:     owner,
	}

	tracing.StartTask(t.ID, "", e, "dma", dir.String(), t)

	if err := e.sendNext(t); err != nil {
		e.abort(t, err)
		return nil, err
	}

	return t, nil
}

// PacketizeNext takes up to Capacity entries from the transfer and returns
// them as a ScatterGather command. Every taken entry is checked for alignment
// first, so a misaligned entry fails the call before anything is built. The
// owner is marked as in its final phase when the last entry is taken.
func (e *Engine) PacketizeNext(t *Transfer) (*ata.ScatterGather, error) {
	if t.Done() {
		return nil, iop.Errorf(iop.InvalidOperation, "packetize",
			"transfer %s is finished", t.ID)
	}

	n := t.Remaining()
	if n == 0 {
		return nil, iop.Errorf(iop.InvalidOperation, "packetize",
			"transfer %s has no entries left", t.ID)
	}

	if n > e.capacity {
		n = e.capacity
	}

	chunk := t.entries[t.cursor : t.cursor+n]
	for i, entry := range chunk {
		if !entry.Aligned() {
			return nil, iop.Errorf(iop.AlignmentViolation, "packetize",
				"entry %d at 0x%08x has size %d, not a multiple of %d",
				t.cursor+i, entry.Addr, entry.Size, ata.DMAGranularity)
		}
	}

	cmd := &ata.ScatterGather{
		Write:   t.Direction == Write,
		Entries: append([]ata.SGEntry(nil), chunk...),
	}

	t.cursor += n
	t.packets++

	if t.Remaining() == 0 && t.owner != nil {
		t.owner.MarkFinalPhase()
	}

	return cmd, nil
}

func (e *Engine) sendNext(t *Transfer) error {
	cmd, err := e.PacketizeNext(t)
	if err != nil {
		return err
	}

	opt, payload, err := e.codec.Encode(cmd)
	if err != nil {
		return err
	}

	if err := e.channel.Send(e.cmd, opt, payload); err != nil {
		return iop.NewError(iop.TransportFailure, "send", err)
	}

	tracing.AddTaskStep(t.ID, e, fmt.Sprintf("packet %d", t.packets))

	e.log.WithFields(logrus.Fields{
		"transfer":  t.ID,
		"packet":    t.packets,
		"entries":   len(cmd.Entries),
		"remaining": t.Remaining(),
	}).Debug("scatter-gather packet sent")

	return nil
}

// OnPacketAcknowledged advances the transfer after the coprocessor has
// consumed its last packet. It sends the next packet if entries remain, and
// otherwise completes the transfer. Acknowledgments for finished transfers
// are ignored.
func (e *Engine) OnPacketAcknowledged(t *Transfer) {
	if t == nil || t.Done() {
		return
	}

	if t.Remaining() > 0 {
		if err := e.sendNext(t); err != nil {
			e.abort(t, err)

			if e.listener != nil {
				e.listener.TransferFailed(t, err)
			}
		}

		return
	}

	t.state = transferCompleted
	tracing.EndTask(t.ID, e)

	e.log.WithFields(logrus.Fields{
		"transfer": t.ID,
		"packets":  t.packets,
		"bytes":    t.Bytes(),
	}).Debug("transfer completed")

	if e.listener != nil {
		e.listener.TransferCompleted(t)
	}
}

func (e *Engine) abort(t *Transfer, err error) {
	t.state = transferFailed
	t.err = err

	tracing.EndTask(t.ID, e)

	e.log.WithFields(logrus.Fields{
		"transfer": t.ID,
		"packet":   t.packets,
	}).WithError(err).Error("transfer aborted")
}
