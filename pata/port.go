package pata

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/dma"
	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/sif"
)

const bounceBufferAlign = 4096

// Stats counts what a port has done.
type Stats struct {
	State              string `json:"state"`
	Issued             uint64 `json:"issued"`
	Completed          uint64 `json:"completed"`
	Failed             uint64 `json:"failed"`
	Acknowledgments    uint64 `json:"acknowledgments"`
	StaleAcks          uint64 `json:"stale_acks"`
	RawReads           uint64 `json:"raw_reads"`
	RawWrites          uint64 `json:"raw_writes"`
	ProtocolViolations uint64 `json:"protocol_violations"`
	PIOMode            string `json:"pio_mode"`
	DMAMode            string `json:"dma_mode"`
}

// A Port is one storage port behind the coprocessor. It has a single command
// slot. The issue path and the inbound packet handler are serialized by the
// port lock.
type Port struct {
	hooking.Base

	lock      sync.Mutex
	state     State
	channel   sif.Channel
	cmd       sif.CmdID
	codec     ata.Codec
	engine    *dma.Engine
	host      Host
	memory    mem.PhysicalMemory
	allocator *mem.Allocator
	spd       iop.Window
	log       logrus.FieldLogger

	bbSize      uint32
	bb          ata.BounceBuffer
	bbAnnounced bool

	active   *QueuedCmd
	transfer *dma.Transfer
	pending  []func()

	pioMask, mwdmaMask, udmaMask uint8
	pioMode, dmaMode             ata.XferMode

	stats Stats
}

// State returns the state of the port.
func (p *Port) State() State {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.state
}

// BounceBuffer returns the announced bounce buffer and whether it has been
// announced.
func (p *Port) BounceBuffer() (ata.BounceBuffer, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.bb, p.bbAnnounced
}

// Engine returns the DMA engine of the port.
func (p *Port) Engine() *dma.Engine {
	return p.engine
}

// Stats returns the counters of the port.
func (p *Port) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()

	s := p.stats
	s.State = p.state.String()

	if p.pioMode != 0 {
		s.PIOMode = p.pioMode.String()
	}

	if p.dmaMode != 0 {
		s.DMAMode = p.dmaMode.String()
	}

	return s
}

// Init allocates the bounce buffer, registers the port as the handler of its
// command and announces the bounce buffer to the coprocessor. The port is
// ready once the announcement has been sent.
func (p *Port) Init() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.state != StateIdle {
		return iop.Errorf(iop.InvalidOperation, "init",
			"port is %s", p.state)
	}

	addr, err := p.allocator.Alloc(p.bbSize, bounceBufferAlign)
	if err != nil {
		return iop.NewError(iop.InvalidOperation, "alloc-bounce-buffer", err)
	}

	p.bb = ata.BounceBuffer{Addr: addr, Size: p.bbSize}

	if err := p.channel.Request(p.cmd, p); err != nil {
		p.freeBounceBuffer()
		return iop.NewError(iop.TransportFailure, "request-handler", err)
	}

	p.state = StateAwaitingBounceBufferAck

	opt, payload, err := p.codec.Encode(&ata.AnnounceBounceBuffer{BounceBuffer: p.bb})
	if err == nil {
		err = p.channel.Send(p.cmd, opt, payload)
	}

	if err != nil {
		p.channel.Release(p.cmd)
		p.freeBounceBuffer()
		p.state = StateIdle

		return iop.NewError(iop.TransportFailure, "announce-bounce-buffer", err)
	}

	p.bbAnnounced = true
	p.state = StateReady

	p.log.WithFields(logrus.Fields{
		"addr": p.bb.Addr,
		"size": p.bb.Size,
	}).Info("bounce buffer announced")

	return nil
}

func (p *Port) freeBounceBuffer() {
	if err := p.allocator.Free(p.bb.Addr); err != nil {
		p.log.WithError(err).Warn("freeing bounce buffer failed")
	}

	p.bb = ata.BounceBuffer{}
}

// Close releases the command handler and frees the bounce buffer. A command
// still in flight is dropped without notifying the host.
func (p *Port) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.state == StateIdle {
		return
	}

	p.channel.Release(p.cmd)
	p.freeBounceBuffer()

	p.bbAnnounced = false
	p.active = nil
	p.transfer = nil
	p.state = StateIdle
}

// Issue starts a command. DMA reads load the task file, execute the command
// and send the first scatter-gather packet. DMA writes and ATAPI DMA are
// refused before the task file is touched. Other protocols are handed to the
// host's PIO path.
func (p *Port) Issue(qc *QueuedCmd) error {
	p.lock.Lock()

	switch p.state {
	case StateReady:
	case StateTransferInFlight:
		p.lock.Unlock()
		return iop.Errorf(iop.InvalidOperation, "issue", "port is busy")
	default:
		p.lock.Unlock()
		return iop.Errorf(iop.InvalidOperation, "issue", "port is %s", p.state)
	}

	switch qc.TF.Protocol {
	case ProtocolDMA:
		defer p.lock.Unlock()
		return p.issueDMA(qc)
	case ProtocolATAPIDMA:
		p.lock.Unlock()
		p.log.Error("ATAPI DMA is not supported")

		return iop.Errorf(iop.InvalidOperation, "issue", "ATAPI DMA is not supported")
	default:
		p.stats.Issued++
		p.lock.Unlock()

		return p.host.IssuePIO(qc)
	}
}

func (p *Port) issueDMA(qc *QueuedCmd) error {
	if qc.TF.Write {
		p.log.Warn("DMA writes are disabled")
		return iop.Errorf(iop.InvalidOperation, "issue", "DMA writes are disabled")
	}

	if qc.TF.Polling {
		p.log.Warn("polled DMA command, acknowledgments will be ignored")
	}

	p.host.LoadTaskFile(&qc.TF)
	p.host.ExecCommand(&qc.TF)

	t, err := p.engine.BeginTransfer(dma.Read, qc.SG, qc)
	if err != nil {
		p.stats.Failed++
		return err
	}

	p.stats.Issued++
	p.active = qc
	p.transfer = t
	p.state = StateTransferInFlight

	return nil
}

// Abort forgets the command in flight, if it is qc. The host is not told.
// Acknowledgments that arrive for it later are ignored.
func (p *Port) Abort(qc *QueuedCmd) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.active != qc || qc == nil {
		return
	}

	p.log.WithField("tag", qc.Tag).Warn("command aborted")

	p.finishCommand()
}

func (p *Port) finishCommand() {
	p.active = nil
	p.transfer = nil
	p.state = StateReady
}

// portListener receives the engine's notifications. It runs with the port
// lock held, so host callbacks are queued until the lock is released.
type portListener struct {
	p *Port
}

func (l portListener) TransferCompleted(t *dma.Transfer) {
	p := l.p

	qc := p.active
	if qc == nil || p.transfer != t {
		return
	}

	p.finishCommand()
	p.stats.Completed++
	p.pending = append(p.pending, func() { p.host.OnCommandComplete(qc) })
}

func (l portListener) TransferFailed(t *dma.Transfer, err error) {
	p := l.p

	qc := p.active
	if qc == nil || p.transfer != t {
		return
	}

	p.finishCommand()
	p.stats.Failed++

	kind := iop.KindOf(err)
	p.pending = append(p.pending, func() { p.host.OnCommandError(qc, kind) })
}

// unlockAndNotify releases the port lock and then runs the queued host
// callbacks.
func (p *Port) unlockAndNotify() {
	pending := p.pending
	p.pending = nil
	p.lock.Unlock()

	for _, f := range pending {
		f()
	}
}
