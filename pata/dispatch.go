package pata

import (
	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/sif"
)

// HandleSIFCmd handles a packet the coprocessor sent to the port. It is the
// completion path of the port and never blocks.
func (p *Port) HandleSIFCmd(pkt *sif.Packet) {
	cmd, err := p.codec.Decode(pkt.Opt, pkt.Payload)

	p.lock.Lock()
	defer p.unlockAndNotify()

	if err != nil {
		p.stats.ProtocolViolations++
		p.log.WithField("packet", pkt.ID).WithError(err).Warn("packet dropped")

		return
	}

	switch c := cmd.(type) {
	case *ata.ScatterGather:
		p.acknowledge()
	case *ata.RawRead:
		p.rawRead(c.RawCopy)
	case *ata.RawWrite:
		p.rawWrite(c.RawCopy)
	default:
		p.stats.ProtocolViolations++
		p.log.WithFields(logrus.Fields{
			"packet": pkt.ID,
			"op":     cmd.Opcode(),
		}).Warn("unexpected operation from coprocessor")
	}
}

func (p *Port) acknowledge() {
	p.stats.Acknowledgments++

	if p.active == nil || p.active.TF.Polling || p.transfer == nil {
		p.stats.StaleAcks++
		p.log.Debug("acknowledgment ignored")

		return
	}

	p.engine.OnPacketAcknowledged(p.transfer)
}

func (p *Port) rawRead(rc ata.RawCopy) {
	p.stats.RawReads++

	if rc.Size == 0 {
		return
	}

	if err := mem.Copy(p.memory, rc.Dst, rc.Src, rc.Size); err != nil {
		p.log.WithFields(logrus.Fields{
			"src":  rc.Src,
			"dst":  rc.Dst,
			"size": rc.Size,
		}).WithError(err).Error("raw read failed")
	}
}

func (p *Port) rawWrite(rc ata.RawCopy) {
	p.stats.RawWrites++

	opt := ata.Option{Op: ata.OpRawWrite}.Pack()

	err := p.channel.SendData(p.cmd, opt, nil, rc.Dst, rc.Src, rc.Size)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"src":  rc.Src,
			"dst":  rc.Dst,
			"size": rc.Size,
		}).WithError(err).Error("raw write failed")
	}
}
