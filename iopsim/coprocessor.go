package iopsim

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/sif"
	"github.com/ps2iop/iopata/tracing"
)

// CoprocessorStats counts what the coprocessor program has served.
type CoprocessorStats struct {
	Packets            uint64 `json:"packets"`
	Entries            uint64 `json:"entries"`
	DirectBytes        uint64 `json:"direct_bytes"`
	BouncedBytes       uint64 `json:"bounced_bytes"`
	RawReadRequests    uint64 `json:"raw_read_requests"`
	RawWriteRequests   uint64 `json:"raw_write_requests"`
	FetchedBytes       uint64 `json:"fetched_bytes"`
	Errors             uint64 `json:"errors"`
	ProtocolViolations uint64 `json:"protocol_violations"`
}

// A Coprocessor is the program on the coprocessor that serves the host's ATA
// packets. It moves drive data into host memory directly when the DMA
// controller can reach the destination, and through the host's bounce buffer
// otherwise.
type Coprocessor struct {
	hooking.Base

	lock        sync.Mutex
	channel     sif.Channel
	cmd         sif.CmdID
	codec       ata.Codec
	drive       *Drive
	hostMemory  mem.PhysicalMemory
	iopMemory   mem.PhysicalMemory
	staging     uint32
	stagingSize uint32
	dmaAlign    uint32
	log         logrus.FieldLogger

	bb      ata.BounceBuffer
	bbKnown bool

	stats CoprocessorStats
}

// Start registers the coprocessor as the handler of its command.
func (c *Coprocessor) Start() error {
	if err := c.channel.Request(c.cmd, c); err != nil {
		return iop.NewError(iop.TransportFailure, "request-handler", err)
	}

	return nil
}

// Stop releases the command handler.
func (c *Coprocessor) Stop() {
	c.channel.Release(c.cmd)
}

// BounceBuffer returns the bounce buffer the host announced, if any.
func (c *Coprocessor) BounceBuffer() (ata.BounceBuffer, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.bb, c.bbKnown
}

// Stats returns the counters of the coprocessor.
func (c *Coprocessor) Stats() CoprocessorStats {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}

// HandleSIFCmd serves one packet from the host.
func (c *Coprocessor) HandleSIFCmd(pkt *sif.Packet) {
	c.lock.Lock()
	defer c.lock.Unlock()

	o := ata.UnpackOption(pkt.Opt)
	if o.Op == ata.OpRawWrite && len(pkt.Payload) == 0 {
		c.fetched(pkt)
		return
	}

	cmd, err := c.codec.Decode(pkt.Opt, pkt.Payload)
	if err != nil {
		c.violation(pkt, err)
		return
	}

	switch v := cmd.(type) {
	case *ata.AnnounceBounceBuffer:
		c.bb = v.BounceBuffer
		c.bbKnown = true

		c.log.WithFields(logrus.Fields{
			"addr": v.Addr,
			"size": v.Size,
		}).Info("bounce buffer registered")
	case *ata.ScatterGather:
		c.serve(pkt, v)
	default:
		c.violation(pkt, iop.Errorf(iop.ProtocolViolation, "dispatch",
			"%s is not sent to the coprocessor", cmd.Opcode()))
	}
}

func (c *Coprocessor) violation(pkt *sif.Packet, err error) {
	c.stats.ProtocolViolations++
	c.log.WithField("packet", pkt.ID).WithError(err).Warn("packet dropped")
}

func (c *Coprocessor) serve(pkt *sif.Packet, sg *ata.ScatterGather) {
	c.stats.Packets++

	tracing.StartTask(pkt.ID, "", c, "iop", "sg", sg)
	defer tracing.EndTask(pkt.ID, c)

	if sg.Write {
		c.stats.Errors++
		c.log.Error("write scatter-gather is not supported")
	} else {
		for _, e := range sg.Entries {
			if err := c.transfer(e); err != nil {
				c.stats.Errors++
				c.log.WithFields(logrus.Fields{
					"addr": e.Addr,
					"size": e.Size,
				}).WithError(err).Error("transfer failed")

				break
			}

			c.stats.Entries++
		}
	}

	opt, payload, _ := c.codec.Encode(&ata.ScatterGather{})
	if err := c.channel.Send(c.cmd, opt, payload); err != nil {
		c.stats.Errors++
		c.log.WithError(err).Error("acknowledgment not sent")
	}
}

func (c *Coprocessor) transfer(e ata.SGEntry) error {
	data, err := c.drive.Stream(e.Size)
	if err != nil {
		return err
	}

	if e.Addr%c.dmaAlign == 0 && e.Size%c.dmaAlign == 0 {
		if err := c.hostMemory.Write(e.Addr, data); err != nil {
			return err
		}

		c.stats.DirectBytes += uint64(len(data))

		return nil
	}

	return c.bounce(e.Addr, data)
}

// bounce stages data in coprocessor memory and sends it into the bounce
// buffer one chunk at a time, each chunk with a raw read that has the host
// copy it to its destination.
func (c *Coprocessor) bounce(dst uint32, data []byte) error {
	if !c.bbKnown {
		return iop.Errorf(iop.InvalidOperation, "bounce",
			"no bounce buffer for unaligned destination 0x%x", dst)
	}

	chunk := c.bb.Size
	if c.stagingSize < chunk {
		chunk = c.stagingSize
	}

	for off := uint32(0); off < uint32(len(data)); off += chunk {
		n := uint32(len(data)) - off
		if n > chunk {
			n = chunk
		}

		if err := c.iopMemory.Write(c.staging, data[off:off+n]); err != nil {
			return err
		}

		opt, payload, err := c.codec.Encode(&ata.RawRead{RawCopy: ata.RawCopy{
			Src:  c.bb.Addr,
			Dst:  dst + off,
			Size: n,
		}})
		if err != nil {
			return err
		}

		err = c.channel.SendData(c.cmd, opt, payload, c.bb.Addr, c.staging, n)
		if err != nil {
			return iop.NewError(iop.TransportFailure, "raw-read", err)
		}

		c.stats.RawReadRequests++
		c.stats.BouncedBytes += uint64(n)
	}

	return nil
}

// Fetch asks the host to send size bytes of host memory at src into
// coprocessor memory at dst. The data arrives with the host's reply.
func (c *Coprocessor) Fetch(src, dst, size uint32) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	opt, payload, err := c.codec.Encode(&ata.RawWrite{RawCopy: ata.RawCopy{
		Src:  src,
		Dst:  dst,
		Size: size,
	}})
	if err != nil {
		return err
	}

	if err := c.channel.Send(c.cmd, opt, payload); err != nil {
		return iop.NewError(iop.TransportFailure, "raw-write", err)
	}

	c.stats.RawWriteRequests++

	return nil
}

func (c *Coprocessor) fetched(pkt *sif.Packet) {
	if pkt.Data == nil {
		c.violation(pkt, iop.Errorf(iop.ProtocolViolation, "dispatch",
			"raw write reply without data"))
		return
	}

	c.stats.FetchedBytes += uint64(len(pkt.Data.Data))

	c.log.WithFields(logrus.Fields{
		"src":  pkt.Data.Src,
		"dst":  pkt.Data.Dst,
		"size": len(pkt.Data.Data),
	}).Debug("host data fetched")
}
