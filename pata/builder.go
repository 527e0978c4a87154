package pata

import (
	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/dma"
	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/sif"
)

// DefaultBounceBufferSize is the size of the bounce buffer announced to the
// coprocessor.
const DefaultBounceBufferSize = 1024

// Builder can build ports.
type Builder struct {
	channel    sif.Channel
	cmd        sif.CmdID
	host       Host
	memory     mem.PhysicalMemory
	allocator  *mem.Allocator
	regs       iop.Registers
	bbSize     uint32
	maxEntries int
	pioMask    uint8
	mwdmaMask  uint8
	udmaMask   uint8
	logger     logrus.FieldLogger
}

// MakeBuilder creates a Builder with the default bounce buffer and the mode
// masks of the controller.
func MakeBuilder() Builder {
	return Builder{
		cmd:       sif.CmdATA,
		bbSize:    DefaultBounceBufferSize,
		pioMask:   MaskPIO4,
		mwdmaMask: MaskMWDMA2,
		udmaMask:  MaskUDMA4,
	}
}

// WithChannel sets the channel to the coprocessor.
func (b Builder) WithChannel(ch sif.Channel) Builder {
	b.channel = ch
	return b
}

// WithCmd sets the command number the port uses on the channel.
func (b Builder) WithCmd(cmd sif.CmdID) Builder {
	b.cmd = cmd
	return b
}

// WithHost sets the adaptation layer.
func (b Builder) WithHost(h Host) Builder {
	b.host = h
	return b
}

// WithMemory sets the host physical memory that raw reads copy within.
func (b Builder) WithMemory(m mem.PhysicalMemory) Builder {
	b.memory = m
	return b
}

// WithAllocator sets where the bounce buffer is allocated from.
func (b Builder) WithAllocator(a *mem.Allocator) Builder {
	b.allocator = a
	return b
}

// WithRegisters sets the remote register space of the controller.
func (b Builder) WithRegisters(r iop.Registers) Builder {
	b.regs = r
	return b
}

// WithBounceBufferSize sets the bounce buffer size.
func (b Builder) WithBounceBufferSize(n uint32) Builder {
	b.bbSize = n
	return b
}

// WithMaxEntriesPerPacket limits the scatter-gather entries per packet.
func (b Builder) WithMaxEntriesPerPacket(n int) Builder {
	b.maxEntries = n
	return b
}

// WithModeMasks sets the PIO, multiword DMA and Ultra DMA modes the port
// accepts.
func (b Builder) WithModeMasks(pio, mwdma, udma uint8) Builder {
	b.pioMask = pio
	b.mwdmaMask = mwdma
	b.udmaMask = udma

	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates a port. The port's DMA engine is named name.Engine.
func (b Builder) Build(name string) *Port {
	b.mustBeComplete()

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Port{
		Base:      hooking.MakeBase(name),
		channel:   b.channel,
		cmd:       b.cmd,
		codec:     ata.NewCodec(b.channel.PayloadCapacity()),
		host:      b.host,
		memory:    b.memory,
		allocator: b.allocator,
		spd:       iop.Window{Regs: b.regs, Base: iop.SPDBase},
		bbSize:    b.bbSize,
		pioMask:   b.pioMask,
		mwdmaMask: b.mwdmaMask,
		udmaMask:  b.udmaMask,
		log:       logger.WithField("component", name),
	}

	p.engine = dma.MakeBuilder().
		WithChannel(b.channel).
		WithCmd(b.cmd).
		WithMaxEntriesPerPacket(b.maxEntries).
		WithListener(portListener{p: p}).
		WithLogger(logger).
		Build(name + ".Engine")

	return p
}

func (b Builder) mustBeComplete() {
	switch {
	case b.channel == nil:
		panic("port requires a channel")
	case b.host == nil:
		panic("port requires a host")
	case b.memory == nil:
		panic("port requires host memory")
	case b.allocator == nil:
		panic("port requires an allocator")
	case b.regs == nil:
		panic("port requires registers")
	case b.bbSize == 0:
		panic("bounce buffer size must be positive")
	}
}
