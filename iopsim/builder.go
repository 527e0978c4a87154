package iopsim

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/dev9"
	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/pata"
	"github.com/ps2iop/iopata/sif"
)

// Builder can build simulated systems.
type Builder struct {
	image      io.ReaderAt
	imageSize  int64
	regs       *iop.RegisterFile
	payloadMax int
	queueDepth int
	bbSize     uint32
	maxEntries int
	settle     time.Duration
	sleep      func(time.Duration)
	dmaAlign   uint32
	logger     logrus.FieldLogger
}

// MakeBuilder creates a Builder with an empty image and the default packet
// geometry.
func MakeBuilder() Builder {
	return Builder{
		payloadMax: sif.PacketDataMax,
		queueDepth: 256,
		bbSize:     pata.DefaultBounceBufferSize,
		settle:     dev9.DefaultSettle,
		sleep:      time.Sleep,
		dmaAlign:   16,
	}
}

// WithImage sets the disk image and its size in bytes.
func (b Builder) WithImage(image io.ReaderAt, size int64) Builder {
	b.image = image
	b.imageSize = size

	return b
}

// WithRegisters replaces the board registers.
func (b Builder) WithRegisters(r *iop.RegisterFile) Builder {
	b.regs = r
	return b
}

// WithPayloadMax sets the packet payload ceiling.
func (b Builder) WithPayloadMax(n int) Builder {
	b.payloadMax = n
	return b
}

// WithQueueDepth sets how many packets each end of the link can hold.
func (b Builder) WithQueueDepth(n int) Builder {
	b.queueDepth = n
	return b
}

// WithBounceBufferSize sets the size of the port's bounce buffer.
func (b Builder) WithBounceBufferSize(n uint32) Builder {
	b.bbSize = n
	return b
}

// WithMaxEntriesPerPacket limits the scatter-gather entries per packet.
func (b Builder) WithMaxEntriesPerPacket(n int) Builder {
	b.maxEntries = n
	return b
}

// WithSettle sets the expansion device settle time.
func (b Builder) WithSettle(d time.Duration) Builder {
	b.settle = d
	return b
}

// WithSleeper sets the function used for settle waits.
func (b Builder) WithSleeper(f func(time.Duration)) Builder {
	b.sleep = f
	return b
}

// WithDMAAlignment sets the alignment the coprocessor's DMA controller needs
// to write host memory directly.
func (b Builder) WithDMAAlignment(n uint32) Builder {
	b.dmaAlign = n
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates a system. Its components are named after name.
func (b Builder) Build(name string) *System {
	if b.dmaAlign == 0 || b.dmaAlign%8 != 0 {
		panic("DMA alignment must be a positive multiple of 8")
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	image := b.image
	if image == nil {
		image = emptyImage{}
	}

	regs := b.regs
	if regs == nil {
		regs = NewBoardRegisters()
	}

	s := &System{
		HostMemory: mem.NewStorage(HostMemorySize),
		IOPMemory:  mem.NewStorage(IOPMemorySize),
		Buffers:    mem.NewAllocator(BufferRegionBase, BufferRegionSize),
		Registers:  regs,
		Drive:      NewDrive(image, b.imageSize),
	}

	s.Link = sif.MakeBuilder().
		WithPayloadMax(b.payloadMax).
		WithQueueDepth(b.queueDepth).
		WithHostMemory(s.HostMemory).
		WithIOPMemory(s.IOPMemory).
		WithLogger(logger).
		Build(name + ".SIF")

	s.Host = NewHost(s.Drive, logger)

	s.Port = pata.MakeBuilder().
		WithChannel(s.Link.Host).
		WithHost(s.Host).
		WithMemory(s.HostMemory).
		WithAllocator(mem.NewAllocator(BounceRegionBase, BounceRegionSize)).
		WithRegisters(regs).
		WithBounceBufferSize(b.bbSize).
		WithMaxEntriesPerPacket(b.maxEntries).
		WithLogger(logger).
		Build(name + ".ATA0")

	s.Coprocessor = b.buildCoprocessor(name+".IOP", s, logger)

	s.DEV9 = dev9.MakeBuilder().
		WithRegisters(regs).
		WithSettle(b.settle).
		WithSleeper(b.sleep).
		WithLogger(logger).
		Build(name + ".DEV9")

	return s
}

func (b Builder) buildCoprocessor(
	name string,
	s *System,
	logger logrus.FieldLogger,
) *Coprocessor {
	return &Coprocessor{
		Base:        hooking.MakeBase(name),
		channel:     s.Link.IOP,
		cmd:         sif.CmdATA,
		codec:       ata.NewCodec(s.Link.IOP.PayloadCapacity()),
		drive:       s.Drive,
		hostMemory:  s.HostMemory,
		iopMemory:   s.IOPMemory,
		staging:     StagingBase,
		stagingSize: StagingSize,
		dmaAlign:    b.dmaAlign,
		log:         logger.WithField("component", name),
	}
}

type emptyImage struct{}

func (emptyImage) ReadAt(_ []byte, _ int64) (int, error) {
	return 0, io.EOF
}
