package dma

import (
	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/sif"
)

// Builder can build DMA engines.
type Builder struct {
	channel    sif.Channel
	cmd        sif.CmdID
	maxEntries int
	listener   Listener
	logger     logrus.FieldLogger
}

// MakeBuilder creates a Builder that sends on the ATA command.
func MakeBuilder() Builder {
	return Builder{
		cmd: sif.CmdATA,
	}
}

// WithChannel sets the channel packets are sent on.
func (b Builder) WithChannel(ch sif.Channel) Builder {
	b.channel = ch
	return b
}

// WithCmd sets the command number packets are sent with.
func (b Builder) WithCmd(cmd sif.CmdID) Builder {
	b.cmd = cmd
	return b
}

// WithMaxEntriesPerPacket limits the entries per packet below what the
// channel payload allows. Zero means no limit.
func (b Builder) WithMaxEntriesPerPacket(n int) Builder {
	b.maxEntries = n
	return b
}

// WithListener sets the listener that is told when transfers end.
func (b Builder) WithListener(l Listener) Builder {
	b.listener = l
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates an engine.
func (b Builder) Build(name string) *Engine {
	if b.channel == nil {
		panic("DMA engine requires a channel")
	}

	codec := ata.NewCodec(b.channel.PayloadCapacity())

	capacity := codec.SGCapacity()
	if b.maxEntries > 0 && b.maxEntries < capacity {
		capacity = b.maxEntries
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		Base:     hooking.MakeBase(name),
		channel:  b.channel,
		cmd:      b.cmd,
		codec:    codec,
		capacity: capacity,
		listener: b.listener,
		log:      logger.WithField("component", name),
	}
}
