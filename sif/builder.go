package sif

import (
	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/mem"
)

// Builder can build links.
type Builder struct {
	payloadMax int
	queueDepth int
	hostMemory mem.PhysicalMemory
	iopMemory  mem.PhysicalMemory
	logger     logrus.FieldLogger
}

// MakeBuilder returns a Builder with the default packet geometry.
func MakeBuilder() Builder {
	return Builder{
		payloadMax: PacketDataMax,
		queueDepth: 32,
	}
}

// WithPayloadMax sets the largest payload a packet can carry.
func (b Builder) WithPayloadMax(n int) Builder {
	b.payloadMax = n
	return b
}

// WithQueueDepth sets how many packets each end can hold before delivery.
func (b Builder) WithQueueDepth(n int) Builder {
	b.queueDepth = n
	return b
}

// WithHostMemory sets the memory behind the host endpoint.
func (b Builder) WithHostMemory(m mem.PhysicalMemory) Builder {
	b.hostMemory = m
	return b
}

// WithIOPMemory sets the memory behind the coprocessor endpoint.
func (b Builder) WithIOPMemory(m mem.PhysicalMemory) Builder {
	b.iopMemory = m
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates a connected pair of endpoints named name.Host and name.IOP.
func (b Builder) Build(name string) *Link {
	if b.payloadMax <= 0 || b.payloadMax > PacketDataMax {
		panic("payload capacity must be between 1 and PacketDataMax")
	}

	if b.queueDepth <= 0 {
		panic("queue depth must be positive")
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	host := b.buildEndpoint(name+".Host", b.hostMemory, logger)
	iop := b.buildEndpoint(name+".IOP", b.iopMemory, logger)
	host.peer = iop
	iop.peer = host

	return &Link{Host: host, IOP: iop}
}

func (b Builder) buildEndpoint(
	name string,
	m mem.PhysicalMemory,
	logger logrus.FieldLogger,
) *Endpoint {
	return &Endpoint{
		Base:       hooking.MakeBase(name),
		memory:     m,
		incoming:   newQueue(b.queueDepth),
		handlers:   make(map[CmdID]Handler),
		payloadMax: b.payloadMax,
		log:        logger.WithField("component", name),
	}
}
