package dev9

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
)

// DefaultSettle is how long the device needs after each power step.
const DefaultSettle = 500 * time.Millisecond

// Builder can build sequencers.
type Builder struct {
	regs   iop.Registers
	sleep  func(time.Duration)
	settle time.Duration
	logger logrus.FieldLogger
}

// MakeBuilder creates a Builder that sleeps for the default settle time.
func MakeBuilder() Builder {
	return Builder{
		sleep:  time.Sleep,
		settle: DefaultSettle,
	}
}

// WithRegisters sets the remote register space.
func (b Builder) WithRegisters(r iop.Registers) Builder {
	b.regs = r
	return b
}

// WithSleeper sets the function used for settle waits.
func (b Builder) WithSleeper(f func(time.Duration)) Builder {
	b.sleep = f
	return b
}

// WithSettle sets the settle time used by Init and Shutdown.
func (b Builder) WithSettle(d time.Duration) Builder {
	b.settle = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.logger = l
	return b
}

// Build creates a sequencer.
func (b Builder) Build(name string) *Sequencer {
	if b.regs == nil {
		panic("sequencer requires registers")
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Sequencer{
		Base:   hooking.MakeBase(name),
		regs:   iop.Window{Regs: b.regs, Base: iop.DEV9Base},
		sleep:  b.sleep,
		settle: b.settle,
		log:    logger.WithField("component", name),
	}
}
