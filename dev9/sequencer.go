// Package dev9 powers the device on the coprocessor's expansion bus up and
// down through a sequence of remote register accesses.
package dev9

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/sif"
	"github.com/ps2iop/iopata/tracing"
)

// Errors reported by the sequencer. Both are wrapped in a SequencingFailure
// when they stop a sequence.
var (
	ErrNoDevice             = errors.New("no expansion device")
	ErrUnsupportedInterface = errors.New("unsupported expansion interface")
)

// State is the power state of the expansion device.
type State int

// Power states.
const (
	StateUnknown State = iota
	StateProbing
	StateNoDevice
	StatePoweredOff
	StatePoweringOn
	StatePoweredOn
	StatePoweringOff
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateProbing:
		return "probing"
	case StateNoDevice:
		return "no-device"
	case StatePoweredOff:
		return "powered-off"
	case StatePoweringOn:
		return "powering-on"
	case StatePoweredOn:
		return "powered-on"
	case StatePoweringOff:
		return "powering-off"
	default:
		return fmt.Sprintf("state %d", int(s))
	}
}

// A Sequencer runs the power sequences of the expansion device. Sequences
// block for their settle waits and cannot be cancelled. A sequence that fails
// stops where it is and leaves the state it reached, so the caller has to
// start again from Probe.
type Sequencer struct {
	hooking.Base

	seqLock sync.Mutex

	lock  sync.Mutex
	state State
	iface Interface
	rev   uint16

	regs   iop.Window
	sleep  func(time.Duration)
	settle time.Duration
	log    logrus.FieldLogger
}

// Status is a snapshot of the sequencer.
type Status struct {
	State     string `json:"state"`
	Interface string `json:"interface"`
	Revision  uint16 `json:"revision"`
}

// State returns the power state.
func (s *Sequencer) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

// Status returns a snapshot of the sequencer.
func (s *Sequencer) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()

	return Status{
		State:     s.state.String(),
		Interface: s.iface.String(),
		Revision:  s.rev,
	}
}

func (s *Sequencer) setState(state State) {
	s.lock.Lock()
	prev := s.state
	s.state = state
	s.lock.Unlock()

	s.log.WithFields(logrus.Fields{
		"from": prev,
		"to":   state,
	}).Debug("power state changed")
}

func (s *Sequencer) fail(op string, err error) error {
	s.log.WithField("state", s.State()).WithError(err).Error(op + " failed")
	return iop.NewError(iop.SequencingFailure, op, err)
}

// Probe checks whether a device sits in the expansion slot. A missing device
// is not an error: Probe reports false and the sequencer stays in
// StateNoDevice.
func (s *Sequencer) Probe() (bool, error) {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	return s.probe()
}

func (s *Sequencer) probe() (bool, error) {
	s.setState(StateProbing)

	v, err := s.regs.ReadW(RegProbe)
	if err != nil {
		return false, s.fail("probe", fmt.Errorf("read probe register: %w", err))
	}

	if v&ProbeAbsent != 0 {
		s.setState(StateNoDevice)
		s.log.Info("no expansion device")

		return false, nil
	}

	s.setState(StatePoweredOff)

	return true, nil
}

// PowerOn powers the device up and waits for it to settle twice. The device
// must have been probed.
func (s *Sequencer) PowerOn(settle time.Duration) error {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	if st := s.State(); st != StatePoweredOff {
		return s.fail("power-on", fmt.Errorf("device is %s", st))
	}

	return s.powerOn(settle)
}

func (s *Sequencer) powerOn(settle time.Duration) error {
	id := sif.GetIDGenerator().Generate()
	tracing.StartTask(id, "", s, "dev9", "power-on", nil)
	defer tracing.EndTask(id, s)

	s.setState(StatePoweringOn)

	if err := s.regs.ModifyW(RegPower, PowerHoldClear, PowerOn); err != nil {
		return s.fail("power-on", fmt.Errorf("switch power on: %w", err))
	}

	s.sleep(settle)
	tracing.AddTaskStep(id, s, "powered")

	if err := s.regs.ModifyW(Reg1460, 0, Ready1460); err != nil {
		return s.fail("power-on", fmt.Errorf("set ready: %w", err))
	}

	if err := s.regs.ModifyW(RegPower, 0, PowerHoldClear); err != nil {
		return s.fail("power-on", fmt.Errorf("release hold: %w", err))
	}

	s.sleep(settle)

	s.setState(StatePoweredOn)
	s.log.Info("expansion device powered on")

	return nil
}

// PowerOff powers the device down. The settle waits mirror those of PowerOn.
func (s *Sequencer) PowerOff(settle time.Duration) error {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	if st := s.State(); st != StatePoweredOn {
		return s.fail("power-off", fmt.Errorf("device is %s", st))
	}

	return s.powerOff(settle)
}

func (s *Sequencer) powerOff(settle time.Duration) error {
	id := sif.GetIDGenerator().Generate()
	tracing.StartTask(id, "", s, "dev9", "power-off", nil)
	defer tracing.EndTask(id, s)

	s.setState(StatePoweringOff)

	if err := s.detach(); err != nil {
		return s.fail("power-off", err)
	}

	if err := s.regs.ModifyW(RegPower, PowerOn, 0); err != nil {
		return s.fail("power-off", fmt.Errorf("switch power off: %w", err))
	}

	s.sleep(settle)

	if err := s.regs.ModifyW(RegPower, PowerHoldClear, 0); err != nil {
		return s.fail("power-off", fmt.Errorf("hold: %w", err))
	}

	s.sleep(settle)

	s.setState(StatePoweredOff)
	s.log.Info("expansion device powered off")

	return nil
}

// detach writes 1466 <- 1, 1464 <- 0 and copies 1464 into 1460.
func (s *Sequencer) detach() error {
	if err := s.regs.WriteW(Reg1466, 1); err != nil {
		return fmt.Errorf("write 1466: %w", err)
	}

	if err := s.regs.WriteW(Reg1464, 0); err != nil {
		return fmt.Errorf("write 1464: %w", err)
	}

	v, err := s.regs.ReadW(Reg1464)
	if err != nil {
		return fmt.Errorf("read 1464: %w", err)
	}

	if err := s.regs.WriteW(Reg1460, v); err != nil {
		return fmt.Errorf("write 1460: %w", err)
	}

	return nil
}

// Reset probes the slot and powers the device on.
func (s *Sequencer) Reset(settle time.Duration) error {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	return s.reset(settle)
}

func (s *Sequencer) reset(settle time.Duration) error {
	present, err := s.probe()
	if err != nil {
		return err
	}

	if !present {
		return iop.NewError(iop.SequencingFailure, "reset", ErrNoDevice)
	}

	return s.powerOn(settle)
}

// DetectInterface reads the revision register and classifies the interface.
func (s *Sequencer) DetectInterface() (Interface, error) {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	return s.detectInterface()
}

func (s *Sequencer) detectInterface() (Interface, error) {
	rev, err := s.regs.ReadW(RegRev)
	if err != nil {
		return InterfaceUnknown,
			s.fail("detect", fmt.Errorf("read revision: %w", err))
	}

	iface := InterfaceOf(rev)

	s.lock.Lock()
	s.rev = rev
	s.iface = iface
	s.lock.Unlock()

	return iface, nil
}

// Init starts the expansion interface. It programs the sub-system bus and, if
// the device is not powered yet, resets it. PC card interfaces and unknown
// interfaces are refused.
func (s *Sequencer) Init() error {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	iface, err := s.detectInterface()
	if err != nil {
		return err
	}

	switch iface {
	case InterfaceExpansion:
		s.log.Info("expansion device interface")
	case InterfacePCCard:
		return s.fail("init", fmt.Errorf("PC card: %w", ErrUnsupportedInterface))
	default:
		return s.fail("init", fmt.Errorf("revision 0x%x: %w",
			s.Status().Revision, ErrUnsupportedInterface))
	}

	if err := s.initExpansion(); err != nil {
		return err
	}

	s.log.Info("interface initialized")

	return nil
}

func (s *Sequencer) initExpansion() error {
	for _, w := range []struct {
		reg   uint32
		value uint32
	}{
		{SSBUSReg1420, SSBUS1420Init},
		{SSBUSReg1418, SSBUS1418Init},
		{SSBUSReg141c, SSBUS141cInit},
	} {
		if err := s.regs.WriteL(w.reg, w.value); err != nil {
			return s.fail("init", fmt.Errorf("write ssbus %x: %w", w.reg, err))
		}
	}

	power, err := s.regs.ReadW(RegPower)
	if err != nil {
		return s.fail("init", fmt.Errorf("read power: %w", err))
	}

	if power&PowerOn == 0 {
		s.log.Info("expansion device power on")

		if err := s.detach(); err != nil {
			return s.fail("init", err)
		}

		if err := s.reset(s.settle); err != nil {
			return err
		}
	} else {
		s.log.Info("expansion device already powered on")
		s.setState(StatePoweredOn)
	}

	if err := s.regs.WriteW(Reg1466, 0); err != nil {
		return s.fail("init", fmt.Errorf("write 1466: %w", err))
	}

	return nil
}

// Shutdown powers an expansion device down. It does nothing for other
// interfaces.
func (s *Sequencer) Shutdown() error {
	s.seqLock.Lock()
	defer s.seqLock.Unlock()

	s.lock.Lock()
	iface := s.iface
	s.lock.Unlock()

	if iface != InterfaceExpansion {
		return nil
	}

	return s.powerOff(s.settle)
}
