package pata

import (
	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/iop"
)

// Storage controller registers, as offsets from iop.SPDBase.
const (
	SPDRegXfrCtrl   = 0x32
	SPDReg38        = 0x38
	SPDRegIfCtrl    = 0x64
	SPDRegPIOMode   = 0x70
	SPDRegMWDMAMode = 0x72
	SPDRegUDMAMode  = 0x74
)

// IF_CTRL bits.
const (
	SPDIfATAReset  = 0x80
	SPDIfDMAEnable = 0x04
)

var dmaTimings = map[ata.XferMode]uint16{
	ata.XferMWDMA0: 0xff,
	ata.XferMWDMA1: 0x45,
	ata.XferMWDMA2: 0x24,
	ata.XferUDMA0:  0xa7,
	ata.XferUDMA1:  0x85,
	ata.XferUDMA2:  0x63,
	ata.XferUDMA3:  0x62,
	ata.XferUDMA4:  0x61,
	ata.XferUDMA5:  0x60,
}

var pioTimings = map[ata.XferMode]uint16{
	ata.XferPIO0: 0x92,
	ata.XferPIO1: 0x72,
	ata.XferPIO2: 0x32,
	ata.XferPIO3: 0x24,
	ata.XferPIO4: 0x23,
}

// DMATiming returns the controller timing code of a DMA mode.
func DMATiming(m ata.XferMode) (uint16, bool) {
	v, ok := dmaTimings[m]
	return v, ok
}

// PIOTiming returns the controller timing code of a PIO mode.
func PIOTiming(m ata.XferMode) (uint16, bool) {
	v, ok := pioTimings[m]
	return v, ok
}

func supported(mask uint8, m ata.XferMode) bool {
	return mask&(1<<uint(m.Number())) != 0
}

// SetDMAMode programs the controller for a multiword or Ultra DMA mode. An
// unknown mode, or one the port does not support, is reported and leaves the
// previous mode programmed.
func (p *Port) SetDMAMode(m ata.XferMode) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	val, ok := dmaTimings[m]

	switch {
	case ok && m.IsMWDMA():
		ok = supported(p.mwdmaMask, m)
	case ok && m.IsUDMA():
		ok = supported(p.udmaMask, m)
	}

	if !ok {
		p.log.WithField("mode", m).Warn("invalid DMA mode")
		return iop.Errorf(iop.InvalidOperation, "set-dma-mode",
			"invalid DMA mode %s", m)
	}

	var err error
	if m.IsMWDMA() {
		err = p.spd.WriteW(SPDRegMWDMAMode, val)
		if err == nil {
			err = p.spd.ModifyW(SPDRegIfCtrl, 0x0001, 0x48)
		}
	} else {
		err = p.spd.WriteW(SPDRegUDMAMode, val)
		if err == nil {
			err = p.spd.ModifyW(SPDRegIfCtrl, 0, 0x49)
		}
	}

	if err != nil {
		return iop.NewError(iop.TransportFailure, "set-dma-mode", err)
	}

	p.dmaMode = m
	p.log.WithField("mode", m).Info("DMA mode set")

	return nil
}

// SetPIOMode programs the controller's PIO timing.
func (p *Port) SetPIOMode(m ata.XferMode) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	val, ok := pioTimings[m]
	if ok {
		ok = supported(p.pioMask, m)
	}

	if !ok {
		p.log.WithField("mode", m).Warn("invalid PIO mode")
		return iop.Errorf(iop.InvalidOperation, "set-pio-mode",
			"invalid PIO mode %s", m)
	}

	if err := p.spd.WriteW(SPDRegPIOMode, val); err != nil {
		return iop.NewError(iop.TransportFailure, "set-pio-mode", err)
	}

	p.pioMode = m
	p.log.WithField("mode", m).Info("PIO mode set")

	return nil
}

// Mode masks, one bit per mode number.
const (
	MaskPIO4   uint8 = 0x1f
	MaskMWDMA2 uint8 = 0x07
	MaskUDMA4  uint8 = 0x1f
	MaskUDMA5  uint8 = 0x3f
)
