package ata

import "fmt"

// XferMode identifies a transfer mode, using the values of the ATA SET
// FEATURES transfer mode subcommand.
type XferMode uint8

// Transfer modes.
const (
	XferPIO0   XferMode = 0x08
	XferPIO1   XferMode = 0x09
	XferPIO2   XferMode = 0x0a
	XferPIO3   XferMode = 0x0b
	XferPIO4   XferMode = 0x0c
	XferMWDMA0 XferMode = 0x20
	XferMWDMA1 XferMode = 0x21
	XferMWDMA2 XferMode = 0x22
	XferUDMA0  XferMode = 0x40
	XferUDMA1  XferMode = 0x41
	XferUDMA2  XferMode = 0x42
	XferUDMA3  XferMode = 0x43
	XferUDMA4  XferMode = 0x44
	XferUDMA5  XferMode = 0x45
)

// IsPIO reports whether m is a PIO mode.
func (m XferMode) IsPIO() bool { return m >= XferPIO0 && m <= XferPIO0+7 }

// IsMWDMA reports whether m is a multiword DMA mode.
func (m XferMode) IsMWDMA() bool { return m >= XferMWDMA0 && m <= XferMWDMA0+7 }

// IsUDMA reports whether m is an Ultra DMA mode.
func (m XferMode) IsUDMA() bool { return m >= XferUDMA0 && m <= XferUDMA0+7 }

// Number returns the mode number within its class.
func (m XferMode) Number() int {
	return int(m & 0x7)
}

func (m XferMode) String() string {
	switch {
	case m.IsPIO():
		return fmt.Sprintf("PIO%d", m.Number())
	case m.IsMWDMA():
		return fmt.Sprintf("MWDMA%d", m.Number())
	case m.IsUDMA():
		return fmt.Sprintf("UDMA%d", m.Number())
	default:
		return fmt.Sprintf("mode 0x%02x", uint8(m))
	}
}

// ParseXferMode parses names such as "PIO4", "MWDMA2" and "UDMA5".
func ParseXferMode(s string) (XferMode, error) {
	var n int

	for _, class := range []struct {
		prefix string
		base   XferMode
	}{
		{"PIO%d", XferPIO0},
		{"MWDMA%d", XferMWDMA0},
		{"UDMA%d", XferUDMA0},
	} {
		if _, err := fmt.Sscanf(s, class.prefix, &n); err == nil {
			if n < 0 || n > 7 {
				continue
			}

			m := class.base + XferMode(n)
			if m.String() == s {
				return m, nil
			}
		}
	}

	return 0, fmt.Errorf("unknown transfer mode %q", s)
}
