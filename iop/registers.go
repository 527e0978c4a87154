// Package iop holds the primitives shared by everything that talks to the I/O
// coprocessor: the error taxonomy and the remote register space.
package iop

// Register windows on the coprocessor side.
const (
	// DEV9Base is the base of the 16-bit expansion-bus registers and the 32-bit
	// sub-system bus registers.
	DEV9Base uint32 = 0xbf800000

	// SPDBase is the base of the storage controller registers.
	SPDBase uint32 = 0x14000000
)

// Registers gives access to the remote register spaces. Every access goes
// through the coprocessor and can fail.
type Registers interface {
	ReadW(addr uint32) (uint16, error)
	WriteW(addr uint32, value uint16) error
	ReadL(addr uint32) (uint32, error)
	WriteL(addr uint32, value uint32) error
}

// A Window addresses registers at fixed offsets from a base.
type Window struct {
	Regs Registers
	Base uint32
}

// ReadW reads the 16-bit register at the offset.
func (w Window) ReadW(offset uint32) (uint16, error) {
	return w.Regs.ReadW(w.Base + offset)
}

// WriteW writes the 16-bit register at the offset.
func (w Window) WriteW(offset uint32, value uint16) error {
	return w.Regs.WriteW(w.Base+offset, value)
}

// ReadL reads the 32-bit register at the offset.
func (w Window) ReadL(offset uint32) (uint32, error) {
	return w.Regs.ReadL(w.Base + offset)
}

// WriteL writes the 32-bit register at the offset.
func (w Window) WriteL(offset uint32, value uint32) error {
	return w.Regs.WriteL(w.Base+offset, value)
}

// ModifyW reads a 16-bit register, clears the bits in clear, sets the bits in
// set and writes the result back.
func (w Window) ModifyW(offset uint32, clear, set uint16) error {
	v, err := w.ReadW(offset)
	if err != nil {
		return err
	}

	return w.WriteW(offset, (v&^clear)|set)
}
