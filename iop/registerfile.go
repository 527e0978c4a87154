package iop

import (
	"errors"
	"fmt"
	"sync"
)

// AccessOp tells what kind of register access was made.
type AccessOp string

// Register access operations.
const (
	OpReadW  AccessOp = "readw"
	OpWriteW AccessOp = "writew"
	OpReadL  AccessOp = "readl"
	OpWriteL AccessOp = "writel"
)

// An Access is one entry in the access log of a RegisterFile.
type Access struct {
	Op    AccessOp
	Addr  uint32
	Value uint32
}

func (a Access) String() string {
	return fmt.Sprintf("%s 0x%08x=0x%x", a.Op, a.Addr, a.Value)
}

// ErrRegisterIO is returned by a RegisterFile for injected failures.
var ErrRegisterIO = errors.New("register i/o error")

type failKey struct {
	op   AccessOp
	addr uint32
}

// RegisterFile is an in-memory register space. It records every access and
// can be told to fail selected accesses. Registers never written read as zero.
type RegisterFile struct {
	lock    sync.Mutex
	values  map[uint32]uint32
	log     []Access
	fails   map[failKey]error
	onWrite map[uint32]func(value uint32) uint32
}

// NewRegisterFile creates an empty register file.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{
		values:  make(map[uint32]uint32),
		fails:   make(map[failKey]error),
		onWrite: make(map[uint32]func(value uint32) uint32),
	}
}

// Set stores a value without recording an access.
func (f *RegisterFile) Set(addr uint32, value uint32) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.values[addr] = value
}

// Get returns a value without recording an access.
func (f *RegisterFile) Get(addr uint32) uint32 {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.values[addr]
}

// FailOn makes every access of the given kind to addr return err. A nil err
// selects ErrRegisterIO.
func (f *RegisterFile) FailOn(op AccessOp, addr uint32, err error) {
	if err == nil {
		err = ErrRegisterIO
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	f.fails[failKey{op, addr}] = err
}

// OnWrite installs a function that turns a written value into the value that
// is stored, so that self-clearing or read-only bits can be modelled.
func (f *RegisterFile) OnWrite(addr uint32, fn func(value uint32) uint32) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.onWrite[addr] = fn
}

// Accesses returns a copy of the access log.
func (f *RegisterFile) Accesses() []Access {
	f.lock.Lock()
	defer f.lock.Unlock()

	out := make([]Access, len(f.log))
	copy(out, f.log)

	return out
}

// Writes returns the write accesses in the log.
func (f *RegisterFile) Writes() []Access {
	var out []Access

	for _, a := range f.Accesses() {
		if a.Op == OpWriteW || a.Op == OpWriteL {
			out = append(out, a)
		}
	}

	return out
}

// ResetLog clears the access log.
func (f *RegisterFile) ResetLog() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.log = nil
}

// ReadW implements Registers.
func (f *RegisterFile) ReadW(addr uint32) (uint16, error) {
	v, err := f.read(OpReadW, addr)
	return uint16(v), err
}

// WriteW implements Registers.
func (f *RegisterFile) WriteW(addr uint32, value uint16) error {
	return f.write(OpWriteW, addr, uint32(value))
}

// ReadL implements Registers.
func (f *RegisterFile) ReadL(addr uint32) (uint32, error) {
	return f.read(OpReadL, addr)
}

// WriteL implements Registers.
func (f *RegisterFile) WriteL(addr uint32, value uint32) error {
	return f.write(OpWriteL, addr, value)
}

func (f *RegisterFile) read(op AccessOp, addr uint32) (uint32, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err, ok := f.fails[failKey{op, addr}]; ok {
		return 0, err
	}

	v := f.values[addr]
	if op == OpReadW {
		v &= 0xffff
	}

	f.log = append(f.log, Access{Op: op, Addr: addr, Value: v})

	return v, nil
}

func (f *RegisterFile) write(op AccessOp, addr uint32, value uint32) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err, ok := f.fails[failKey{op, addr}]; ok {
		return err
	}

	f.log = append(f.log, Access{Op: op, Addr: addr, Value: value})

	if fn, ok := f.onWrite[addr]; ok {
		value = fn(value)
	}

	f.values[addr] = value

	return nil
}
