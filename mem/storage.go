// Package mem models physical memory on either side of the bridge.
package mem

import (
	"errors"
	"fmt"
	"sync"
)

// Capacity units.
const (
	KB uint32 = 1 << 10
	MB uint32 = 1 << 20
)

// ErrOutOfRange is returned when an access falls outside the storage.
var ErrOutOfRange = errors.New("physical address beyond the storage capacity")

// PhysicalMemory is memory addressed by 32-bit physical addresses.
type PhysicalMemory interface {
	Read(addr uint32, size uint32) ([]byte, error)
	Write(addr uint32, data []byte) error
}

// A Storage keeps the content of a physical address space.
//
// The storage is managed in units, similar to pages. No memory is allocated
// for a unit until it is touched.
type Storage struct {
	lock     sync.Mutex
	unitSize uint32
	capacity uint64
	data     map[uint32][]byte
}

// NewStorage creates a storage with the given capacity in bytes.
func NewStorage(capacity uint64) *Storage {
	return &Storage{
		unitSize: 4096,
		capacity: capacity,
		data:     make(map[uint32][]byte),
	}
}

// Capacity returns the size of the storage in bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) mustBeInRange(addr uint32, size uint32) error {
	if uint64(addr)+uint64(size) > s.capacity {
		return fmt.Errorf("%w: 0x%08x+%d", ErrOutOfRange, addr, size)
	}

	return nil
}

func (s *Storage) unit(addr uint32) (unit []byte, offset uint32) {
	offset = addr % s.unitSize
	base := addr - offset

	unit, ok := s.data[base]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[base] = unit
	}

	return unit, offset
}

// Read returns a copy of size bytes starting at addr.
func (s *Storage) Read(addr uint32, size uint32) ([]byte, error) {
	if err := s.mustBeInRange(addr, size); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	res := make([]byte, size)
	done := uint32(0)

	for done < size {
		unit, offset := s.unit(addr + done)
		n := uint32(copy(res[done:], unit[offset:]))
		done += n
	}

	return res, nil
}

// Write stores data starting at addr.
func (s *Storage) Write(addr uint32, data []byte) error {
	size := uint32(len(data))
	if err := s.mustBeInRange(addr, size); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	done := uint32(0)

	for done < size {
		unit, offset := s.unit(addr + done)
		n := uint32(copy(unit[offset:], data[done:]))
		done += n
	}

	return nil
}

// Copy moves size bytes from src to dst inside one physical memory. The
// ranges may overlap.
func Copy(m PhysicalMemory, dst, src, size uint32) error {
	if size == 0 {
		return nil
	}

	data, err := m.Read(src, size)
	if err != nil {
		return err
	}

	return m.Write(dst, data)
}
