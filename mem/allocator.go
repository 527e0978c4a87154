package mem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoSpace is returned when an allocation cannot be satisfied.
var ErrNoSpace = errors.New("no space left in region")

type region struct {
	addr uint32
	size uint32
}

// An Allocator hands out physically contiguous regions from a fixed range,
// first fit. Freed regions are merged with their neighbours.
type Allocator struct {
	lock      sync.Mutex
	free      []region
	allocated map[uint32]uint32
}

// NewAllocator creates an allocator over [base, base+size).
func NewAllocator(base, size uint32) *Allocator {
	return &Allocator{
		free:      []region{{addr: base, size: size}},
		allocated: make(map[uint32]uint32),
	}
}

// Alloc reserves size bytes aligned to align, which must be a power of two.
func (a *Allocator) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, fmt.Errorf("zero-size allocation")
	}

	if align == 0 || align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment %d is not a power of two", align)
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	for i, r := range a.free {
		start := (r.addr + align - 1) &^ (align - 1)
		pad := start - r.addr

		if pad > r.size || r.size-pad < size {
			continue
		}

		a.take(i, start, size)
		a.allocated[start] = size

		return start, nil
	}

	return 0, fmt.Errorf("%w: %d bytes", ErrNoSpace, size)
}

func (a *Allocator) take(i int, start, size uint32) {
	r := a.free[i]
	var rest []region

	if start > r.addr {
		rest = append(rest, region{addr: r.addr, size: start - r.addr})
	}

	end := start + size
	if rEnd := r.addr + r.size; rEnd > end {
		rest = append(rest, region{addr: end, size: rEnd - end})
	}

	a.free = append(a.free[:i], append(rest, a.free[i+1:]...)...)
}

// Free returns a region obtained from Alloc.
func (a *Allocator) Free(addr uint32) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	size, ok := a.allocated[addr]
	if !ok {
		return fmt.Errorf("address 0x%08x was not allocated", addr)
	}

	delete(a.allocated, addr)
	a.free = append(a.free, region{addr: addr, size: size})
	a.coalesce()

	return nil
}

func (a *Allocator) coalesce() {
	sort.Slice(a.free, func(i, j int) bool {
		return a.free[i].addr < a.free[j].addr
	})

	merged := a.free[:1]
	for _, r := range a.free[1:] {
		last := &merged[len(merged)-1]
		if last.addr+last.size == r.addr {
			last.size += r.size
			continue
		}

		merged = append(merged, r)
	}

	a.free = merged
}

// Available returns the number of free bytes.
func (a *Allocator) Available() uint32 {
	a.lock.Lock()
	defer a.lock.Unlock()

	total := uint32(0)
	for _, r := range a.free {
		total += r.size
	}

	return total
}
