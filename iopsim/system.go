package iopsim

import (
	"sync"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/dev9"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/pata"
	"github.com/ps2iop/iopata/sif"
)

// Memory layout of the simulated system.
const (
	BounceRegionBase uint32 = 0x00100000
	BounceRegionSize uint32 = 0x00100000
	BufferRegionBase uint32 = 0x00200000
	BufferRegionSize uint32 = 0x01000000
	HostMemorySize   uint64 = 0x02000000

	IOPMemorySize uint64 = 0x00200000
	StagingBase   uint32 = 0x00010000
	StagingSize   uint32 = 0x00001000
)

// PageSize is the host page size. Scatter-gather entries never cross a page.
const PageSize = 4096

// ExpansionRevision is the revision register value of the simulated
// expansion device.
const ExpansionRevision = 0x31

// NewBoardRegisters returns a register file that looks like a console with an
// unpowered expansion device attached.
func NewBoardRegisters() *iop.RegisterFile {
	regs := iop.NewRegisterFile()
	regs.Set(iop.DEV9Base+dev9.RegRev, ExpansionRevision)

	return regs
}

// SplitPages breaks [addr, addr+size) into scatter-gather entries that end at
// page boundaries.
func SplitPages(addr, size uint32) []ata.SGEntry {
	var entries []ata.SGEntry

	for size > 0 {
		n := PageSize - addr%PageSize
		if n > size {
			n = size
		}

		entries = append(entries, ata.SGEntry{Addr: addr, Size: n})
		addr += n
		size -= n
	}

	return entries
}

// A System is a host port and a simulated coprocessor with its drive and
// expansion device, connected by a link. Commands are run to completion one
// at a time.
type System struct {
	lock sync.Mutex
	tag  int

	Link        *sif.Link
	HostMemory  *mem.Storage
	IOPMemory   *mem.Storage
	Buffers     *mem.Allocator
	Registers   *iop.RegisterFile
	Drive       *Drive
	Host        *Host
	Port        *pata.Port
	Coprocessor *Coprocessor
	DEV9        *dev9.Sequencer
}

// Start brings up the expansion device, starts the coprocessor program and
// initializes the port.
func (s *System) Start() error {
	if err := s.DEV9.Init(); err != nil {
		return err
	}

	if err := s.Coprocessor.Start(); err != nil {
		return err
	}

	if err := s.Port.Init(); err != nil {
		s.Coprocessor.Stop()
		return err
	}

	s.Link.Run()

	return nil
}

// Stop closes the port, stops the coprocessor program and powers the
// expansion device off.
func (s *System) Stop() error {
	s.Port.Close()
	s.Coprocessor.Stop()

	return s.DEV9.Shutdown()
}

// ReadSectors reads count sectors at lba into host memory at dst. A count of
// 0 reads 256 sectors.
func (s *System) ReadSectors(lba uint32, count uint8, dst uint32) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	sectors := uint32(count)
	if sectors == 0 {
		sectors = 256
	}

	s.tag++
	qc := &pata.QueuedCmd{
		Tag: s.tag,
		TF:  ReadDMATaskFile(lba, count),
		SG:  SplitPages(dst, sectors*SectorSize),
	}

	if err := s.Port.Issue(qc); err != nil {
		return err
	}

	s.Link.Run()

	o, ok := s.Host.Outcome(qc.Tag)
	if !ok {
		s.Port.Abort(qc)
		return iop.Errorf(iop.TransportFailure, "read",
			"command %d did not complete", qc.Tag)
	}

	if o.Failed {
		return o.Err
	}

	return nil
}

// Read reads count sectors at lba into a fresh buffer and returns the data.
func (s *System) Read(lba uint32, count uint8) ([]byte, error) {
	sectors := uint32(count)
	if sectors == 0 {
		sectors = 256
	}

	size := sectors * SectorSize

	addr, err := s.Buffers.Alloc(size, 16)
	if err != nil {
		return nil, iop.NewError(iop.InvalidOperation, "alloc-buffer", err)
	}
	defer func() { _ = s.Buffers.Free(addr) }()

	if err := s.ReadSectors(lba, count, addr); err != nil {
		return nil, err
	}

	return s.HostMemory.Read(addr, size)
}
