// Package iopsim simulates the coprocessor side of the bridge: a disk drive
// behind the storage controller, the coprocessor program that serves the
// host's scatter-gather requests, and a complete system that wires them to a
// host port over an in-process link.
package iopsim

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ps2iop/iopata/pata"
)

// SectorSize is the size of a disk sector in bytes.
const SectorSize = 512

// ATA commands the drive understands.
const (
	CmdReadDMA uint8 = 0xc8
)

const deviceLBA = 0x40

// Drive errors.
var (
	ErrUnsupportedCommand = errors.New("unsupported drive command")
	ErrBeyondMedia        = errors.New("access beyond the end of the media")
	ErrOverrun            = errors.New("transfer overruns the command")
)

// ReadDMATaskFile returns the task file of a 28-bit READ DMA of count
// sectors at lba. A count of 0 means 256 sectors.
func ReadDMATaskFile(lba uint32, count uint8) pata.TaskFile {
	return pata.TaskFile{
		Command:  CmdReadDMA,
		NSect:    count,
		LBAL:     uint8(lba),
		LBAM:     uint8(lba >> 8),
		LBAH:     uint8(lba >> 16),
		Device:   deviceLBA | uint8(lba>>24)&0xf,
		Protocol: pata.ProtocolDMA,
	}
}

// LBA28 returns the 28-bit address held in a task file.
func LBA28(tf *pata.TaskFile) uint32 {
	return uint32(tf.LBAL) |
		uint32(tf.LBAM)<<8 |
		uint32(tf.LBAH)<<16 |
		uint32(tf.Device&0xf)<<24
}

// SectorCount returns the number of sectors a task file asks for.
func SectorCount(tf *pata.TaskFile) uint32 {
	if tf.NSect == 0 {
		return 256
	}

	return uint32(tf.NSect)
}

// A Drive is a disk backed by an image. Reads past the end of the image but
// within the media return zeros.
type Drive struct {
	lock      sync.Mutex
	image     io.ReaderAt
	sectors   uint64
	tf        pata.TaskFile
	pos       int64
	remaining int64
}

// NewDrive creates a drive whose media is size bytes of image, rounded up to
// whole sectors.
func NewDrive(image io.ReaderAt, size int64) *Drive {
	return &Drive{
		image:   image,
		sectors: uint64((size + SectorSize - 1) / SectorSize),
	}
}

// Sectors returns the size of the media in sectors.
func (d *Drive) Sectors() uint64 {
	return d.sectors
}

// LoadTaskFile latches the command registers.
func (d *Drive) LoadTaskFile(tf *pata.TaskFile) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.tf = *tf
}

// Exec starts the command in the latched task file.
func (d *Drive) Exec() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.remaining = 0

	switch d.tf.Command {
	case CmdReadDMA:
		lba := uint64(LBA28(&d.tf))
		n := uint64(SectorCount(&d.tf))

		if lba+n > d.sectors {
			return fmt.Errorf("lba %d+%d of %d: %w", lba, n, d.sectors, ErrBeyondMedia)
		}

		d.pos = int64(lba * SectorSize)
		d.remaining = int64(n * SectorSize)

		return nil
	default:
		return fmt.Errorf("0x%02x: %w", d.tf.Command, ErrUnsupportedCommand)
	}
}

// Remaining returns how many bytes the running command still has to move.
func (d *Drive) Remaining() int64 {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.remaining
}

// Stream returns the next n bytes of the running command.
func (d *Drive) Stream(n uint32) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if int64(n) > d.remaining {
		return nil, fmt.Errorf("%d bytes with %d left: %w", n, d.remaining, ErrOverrun)
	}

	buf := make([]byte, n)

	_, err := d.image.ReadAt(buf, d.pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	d.pos += int64(n)
	d.remaining -= int64(n)

	return buf, nil
}
