// Package ata encodes and decodes the ATA remote operations exchanged with the
// I/O coprocessor over the command channel.
//
// Every packet starts with a 32-bit option word:
//
//	bits  0-2   opcode
//	bits  3-10  entry count
//	bit   11    write flag
//	bits 12-31  reserved
//
// followed by a payload whose layout depends on the opcode. All payload fields
// are 32-bit little-endian words, the byte order of the shared memory.
package ata

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder is the byte order of payload fields.
var ByteOrder = binary.LittleEndian

// Opcode selects a remote operation.
type Opcode uint8

// Remote operations.
const (
	// OpAnnounceBounceBuffer tells the coprocessor where the bounce buffer is.
	OpAnnounceBounceBuffer Opcode = 0
	// OpScatterGather requests scatter-gather transfers, or acknowledges them
	// when sent by the coprocessor.
	OpScatterGather Opcode = 1
	// OpRawRead asks the host to copy host memory.
	OpRawRead Opcode = 2
	// OpRawWrite asks the host to push host memory to the coprocessor.
	OpRawWrite Opcode = 3
)

func (o Opcode) String() string {
	switch o {
	case OpAnnounceBounceBuffer:
		return "bb"
	case OpScatterGather:
		return "sg"
	case OpRawRead:
		return "rd"
	case OpRawWrite:
		return "wr"
	default:
		return fmt.Sprintf("op%d", uint8(o))
	}
}

const (
	optOpMask     = 0x7
	optCountShift = 3
	optCountMask  = 0xff
	optWriteBit   = 1 << 11
	optRsvdShift  = 12
)

// MaxOptionCount is the largest count the option word can carry.
const MaxOptionCount = optCountMask

// Option is the unpacked option word.
type Option struct {
	Op       Opcode
	Count    uint8
	Write    bool
	Reserved uint32
}

// Pack returns the raw option word.
func (o Option) Pack() uint32 {
	raw := uint32(o.Op) & optOpMask
	raw |= uint32(o.Count) << optCountShift

	if o.Write {
		raw |= optWriteBit
	}

	raw |= o.Reserved << optRsvdShift

	return raw
}

// UnpackOption splits a raw option word into its fields.
func UnpackOption(raw uint32) Option {
	return Option{
		Op:       Opcode(raw & optOpMask),
		Count:    uint8((raw >> optCountShift) & optCountMask),
		Write:    raw&optWriteBit != 0,
		Reserved: raw >> optRsvdShift,
	}
}

func (o Option) String() string {
	return fmt.Sprintf("%s count=%d write=%t", o.Op, o.Count, o.Write)
}
