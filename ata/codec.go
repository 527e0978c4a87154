package ata

import (
	"fmt"

	"github.com/ps2iop/iopata/iop"
)

// DMAGranularity is the unit, in bytes, of every scatter-gather transfer.
const DMAGranularity = 8

// SGEntrySize is the size of one encoded scatter-gather entry.
const SGEntrySize = 8

const (
	bounceBufferSize = 8
	rawCopySize      = 12
)

// An SGEntry is one contiguous region of a scatter-gather transfer.
type SGEntry struct {
	Addr uint32
	Size uint32
}

// Aligned reports whether the size is a whole number of DMA units.
func (e SGEntry) Aligned() bool {
	return e.Size%DMAGranularity == 0
}

// A BounceBuffer is the scratch region the coprocessor uses for data that
// cannot be transferred by DMA directly.
type BounceBuffer struct {
	Addr uint32
	Size uint32
}

// A RawCopy describes a copy of Size bytes from Src to Dst.
type RawCopy struct {
	Src  uint32
	Dst  uint32
	Size uint32
}

// A Command is a decoded remote operation.
type Command interface {
	Opcode() Opcode
}

// AnnounceBounceBuffer registers the bounce buffer with the coprocessor.
type AnnounceBounceBuffer struct {
	BounceBuffer
}

// Opcode returns OpAnnounceBounceBuffer.
func (*AnnounceBounceBuffer) Opcode() Opcode { return OpAnnounceBounceBuffer }

// ScatterGather carries up to the channel capacity of entries. With no
// entries it is the coprocessor's acknowledgment of the previous packet.
type ScatterGather struct {
	Write   bool
	Entries []SGEntry
}

// Opcode returns OpScatterGather.
func (*ScatterGather) Opcode() Opcode { return OpScatterGather }

// RawRead asks the host to copy host memory from Src to Dst.
type RawRead struct {
	RawCopy
}

// Opcode returns OpRawRead.
func (*RawRead) Opcode() Opcode { return OpRawRead }

// RawWrite asks the host to send host memory at Src to coprocessor memory at
// Dst.
type RawWrite struct {
	RawCopy
}

// Opcode returns OpRawWrite.
func (*RawWrite) Opcode() Opcode { return OpRawWrite }

// SGCapacity returns how many scatter-gather entries fit in a payload of the
// given size.
func SGCapacity(payloadMax int) int {
	n := payloadMax / SGEntrySize
	if n > MaxOptionCount {
		n = MaxOptionCount
	}

	return n
}

// A Codec converts commands to and from option words and payloads for a
// channel with a given payload capacity.
type Codec struct {
	sgCapacity int
}

// NewCodec creates a codec for payloads of at most payloadMax bytes.
func NewCodec(payloadMax int) Codec {
	c := Codec{sgCapacity: SGCapacity(payloadMax)}
	if c.sgCapacity == 0 {
		panic(fmt.Sprintf("payload of %d bytes cannot hold an entry", payloadMax))
	}

	return c
}

// SGCapacity returns the number of entries a ScatterGather packet can hold.
func (c Codec) SGCapacity() int {
	return c.sgCapacity
}

// Encode returns the option word and payload for a command.
func (c Codec) Encode(cmd Command) (opt uint32, payload []byte, err error) {
	switch cmd := cmd.(type) {
	case *AnnounceBounceBuffer:
		payload = make([]byte, bounceBufferSize)
		ByteOrder.PutUint32(payload[0:], cmd.Addr)
		ByteOrder.PutUint32(payload[4:], cmd.Size)

		return Option{Op: OpAnnounceBounceBuffer}.Pack(), payload, nil
	case *ScatterGather:
		return c.encodeSG(cmd)
	case *RawRead:
		return Option{Op: OpRawRead}.Pack(), encodeRawCopy(cmd.RawCopy), nil
	case *RawWrite:
		return Option{Op: OpRawWrite}.Pack(), encodeRawCopy(cmd.RawCopy), nil
	default:
		return 0, nil, iop.Errorf(iop.InvalidOperation, "encode",
			"unsupported command %T", cmd)
	}
}

func (c Codec) encodeSG(cmd *ScatterGather) (uint32, []byte, error) {
	if len(cmd.Entries) > c.sgCapacity {
		return 0, nil, iop.Errorf(iop.InvalidOperation, "encode",
			"%d entries exceed packet capacity %d",
			len(cmd.Entries), c.sgCapacity)
	}

	payload := make([]byte, len(cmd.Entries)*SGEntrySize)
	for i, e := range cmd.Entries {
		ByteOrder.PutUint32(payload[i*SGEntrySize:], e.Addr)
		ByteOrder.PutUint32(payload[i*SGEntrySize+4:], e.Size)
	}

	opt := Option{
		Op:    OpScatterGather,
		Count: uint8(len(cmd.Entries)),
		Write: cmd.Write,
	}

	return opt.Pack(), payload, nil
}

func encodeRawCopy(rc RawCopy) []byte {
	payload := make([]byte, rawCopySize)
	ByteOrder.PutUint32(payload[0:], rc.Src)
	ByteOrder.PutUint32(payload[4:], rc.Dst)
	ByteOrder.PutUint32(payload[8:], rc.Size)

	return payload
}

// Decode turns an option word and payload into a command. Unknown opcodes and
// payloads too short for their opcode are protocol violations.
func (c Codec) Decode(opt uint32, payload []byte) (Command, error) {
	o := UnpackOption(opt)

	switch o.Op {
	case OpAnnounceBounceBuffer:
		if err := payloadMustHold(o, payload, bounceBufferSize); err != nil {
			return nil, err
		}

		return &AnnounceBounceBuffer{BounceBuffer{
			Addr: ByteOrder.Uint32(payload[0:]),
			Size: ByteOrder.Uint32(payload[4:]),
		}}, nil
	case OpScatterGather:
		return decodeSG(o, payload)
	case OpRawRead:
		rc, err := decodeRawCopy(o, payload)
		if err != nil {
			return nil, err
		}

		return &RawRead{rc}, nil
	case OpRawWrite:
		rc, err := decodeRawCopy(o, payload)
		if err != nil {
			return nil, err
		}

		return &RawWrite{rc}, nil
	default:
		return nil, iop.Errorf(iop.ProtocolViolation, "decode",
			"unknown opcode %d", uint8(o.Op))
	}
}

func decodeSG(o Option, payload []byte) (*ScatterGather, error) {
	n := int(o.Count)
	if err := payloadMustHold(o, payload, n*SGEntrySize); err != nil {
		return nil, err
	}

	cmd := &ScatterGather{Write: o.Write}
	if n > 0 {
		cmd.Entries = make([]SGEntry, n)
	}

	for i := range cmd.Entries {
		cmd.Entries[i] = SGEntry{
			Addr: ByteOrder.Uint32(payload[i*SGEntrySize:]),
			Size: ByteOrder.Uint32(payload[i*SGEntrySize+4:]),
		}
	}

	return cmd, nil
}

func decodeRawCopy(o Option, payload []byte) (RawCopy, error) {
	if err := payloadMustHold(o, payload, rawCopySize); err != nil {
		return RawCopy{}, err
	}

	return RawCopy{
		Src:  ByteOrder.Uint32(payload[0:]),
		Dst:  ByteOrder.Uint32(payload[4:]),
		Size: ByteOrder.Uint32(payload[8:]),
	}, nil
}

func payloadMustHold(o Option, payload []byte, n int) error {
	if len(payload) < n {
		return iop.Errorf(iop.ProtocolViolation, "decode",
			"%s payload has %d bytes, need %d", o.Op, len(payload), n)
	}

	return nil
}
