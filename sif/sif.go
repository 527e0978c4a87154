// Package sif defines the remote command channel between the host and the I/O
// coprocessor, and provides an in-process link that implements it.
//
// A command packet carries a command number, a 32-bit option word and a small
// payload. A packet may also carry a block of data that the channel copies from
// the sender's memory into the receiver's memory before the receiver's handler
// runs.
package sif

import (
	"errors"
	"fmt"

	"github.com/ps2iop/iopata/hooking"
)

// Packet geometry.
const (
	PacketSize       = 128
	PacketHeaderSize = 16
	PacketDataMax    = PacketSize - PacketHeaderSize
)

// CmdID selects the handler a packet is delivered to.
type CmdID uint32

// Command numbers used by the bridge.
const (
	CmdATA CmdID = 0x20
)

func (c CmdID) String() string {
	return fmt.Sprintf("cmd 0x%x", uint32(c))
}

// Channel errors.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds packet capacity")
	ErrQueueFull       = errors.New("receiver queue is full")
	ErrNotConnected    = errors.New("endpoint is not connected")
	ErrHandlerInUse    = errors.New("command already has a handler")
)

// Hook positions invoked by endpoints. The hook item is the *Packet.
var (
	HookPosPacketSend    = &hooking.HookPos{Name: "SIF Packet Send"}
	HookPosPacketDeliver = &hooking.HookPos{Name: "SIF Packet Deliver"}
	HookPosPacketDrop    = &hooking.HookPos{Name: "SIF Packet Drop"}
)

// A DataBlock is data that travels with a packet, to be stored at Dst in the
// receiver's memory.
type DataBlock struct {
	Src  uint32
	Dst  uint32
	Data []byte
}

// A Packet is one command on the channel.
type Packet struct {
	ID      string
	Cmd     CmdID
	Opt     uint32
	Payload []byte
	Data    *DataBlock
}

// A Handler is invoked when a packet for its command arrives. Handlers run in
// the delivery context and must not block.
type Handler interface {
	HandleSIFCmd(pkt *Packet)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(pkt *Packet)

// HandleSIFCmd calls f.
func (f HandlerFunc) HandleSIFCmd(pkt *Packet) {
	f(pkt)
}

// Channel is one end of the remote command channel.
type Channel interface {
	// Send queues a command for the other side.
	Send(cmd CmdID, opt uint32, payload []byte) error

	// SendData queues a command together with size bytes read from src in the
	// local memory, to be stored at dst in the remote memory.
	SendData(cmd CmdID, opt uint32, payload []byte, dst, src, size uint32) error

	// Request registers the handler for inbound packets of cmd.
	Request(cmd CmdID, h Handler) error

	// Release removes the handler of cmd.
	Release(cmd CmdID)

	// PayloadCapacity returns the largest payload a packet can carry.
	PayloadCapacity() int
}
