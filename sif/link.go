package sif

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/hooking"
	"github.com/ps2iop/iopata/mem"
)

// A Link connects two endpoints, one on the host and one on the coprocessor.
// Packets sent on one endpoint queue up on the other until they are delivered.
type Link struct {
	Host *Endpoint
	IOP  *Endpoint
}

// Run delivers packets on both ends until neither has anything queued. It
// returns the number of packets delivered.
func (l *Link) Run() int {
	delivered := 0

	for {
		progress := false

		if l.Host.Deliver() {
			delivered++
			progress = true
		}

		if l.IOP.Deliver() {
			delivered++
			progress = true
		}

		if !progress {
			return delivered
		}
	}
}

// An Endpoint is one side of a Link. It implements Channel.
type Endpoint struct {
	hooking.Base

	lock       sync.Mutex
	peer       *Endpoint
	memory     mem.PhysicalMemory
	incoming   *queue
	handlers   map[CmdID]Handler
	payloadMax int
	log        logrus.FieldLogger

	sent, delivered, dropped uint64
}

// Stats counts the packets an endpoint has seen.
type Stats struct {
	Sent      uint64 `json:"sent"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Stats returns the packet counters of the endpoint.
func (e *Endpoint) Stats() Stats {
	e.lock.Lock()
	defer e.lock.Unlock()

	return Stats{
		Sent:      e.sent,
		Delivered: e.delivered,
		Dropped:   e.dropped,
		Queued:    e.incoming.size(),
	}
}

// PayloadCapacity returns the largest payload a packet can carry.
func (e *Endpoint) PayloadCapacity() int {
	return e.payloadMax
}

// QueueCapacity returns how many packets the endpoint can hold before
// delivery.
func (e *Endpoint) QueueCapacity() int {
	return e.incoming.capacity
}

// Memory returns the memory that data blocks are read from and written to.
func (e *Endpoint) Memory() mem.PhysicalMemory {
	return e.memory
}

// Request registers a handler for a command.
func (e *Endpoint) Request(cmd CmdID, h Handler) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if _, ok := e.handlers[cmd]; ok {
		return fmt.Errorf("%s: %w", cmd, ErrHandlerInUse)
	}

	e.handlers[cmd] = h

	return nil
}

// Release removes the handler for a command.
func (e *Endpoint) Release(cmd CmdID) {
	e.lock.Lock()
	defer e.lock.Unlock()

	delete(e.handlers, cmd)
}

// Send queues a packet on the peer endpoint.
func (e *Endpoint) Send(cmd CmdID, opt uint32, payload []byte) error {
	return e.send(cmd, opt, payload, nil)
}

// SendData queues a packet that carries size bytes from src in local memory.
func (e *Endpoint) SendData(
	cmd CmdID,
	opt uint32,
	payload []byte,
	dst, src, size uint32,
) error {
	block := &DataBlock{Src: src, Dst: dst}

	if size > 0 {
		if e.memory == nil {
			return fmt.Errorf("%s: no local memory for data", e.Name())
		}

		data, err := e.memory.Read(src, size)
		if err != nil {
			return fmt.Errorf("%s: read data: %w", e.Name(), err)
		}

		block.Data = data
	}

	return e.send(cmd, opt, payload, block)
}

func (e *Endpoint) send(
	cmd CmdID,
	opt uint32,
	payload []byte,
	block *DataBlock,
) error {
	if e.peer == nil {
		return fmt.Errorf("%s: %w", e.Name(), ErrNotConnected)
	}

	if len(payload) > e.payloadMax {
		return fmt.Errorf("%s: %d bytes: %w",
			e.Name(), len(payload), ErrPayloadTooLarge)
	}

	pkt := &Packet{
		ID:      GetIDGenerator().Generate(),
		Cmd:     cmd,
		Opt:     opt,
		Payload: append([]byte(nil), payload...),
		Data:    block,
	}

	if err := e.peer.enqueue(pkt); err != nil {
		return err
	}

	e.lock.Lock()
	e.sent++
	e.lock.Unlock()

	e.InvokeHook(hooking.HookCtx{
		Domain: e,
		Pos:    HookPosPacketSend,
		Item:   pkt,
	})

	e.log.WithFields(logrus.Fields{
		"id":  pkt.ID,
		"cmd": uint32(cmd),
		"opt": fmt.Sprintf("0x%08x", opt),
		"len": len(payload),
	}).Debug("packet sent")

	return nil
}

func (e *Endpoint) enqueue(pkt *Packet) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.incoming.canPush() {
		return fmt.Errorf("%s: %w", e.Name(), ErrQueueFull)
	}

	e.incoming.push(pkt)

	return nil
}

// Pending returns the number of packets waiting to be delivered.
func (e *Endpoint) Pending() int {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.incoming.size()
}

// Deliver takes one queued packet, stores its data block in local memory and
// invokes the handler registered for its command. It reports whether a packet
// was taken. Packets without a handler are dropped.
func (e *Endpoint) Deliver() bool {
	e.lock.Lock()

	pkt := e.incoming.pop()
	if pkt == nil {
		e.lock.Unlock()
		return false
	}

	h := e.handlers[pkt.Cmd]
	e.lock.Unlock()

	if pkt.Data != nil && len(pkt.Data.Data) > 0 {
		if err := e.storeData(pkt.Data); err != nil {
			e.drop(pkt, err.Error())
			return true
		}
	}

	if h == nil {
		e.drop(pkt, "no handler")
		return true
	}

	e.lock.Lock()
	e.delivered++
	e.lock.Unlock()

	e.InvokeHook(hooking.HookCtx{
		Domain: e,
		Pos:    HookPosPacketDeliver,
		Item:   pkt,
	})

	h.HandleSIFCmd(pkt)

	return true
}

func (e *Endpoint) storeData(block *DataBlock) error {
	if e.memory == nil {
		return fmt.Errorf("no local memory for data")
	}

	return e.memory.Write(block.Dst, block.Data)
}

func (e *Endpoint) drop(pkt *Packet, reason string) {
	e.lock.Lock()
	e.dropped++
	e.lock.Unlock()

	e.InvokeHook(hooking.HookCtx{
		Domain: e,
		Pos:    HookPosPacketDrop,
		Item:   pkt,
		Detail: reason,
	})

	e.log.WithFields(logrus.Fields{
		"id":     pkt.ID,
		"cmd":    uint32(pkt.Cmd),
		"reason": reason,
	}).Warn("packet dropped")
}

// queue is a bounded fifo of packets.
type queue struct {
	capacity int
	elements []*Packet
}

func newQueue(capacity int) *queue {
	return &queue{capacity: capacity}
}

func (q *queue) canPush() bool {
	return len(q.elements) < q.capacity
}

func (q *queue) push(p *Packet) {
	q.elements = append(q.elements, p)
}

func (q *queue) pop() *Packet {
	if len(q.elements) == 0 {
		return nil
	}

	p := q.elements[0]
	q.elements[0] = nil
	q.elements = q.elements[1:]

	return p
}

func (q *queue) size() int {
	return len(q.elements)
}
