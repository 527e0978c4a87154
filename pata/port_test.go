package pata

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/sif"
)

const (
	bbRegionBase = 0x00100000
	bbRegionSize = 0x00010000
)

var codec = ata.NewCodec(sif.PacketDataMax)

func packet(cmd ata.Command) *sif.Packet {
	opt, payload, err := codec.Encode(cmd)
	Expect(err).NotTo(HaveOccurred())

	return &sif.Packet{Cmd: sif.CmdATA, Opt: opt, Payload: payload}
}

func ack() *sif.Packet {
	return packet(&ata.ScatterGather{})
}

func dmaRead(entries ...ata.SGEntry) *QueuedCmd {
	return &QueuedCmd{
		TF: TaskFile{Command: 0xc8, Protocol: ProtocolDMA},
		SG: entries,
	}
}

var _ = Describe("Port", func() {
	var (
		mockCtrl  *gomock.Controller
		channel   *MockChannel
		host      *MockHost
		memory    *mem.Storage
		allocator *mem.Allocator
		regs      *iop.RegisterFile
		builder   Builder
		port      *Port
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		channel = NewMockChannel(mockCtrl)
		host = NewMockHost(mockCtrl)
		memory = mem.NewStorage(uint64(4 * mem.MB))
		allocator = mem.NewAllocator(bbRegionBase, bbRegionSize)
		regs = iop.NewRegisterFile()

		channel.EXPECT().PayloadCapacity().Return(sif.PacketDataMax).AnyTimes()

		builder = MakeBuilder().
			WithChannel(channel).
			WithHost(host).
			WithMemory(memory).
			WithAllocator(allocator).
			WithRegisters(regs)
		port = builder.Build("Port")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectInit := func() {
		bb := &ata.AnnounceBounceBuffer{BounceBuffer: ata.BounceBuffer{
			Addr: bbRegionBase,
			Size: DefaultBounceBufferSize,
		}}
		opt, payload, _ := codec.Encode(bb)

		gomock.InOrder(
			channel.EXPECT().Request(sif.CmdATA, port).Return(nil),
			channel.EXPECT().Send(sif.CmdATA, opt, payload).Return(nil),
		)
	}

	Context("initialization", func() {
		It("should announce the bounce buffer once", func() {
			expectInit()

			Expect(port.State()).To(Equal(StateIdle))
			Expect(port.Init()).To(Succeed())

			bb, announced := port.BounceBuffer()
			Expect(announced).To(BeTrue())
			Expect(bb).To(Equal(ata.BounceBuffer{
				Addr: bbRegionBase,
				Size: DefaultBounceBufferSize,
			}))
			Expect(port.State()).To(Equal(StateReady))

			err := port.Init()
			Expect(errors.Is(err, iop.ErrInvalidOperation)).To(BeTrue())
		})

		It("should undo everything if the announcement fails", func() {
			gomock.InOrder(
				channel.EXPECT().Request(sif.CmdATA, port).Return(nil),
				channel.EXPECT().
					Send(sif.CmdATA, gomock.Any(), gomock.Any()).
					Return(sif.ErrQueueFull),
				channel.EXPECT().Release(sif.CmdATA),
			)

			err := port.Init()

			Expect(iop.KindOf(err)).To(Equal(iop.TransportFailure))
			Expect(port.State()).To(Equal(StateIdle))
			Expect(allocator.Available()).To(Equal(uint32(bbRegionSize)))
			_, announced := port.BounceBuffer()
			Expect(announced).To(BeFalse())
		})

		It("should fail if the handler cannot be registered", func() {
			channel.EXPECT().
				Request(sif.CmdATA, port).
				Return(sif.ErrHandlerInUse)

			err := port.Init()

			Expect(errors.Is(err, sif.ErrHandlerInUse)).To(BeTrue())
			Expect(allocator.Available()).To(Equal(uint32(bbRegionSize)))
		})

		It("should release the handler and the buffer on close", func() {
			expectInit()
			Expect(port.Init()).To(Succeed())

			channel.EXPECT().Release(sif.CmdATA)
			port.Close()

			Expect(port.State()).To(Equal(StateIdle))
			Expect(allocator.Available()).To(Equal(uint32(bbRegionSize)))

			port.Close()
		})
	})

	It("should refuse commands before initialization", func() {
		err := port.Issue(dmaRead(ata.SGEntry{Addr: 0, Size: 512}))

		Expect(errors.Is(err, iop.ErrInvalidOperation)).To(BeTrue())
	})

	Context("when ready", func() {
		var (
			sent       []*sif.Packet
			sendErr    error
			maxEntries int
		)

		BeforeEach(func() {
			sent = nil
			sendErr = nil
			maxEntries = 0
		})

		JustBeforeEach(func() {
			port = builder.WithMaxEntriesPerPacket(maxEntries).Build("Port")
			expectInit()
			Expect(port.Init()).To(Succeed())

			channel.EXPECT().
				Send(sif.CmdATA, gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ sif.CmdID, opt uint32, payload []byte) error {
					if sendErr != nil {
						return sendErr
					}

					sent = append(sent, &sif.Packet{Opt: opt, Payload: payload})
					return nil
				}).
				AnyTimes()
		})

		It("should load the task file before the first packet", func() {
			qc := dmaRead(ata.SGEntry{Addr: 0x1000, Size: 512})
			gomock.InOrder(
				host.EXPECT().LoadTaskFile(&qc.TF).Do(func(*TaskFile) {
					Expect(sent).To(BeEmpty())
				}),
				host.EXPECT().ExecCommand(&qc.TF),
			)

			Expect(port.Issue(qc)).To(Succeed())

			Expect(sent).To(HaveLen(1))
			Expect(port.State()).To(Equal(StateTransferInFlight))
			Expect(qc.FinalPhase()).To(BeTrue())
		})

		It("should refuse DMA writes before touching the task file", func() {
			qc := dmaRead(ata.SGEntry{Addr: 0x1000, Size: 512})
			qc.TF.Write = true

			err := port.Issue(qc)

			Expect(errors.Is(err, iop.ErrInvalidOperation)).To(BeTrue())
			Expect(sent).To(BeEmpty())
			Expect(port.State()).To(Equal(StateReady))
		})

		It("should refuse ATAPI DMA", func() {
			qc := dmaRead(ata.SGEntry{Addr: 0x1000, Size: 512})
			qc.TF.Protocol = ProtocolATAPIDMA

			err := port.Issue(qc)

			Expect(iop.KindOf(err)).To(Equal(iop.InvalidOperation))
			Expect(sent).To(BeEmpty())
		})

		It("should hand PIO commands to the host", func() {
			qc := &QueuedCmd{TF: TaskFile{Command: 0x20, Protocol: ProtocolPIO}}
			host.EXPECT().IssuePIO(qc).Return(nil)

			Expect(port.Issue(qc)).To(Succeed())
			Expect(port.State()).To(Equal(StateReady))
		})

		It("should report an unaligned first entry without sending", func() {
			host.EXPECT().LoadTaskFile(gomock.Any())
			host.EXPECT().ExecCommand(gomock.Any())

			err := port.Issue(dmaRead(ata.SGEntry{Addr: 0x3000, Size: 7}))

			Expect(errors.Is(err, iop.ErrAlignmentViolation)).To(BeTrue())
			Expect(sent).To(BeEmpty())
			Expect(port.State()).To(Equal(StateReady))
		})

		It("should ignore acknowledgments for polled commands", func() {
			host.EXPECT().LoadTaskFile(gomock.Any())
			host.EXPECT().ExecCommand(gomock.Any())
			qc := dmaRead(ata.SGEntry{Addr: 0x1000, Size: 8})
			qc.TF.Polling = true
			Expect(port.Issue(qc)).To(Succeed())

			port.HandleSIFCmd(ack())

			Expect(port.State()).To(Equal(StateTransferInFlight))
			Expect(port.Stats().StaleAcks).To(Equal(uint64(1)))
		})

		It("should ignore acknowledgments with nothing in flight", func() {
			port.HandleSIFCmd(ack())

			Expect(port.Stats().StaleAcks).To(Equal(uint64(1)))
		})

		It("should copy host memory on raw reads", func() {
			Expect(memory.Write(0x4000, []byte{1, 2, 3, 4, 5})).To(Succeed())

			port.HandleSIFCmd(packet(&ata.RawRead{RawCopy: ata.RawCopy{
				Src: 0x4000, Dst: 0x8001, Size: 5,
			}}))

			data, err := memory.Read(0x8001, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{1, 2, 3, 4, 5}))
		})

		It("should push host memory on raw writes", func() {
			channel.EXPECT().SendData(
				sif.CmdATA,
				ata.Option{Op: ata.OpRawWrite}.Pack(),
				nil,
				uint32(0x9000), uint32(0x4000), uint32(12),
			).Return(nil)

			port.HandleSIFCmd(packet(&ata.RawWrite{RawCopy: ata.RawCopy{
				Src: 0x4000, Dst: 0x9000, Size: 12,
			}}))

			Expect(port.Stats().RawWrites).To(Equal(uint64(1)))
		})

		It("should drop unknown operations", func() {
			port.HandleSIFCmd(&sif.Packet{Cmd: sif.CmdATA, Opt: 0x6})
			port.HandleSIFCmd(packet(&ata.AnnounceBounceBuffer{}))

			Expect(port.Stats().ProtocolViolations).To(Equal(uint64(2)))
			Expect(sent).To(BeEmpty())
		})

		Context("with one entry per packet", func() {
			var qc *QueuedCmd

			BeforeEach(func() {
				maxEntries = 1
				qc = dmaRead(
					ata.SGEntry{Addr: 0x1000, Size: 16},
					ata.SGEntry{Addr: 0x2000, Size: 8},
				)
			})

			JustBeforeEach(func() {
				host.EXPECT().LoadTaskFile(gomock.Any()).AnyTimes()
				host.EXPECT().ExecCommand(gomock.Any()).AnyTimes()

				Expect(port.Issue(qc)).To(Succeed())
				Expect(sent).To(HaveLen(1))
			})

			It("should refuse a second command", func() {
				err := port.Issue(dmaRead(ata.SGEntry{Addr: 0, Size: 8}))

				Expect(iop.KindOf(err)).To(Equal(iop.InvalidOperation))
			})

			It("should complete after the last acknowledgment", func() {
				port.HandleSIFCmd(ack())
				Expect(sent).To(HaveLen(2))

				cmd, err := codec.Decode(sent[1].Opt, sent[1].Payload)
				Expect(err).NotTo(HaveOccurred())
				Expect(cmd.(*ata.ScatterGather).Entries).To(
					Equal([]ata.SGEntry{{Addr: 0x2000, Size: 8}}))

				host.EXPECT().OnCommandComplete(qc).Do(func(*QueuedCmd) {
					Expect(port.State()).To(Equal(StateReady))
				})
				port.HandleSIFCmd(ack())

				port.HandleSIFCmd(ack())
				Expect(port.Stats().StaleAcks).To(Equal(uint64(1)))
				Expect(port.Stats().Completed).To(Equal(uint64(1)))
			})

			It("should ignore acknowledgments after an abort", func() {
				port.Abort(qc)

				port.HandleSIFCmd(ack())

				Expect(sent).To(HaveLen(1))
				Expect(port.State()).To(Equal(StateReady))
			})

			Context("and a misaligned second entry", func() {
				BeforeEach(func() {
					qc.SG[1].Size = 9
				})

				It("should report the error to the host", func() {
					host.EXPECT().OnCommandError(qc, iop.AlignmentViolation)

					port.HandleSIFCmd(ack())

					Expect(sent).To(HaveLen(1))
					Expect(port.State()).To(Equal(StateReady))
					Expect(port.Stats().Failed).To(Equal(uint64(1)))
				})
			})

			It("should report a failed send of a later packet to the host", func() {
				sendErr = sif.ErrQueueFull
				host.EXPECT().OnCommandError(qc, iop.TransportFailure).
					Do(func(*QueuedCmd, iop.ErrorKind) {
						Expect(port.State()).To(Equal(StateReady))
					})

				port.HandleSIFCmd(ack())

				Expect(sent).To(HaveLen(1))
				Expect(qc.FinalPhase()).To(BeTrue())
				Expect(port.State()).To(Equal(StateReady))
				Expect(port.Stats().Failed).To(Equal(uint64(1)))

				port.HandleSIFCmd(ack())
				Expect(port.Stats().StaleAcks).To(Equal(uint64(1)))
			})
		})
	})

	It("should not touch memory for zero-size raw reads", func() {
		untouched := NewMockPhysicalMemory(mockCtrl)
		port = builder.WithMemory(untouched).Build("Port")

		port.HandleSIFCmd(packet(&ata.RawRead{RawCopy: ata.RawCopy{
			Src: 0x4000, Dst: 0x8000, Size: 0,
		}}))

		Expect(port.Stats().RawReads).To(Equal(uint64(1)))
	})
})
