package pata

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/mem"
	"github.com/ps2iop/iopata/sif"
)

var _ = Describe("Transfer modes", func() {
	var (
		mockCtrl *gomock.Controller
		regs     *iop.RegisterFile
		port     *Port
	)

	const ifCtrl = iop.SPDBase + SPDRegIfCtrl

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		channel := NewMockChannel(mockCtrl)
		channel.EXPECT().PayloadCapacity().Return(sif.PacketDataMax).AnyTimes()
		regs = iop.NewRegisterFile()

		port = MakeBuilder().
			WithChannel(channel).
			WithHost(NewMockHost(mockCtrl)).
			WithMemory(mem.NewStorage(uint64(mem.MB))).
			WithAllocator(mem.NewAllocator(0, 64*mem.KB)).
			WithRegisters(regs).
			Build("Port")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	DescribeTable("multiword DMA",
		func(m ata.XferMode, code uint16) {
			regs.Set(ifCtrl, 0x0003)

			Expect(port.SetDMAMode(m)).To(Succeed())

			Expect(regs.Writes()).To(Equal([]iop.Access{
				{Op: iop.OpWriteW, Addr: iop.SPDBase + SPDRegMWDMAMode, Value: uint32(code)},
				{Op: iop.OpWriteW, Addr: ifCtrl, Value: 0x004a},
			}))
			Expect(port.Stats().DMAMode).To(Equal(m.String()))
		},
		Entry("MWDMA0", ata.XferMWDMA0, uint16(0xff)),
		Entry("MWDMA1", ata.XferMWDMA1, uint16(0x45)),
		Entry("MWDMA2", ata.XferMWDMA2, uint16(0x24)),
	)

	DescribeTable("Ultra DMA",
		func(m ata.XferMode, code uint16) {
			regs.Set(ifCtrl, 0x0100)

			Expect(port.SetDMAMode(m)).To(Succeed())

			Expect(regs.Writes()).To(Equal([]iop.Access{
				{Op: iop.OpWriteW, Addr: iop.SPDBase + SPDRegUDMAMode, Value: uint32(code)},
				{Op: iop.OpWriteW, Addr: ifCtrl, Value: 0x0149},
			}))
		},
		Entry("UDMA0", ata.XferUDMA0, uint16(0xa7)),
		Entry("UDMA1", ata.XferUDMA1, uint16(0x85)),
		Entry("UDMA2", ata.XferUDMA2, uint16(0x63)),
		Entry("UDMA3", ata.XferUDMA3, uint16(0x62)),
		Entry("UDMA4", ata.XferUDMA4, uint16(0x61)),
	)

	DescribeTable("PIO",
		func(m ata.XferMode, code uint16) {
			Expect(port.SetPIOMode(m)).To(Succeed())

			Expect(regs.Writes()).To(Equal([]iop.Access{
				{Op: iop.OpWriteW, Addr: iop.SPDBase + SPDRegPIOMode, Value: uint32(code)},
			}))
			Expect(port.Stats().PIOMode).To(Equal(m.String()))
		},
		Entry("PIO0", ata.XferPIO0, uint16(0x92)),
		Entry("PIO1", ata.XferPIO1, uint16(0x72)),
		Entry("PIO2", ata.XferPIO2, uint16(0x32)),
		Entry("PIO3", ata.XferPIO3, uint16(0x24)),
		Entry("PIO4", ata.XferPIO4, uint16(0x23)),
	)

	It("should keep the previous mode when the new one is invalid", func() {
		Expect(port.SetDMAMode(ata.XferUDMA2)).To(Succeed())
		regs.ResetLog()

		for _, m := range []ata.XferMode{ata.XferUDMA5, ata.XferPIO2, ata.XferMode(0x23), ata.XferMode(0x99)} {
			err := port.SetDMAMode(m)
			Expect(iop.KindOf(err)).To(Equal(iop.InvalidOperation))
		}

		err := port.SetPIOMode(ata.XferMWDMA0)
		Expect(iop.KindOf(err)).To(Equal(iop.InvalidOperation))

		Expect(regs.Writes()).To(BeEmpty())
		Expect(port.Stats().DMAMode).To(Equal("UDMA2"))
	})

	It("should accept UDMA5 when the mask allows it", func() {
		code, ok := DMATiming(ata.XferUDMA5)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(uint16(0x60)))

		port.udmaMask = MaskUDMA5

		Expect(port.SetDMAMode(ata.XferUDMA5)).To(Succeed())
	})

	It("should report register failures", func() {
		regs.FailOn(iop.OpWriteW, iop.SPDBase+SPDRegPIOMode, nil)

		err := port.SetPIOMode(ata.XferPIO4)

		Expect(iop.KindOf(err)).To(Equal(iop.TransportFailure))
		Expect(port.Stats().PIOMode).To(BeEmpty())
	})
})
