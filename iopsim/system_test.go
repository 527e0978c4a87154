package iopsim

import (
	"bytes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ps2iop/iopata/dev9"
	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/pata"
	"github.com/ps2iop/iopata/tracing"
)

func makeImage(sectors int) []byte {
	image := make([]byte, sectors*SectorSize)
	for i := range image {
		image[i] = byte(i*7 + i/SectorSize)
	}

	return image
}

var _ = Describe("System", func() {
	var (
		image      []byte
		maxEntries int
		waits      int
		sys        *System
	)

	BeforeEach(func() {
		image = makeImage(64)
		maxEntries = 0
		waits = 0
	})

	JustBeforeEach(func() {
		sys = MakeBuilder().
			WithImage(bytes.NewReader(image), int64(len(image))).
			WithMaxEntriesPerPacket(maxEntries).
			WithSettle(0).
			WithSleeper(func(time.Duration) { waits++ }).
			Build("Sys")

		Expect(sys.Start()).To(Succeed())
	})

	It("should bring everything up", func() {
		Expect(sys.DEV9.State()).To(Equal(dev9.StatePoweredOn))
		Expect(waits).To(Equal(2))
		Expect(sys.Port.State()).To(Equal(pata.StateReady))

		hostBB, _ := sys.Port.BounceBuffer()
		iopBB, ok := sys.Coprocessor.BounceBuffer()
		Expect(ok).To(BeTrue())
		Expect(iopBB).To(Equal(hostBB))
	})

	It("should read sectors straight into host memory", func() {
		data, err := sys.Read(2, 3)

		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(image[2*SectorSize : 5*SectorSize]))
		Expect(sys.Coprocessor.Stats().DirectBytes).To(Equal(uint64(3 * SectorSize)))
		Expect(sys.Coprocessor.Stats().BouncedBytes).To(BeZero())
		Expect(sys.Port.Stats().Completed).To(Equal(uint64(1)))
		Expect(sys.Port.State()).To(Equal(pata.StateReady))
	})

	It("should read a whole command of 256 sectors", func() {
		image = makeImage(300)
		sys = MakeBuilder().
			WithImage(bytes.NewReader(image), int64(len(image))).
			WithSettle(0).
			WithSleeper(func(time.Duration) {}).
			Build("Big")
		Expect(sys.Start()).To(Succeed())

		data, err := sys.Read(10, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(image[10*SectorSize : 266*SectorSize]))
		Expect(sys.Coprocessor.Stats().Packets).To(Equal(uint64(3)))
	})

	Context("with one entry per packet", func() {
		BeforeEach(func() {
			maxEntries = 1
		})

		It("should send a packet per page", func() {
			data, err := sys.Read(0, 24)

			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(image[:24*SectorSize]))
			Expect(sys.Coprocessor.Stats().Packets).To(Equal(uint64(3)))
			Expect(sys.Port.Stats().Acknowledgments).To(Equal(uint64(3)))
		})
	})

	It("should route unaligned destinations through the bounce buffer", func() {
		dst := BufferRegionBase + 8

		Expect(sys.ReadSectors(4, 4, dst)).To(Succeed())

		data, err := sys.HostMemory.Read(dst, 4*SectorSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(image[4*SectorSize : 8*SectorSize]))

		stats := sys.Coprocessor.Stats()
		Expect(stats.BouncedBytes).To(Equal(uint64(4 * SectorSize)))
		Expect(stats.RawReadRequests).To(Equal(uint64(2)))
		Expect(sys.Port.Stats().RawReads).To(Equal(uint64(2)))
	})

	It("should bounce every entry the DMA controller cannot reach", func() {
		dst := BufferRegionBase + PageSize - 8

		Expect(sys.ReadSectors(0, 1, dst)).To(Succeed())

		data, _ := sys.HostMemory.Read(dst, SectorSize)
		Expect(data).To(Equal(image[:SectorSize]))

		stats := sys.Coprocessor.Stats()
		Expect(stats.Entries).To(Equal(uint64(2)))
		Expect(stats.BouncedBytes).To(Equal(uint64(SectorSize)))
		Expect(stats.DirectBytes).To(BeZero())
		Expect(stats.RawReadRequests).To(Equal(uint64(2)))
	})

	It("should not touch the bytes around an unaligned read", func() {
		dst := BufferRegionBase + 8
		Expect(sys.HostMemory.Write(dst-8, bytes.Repeat([]byte{0xee}, 8))).
			To(Succeed())
		Expect(sys.HostMemory.Write(dst+SectorSize, bytes.Repeat([]byte{0xdd}, 8))).
			To(Succeed())

		Expect(sys.ReadSectors(0, 1, dst)).To(Succeed())

		before, _ := sys.HostMemory.Read(dst-8, 8)
		after, _ := sys.HostMemory.Read(dst+SectorSize, 8)
		Expect(before).To(Equal(bytes.Repeat([]byte{0xee}, 8)))
		Expect(after).To(Equal(bytes.Repeat([]byte{0xdd}, 8)))
	})

	It("should fail a read beyond the media", func() {
		_, err := sys.Read(63, 2)

		Expect(err).To(MatchError(iop.ErrInvalidOperation))
		Expect(sys.Coprocessor.Stats().Errors).To(Equal(uint64(1)))
		Expect(sys.Port.State()).To(Equal(pata.StateReady))
	})

	It("should refuse a page split that leaves a partial DMA unit", func() {
		err := sys.ReadSectors(0, 1, BufferRegionBase+PageSize-4)

		Expect(err).To(MatchError(iop.ErrAlignmentViolation))
		Expect(sys.Coprocessor.Stats().Packets).To(BeZero())
	})

	It("should fetch host memory into coprocessor memory", func() {
		payload := []byte("fetched by the iop")
		Expect(sys.HostMemory.Write(0x00300000, payload)).To(Succeed())

		Expect(sys.Coprocessor.Fetch(0x00300000, 0x00020000,
			uint32(len(payload)))).To(Succeed())
		sys.Link.Run()

		data, err := sys.IOPMemory.Read(0x00020000, uint32(len(payload)))
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(payload))
		Expect(sys.Coprocessor.Stats().FetchedBytes).
			To(Equal(uint64(len(payload))))
		Expect(sys.Port.Stats().RawWrites).To(Equal(uint64(1)))
	})

	It("should trace the packets it serves", func() {
		tracer := tracing.NewTotalTimeTracer(tracing.WallClock{},
			tracing.KindIs("iop"))
		tracing.CollectTrace(sys.Coprocessor, tracer)

		_, err := sys.Read(0, 16)

		Expect(err).NotTo(HaveOccurred())
		Expect(tracer.Count()).To(Equal(1))
		Expect(tracer.InFlight()).To(BeZero())
	})

	It("should shut everything down", func() {
		Expect(sys.Stop()).To(Succeed())

		Expect(sys.Port.State()).To(Equal(pata.StateIdle))
		Expect(sys.DEV9.State()).To(Equal(dev9.StatePoweredOff))
		Expect(waits).To(Equal(4))
	})
})
