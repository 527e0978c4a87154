package tracing

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("DBTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		backend    *MockTraceWriter
		tracer     *DBTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		backend = NewMockTraceWriter(mockCtrl)
		tracer = NewDBTracer(timeTeller, backend)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic if the task is incomplete", func() {
		Expect(func() {
			tracer.StartTask(Task{ID: "1", Kind: "dma", What: "read"})
		}).To(Panic())
	})

	It("should write the task with its steps when it ends", func() {
		start := time.Unix(10, 0)
		step := start.Add(time.Second)
		end := start.Add(2 * time.Second)

		timeTeller.EXPECT().CurrentTime().Return(start)
		tracer.StartTask(Task{ID: "1", Kind: "dma", What: "read", Where: "Engine"})

		timeTeller.EXPECT().CurrentTime().Return(step)
		tracer.StepTask(Task{ID: "1", Steps: []TaskStep{{What: "packet"}}})

		timeTeller.EXPECT().CurrentTime().Return(end)
		backend.EXPECT().Write(gomock.Any()).Do(func(task Task) {
			Expect(task.StartTime).To(Equal(start))
			Expect(task.EndTime).To(Equal(end))
			Expect(task.Steps).To(Equal([]TaskStep{{Time: step, What: "packet"}}))
		})
		tracer.EndTask(Task{ID: "1"})
	})

	It("should not write tasks it never saw start", func() {
		timeTeller.EXPECT().CurrentTime().Return(time.Unix(1, 0))

		tracer.EndTask(Task{ID: "unknown"})
	})

	It("should flush the backend on terminate", func() {
		backend.EXPECT().Flush().Return(nil)

		Expect(tracer.Terminate()).To(Succeed())
	})
})
