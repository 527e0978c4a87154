package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ps2iop/iopata/hooking"
)

var _ = Describe("Api", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *MockNamedHookable
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewMockNamedHookable(mockCtrl)
		domain.EXPECT().NumHooks().Return(1).AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic if ID is not given", func() {
		domain.EXPECT().Name().Return("domain").AnyTimes()
		Expect(func() {
			StartTask("", "123", domain, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if domain is nil", func() {
		Expect(func() {
			StartTask("id", "123", nil, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if domain's name is empty", func() {
		domain.EXPECT().Name().Return("").AnyTimes()
		Expect(func() {
			StartTask("id", "123", domain, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if kind is empty", func() {
		domain.EXPECT().Name().Return("domain").AnyTimes()
		Expect(func() {
			StartTask("id", "123", domain, "", "what", nil)
		}).Should(Panic())
	})

	It("should invoke the hook with the task", func() {
		domain.EXPECT().Name().Return("domain").AnyTimes()
		domain.EXPECT().
			InvokeHook(gomock.Any()).
			Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskStart))
				task := ctx.Item.(Task)
				Expect(task.ID).To(Equal("id"))
				Expect(task.ParentID).To(Equal("123"))
				Expect(task.Where).To(Equal("domain"))
			})

		StartTask("id", "123", domain, "kind", "what", nil)
	})

	It("should not build tasks when nothing is hooked", func() {
		quiet := NewMockNamedHookable(mockCtrl)
		quiet.EXPECT().NumHooks().Return(0).Times(3)

		StartTask("id", "", quiet, "kind", "what", nil)
		AddTaskStep("id", quiet, "step")
		EndTask("id", quiet)
	})
})

var _ = Describe("CollectTrace", func() {
	It("should refuse to attach the same tracer twice", func() {
		domain := hooking.MakeBase("domain")
		tracer := NewTotalTimeTracer(WallClock{}, nil)

		CollectTrace(&domain, tracer)

		Expect(domain.NumHooks()).To(Equal(1))
		Expect(func() { CollectTrace(&domain, tracer) }).To(Panic())
	})

	It("should route task hooks to the tracer", func() {
		domain := hooking.MakeBase("domain")
		tracer := NewTotalTimeTracer(WallClock{}, nil)
		CollectTrace(&domain, tracer)

		StartTask("1", "", &domain, "dma", "read", nil)
		Expect(tracer.InFlight()).To(Equal(1))

		EndTask("1", &domain)
		Expect(tracer.InFlight()).To(Equal(0))
		Expect(tracer.Count()).To(Equal(1))
	})

	It("should ignore hooks that carry no task", func() {
		domain := hooking.MakeBase("domain")
		tracer := NewTotalTimeTracer(WallClock{}, nil)
		CollectTrace(&domain, tracer)

		domain.InvokeHook(hooking.HookCtx{
			Domain: &domain,
			Pos:    HookPosTaskStart,
			Item:   "packet",
		})

		Expect(tracer.InFlight()).To(BeZero())
	})
})
