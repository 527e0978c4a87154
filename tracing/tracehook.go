package tracing

import (
	"fmt"
	"reflect"

	"github.com/ps2iop/iopata/hooking"
)

// CollectTrace attaches tracer to a component such as a DMA engine, a
// coprocessor or a power sequencer. Attaching the same tracer twice panics.
func CollectTrace(component NamedHookable, tracer Tracer) {
	for _, h := range component.Hooks() {
		if th, ok := h.(*taskHook); ok && th.tracer == tracer {
			panic(fmt.Sprintf("%s is already traced by %s",
				component.Name(), reflect.TypeOf(tracer)))
		}
	}

	component.AcceptHook(&taskHook{tracer: tracer})
}

// taskHook forwards task hook positions to a tracer and ignores the others,
// such as packet sends and drops on a link.
type taskHook struct {
	tracer Tracer
}

func (h *taskHook) Func(ctx hooking.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.tracer.StartTask(task)
	case HookPosTaskStep:
		h.tracer.StepTask(task)
	case HookPosTaskEnd:
		h.tracer.EndTask(task)
	}
}
