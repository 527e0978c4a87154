package tracing

// A Tracer receives the tasks of the components it is attached to: DMA
// transfers and their packets, coprocessor scatter-gather service and
// expansion power sequences. StepTask is called once per packet or register
// phase between StartTask and EndTask of the same task ID.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}
