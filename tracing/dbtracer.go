package tracing

import (
	"sync"
)

// A TraceWriter stores completed tasks.
type TraceWriter interface {
	Write(task Task)
	Flush() error
}

// DBTracer is a tracer that stores completed tasks through a TraceWriter.
// Tasks that never end are not written.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller TimeTeller
	backend    TraceWriter

	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(timeTeller TimeTeller, backend TraceWriter) *DBTracer {
	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      backend,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	startingTaskMustBeValid(task)

	task.StartTime = t.timeTeller.CurrentTime()

	t.mu.Lock()
	t.tracingTasks[task.ID] = task
	t.mu.Unlock()
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Where == "" {
		panic("task location must be set")
	}
}

// StepTask records the steps carried by the task.
func (t *DBTracer) StepTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	for _, step := range task.Steps {
		step.Time = now
		originalTask.Steps = append(originalTask.Steps, step)
	}

	t.tracingTasks[task.ID] = originalTask
}

// EndTask marks the end of a task and hands it to the backend.
func (t *DBTracer) EndTask(task Task) {
	endTime := t.timeTeller.CurrentTime()

	t.mu.Lock()
	originalTask, ok := t.tracingTasks[task.ID]
	if ok {
		delete(t.tracingTasks, task.ID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	originalTask.EndTime = endTime
	t.backend.Write(originalTask)
}

// Terminate flushes the backend.
func (t *DBTracer) Terminate() error {
	return t.backend.Flush()
}
