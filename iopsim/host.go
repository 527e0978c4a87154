package iopsim

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/iop"
	"github.com/ps2iop/iopata/pata"
)

// An Outcome is how a command ended.
type Outcome struct {
	Tag    int
	Failed bool
	Kind   iop.ErrorKind
	Err    error
}

// Host is a minimal adaptation layer that drives the simulated drive's
// registers and records how commands end.
type Host struct {
	lock     sync.Mutex
	drive    *Drive
	execErr  error
	outcomes map[int]Outcome
	log      logrus.FieldLogger
}

// NewHost creates an adaptation layer for a drive.
func NewHost(drive *Drive, logger logrus.FieldLogger) *Host {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Host{
		drive:    drive,
		outcomes: make(map[int]Outcome),
		log:      logger.WithField("component", "host"),
	}
}

// LoadTaskFile writes the task file into the drive's registers.
func (h *Host) LoadTaskFile(tf *pata.TaskFile) {
	h.drive.LoadTaskFile(tf)
}

// ExecCommand writes the command register. A command the drive refuses
// fails when the transfer ends.
func (h *Host) ExecCommand(_ *pata.TaskFile) {
	err := h.drive.Exec()

	h.lock.Lock()
	h.execErr = err
	h.lock.Unlock()

	if err != nil {
		h.log.WithError(err).Warn("drive refused the command")
	}
}

// IssuePIO refuses every command, as the simulated drive has no PIO path.
func (h *Host) IssuePIO(qc *pata.QueuedCmd) error {
	return iop.Errorf(iop.InvalidOperation, "issue-pio",
		"%s command 0x%02x is not simulated", qc.TF.Protocol, qc.TF.Command)
}

// OnCommandComplete records the completion.
func (h *Host) OnCommandComplete(qc *pata.QueuedCmd) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.execErr != nil {
		h.outcomes[qc.Tag] = Outcome{
			Tag:    qc.Tag,
			Failed: true,
			Kind:   iop.InvalidOperation,
			Err:    iop.NewError(iop.InvalidOperation, "exec", h.execErr),
		}

		return
	}

	h.outcomes[qc.Tag] = Outcome{Tag: qc.Tag}
}

// OnCommandError records the failure.
func (h *Host) OnCommandError(qc *pata.QueuedCmd, kind iop.ErrorKind) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.outcomes[qc.Tag] = Outcome{
		Tag:    qc.Tag,
		Failed: true,
		Kind:   kind,
		Err:    iop.Errorf(kind, "command", "tag %d failed", qc.Tag),
	}
}

// Outcome returns and forgets how the command with the tag ended.
func (h *Host) Outcome(tag int) (Outcome, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	o, ok := h.outcomes[tag]
	delete(h.outcomes, tag)

	return o, ok
}
