package cmd

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ps2iop/iopata/iopsim"
	"github.com/ps2iop/iopata/monitoring"
	"github.com/ps2iop/iopata/tracing"
)

// A session is a simulated system with the tracing and monitoring the
// configuration asks for.
type session struct {
	sys     *iopsim.System
	monitor *monitoring.Monitor
	tracer  *tracing.DBTracer
	log     logrus.FieldLogger
}

func openSession(cfg *config, image io.ReaderAt, size int64) (*session, error) {
	logger := logrus.StandardLogger()

	s := &session{
		log: logger.WithField("component", "cli"),
		sys: iopsim.MakeBuilder().
			WithImage(image, size).
			WithSettle(cfg.settle).
			WithBounceBufferSize(cfg.bounceSize).
			WithPayloadMax(cfg.packetMax).
			WithLogger(logger).
			Build("IOP"),
	}

	if cfg.traceDB != "" {
		if err := s.startTracing(cfg.traceDB); err != nil {
			return nil, err
		}
	}

	if cfg.monitorEnabled() {
		if err := s.startMonitor(cfg); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *session) startTracing(path string) error {
	writer := tracing.NewSQLiteTraceWriter(path)
	if err := writer.Init(); err != nil {
		return err
	}

	s.tracer = tracing.NewDBTracer(tracing.WallClock{}, writer)

	tracing.CollectTrace(s.sys.Port.Engine(), s.tracer)
	tracing.CollectTrace(s.sys.Coprocessor, s.tracer)
	tracing.CollectTrace(s.sys.DEV9, s.tracer)

	s.log.WithField("file", writer.FileName()).Info("tracing enabled")

	return nil
}

func (s *session) startMonitor(cfg *config) error {
	s.monitor = monitoring.NewMonitor().
		WithPortNumber(cfg.monitorPort).
		WithBrowser(cfg.openBrowser)

	s.monitor.RegisterComponent(s.sys.Port)
	s.monitor.RegisterComponent(s.sys.Port.Engine())
	s.monitor.RegisterComponent(s.sys.Coprocessor)
	s.monitor.RegisterComponent(s.sys.DEV9)
	s.monitor.RegisterLink(s.sys.Link)

	_, err := s.monitor.StartServer()

	return err
}

// close writes out the trace.
func (s *session) close() error {
	if s.tracer == nil {
		return nil
	}

	return s.tracer.Terminate()
}
