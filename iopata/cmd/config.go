package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ps2iop/iopata/dev9"
	"github.com/ps2iop/iopata/pata"
	"github.com/ps2iop/iopata/sif"
)

// Environment variables that provide defaults for the global flags.
const (
	EnvLogLevel    = "IOPATA_LOG_LEVEL"
	EnvSettle      = "IOPATA_SETTLE"
	EnvBounceSize  = "IOPATA_BOUNCE_SIZE"
	EnvPacketMax   = "IOPATA_PACKET_MAX"
	EnvTraceDB     = "IOPATA_TRACE_DB"
	EnvMonitorPort = "IOPATA_MONITOR_PORT"
)

type config struct {
	logLevel    string
	settle      time.Duration
	bounceSize  uint32
	packetMax   int
	traceDB     string
	monitorPort int
	openBrowser bool
	parallelIDs bool
}

func defaultConfig() *config {
	return &config{
		logLevel:    "info",
		settle:      dev9.DefaultSettle,
		bounceSize:  pata.DefaultBounceBufferSize,
		packetMax:   sif.PacketDataMax,
		monitorPort: -1,
	}
}

func (c *config) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.logLevel, "log-level", c.logLevel,
		"log level (panic, fatal, error, warn, info, debug, trace)")
	flags.DurationVar(&c.settle, "settle", c.settle,
		"expansion device settle time after each power step")
	flags.Uint32Var(&c.bounceSize, "bounce-size", c.bounceSize,
		"bounce buffer size in bytes")
	flags.IntVar(&c.packetMax, "packet-max", c.packetMax,
		"largest packet payload in bytes")
	flags.StringVar(&c.traceDB, "trace-db", c.traceDB,
		"record transfers and power sequences into this SQLite database")
	flags.IntVar(&c.monitorPort, "monitor-port", c.monitorPort,
		"serve the monitor on this port; -1 disables it, 0 picks a free port")
	flags.BoolVar(&c.openBrowser, "open-browser", c.openBrowser,
		"open the monitor in a browser")
	flags.BoolVar(&c.parallelIDs, "parallel-ids", c.parallelIDs,
		"use globally unique IDs instead of sequential ones")
}

var envFlags = map[string]string{
	EnvLogLevel:    "log-level",
	EnvSettle:      "settle",
	EnvBounceSize:  "bounce-size",
	EnvPacketMax:   "packet-max",
	EnvTraceDB:     "trace-db",
	EnvMonitorPort: "monitor-port",
}

// loadEnv reads .env files and applies the environment to the flags the user
// did not set on the command line. Missing .env files are ignored.
func loadEnv(flags *pflag.FlagSet, files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading environment: %w", err)
	}

	for env, name := range envFlags {
		value, ok := os.LookupEnv(env)
		if !ok || flags.Changed(name) {
			continue
		}

		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("%s=%q: %w", env, value, err)
		}
	}

	return nil
}

func (c *config) validate() error {
	if c.packetMax < 8 || c.packetMax > sif.PacketDataMax {
		return fmt.Errorf("packet payload must be between 8 and %d bytes",
			sif.PacketDataMax)
	}

	if c.bounceSize == 0 || c.bounceSize%8 != 0 {
		return fmt.Errorf("bounce buffer size must be a positive multiple of 8")
	}

	if c.settle < 0 {
		return fmt.Errorf("settle time must not be negative")
	}

	return nil
}

func (c *config) setupLogging() error {
	level, err := logrus.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return nil
}

func (c *config) monitorEnabled() bool {
	return c.monitorPort >= 0
}
