package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ps2iop/iopata/iopsim"
)

// maxSectorsPerCommand is the most a 28-bit READ DMA can move.
const maxSectorsPerCommand = 256

type readOptions struct {
	lba       uint32
	count     uint32
	dstOffset uint32
	out       string
	hexDump   bool
}

func newReadCmd(cfg *config) *cobra.Command {
	opts := readOptions{count: 1}

	cmd := &cobra.Command{
		Use:   "read IMAGE",
		Short: "Read sectors of a disk image through the storage port.",
		Long: "Read sectors of a disk image with DMA through the simulated " +
			"coprocessor. Reads longer than 256 sectors are split into " +
			"several commands. A destination offset that is not a multiple " +
			"of 16 makes the coprocessor use the bounce buffer.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cfg, opts, args[0], cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Uint32Var(&opts.lba, "lba", opts.lba, "first sector to read")
	flags.Uint32Var(&opts.count, "count", opts.count, "number of sectors")
	flags.Uint32Var(&opts.dstOffset, "dst-offset", opts.dstOffset,
		"byte offset of the destination within the host buffer")
	flags.StringVarP(&opts.out, "out", "o", "",
		"write the data to this file instead of standard output")
	flags.BoolVar(&opts.hexDump, "hex", false, "print a hex dump")

	return cmd
}

func runRead(cfg *config, opts readOptions, path string, stdout io.Writer) error {
	if opts.count == 0 {
		return fmt.Errorf("nothing to read")
	}

	image, err := os.Open(path)
	if err != nil {
		return err
	}
	defer image.Close()

	info, err := image.Stat()
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(opts, stdout)
	if err != nil {
		return err
	}
	defer closeOut()

	s, err := openSession(cfg, image, info.Size())
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.sys.Start(); err != nil {
		return err
	}

	if err := s.readSectors(opts, out); err != nil {
		_ = s.sys.Stop()
		return err
	}

	s.log.WithFields(logrus.Fields{
		"port":        s.sys.Port.Stats(),
		"coprocessor": s.sys.Coprocessor.Stats(),
	}).Info("read finished")

	return s.sys.Stop()
}

func openOutput(opts readOptions, stdout io.Writer) (io.Writer, func(), error) {
	w := stdout
	closeFn := func() {}

	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return nil, nil, err
		}

		w = f
		closeFn = func() { f.Close() }
	}

	if opts.hexDump {
		dumper := hex.Dumper(w)
		prev := closeFn
		closeFn = func() {
			dumper.Close()
			prev()
		}

		return dumper, closeFn, nil
	}

	return w, closeFn, nil
}

func (s *session) readSectors(opts readOptions, out io.Writer) error {
	var bar progress = noProgress{}
	if s.monitor != nil {
		pb := s.monitor.CreateProgressBar("read", uint64(opts.count))
		defer s.monitor.CompleteProgressBar(pb)

		bar = pb
	}

	lba := opts.lba
	remaining := opts.count

	for remaining > 0 {
		n := remaining
		if n > maxSectorsPerCommand {
			n = maxSectorsPerCommand
		}

		bar.IncrementInProgress(uint64(n))

		data, err := s.readCommand(lba, n, opts.dstOffset)
		if err != nil {
			return fmt.Errorf("reading %d sectors at %d: %w", n, lba, err)
		}

		if _, err := out.Write(data); err != nil {
			return err
		}

		bar.MoveInProgressToFinished(uint64(n))

		lba += n
		remaining -= n
	}

	return nil
}

func (s *session) readCommand(lba, n, dstOffset uint32) ([]byte, error) {
	size := n * iopsim.SectorSize

	addr, err := s.sys.Buffers.Alloc(size+dstOffset, 16)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.sys.Buffers.Free(addr) }()

	dst := addr + dstOffset

	// A count of 256 is encoded as 0.
	if err := s.sys.ReadSectors(lba, uint8(n), dst); err != nil {
		return nil, err
	}

	return s.sys.HostMemory.Read(dst, size)
}

type progress interface {
	IncrementInProgress(amount uint64)
	MoveInProgressToFinished(amount uint64)
}

type noProgress struct{}

func (noProgress) IncrementInProgress(uint64)      {}
func (noProgress) MoveInProgressToFinished(uint64) {}
