package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ps2iop/iopata/dev9"
	"github.com/ps2iop/iopata/iop"
)

func newDEV9Cmd(cfg *config) *cobra.Command {
	var (
		absent    bool
		showWrite bool
	)

	cmd := &cobra.Command{
		Use:       "dev9 on|off|init",
		Short:     "Run an expansion device power sequence.",
		ValidArgs: []string{"on", "off", "init"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Long: "Run an expansion device power sequence on the simulated " +
			"board. `on` probes the slot and powers the device up, `init` " +
			"starts the whole expansion interface and `off` starts it and " +
			"powers it down again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDEV9(cfg, args[0], absent, showWrite, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&absent, "absent", false,
		"simulate an empty expansion slot")
	cmd.Flags().BoolVar(&showWrite, "show-writes", false,
		"print the register writes of the sequence")

	return cmd
}

func runDEV9(
	cfg *config,
	action string,
	absent, showWrites bool,
	stdout io.Writer,
) error {
	s, err := openSession(cfg, nil, 0)
	if err != nil {
		return err
	}
	defer s.close()

	if absent {
		s.sys.Registers.Set(iop.DEV9Base+dev9.RegProbe, dev9.ProbeAbsent)
	}

	seq := s.sys.DEV9

	switch action {
	case "on":
		err = powerOn(seq, cfg, stdout)
	case "init":
		err = seq.Init()
	case "off":
		err = seq.Init()
		if err == nil {
			err = seq.Shutdown()
		}
	default:
		err = fmt.Errorf("unknown action %q", action)
	}

	if showWrites {
		for _, w := range s.sys.Registers.Writes() {
			fmt.Fprintln(stdout, w)
		}
	}

	st := seq.Status()
	fmt.Fprintf(stdout, "state=%s interface=%s revision=0x%02x\n",
		st.State, st.Interface, st.Revision)

	return err
}

func powerOn(seq *dev9.Sequencer, cfg *config, stdout io.Writer) error {
	if _, err := seq.DetectInterface(); err != nil {
		return err
	}

	present, err := seq.Probe()
	if err != nil {
		return err
	}

	if !present {
		fmt.Fprintln(stdout, "no expansion device")
		return nil
	}

	return seq.PowerOn(cfg.settle)
}
