// Package cmd provides the command-line interface of iopata.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/ps2iop/iopata/sif"
)

func newRootCmd() *cobra.Command {
	cfg := defaultConfig()

	rootCmd := &cobra.Command{
		Use:   "iopata",
		Short: "iopata drives a simulated host and I/O coprocessor bridge.",
		Long: `iopata connects a host storage port to a simulated I/O ` +
			`coprocessor. It reads disk images through the scatter-gather ` +
			`DMA path, sequences the expansion device power and programs the ` +
			`controller's transfer modes. Global flags can also be set ` +
			`through IOPATA_* environment variables or a .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(cmd.Flags()); err != nil {
				return err
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			if cfg.parallelIDs {
				sif.UseParallelIDGenerator()
			}

			return cfg.setupLogging()
		},
	}

	cfg.bindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newReadCmd(cfg),
		newDEV9Cmd(cfg),
		newModesCmd(cfg),
	)

	return rootCmd
}

// Execute runs the command line and exits. Exit handlers, such as trace
// flushes, run before the process ends.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
