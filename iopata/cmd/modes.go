package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ps2iop/iopata/ata"
	"github.com/ps2iop/iopata/iop"
)

func newModesCmd(cfg *config) *cobra.Command {
	var pio, dma string

	cmd := &cobra.Command{
		Use:   "modes",
		Short: "Program the storage controller's transfer modes.",
		Long: "Program the PIO timing and the DMA transfer mode of the " +
			"storage controller and print the controller register writes. " +
			"Modes are named like PIO4, MWDMA2 or UDMA4.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModes(cfg, pio, dma, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&pio, "pio", "PIO4", "PIO timing mode")
	cmd.Flags().StringVar(&dma, "dma", "UDMA4", "DMA transfer mode")

	return cmd
}

func runModes(cfg *config, pio, dma string, stdout io.Writer) error {
	pioMode, err := ata.ParseXferMode(pio)
	if err != nil {
		return err
	}

	dmaMode, err := ata.ParseXferMode(dma)
	if err != nil {
		return err
	}

	s, err := openSession(cfg, nil, 0)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.sys.Start(); err != nil {
		return err
	}

	s.sys.Registers.ResetLog()

	modeErr := s.sys.Port.SetPIOMode(pioMode)
	if modeErr == nil {
		modeErr = s.sys.Port.SetDMAMode(dmaMode)
	}

	for _, w := range s.sys.Registers.Writes() {
		if w.Addr >= iop.SPDBase && w.Addr < iop.SPDBase+0x10000 {
			fmt.Fprintln(stdout, w)
		}
	}

	st := s.sys.Port.Stats()
	fmt.Fprintf(stdout, "pio=%s dma=%s\n", orNone(st.PIOMode), orNone(st.DMAMode))

	if err := s.sys.Stop(); err != nil {
		return err
	}

	return modeErr
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}

	return s
}
