package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Bring the chip up and show its identity and link",
	Long: `Reset and initialize the controller, then print the silicon revision, station
address, PHY identifier, link state and buffer layout.

Examples:
  encspi info --bus simulator
  encspi info --bus ch341 --irq poll`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadBoard(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var phyID uint32
	if err := s.drv.Do(ctx, func(c *enc28j60.Chip) error {
		phyID, err = c.PHYID()
		return err
	}); err != nil {
		return fmt.Errorf("read PHY ID: %w", err)
	}
	up, err := s.drv.LinkStatus()
	if err != nil {
		return fmt.Errorf("read link: %w", err)
	}

	info := s.hw.Bus.Info()
	dc := s.drv.Config()
	fmt.Println("ENC28J60 Information:")
	fmt.Printf("  Bus:       %s [%s]\n", info.Name, info.Kind)
	fmt.Printf("  Revision:  %s\n", s.drv.Revision())
	fmt.Printf("  MAC:       %s\n", s.drv.MACAddress())
	fmt.Printf("  PHY ID:    0x%08X\n", phyID)
	fmt.Printf("  Link:      %s\n", linkString(up))
	fmt.Printf("  Duplex:    %s\n", duplexString(dc.FullDuplex))
	fmt.Printf("  RX ring:   %s (%d bytes)\n", dc.RxWindow, dc.RxWindow.Size())
	fmt.Printf("  TX window: %s (%d bytes)\n", dc.TxWindow, dc.TxWindow.Size())
	return nil
}

func linkString(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func duplexString(full bool) string {
	if full {
		return "full"
	}
	return "half"
}
