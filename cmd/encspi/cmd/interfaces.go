package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/encspi/pkg/spi"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available SPI interfaces",
	Long: `Scan the host for CH341A USB-SPI bridges and spidev nodes and print a summary of
what was found. The built-in simulator is always listed.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := spi.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	fmt.Println("Detected SPI interfaces:")
	for _, iface := range infos {
		if iface.VendorID != 0 {
			fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
		} else {
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
		}
	}
	return nil
}
