package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
)

var (
	regsInit bool
	regsPHY  bool
)

var regsCmd = &cobra.Command{
	Use:   "regs",
	Short: "Dump the control registers of every bank",
	Long: `Read and print every control register, grouped by bank. The chip is left as it is
unless --init is given, which runs the normal bring-up first.

Examples:
  encspi regs --bus simulator --init
  encspi regs --phy`,
	RunE: runRegs,
}

func init() {
	rootCmd.AddCommand(regsCmd)

	regsCmd.Flags().BoolVar(&regsInit, "init", false, "bring the chip up before dumping")
	regsCmd.Flags().BoolVar(&regsPHY, "phy", false, "also dump the PHY registers")
}

func runRegs(cmd *cobra.Command, args []string) error {
	cfg, err := loadBoard(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := openSession(ctx, cfg, regsInit)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.drv.Do(ctx, func(c *enc28j60.Chip) error {
		current := enc28j60.Bank(0xFD)
		for _, reg := range enc28j60.Registers() {
			if reg.Bank != current {
				current = reg.Bank
				fmt.Printf("%s:\n", current)
			}
			v, err := c.ReadRegister(reg)
			if err != nil {
				return fmt.Errorf("read %s: %w", reg.Name, err)
			}
			fmt.Printf("  %-9s 0x%02X  %08b\n", reg.Name, v, v)
		}
		if !regsPHY {
			return nil
		}
		fmt.Println("PHY:")
		for _, reg := range enc28j60.PHYRegisters() {
			v, err := c.ReadPHY(reg)
			if err != nil {
				return fmt.Errorf("read %s: %w", reg.Name, err)
			}
			fmt.Printf("  %-9s 0x%04X\n", reg.Name, v)
		}
		return nil
	})
}
