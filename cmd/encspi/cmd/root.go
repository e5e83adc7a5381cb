package cmd

import (
	"fmt"
	"os"

	"github.com/platinasystems/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/encspi/pkg/board"
	"github.com/OpenTraceLab/encspi/pkg/spi"
)

var (
	// Global flags
	verbose    bool
	configPath string
	busKind    string
	busDevice  string
	busSpeed   int
	irqKind    string
	irqGPIO    int
	macAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "encspi",
	Short: "ENC28J60 SPI Ethernet controller tool",
	Long: `Bring up, inspect and bridge an ENC28J60 Ethernet controller attached over SPI
(CH341A USB bridge, Linux spidev, or the built-in simulator).

Examples:
  encspi interfaces                                 # List SPI interfaces
  encspi info --bus simulator                       # Bring up and show chip info
  encspi regs --bus spidev --device /dev/spidev0.0  # Dump all registers
  encspi send ffffffffffff0200000000010800...       # Transmit one frame
  encspi script bringup.enc                         # Run a register script
  encspi bridge --tap enc0 --irq gpio --gpio 25     # Bridge to a TAP interface`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.Tee(os.Stderr)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultConfig, err := board.DefaultPath()
	if err != nil {
		defaultConfig = "board.json"
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (driver log on stderr)")
	pf.StringVarP(&configPath, "config", "c", defaultConfig, "board configuration file")
	pf.StringVar(&busKind, "bus", "", "SPI interface (simulator, ch341, spidev)")
	pf.StringVar(&busDevice, "device", "", "spidev device path")
	pf.IntVar(&busSpeed, "speed", 0, "SPI clock in Hz")
	pf.StringVar(&irqKind, "irq", "", "interrupt source (gpio, poll, none)")
	pf.IntVar(&irqGPIO, "gpio", 0, "GPIO number of the INT pin")
	pf.StringVar(&macAddr, "mac", "", "station MAC address (random if empty)")
}

// loadBoard reads the board file and applies the flags that were set
func loadBoard(cmd *cobra.Command) (*board.Config, error) {
	cfg, err := board.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("bus") {
		cfg.Bus.Kind = spi.InterfaceKind(busKind)
	}
	if flags.Changed("device") {
		cfg.Bus.Device = busDevice
	}
	if flags.Changed("speed") {
		cfg.Bus.SpeedHz = busSpeed
	}
	if flags.Changed("irq") {
		cfg.IRQ.Kind = irqKind
	}
	if flags.Changed("gpio") {
		cfg.IRQ.GPIO = irqGPIO
	}
	if flags.Changed("mac") {
		cfg.MAC = macAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
