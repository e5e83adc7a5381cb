package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	sendFile  string
	sendCount int
)

var sendCmd = &cobra.Command{
	Use:   "send [HEX]",
	Short: "Transmit a raw Ethernet frame",
	Long: `Transmit one frame, given as hex on the command line or read from a file, and
print the transmit status vector the chip reports. The chip pads short frames and
appends the CRC.

Examples:
  encspi send ffffffffffff020000000001 0806 0001...
  encspi send --file arp.bin --count 3`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "read the frame from a binary file")
	sendCmd.Flags().IntVarP(&sendCount, "count", "n", 1, "number of times to send the frame")
}

func frameFromArgs(args []string) ([]byte, error) {
	if sendFile != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("give either --file or hex, not both")
		}
		return os.ReadFile(sendFile)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no frame given")
	}
	frame, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return frame, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	frame, err := frameFromArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadBoard(cmd)
	if err != nil {
		return err
	}
	s, err := openSession(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Print(hex.Dump(frame))
	} else if verbose {
		fmt.Printf("frame: %x\n", frame)
	}

	for i := 0; i < sendCount; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), txTimeout)
		err := s.drv.Transmit(ctx, frame)
		cancel()
		if err != nil {
			return fmt.Errorf("transmit %d: %w", i+1, err)
		}
		fmt.Printf("Sent %d bytes: %s\n", len(frame), s.drv.LastTxStatus())
	}
	return nil
}
