package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
	"github.com/OpenTraceLab/encspi/pkg/netdev"
	"github.com/OpenTraceLab/encspi/pkg/stats"
)

var (
	bridgeTap   string
	bridgeRedis string
	bridgeEvery time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the controller to a TAP interface",
	Long: `Create a TAP interface and move frames between it and the controller until
interrupted. Driver faults reopen the chip with backoff. With --redis the driver
and bridge counters are published to the hash encspi:<board name>.

Examples:
  encspi bridge --bus spidev --device /dev/spidev0.0 --irq gpio --gpio 25
  encspi bridge --tap enc1 --redis localhost:6379`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&bridgeTap, "tap", "", "TAP interface name (board file default)")
	bridgeCmd.Flags().StringVar(&bridgeRedis, "redis", "", "redis address for counters (board file default)")
	bridgeCmd.Flags().DurationVar(&bridgeEvery, "stats-interval", 0, "counter publish interval (board file default)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadBoard(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("tap") {
		cfg.TapName = bridgeTap
	}
	if cmd.Flags().Changed("redis") {
		cfg.RedisAddr = bridgeRedis
	}
	every := time.Duration(cfg.StatsInterval)
	if cmd.Flags().Changed("stats-interval") {
		every = bridgeEvery
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tap, err := netdev.NewTapDevice(cfg.TapName)
	if err != nil {
		return err
	}
	br := netdev.NewBridge(tap, netdev.BridgeConfig{})
	s, err := openSession(ctx, cfg, true, br.Options()...)
	if err != nil {
		tap.Close()
		return err
	}
	defer s.Close()

	log.Print("info", "bridge: ", tap.Name(), " <-> ", s.hw.Bus.Info().Name, " ", s.drv.MACAddress())
	fmt.Printf("Bridging %s <-> %s (%s), Ctrl-C to stop\n", tap.Name(), s.hw.Bus.Info().Name, s.drv.MACAddress())

	if cfg.RedisAddr != "" && every > 0 {
		pool := stats.NewPool(cfg.RedisAddr)
		defer pool.Close()
		src := stats.DriverSource(s.drv, func() []enc28j60.Field { return br.Counters().Fields() })
		go stats.NewPublisher(pool).Run(ctx, cfg.Name, every, src)
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		go showStatus(ctx, s.drv, br)
	}

	err = br.Run(ctx, s.drv)
	fmt.Println()
	printCounters(s.drv.Counters(), br.Counters())
	return err
}

// showStatus redraws a one-line summary on the terminal
func showStatus(ctx context.Context, drv *enc28j60.Driver, br *netdev.Bridge) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		c, b := drv.Counters(), br.Counters()
		fmt.Printf("\r%-11s rx %d tx %d drop %d/%d reopen %d  ",
			drv.State(), c.RxPackets, c.TxPackets, c.RxDropped(), b.TxDropped, b.Reopens)
	}
}

func printCounters(c enc28j60.Counters, b netdev.BridgeCounters) {
	fmt.Println("Counters:")
	for _, f := range append(c.Fields(), b.Fields()...) {
		fmt.Printf("  %-20s %d\n", f.Name, f.Value)
	}
}
