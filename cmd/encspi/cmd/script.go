package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
	"github.com/OpenTraceLab/encspi/pkg/regscript"
)

var scriptInit bool

var scriptCmd = &cobra.Command{
	Use:   "script FILE",
	Short: "Run a register script",
	Long: `Run a register script against the chip. Reads are printed; a failing expect line
stops the script with an error.

Script lines:
  read REG | write REG VALUE | set REG MASK | clear REG MASK
  expect REG VALUE [mask MASK] | phy read REG | phy write REG VALUE
  reset | sleep DURATION | # comment

Examples:
  encspi script bringup.enc --bus simulator
  encspi script checks.enc --init`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(scriptCmd)

	scriptCmd.Flags().BoolVar(&scriptInit, "init", false, "bring the chip up before running the script")
}

func runScript(cmd *cobra.Command, args []string) error {
	script, err := regscript.ParseFile(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadBoard(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	s, err := openSession(ctx, cfg, scriptInit)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.drv.Do(ctx, func(c *enc28j60.Chip) error {
		return regscript.Run(ctx, c, script, os.Stdout)
	})
}
