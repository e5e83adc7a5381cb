package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/encspi/pkg/board"
	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
	"github.com/OpenTraceLab/encspi/pkg/irq"
)

// session is an opened board with a driver and its interrupt forwarding
type session struct {
	cfg *board.Config
	hw  *board.Hardware
	drv *enc28j60.Driver

	stopIRQ context.CancelFunc
	irqDone chan struct{}
}

// openSession opens the hardware and creates the driver. With bringUp set
// the driver is opened and interrupts are forwarded to it, polling when
// the board has no interrupt line.
func openSession(ctx context.Context, cfg *board.Config, bringUp bool, extra ...enc28j60.Option) (*session, error) {
	hw, err := cfg.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s bus: %w", cfg.Bus.Kind, err)
	}
	opts, err := cfg.DriverOptions()
	if err != nil {
		hw.Close()
		return nil, err
	}
	drv, err := enc28j60.New(hw.Bus, append(opts, extra...)...)
	if err != nil {
		hw.Close()
		return nil, err
	}
	s := &session{cfg: cfg, hw: hw, drv: drv}
	if !bringUp {
		return s, nil
	}

	if err := drv.Open(ctx); err != nil {
		hw.Close()
		return nil, err
	}
	line := hw.InterruptLine()
	ictx, cancel := context.WithCancel(context.Background())
	s.stopIRQ, s.irqDone = cancel, make(chan struct{})
	go func() {
		defer close(s.irqDone)
		irq.Run(ictx, line, drv.OnInterrupt)
	}()
	return s, nil
}

func (s *session) Close() {
	if s.stopIRQ != nil {
		s.stopIRQ()
		<-s.irqDone
	}
	s.drv.Close()
	s.hw.Close()
}

// txTimeout bounds a single transmit from the CLI
const txTimeout = 2 * time.Second
