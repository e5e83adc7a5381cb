package board

import (
	"fmt"
	"time"

	"github.com/platinasystems/log"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
	"github.com/OpenTraceLab/encspi/pkg/irq"
	"github.com/OpenTraceLab/encspi/pkg/spi"
)

// Hardware is an opened bus with its interrupt line. Sim is set when the
// bus is the built-in simulator.
type Hardware struct {
	Bus  spi.Bus
	Line irq.Line
	Sim  *enc28j60.Simulator
}

// fallbackPoll is the interval used when a driver runs on a board without
// an interrupt line
const fallbackPoll = 10 * time.Millisecond

// InterruptLine returns the configured line. The driver only makes progress
// on interrupts, so a board with IRQ kind "none" gets a poller here.
func (h *Hardware) InterruptLine() irq.Line {
	if h.Line == nil {
		log.Print("warn", "board: no interrupt line, polling every ", fallbackPoll)
		h.Line = irq.NewPoller(fallbackPoll)
	}
	return h.Line
}

// Close releases the line and the bus
func (h *Hardware) Close() error {
	if h.Line != nil {
		h.Line.Close()
	}
	return h.Bus.Close()
}

// Open opens the configured bus and interrupt source. The simulator raises
// its INT through an irq.Manual line. With IRQ kind "none" Line is nil.
func (c *Config) Open() (*Hardware, error) {
	hw := &Hardware{}
	switch c.Bus.Kind {
	case spi.InterfaceKindSim:
		hw.Sim = enc28j60.NewSimulator(0x06)
		hw.Bus = hw.Sim.Bus()
	case spi.InterfaceKindCH341:
		bus, err := spi.NewCH341Bus(ch341Speed(c.Bus.SpeedHz))
		if err != nil {
			return nil, err
		}
		hw.Bus = bus
	case spi.InterfaceKindSpidev:
		bus, err := spi.OpenSpidev(c.Bus.Device, c.Bus.SpeedHz)
		if err != nil {
			return nil, err
		}
		hw.Bus = bus
	default:
		return nil, fmt.Errorf("board: unknown bus kind %q", c.Bus.Kind)
	}

	switch {
	case hw.Sim != nil && c.IRQ.Kind != IRQNone:
		line := irq.NewManual()
		hw.Sim.SetInterruptHandler(line.Trigger)
		hw.Line = line
	case c.IRQ.Kind == IRQGPIO:
		line, err := irq.OpenGPIO(c.IRQ.GPIO)
		if err != nil {
			hw.Bus.Close()
			return nil, err
		}
		hw.Line = line
	case c.IRQ.Kind == IRQPoll:
		hw.Line = irq.NewPoller(time.Duration(c.IRQ.PollInterval))
	}
	return hw, nil
}

// ch341Speed maps a clock request to the nearest bridge speed selector
func ch341Speed(hz int) byte {
	switch {
	case hz <= 0:
		return spi.SpeedHigh
	case hz < 100_000:
		return spi.SpeedLow
	case hz < 400_000:
		return spi.SpeedNormal
	case hz < 750_000:
		return spi.SpeedFast
	}
	return spi.SpeedHigh
}
