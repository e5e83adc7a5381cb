// Package irq delivers the chip's INT line to the driver. A Line blocks
// until the next falling edge; Run forwards edges to a callback such as
// enc28j60.Driver.OnInterrupt.
package irq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/platinasystems/log"
)

var (
	ErrClosed       = errors.New("irq: line closed")
	ErrNotSupported = errors.New("irq: GPIO interrupts not supported on this platform")
)

// Line is an interrupt source
type Line interface {
	// Wait blocks until the line fires, ctx ends or the line is closed.
	Wait(ctx context.Context) error
	Close() error
}

// Run calls fn for every edge on line until ctx ends. It returns nil when
// ctx ends and the line error otherwise.
func Run(ctx context.Context, line Line, fn func()) error {
	for {
		err := line.Wait(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			log.Print("err", "irq: ", err)
			return err
		}
		fn()
	}
}

// Manual is a Line fired by software. Triggers raised before the waiter
// runs are coalesced into one edge.
type Manual struct {
	fired chan struct{}
	once  sync.Once
	done  chan struct{}
}

func NewManual() *Manual {
	return &Manual{
		fired: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Trigger raises the line. It never blocks.
func (m *Manual) Trigger() {
	select {
	case m.fired <- struct{}{}:
	default:
	}
}

func (m *Manual) Wait(ctx context.Context) error {
	select {
	case <-m.fired:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manual) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

// Poller fires at a fixed interval, for bridges without an interrupt pin
type Poller struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

// NewPoller returns a Poller firing every interval
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Poller{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
}

func (p *Poller) Wait(ctx context.Context) error {
	select {
	case <-p.ticker.C:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) Close() error {
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
	return nil
}
