package netdev

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
)

// Device is the part of enc28j60.Driver the bridge drives.
type Device interface {
	Open(ctx context.Context) error
	Close() error
	Transmit(ctx context.Context, payload []byte) error
}

// BridgeConfig tunes queueing and retry
type BridgeConfig struct {
	QueueLen    int
	TxAttempts  int
	TxTimeout   time.Duration
	RetryMin    time.Duration
	RetryMax    time.Duration
	ReopenMin   time.Duration
	ReopenMax   time.Duration
	ErrLogLimit uint32
}

func (c *BridgeConfig) normalize() {
	if c.QueueLen < 1 {
		c.QueueLen = 64
	}
	if c.TxAttempts < 1 {
		c.TxAttempts = 4
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = 100 * time.Millisecond
	}
	if c.RetryMin <= 0 {
		c.RetryMin = 100 * time.Microsecond
	}
	if c.RetryMax < c.RetryMin {
		c.RetryMax = 10 * time.Millisecond
	}
	if c.ReopenMin <= 0 {
		c.ReopenMin = 100 * time.Millisecond
	}
	if c.ReopenMax < c.ReopenMin {
		c.ReopenMax = 10 * time.Second
	}
	if c.ErrLogLimit == 0 {
		c.ErrLogLimit = 32
	}
}

// BridgeCounters are the host side statistics
type BridgeCounters struct {
	HostRx       uint64 // frames read from the host
	HostTx       uint64 // frames written to the host
	HostTxErrors uint64
	TxRetries    uint64
	TxDropped    uint64
	QueueFull    uint64
	Reopens      uint64
	LinkUp       bool
}

// Fields returns the counters as name/value pairs
func (c BridgeCounters) Fields() []enc28j60.Field {
	link := uint64(0)
	if c.LinkUp {
		link = 1
	}
	return []enc28j60.Field{
		{Name: "host_rx", Value: c.HostRx},
		{Name: "host_tx", Value: c.HostTx},
		{Name: "host_tx_errors", Value: c.HostTxErrors},
		{Name: "tx_retries", Value: c.TxRetries},
		{Name: "tx_dropped", Value: c.TxDropped},
		{Name: "queue_full", Value: c.QueueFull},
		{Name: "reopens", Value: c.Reopens},
		{Name: "link_up", Value: link},
	}
}

// Bridge moves frames between a HostInterface and the chip. Frames from the
// host are queued and transmitted one at a time with bounded retry; received
// frames go straight to the host. A driver fault closes and reopens the
// device with exponential backoff.
type Bridge struct {
	host HostInterface
	cfg  BridgeConfig

	queue  chan []byte
	faults chan error
	errLog *log.Limited

	hostRx, hostTx, hostTxErrors atomic.Uint64
	txRetries, txDropped         atomic.Uint64
	queueFull, reopens           atomic.Uint64
	linkUp                       atomic.Bool

	wg sync.WaitGroup
}

// NewBridge returns a bridge for host. Pass Options to enc28j60.New so the
// driver reports to it.
func NewBridge(host HostInterface, cfg BridgeConfig) *Bridge {
	cfg.normalize()
	return &Bridge{
		host:   host,
		cfg:    cfg,
		queue:  make(chan []byte, cfg.QueueLen),
		faults: make(chan error, 1),
		errLog: log.NewLimited(cfg.ErrLogLimit),
	}
}

// Options wires the driver callbacks to the bridge
func (b *Bridge) Options() []enc28j60.Option {
	return []enc28j60.Option{
		enc28j60.WithRxHandler(b.HandleFrame),
		enc28j60.WithLinkHandler(b.HandleLink),
		enc28j60.WithFaultHandler(b.HandleFault),
	}
}

// HandleFrame delivers a received frame to the host
func (b *Bridge) HandleFrame(frame []byte) {
	if err := b.host.WritePacket(frame); err != nil {
		b.hostTxErrors.Add(1)
		b.errLog.Print("warn", "netdev: ", err)
		return
	}
	b.hostTx.Add(1)
}

func (b *Bridge) HandleLink(up bool) {
	b.linkUp.Store(up)
	if up {
		log.Print("info", "netdev: link up")
	} else {
		log.Print("info", "netdev: link down")
	}
}

// HandleFault schedules a reopen. It never blocks.
func (b *Bridge) HandleFault(err error) {
	select {
	case b.faults <- err:
	default:
	}
}

// Counters returns a snapshot of the bridge statistics
func (b *Bridge) Counters() BridgeCounters {
	return BridgeCounters{
		HostRx:       b.hostRx.Load(),
		HostTx:       b.hostTx.Load(),
		HostTxErrors: b.hostTxErrors.Load(),
		TxRetries:    b.txRetries.Load(),
		TxDropped:    b.txDropped.Load(),
		QueueFull:    b.queueFull.Load(),
		Reopens:      b.reopens.Load(),
		LinkUp:       b.linkUp.Load(),
	}
}

// Run bridges frames until ctx ends. dev must already be open. Run owns the
// host interface and closes it on return.
func (b *Bridge) Run(ctx context.Context, dev Device) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		readErr <- b.readHost(ctx)
	}()
	defer func() {
		b.host.Close()
		b.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case err := <-b.faults:
			log.Print("err", "netdev: driver fault: ", err)
			if err := b.reopen(ctx, dev); err != nil {
				return nil
			}
		case frame := <-b.queue:
			b.send(ctx, dev, frame)
		}
	}
}

func (b *Bridge) readHost(ctx context.Context) error {
	for {
		frame, err := b.host.ReadPacket()
		if err != nil {
			return err
		}
		if len(frame) == 0 {
			continue
		}
		b.hostRx.Add(1)
		select {
		case b.queue <- frame:
		case <-ctx.Done():
			return nil
		default:
			b.queueFull.Add(1)
			b.txDropped.Add(1)
		}
	}
}

// retryable reports transmit errors worth another attempt
func retryable(err error) bool {
	return errors.Is(err, enc28j60.ErrTxBusy) ||
		errors.Is(err, enc28j60.ErrTxAbort) ||
		errors.Is(err, enc28j60.ErrTxLateCollision)
}

func (b *Bridge) send(ctx context.Context, dev Device, frame []byte) {
	bo := &backoff.Backoff{Min: b.cfg.RetryMin, Max: b.cfg.RetryMax, Factor: 2, Jitter: true}
	var err error
	for attempt := 1; attempt <= b.cfg.TxAttempts; attempt++ {
		tctx, cancel := context.WithTimeout(ctx, b.cfg.TxTimeout)
		err = dev.Transmit(tctx, frame)
		cancel()
		if err == nil || !retryable(err) || attempt == b.cfg.TxAttempts {
			break
		}
		b.txRetries.Add(1)
		select {
		case <-time.After(bo.Duration()):
		case <-ctx.Done():
			return
		}
	}
	if err != nil {
		b.txDropped.Add(1)
		b.errLog.Print("warn", "netdev: dropped host frame: ", err)
	}
}

// reopen cycles the device until Open succeeds or ctx ends
func (b *Bridge) reopen(ctx context.Context, dev Device) error {
	bo := &backoff.Backoff{Min: b.cfg.ReopenMin, Max: b.cfg.ReopenMax, Factor: 2, Jitter: true}
	for {
		dev.Close()
		err := dev.Open(ctx)
		if err == nil {
			b.reopens.Add(1)
			log.Print("info", "netdev: device reopened")
			return nil
		}
		d := bo.Duration()
		log.Print("err", fmt.Sprintf("netdev: reopen failed, retry in %v: ", d), err)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
