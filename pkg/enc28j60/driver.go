package enc28j60

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/platinasystems/log"

	"github.com/OpenTraceLab/encspi/pkg/spi"
)

// txSlot is the single in-flight transmit
type txSlot struct {
	desc TxDescriptor
	done chan error
}

// dispatchResult is what a dispatch pass hands to notify once the
// chip lock is released
type dispatchResult struct {
	frames      [][]byte
	linkChanged bool
	linkUp      bool
	more        bool
}

// notice is one batch of callbacks, run in order by the delivery goroutine
type notice struct {
	frames      [][]byte
	linkChanged bool
	linkUp      bool
	fault       error
}

func (n notice) empty() bool {
	return len(n.frames) == 0 && !n.linkChanged && n.fault == nil
}

// Driver is the network-device facing side of the chip. One mutex
// serializes every chip access from the transmit path, the interrupt worker
// and diagnostics. OnInterrupt only posts an event; the worker goroutine
// started by Open does the bus work.
type Driver struct {
	bus spi.Bus
	cfg Config

	mu       sync.Mutex
	chip     *Chip
	ring     *Ring
	rev      Revision
	mac      net.HardwareAddr
	state    State
	fault    error
	inflight *txSlot
	lastTSV  TxStatusVector
	counters Counters

	events chan struct{}
	stop   context.CancelFunc
	done   chan struct{}

	// Callbacks are queued here and run off the worker, so a handler may
	// call Transmit, Close or Open.
	nmu        sync.Mutex
	notices    []notice
	delivering bool

	dropLog *log.Limited
}

// New creates a closed driver on bus
func New(bus spi.Bus, opts ...Option) (*Driver, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Driver{
		bus:     bus,
		cfg:     cfg,
		state:   StateClosed,
		events:  make(chan struct{}, 1),
		dropLog: log.NewLimited(cfg.DropLogLimit),
	}, nil
}

func (d *Driver) transition(ev Event) error {
	next, err := NextState(d.state, ev)
	if err != nil {
		return err
	}
	d.state = next
	return nil
}

// Open brings the chip up and starts the interrupt worker. It is also the
// way out of the fault state.
func (d *Driver) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateClosed && d.state != StateFault {
		return fmt.Errorf("enc28j60: open while %s", d.state)
	}

	chip := NewChip(d.bus)
	d.chip = chip
	ring, rev, err := chip.Init(&d.cfg)
	if err != nil {
		log.Print("err", "enc28j60: bring-up: ", err)
		return fmt.Errorf("enc28j60: bring-up: %w", err)
	}
	if !rev.Known() {
		log.Printf("warn", "enc28j60: unknown silicon revision %s", rev)
	}
	mac, err := chip.MACAddress()
	if err != nil {
		return fmt.Errorf("enc28j60: bring-up: %w", err)
	}

	d.ring, d.rev, d.mac = ring, rev, mac
	d.fault = nil
	if err := d.transition(EventOpen); err != nil {
		return err
	}
	if d.stop == nil {
		wctx, cancel := context.WithCancel(context.Background())
		d.stop, d.done = cancel, make(chan struct{})
		go d.run(wctx, d.done)
	}
	log.Printf("info", "enc28j60: up, revision %s, mac %s, rx %s, tx %s",
		rev, mac, d.cfg.RxWindow, d.cfg.TxWindow)

	// Pick up anything that arrived before the worker was listening.
	d.OnInterrupt()
	return nil
}

// Close stops the worker, masks interrupts and disables reception. An
// in-flight transmit fails with ErrClosed. The bus is left open.
func (d *Driver) Close() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return nil
	}
	var err error
	if d.state != StateFault {
		err = d.quiesce()
	}
	d.failInflight(ErrClosed)
	if terr := d.transition(EventClose); terr != nil {
		return terr
	}
	return err
}

func (d *Driver) quiesce() error {
	if err := d.chip.WriteRegister(EIE, 0); err != nil {
		return err
	}
	return d.chip.ClearBits(ECON1, ECON1RxEn|ECON1TxRTS)
}

// OnInterrupt is called from interrupt context. It never blocks and never touches the
// bus; events raised while a pass is pending are coalesced.
func (d *Driver) OnInterrupt() {
	select {
	case d.events <- struct{}{}:
	default:
	}
}

func (d *Driver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.events:
			d.dispatch()
		}
	}
}

func (d *Driver) dispatch() {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return
	}
	_ = d.transition(EventInterrupt)

	res, err := d.service()
	var fault error
	if err != nil {
		fault = d.enterFault(err)
	} else {
		_ = d.transition(EventDispatchDone)
	}
	d.mu.Unlock()

	d.notify(notice{
		frames:      res.frames,
		linkChanged: res.linkChanged,
		linkUp:      res.linkUp,
		fault:       fault,
	})
	if res.more {
		d.OnInterrupt()
	}
}

// notify queues n for the handlers. It never blocks; a delivery goroutine
// is started when none is running.
func (d *Driver) notify(n notice) {
	if n.empty() {
		return
	}
	d.nmu.Lock()
	defer d.nmu.Unlock()
	d.notices = append(d.notices, n)
	if !d.delivering {
		d.delivering = true
		go d.deliver()
	}
}

func (d *Driver) deliver() {
	for {
		d.nmu.Lock()
		if len(d.notices) == 0 {
			d.delivering = false
			d.nmu.Unlock()
			return
		}
		n := d.notices[0]
		d.notices[0] = notice{}
		d.notices = d.notices[1:]
		d.nmu.Unlock()

		if h := d.cfg.RxHandler; h != nil {
			for _, frame := range n.frames {
				h(frame)
			}
		}
		if h := d.cfg.LinkHandler; h != nil && n.linkChanged {
			h(n.linkUp)
		}
		if h := d.cfg.FaultHandler; h != nil && n.fault != nil {
			h(n.fault)
		}
	}
}

// service runs one dispatch pass with the chip lock held
func (d *Driver) service() (dispatchResult, error) {
	var res dispatchResult
	c := d.chip
	if err := c.ClearBits(EIE, EIEIntIE); err != nil {
		return res, err
	}
	st, err := c.interruptStatus()
	if err != nil {
		return res, err
	}

	actions := Plan(st)
	for i := 0; i < len(actions); i++ {
		follow, err := d.perform(actions[i], st, &res)
		if err != nil {
			return res, err
		}
		actions = append(actions, follow...)
	}
	return res, c.SetBits(EIE, EIEIntIE)
}

// perform executes one action. It may return follow-up actions to run in
// the same pass.
func (d *Driver) perform(a Action, st InterruptStatus, res *dispatchResult) ([]Action, error) {
	c := d.chip
	switch a {
	case ActionRecoverOverrun:
		d.counters.RxOverruns++
		log.Print("warn", "enc28j60: receive overrun, resetting ring")
		if err := c.RecoverOverrun(d.ring); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRxOverrun, err)
		}

	case ActionRecoverTxError:
		slot := d.inflight
		desc := TxDescriptor{StartPtr: d.ring.TxStart}
		if slot != nil {
			desc = slot.desc
		}
		txErr, err := c.recoverTx(desc)
		if err != nil {
			return nil, err
		}
		d.lastTSV = txErr.Status
		if slot != nil {
			d.inflight = nil
			d.counters.countTxError(txErr)
			slot.done <- txErr
		}

	case ActionCompleteTx:
		slot := d.inflight
		if slot == nil {
			return nil, c.ClearBits(EIR, EIRTxIF)
		}
		d.inflight = nil
		tsv, err := c.finishTransmit(slot.desc)
		d.lastTSV = tsv
		var txErr *TxError
		switch {
		case err == nil:
			d.counters.TxPackets++
			d.counters.TxBytes += uint64(slot.desc.Length)
		case errors.As(err, &txErr):
			d.counters.countTxError(txErr)
		}
		slot.done <- err
		if err != nil && txErr == nil {
			return nil, err
		}

	case ActionReceive:
		batch, err := c.receive(d.ring, &d.cfg, d.logDrop)
		d.counters.RxPackets += uint64(len(batch.frames))
		d.counters.RxBytes += uint64(batch.bytes)
		d.counters.RxLengthErrors += uint64(batch.lengthErrors)
		d.counters.RxStatusErrors += uint64(batch.statusErrors)
		res.frames = append(res.frames, batch.frames...)
		res.more = batch.more
		var ptrErr *InvalidPointerError
		if errors.As(err, &ptrErr) {
			log.Print("err", "enc28j60: ", err)
			return []Action{ActionRecoverRing}, nil
		}
		if err != nil {
			return nil, err
		}

	case ActionLinkChange:
		up, err := c.ackLinkChange()
		if err != nil {
			return nil, err
		}
		d.counters.LinkChanges++
		res.linkChanged, res.linkUp = true, up
		log.Printf("info", "enc28j60: link %s", linkWord(up))

	case ActionClearUnknown:
		return nil, c.ClearBits(EIR, st.Flags&^knownFlags)

	case ActionRecoverRing:
		d.counters.RingResets++
		res.more = false
		if err := c.RecoverOverrun(d.ring); err != nil {
			return nil, fmt.Errorf("enc28j60: ring recovery: %w", err)
		}
	}
	return nil, nil
}

func (d *Driver) logDrop(hdr PacketHeader, err error) {
	d.dropLog.Print("warn", "enc28j60: dropped packet at ", fmt.Sprintf("0x%04X next 0x%04X", d.ring.RxReadPtr, hdr.NextPacketPtr), ": ", err)
}

func (d *Driver) enterFault(cause error) error {
	ferr := &FaultError{Cause: cause}
	_ = d.transition(EventRecoveryFailed)
	d.fault = ferr
	d.counters.Faults++
	d.failInflight(ferr)
	log.Print("err", ferr)
	return ferr
}

func (d *Driver) failInflight(err error) {
	if d.inflight != nil {
		d.inflight.done <- err
		d.inflight = nil
	}
}

// usable reports why the chip cannot take requests, if it cannot
func (d *Driver) usable() error {
	switch d.state {
	case StateClosed:
		return ErrNotOpen
	case StateFault:
		return d.fault
	}
	return nil
}

// Transmit sends one frame and waits for the chip to report the outcome.
// A call made while another frame is in flight fails with ErrTxBusy. When
// ctx ends first the frame is aborted through the transmit error recovery
// and a TxError of kind TxCancelled is returned.
func (d *Driver) Transmit(ctx context.Context, payload []byte) error {
	d.mu.Lock()
	if err := d.usable(); err != nil {
		d.mu.Unlock()
		return err
	}
	if d.inflight != nil {
		d.counters.TxBusy++
		d.mu.Unlock()
		return ErrTxBusy
	}
	if limit := maxPayload(d.ring, d.cfg.MaxFrameLen); len(payload) == 0 || len(payload) > limit {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d bytes, accepted 1-%d", ErrFrameSize, len(payload), limit)
	}
	desc, err := d.chip.startTransmit(d.ring, payload)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	slot := &txSlot{desc: desc, done: make(chan error, 1)}
	d.inflight = slot
	d.mu.Unlock()

	select {
	case err := <-slot.done:
		return err
	case <-ctx.Done():
	}

	d.mu.Lock()
	if d.inflight != slot {
		// Completed while we were waiting for the lock.
		d.mu.Unlock()
		return <-slot.done
	}
	d.inflight = nil
	txErr := &TxError{Kind: TxCancelled, Err: ctx.Err()}
	d.counters.countTxError(txErr)
	var fault error
	if err := d.chip.abortTransmit(desc); err != nil {
		fault = d.enterFault(err)
	}
	d.mu.Unlock()

	d.notify(notice{fault: fault})
	return txErr
}

// LinkStatus reads the PHY link state
func (d *Driver) LinkStatus() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.usable(); err != nil {
		return false, err
	}
	return d.chip.LinkUp()
}

// Do runs fn with exclusive access to the chip. It works in every state,
// including before Open, and is meant for diagnostics. Resetting the chip
// from fn while the driver is open invalidates the receive ring.
func (d *Driver) Do(ctx context.Context, fn func(*Chip) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chip == nil {
		d.chip = NewChip(d.bus)
		d.chip.configure(&d.cfg)
	}
	return fn(d.chip)
}

// MACAddress returns the station address read back at Open, or the
// configured one before that
func (d *Driver) MACAddress() net.HardwareAddr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mac != nil {
		return append(net.HardwareAddr(nil), d.mac...)
	}
	return append(net.HardwareAddr(nil), d.cfg.MAC...)
}

// Revision returns the silicon revision read at the last Open
func (d *Driver) Revision() Revision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rev
}

// LastTxStatus returns the status vector of the most recent completed or
// failed transmit
func (d *Driver) LastTxStatus() TxStatusVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTSV
}

// Counters returns a snapshot of the driver statistics
func (d *Driver) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters
}

// State returns the current dispatch state
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the fault that stopped the driver, if any
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fault
}

// Ring returns a copy of the receive ring state, or false before Open
func (d *Driver) Ring() (Ring, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ring == nil {
		return Ring{}, false
	}
	return *d.ring, true
}

// Config returns the validated configuration
func (d *Driver) Config() Config {
	return d.cfg
}

func linkWord(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
