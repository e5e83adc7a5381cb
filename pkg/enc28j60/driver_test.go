package enc28j60

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

type testRig struct {
	drv    *Driver
	sim    *Simulator
	frames chan []byte
	links  chan bool
	faults chan error
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	rig := &testRig{
		sim:    NewSimulator(0x06),
		frames: make(chan []byte, 256),
		links:  make(chan bool, 16),
		faults: make(chan error, 16),
	}
	base := []Option{
		WithMAC(net.HardwareAddr{0x02, 0x00, 0x00, 0xAA, 0xBB, 0xCC}),
		WithResetDelay(time.Microsecond),
		WithRxHandler(func(f []byte) { rig.frames <- f }),
		WithLinkHandler(func(up bool) { rig.links <- up }),
		WithFaultHandler(func(err error) { rig.faults <- err }),
	}
	drv, err := New(rig.sim.Bus(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rig.drv = drv
	rig.sim.SetInterruptHandler(drv.OnInterrupt)
	if err := drv.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { drv.Close() })
	return rig
}

func (r *testRig) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for a received frame")
	}
	return nil
}

// quiet holds the driver lock so injected packets queue up on the chip.
func (r *testRig) quiet(t *testing.T, fn func()) {
	t.Helper()
	err := r.drv.Do(context.Background(), func(*Chip) error {
		fn()
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func testFrame(n int, seed byte) []byte {
	f := make([]byte, n)
	copy(f, []byte{0x02, 0x00, 0x00, 0xAA, 0xBB, 0xCC, 0x02, 0x00, 0x00, 0x11, 0x22, 0x33, 0x88, 0xB5})
	for i := 14; i < n; i++ {
		f[i] = seed + byte(i)
	}
	return f
}

func TestOpenProgramsRing(t *testing.T) {
	rig := newTestRig(t)
	sim := rig.sim

	if got := sim.Register16(ERXST); got != 0x0000 {
		t.Fatalf("ERXST = 0x%04X, want 0x0000", got)
	}
	if got := sim.Register16(ERXND); got != 0x19FF {
		t.Fatalf("ERXND = 0x%04X, want 0x19FF", got)
	}
	if got := sim.Register16(ERDPT); got != 0x0000 {
		t.Fatalf("ERDPT = 0x%04X, want 0x0000", got)
	}
	if got := sim.Register16(ETXST); got != 0x1A00 {
		t.Fatalf("ETXST = 0x%04X, want 0x1A00", got)
	}
	ring, ok := rig.drv.Ring()
	if !ok || ring.RxReadPtr != 0x0000 {
		t.Fatalf("ring read pointer = 0x%04X, %v", ring.RxReadPtr, ok)
	}
	if rig.drv.Revision() == 0 {
		t.Fatalf("revision should be non-zero")
	}
	if sim.Register(ECON1)&ECON1RxEn == 0 {
		t.Fatalf("reception not enabled")
	}
	if got := sim.Register16(MAMXFL); got != 1518 {
		t.Fatalf("MAMXFL = %d", got)
	}
	if got := rig.drv.MACAddress().String(); got != "02:00:00:aa:bb:cc" {
		t.Fatalf("MAC = %s", got)
	}
	if rig.drv.State() != StateIdle {
		t.Fatalf("state = %s, want Idle", rig.drv.State())
	}
}

func TestOpenFailsWithoutRevision(t *testing.T) {
	sim := NewSimulator(0x00)
	drv, err := New(sim.Bus(), WithResetDelay(time.Microsecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = drv.Open(context.Background())
	var nr *ChipNotRespondingError
	if !errors.As(err, &nr) {
		t.Fatalf("Open err = %v, want ChipNotRespondingError", err)
	}
	if drv.State() != StateClosed {
		t.Fatalf("state = %s, want Closed", drv.State())
	}
	if err := drv.Transmit(context.Background(), testFrame(64, 0)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Transmit err = %v, want ErrNotOpen", err)
	}
}

func TestTransmit64Bytes(t *testing.T) {
	rig := newTestRig(t)
	payload := testFrame(64, 1)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := rig.drv.Transmit(ctx, payload); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	tsv := rig.drv.LastTxStatus()
	if !tsv.Done() || tsv.Collisions() != 0 || tsv.Aborted() || tsv.LateCollision() {
		t.Fatalf("unexpected status vector: %s", tsv)
	}
	if tsv.ByteCount() != 64+4 {
		t.Fatalf("TSV byte count = %d, want 68", tsv.ByteCount())
	}
	sent := rig.sim.Transmitted()
	if len(sent) != 1 || !bytes.Equal(sent[0], payload) {
		t.Fatalf("chip sent %d frames, want the payload once", len(sent))
	}
	if got := rig.sim.Register16(ETXND); got != 0x1A00+64 {
		t.Fatalf("ETXND = 0x%04X", got)
	}
	c := rig.drv.Counters()
	if c.TxPackets != 1 || c.TxBytes != 64 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestTransmitBusy(t *testing.T) {
	rig := newTestRig(t)
	rig.sim.HoldTransmit(true)

	first := make(chan error, 1)
	go func() {
		first <- rig.drv.Transmit(context.Background(), testFrame(60, 2))
	}()
	waitFor(t, "first frame in flight", func() bool {
		return rig.sim.Register(ECON1)&ECON1TxRTS != 0
	})

	if err := rig.drv.Transmit(context.Background(), testFrame(60, 3)); !errors.Is(err, ErrTxBusy) {
		t.Fatalf("second Transmit err = %v, want ErrTxBusy", err)
	}

	rig.sim.HoldTransmit(false)
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("first Transmit: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("first Transmit did not complete")
	}
	if len(rig.sim.Transmitted()) != 1 {
		t.Fatalf("busy frame must not be queued")
	}
	if rig.drv.Counters().TxBusy != 1 {
		t.Fatalf("TxBusy = %d", rig.drv.Counters().TxBusy)
	}
}

func TestTransmitCancelled(t *testing.T) {
	rig := newTestRig(t)
	rig.sim.HoldTransmit(true)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- rig.drv.Transmit(ctx, testFrame(60, 4))
	}()
	waitFor(t, "frame in flight", func() bool {
		return rig.sim.Register(ECON1)&ECON1TxRTS != 0
	})
	cancel()

	var err error
	select {
	case err = <-result:
	case <-time.After(waitTimeout):
		t.Fatalf("Transmit did not return after cancel")
	}
	var txErr *TxError
	if !errors.As(err, &txErr) || txErr.Kind != TxCancelled {
		t.Fatalf("err = %v, want TxError cancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled TxError should wrap context.Canceled")
	}
	if rig.sim.Register(ECON1)&ECON1TxRTS != 0 {
		t.Fatalf("TXRTS still set after abort")
	}

	rig.sim.HoldTransmit(false)
	if len(rig.sim.Transmitted()) != 0 {
		t.Fatalf("aborted frame went out")
	}
	// The transmitter is usable again.
	if err := rig.drv.Transmit(context.Background(), testFrame(60, 5)); err != nil {
		t.Fatalf("Transmit after abort: %v", err)
	}
}

func TestTransmitErrors(t *testing.T) {
	cases := []struct {
		kind     TxErrorKind
		sentinel error
	}{
		{TxLateCollision, ErrTxLateCollision},
		{TxAbort, ErrTxAbort},
	}
	for _, tc := range cases {
		rig := newTestRig(t)
		rig.sim.FailNextTransmit(tc.kind)
		err := rig.drv.Transmit(context.Background(), testFrame(64, 6))
		if !errors.Is(err, tc.sentinel) {
			t.Fatalf("%s: err = %v, want %v", tc.kind, err, tc.sentinel)
		}
		if rig.sim.Register(ESTAT)&(ESTATLateCol|ESTATTxAbrt) != 0 {
			t.Fatalf("%s: ESTAT error bits not cleared", tc.kind)
		}
		// No retry in the driver; the next frame goes out cleanly.
		if err := rig.drv.Transmit(context.Background(), testFrame(64, 7)); err != nil {
			t.Fatalf("%s: Transmit after error: %v", tc.kind, err)
		}
		if got := len(rig.sim.Transmitted()); got != 1 {
			t.Fatalf("%s: %d frames sent, want 1", tc.kind, got)
		}
		if rig.drv.Counters().TxErrors() != 1 {
			t.Fatalf("%s: TxErrors = %d", tc.kind, rig.drv.Counters().TxErrors())
		}
	}
}

func TestTransmitFrameSize(t *testing.T) {
	rig := newTestRig(t)
	for _, n := range []int{0, 1515} {
		if err := rig.drv.Transmit(context.Background(), make([]byte, n)); !errors.Is(err, ErrFrameSize) {
			t.Fatalf("Transmit(%d bytes) err = %v, want ErrFrameSize", n, err)
		}
	}
}

func TestReceiveTwoQueuedInOrder(t *testing.T) {
	rig := newTestRig(t)
	a, b := testFrame(64, 0x10), testFrame(100, 0x20)

	rig.quiet(t, func() {
		if err := rig.sim.Inject(a); err != nil {
			t.Errorf("inject a: %v", err)
		}
		if err := rig.sim.Inject(b); err != nil {
			t.Errorf("inject b: %v", err)
		}
		if rig.sim.PacketCount() != 2 {
			t.Errorf("EPKTCNT = %d, want 2", rig.sim.PacketCount())
		}
	})

	if got := rig.nextFrame(t); !bytes.Equal(got, a) {
		t.Fatalf("first frame mismatch: %X", got)
	}
	if got := rig.nextFrame(t); !bytes.Equal(got, b) {
		t.Fatalf("second frame mismatch: %X", got)
	}
	if n := rig.sim.PacketCount(); n != 0 {
		t.Fatalf("EPKTCNT = %d after service, want 0", n)
	}
	c := rig.drv.Counters()
	if c.RxPackets != 2 || c.RxBytes != 164 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestReceiveKeepFCS(t *testing.T) {
	rig := newTestRig(t, WithKeepFCS(true))
	f := testFrame(64, 0x30)
	if err := rig.sim.Inject(f); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	got := rig.nextFrame(t)
	if len(got) != len(f)+4 || !bytes.Equal(got[:len(f)], f) {
		t.Fatalf("frame with FCS has %d bytes", len(got))
	}
}

func TestReceiveWrapsRing(t *testing.T) {
	rig := newTestRig(t, WithLayout(Window{0x0000, 0x01FF}, Window{0x0200, 0x1FFF}))
	for i := 0; i < 24; i++ {
		f := testFrame(90+i, byte(i))
		if err := rig.sim.Inject(f); err != nil {
			t.Fatalf("inject %d: %v", i, err)
		}
		if got := rig.nextFrame(t); !bytes.Equal(got, f) {
			t.Fatalf("frame %d corrupted across the ring boundary", i)
		}
	}
	if c := rig.drv.Counters(); c.RxOverruns != 0 || c.RxPackets != 24 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestReceiveDropsBadLength(t *testing.T) {
	rig := newTestRig(t)
	f1, f2, f3 := testFrame(64, 1), testFrame(64, 2), testFrame(64, 3)

	rig.quiet(t, func() {
		for _, f := range [][]byte{f1, f2, f3} {
			if err := rig.sim.Inject(f); err != nil {
				t.Errorf("inject: %v", err)
			}
		}
		hdr, _ := ParsePacketHeader(rig.sim.Memory(0x0000, headerLen))
		rig.sim.WriteMemory(hdr.NextPacketPtr+2, []byte{0x88, 0x13})
	})

	if got := rig.nextFrame(t); !bytes.Equal(got, f1) {
		t.Fatalf("first frame mismatch")
	}
	if got := rig.nextFrame(t); !bytes.Equal(got, f3) {
		t.Fatalf("frame after the dropped one mismatch")
	}
	waitFor(t, "packet counter to drain", func() bool { return rig.sim.PacketCount() == 0 })
	if c := rig.drv.Counters(); c.RxLengthErrors != 1 || c.RxPackets != 2 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestReceiveCorruptPointerResetsRing(t *testing.T) {
	rig := newTestRig(t)
	f1, f2, f3 := testFrame(64, 1), testFrame(64, 2), testFrame(64, 3)

	rig.quiet(t, func() {
		for _, f := range [][]byte{f1, f2, f3} {
			if err := rig.sim.Inject(f); err != nil {
				t.Errorf("inject: %v", err)
			}
		}
		hdr, _ := ParsePacketHeader(rig.sim.Memory(0x0000, headerLen))
		rig.sim.WriteMemory(hdr.NextPacketPtr, []byte{0x00, 0x1C})
	})

	if got := rig.nextFrame(t); !bytes.Equal(got, f1) {
		t.Fatalf("first frame mismatch")
	}
	waitFor(t, "ring reset", func() bool { return rig.drv.Counters().RingResets == 1 })
	waitFor(t, "idle", func() bool { return rig.drv.State() == StateIdle })

	ring, _ := rig.drv.Ring()
	if ring.RxReadPtr != ring.RxStart {
		t.Fatalf("read pointer 0x%04X after ring reset", ring.RxReadPtr)
	}
	for len(rig.frames) > 0 {
		<-rig.frames
	}

	f4 := testFrame(80, 4)
	if err := rig.sim.Inject(f4); err != nil {
		t.Fatalf("inject after reset: %v", err)
	}
	if got := rig.nextFrame(t); !bytes.Equal(got, f4) {
		t.Fatalf("frame after ring reset mismatch")
	}
}

func TestOverrunRecovery(t *testing.T) {
	rig := newTestRig(t, WithLayout(Window{0x0000, 0x01FF}, Window{0x0200, 0x1FFF}))

	rig.quiet(t, func() {
		for i := 0; i < 32; i++ {
			if err := rig.sim.Inject(testFrame(100, byte(i))); errors.Is(err, ErrSimOverrun) {
				return
			}
		}
		t.Errorf("ring never overflowed")
	})

	waitFor(t, "overrun recovery", func() bool { return rig.drv.Counters().RxOverruns == 1 })
	waitFor(t, "idle", func() bool { return rig.drv.State() == StateIdle })

	ring, _ := rig.drv.Ring()
	if ring.RxReadPtr != ring.RxStart {
		t.Fatalf("RxReadPtr = 0x%04X, want RxStart 0x%04X", ring.RxReadPtr, ring.RxStart)
	}
	if rig.sim.Register(ECON1)&ECON1RxEn == 0 {
		t.Fatalf("reception not re-enabled")
	}
	if rig.sim.Register(EIR)&EIRRxErIF != 0 {
		t.Fatalf("RXERIF still set")
	}
	if rig.sim.PacketCount() != 0 {
		t.Fatalf("EPKTCNT = %d after recovery", rig.sim.PacketCount())
	}
	for len(rig.frames) > 0 {
		<-rig.frames
	}

	for i := 0; i < 8; i++ {
		f := testFrame(120, byte(0x40+i))
		if err := rig.sim.Inject(f); err != nil {
			t.Fatalf("inject after recovery: %v", err)
		}
		if got := rig.nextFrame(t); !bytes.Equal(got, f) {
			t.Fatalf("frame %d after recovery corrupted", i)
		}
	}
	if rig.drv.State() != StateIdle {
		t.Fatalf("state = %s", rig.drv.State())
	}
}

func TestLinkChange(t *testing.T) {
	rig := newTestRig(t)
	rig.sim.SetLink(false)
	select {
	case up := <-rig.links:
		if up {
			t.Fatalf("link handler reported up")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("link handler not called")
	}
	up, err := rig.drv.LinkStatus()
	if err != nil || up {
		t.Fatalf("LinkStatus = %v, %v", up, err)
	}
	if rig.sim.Register(EIR)&EIRLinkIF != 0 {
		t.Fatalf("LINKIF not cleared")
	}

	rig.sim.SetLink(true)
	select {
	case up := <-rig.links:
		if !up {
			t.Fatalf("link handler reported down")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("link handler not called")
	}
}

func TestFaultAndReopen(t *testing.T) {
	rig := newTestRig(t)
	rig.sim.FailTransfers(errors.New("cable cut"))
	rig.drv.OnInterrupt()

	var fault error
	select {
	case fault = <-rig.faults:
	case <-time.After(waitTimeout):
		t.Fatalf("fault handler not called")
	}
	if !errors.Is(fault, ErrFault) {
		t.Fatalf("fault = %v, want ErrFault", fault)
	}
	if rig.drv.State() != StateFault {
		t.Fatalf("state = %s, want Fault", rig.drv.State())
	}
	if err := rig.drv.Transmit(context.Background(), testFrame(64, 0)); !errors.Is(err, ErrFault) {
		t.Fatalf("Transmit in fault = %v", err)
	}

	rig.sim.FailTransfers(nil)
	if err := rig.drv.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if rig.drv.State() != StateIdle || rig.drv.Err() != nil {
		t.Fatalf("state after reopen = %s, err %v", rig.drv.State(), rig.drv.Err())
	}
	if err := rig.drv.Transmit(context.Background(), testFrame(64, 1)); err != nil {
		t.Fatalf("Transmit after reopen: %v", err)
	}
	if rig.drv.Counters().Faults != 1 {
		t.Fatalf("Faults = %d", rig.drv.Counters().Faults)
	}
}

func TestCloseQuiescesChip(t *testing.T) {
	rig := newTestRig(t)
	if err := rig.drv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rig.drv.State() != StateClosed {
		t.Fatalf("state = %s", rig.drv.State())
	}
	if rig.sim.Register(ECON1)&ECON1RxEn != 0 || rig.sim.Register(EIE) != 0 {
		t.Fatalf("chip still receiving after Close")
	}
	if err := rig.drv.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := rig.drv.LinkStatus(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("LinkStatus after Close = %v", err)
	}
}

func TestCloseFailsInflight(t *testing.T) {
	rig := newTestRig(t)
	rig.sim.HoldTransmit(true)
	result := make(chan error, 1)
	go func() {
		result <- rig.drv.Transmit(context.Background(), testFrame(64, 0))
	}()
	waitFor(t, "frame in flight", func() bool {
		return rig.sim.Register(ECON1)&ECON1TxRTS != 0
	})
	rig.drv.Close()
	select {
	case err := <-result:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("Transmit not released by Close")
	}
}

func TestFaultHandlerMayClose(t *testing.T) {
	closed := make(chan error, 1)
	var rig *testRig
	rig = newTestRig(t, WithFaultHandler(func(error) {
		closed <- rig.drv.Close()
	}))

	rig.sim.FailTransfers(errors.New("cable cut"))
	rig.drv.OnInterrupt()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close from fault handler: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("Close from fault handler did not return")
	}
	if rig.drv.State() != StateClosed {
		t.Fatalf("state = %s, want Closed", rig.drv.State())
	}

	rig.sim.FailTransfers(nil)
	if err := rig.drv.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := rig.drv.Transmit(ctx, testFrame(64, 2)); err != nil {
		t.Fatalf("Transmit after reopen: %v", err)
	}
}

func TestRxHandlerMayTransmit(t *testing.T) {
	echoed := make(chan error, 4)
	var rig *testRig
	rig = newTestRig(t, WithRxHandler(func(f []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		echoed <- rig.drv.Transmit(ctx, f)
	}))

	frame := testFrame(64, 3)
	if err := rig.sim.Inject(frame); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	select {
	case err := <-echoed:
		if err != nil {
			t.Fatalf("Transmit from rx handler: %v", err)
		}
	case <-time.After(2 * waitTimeout):
		t.Fatalf("rx handler never finished its transmit")
	}
	sent := rig.sim.Transmitted()
	if len(sent) != 1 || !bytes.Equal(sent[0], frame) {
		t.Fatalf("chip sent %d frames, want the echoed frame", len(sent))
	}
}

func TestHandlersRunInEventOrder(t *testing.T) {
	rig := newTestRig(t)
	rig.quiet(t, func() {
		for i := 0; i < 3; i++ {
			if err := rig.sim.Inject(testFrame(60+i, byte(i))); err != nil {
				t.Fatalf("Inject: %v", err)
			}
		}
	})
	for i := 0; i < 3; i++ {
		if f := rig.nextFrame(t); len(f) != 60+i {
			t.Fatalf("frame %d has %d bytes, want %d", i, len(f), 60+i)
		}
	}
	rig.sim.SetLink(false)
	select {
	case up := <-rig.links:
		if up {
			t.Fatalf("link reported up")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("link handler not called")
	}
}
