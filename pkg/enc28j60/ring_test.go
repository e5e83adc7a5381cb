package enc28j60

import (
	"errors"
	"math/rand"
	"testing"
)

func TestValidateLayout(t *testing.T) {
	cases := []struct {
		name   string
		rx, tx Window
		ok     bool
	}{
		{"default", DefaultRxWindow, DefaultTxWindow, true},
		{"tx first", Window{0x0600, 0x1FFF}, Window{0x0000, 0x05FF}, true},
		{"short", Window{0x0000, 0x17FF}, Window{0x1A00, 0x1FFF}, false},
		{"overlap", Window{0x0000, 0x1A01}, Window{0x1A00, 0x1FFF}, false},
		{"odd start", Window{0x0001, 0x1A00}, Window{0x1A01, 0x1FFF}, false},
		{"reversed", Window{0x19FF, 0x0000}, DefaultTxWindow, false},
		{"past end", Window{0x0000, 0x19FF}, Window{0x1A00, 0x2000}, false},
	}
	for _, tc := range cases {
		err := ValidateLayout(tc.rx, tc.tx)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrBadLayout) {
			t.Errorf("%s: err = %v, want ErrBadLayout", tc.name, err)
		}
	}
}

func TestRingArithmetic(t *testing.T) {
	ring, err := NewRing(DefaultRxWindow, DefaultTxWindow)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	if ring.Size() != 0x1A00 {
		t.Fatalf("Size = %d", ring.Size())
	}
	if got := ring.Wrap(0x1A00); got != 0x0000 {
		t.Fatalf("Wrap(0x1A00) = 0x%04X", got)
	}
	if got := ring.Wrap(0x1A10); got != 0x0010 {
		t.Fatalf("Wrap(0x1A10) = 0x%04X", got)
	}
	if got := ring.Distance(0x19F0, 0x0010); got != 0x20 {
		t.Fatalf("Distance across wrap = %d, want 32", got)
	}
	if got := ring.FreeSpace(ring.RxReadPtr); got != ring.Size()-1 {
		t.Fatalf("FreeSpace on empty ring = %d", got)
	}
	if got := ring.HardwareReadPtr(); got != 0x19FF {
		t.Fatalf("HardwareReadPtr at start = 0x%04X, want 0x19FF", got)
	}
	if err := ring.Advance(0x0100); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := ring.HardwareReadPtr(); got != 0x00FF {
		t.Fatalf("HardwareReadPtr = 0x%04X, want 0x00FF", got)
	}
}

func TestAdvanceStaysInRing(t *testing.T) {
	ring, err := NewRing(Window{0x0600, 0x1FFF}, Window{0x0000, 0x05FF})
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20000; i++ {
		next := uint16(rng.Intn(0x10000))
		before := ring.RxReadPtr
		err := ring.Advance(ring.alignNext(next))
		if err != nil {
			if ring.RxReadPtr != before {
				t.Fatalf("rejected 0x%04X but read pointer moved 0x%04X -> 0x%04X", next, before, ring.RxReadPtr)
			}
			continue
		}
		if !ring.Contains(ring.RxReadPtr) || ring.RxReadPtr%2 != 0 {
			t.Fatalf("Advance(0x%04X) produced 0x%04X outside ring", next, ring.RxReadPtr)
		}
	}
}

func TestAdvanceRejectionIsIdempotent(t *testing.T) {
	ring, _ := NewRing(DefaultRxWindow, DefaultTxWindow)
	if err := ring.Advance(0x0040); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	for _, bad := range []uint16{0x1A00, 0x1FFE, 0x0041, 0xFFFF, 0x1A00} {
		err := ring.Advance(bad)
		var pe *InvalidPointerError
		if !errors.As(err, &pe) {
			t.Fatalf("Advance(0x%04X) = %v, want InvalidPointerError", bad, err)
		}
		if ring.RxReadPtr != 0x0040 {
			t.Fatalf("read pointer changed to 0x%04X after rejecting 0x%04X", ring.RxReadPtr, bad)
		}
	}
}

func TestAlignNext(t *testing.T) {
	ring, _ := NewRing(DefaultRxWindow, DefaultTxWindow)
	cases := map[uint16]uint16{
		0x0040: 0x0040,
		0x0041: 0x0042,
		0x19FF: 0x0000,
		0x1A01: 0x1A01,
		0xFFFF: 0xFFFF,
	}
	for in, want := range cases {
		if got := ring.alignNext(in); got != want {
			t.Errorf("alignNext(0x%04X) = 0x%04X, want 0x%04X", in, got, want)
		}
	}
}

func TestChipAdvanceReadPointer(t *testing.T) {
	chip, sim := newTestChip(t)
	ring, err := chip.InitRing(DefaultRxWindow, DefaultTxWindow)
	if err != nil {
		t.Fatalf("InitRing: %v", err)
	}
	if got := sim.Register16(ERXRDPT); got != 0x19FF {
		t.Fatalf("ERXRDPT after init = 0x%04X, want 0x19FF", got)
	}
	if err := chip.AdvanceReadPointer(ring, 0x0200); err != nil {
		t.Fatalf("AdvanceReadPointer: %v", err)
	}
	if got := sim.Register16(ERXRDPT); got != 0x01FF {
		t.Fatalf("ERXRDPT = 0x%04X, want 0x01FF", got)
	}

	if err := chip.AdvanceReadPointer(ring, 0x1C00); err == nil {
		t.Fatalf("expected rejection")
	}
	if got := sim.Register16(ERXRDPT); got != 0x01FF {
		t.Fatalf("rejected pointer reached the chip: ERXRDPT = 0x%04X", got)
	}
}
