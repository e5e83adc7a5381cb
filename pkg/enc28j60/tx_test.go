package enc28j60

import (
	"errors"
	"testing"
)

func TestTxStatusVectorDecode(t *testing.T) {
	var v TxStatusVector
	v[0], v[1] = 0x44, 0x00 // 68 bytes
	v[2] = 0x03
	v[4], v[5] = 0x10, 0x01
	v.setBit(tsvDone)
	v.setBit(tsvBroadcast)

	if v.ByteCount() != 68 || v.TotalBytes() != 0x0110 || v.Collisions() != 3 {
		t.Fatalf("counts: %s total=%d", v, v.TotalBytes())
	}
	if !v.Done() || !v.Broadcast() || v.Multicast() || v.Aborted() || v.LateCollision() {
		t.Fatalf("flags: %s", v)
	}
	if v[2] != 0x83 {
		t.Fatalf("byte 2 = 0x%02X, want 0x83", v[2])
	}
}

func TestTxFailureClassification(t *testing.T) {
	var late, abort, deferred, clean TxStatusVector
	late.setBit(tsvLateCollision)
	abort.setBit(tsvExcessiveCollision)
	deferred.setBit(tsvExcessiveDefer)
	clean.setBit(tsvDone)

	cases := []struct {
		name   string
		tsv    TxStatusVector
		estat  byte
		want   error
		failed bool
	}{
		{"clean", clean, 0, nil, false},
		{"late tsv", late, 0, ErrTxLateCollision, true},
		{"late estat", clean, ESTATLateCol, ErrTxLateCollision, true},
		{"abort tsv", abort, 0, ErrTxAbort, true},
		{"defer tsv", deferred, 0, ErrTxAbort, true},
		{"abort estat", clean, ESTATTxAbrt, ErrTxAbort, true},
		{"late wins", abort, ESTATLateCol, ErrTxLateCollision, true},
	}
	for _, tc := range cases {
		err := classifyTx(tc.tsv, tc.estat)
		if (err != nil) != tc.failed {
			t.Errorf("%s: err = %v", tc.name, err)
			continue
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestTxDescriptor(t *testing.T) {
	d := TxDescriptor{StartPtr: 0x1A00, Length: 64}
	if d.End() != 0x1A40 || d.StatusPtr() != 0x1A41 {
		t.Fatalf("End = 0x%04X, StatusPtr = 0x%04X", d.End(), d.StatusPtr())
	}
}

func TestMaxPayload(t *testing.T) {
	def, _ := NewRing(DefaultRxWindow, DefaultTxWindow)
	if got := maxPayload(def, 1518); got != 1514 {
		t.Fatalf("default layout = %d, want 1514", got)
	}
	small, err := NewRing(Window{0x0000, 0x1EFF}, Window{0x1F00, 0x1FFF})
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	if got := maxPayload(small, 1518); got != 256-1-tsvLen {
		t.Fatalf("small window = %d", got)
	}
}

func TestTransmitLoadsWindow(t *testing.T) {
	chip, sim := newTestChip(t)
	ring, err := chip.InitRing(DefaultRxWindow, DefaultTxWindow)
	if err != nil {
		t.Fatalf("InitRing: %v", err)
	}
	payload := []byte("0123456789abcdef")
	desc, err := chip.startTransmit(ring, payload)
	if err != nil {
		t.Fatalf("startTransmit: %v", err)
	}
	mem := sim.Memory(0x1A00, 1+len(payload))
	if mem[0] != controlUseMACON3 || string(mem[1:]) != string(payload) {
		t.Fatalf("window = % X", mem)
	}
	if sim.Register16(ETXST) != 0x1A00 || sim.Register16(ETXND) != 0x1A00+uint16(len(payload)) {
		t.Fatalf("ETXST/ETXND = 0x%04X/0x%04X", sim.Register16(ETXST), sim.Register16(ETXND))
	}

	tsv, err := chip.finishTransmit(desc)
	if err != nil {
		t.Fatalf("finishTransmit: %v", err)
	}
	if !tsv.Done() || tsv.ByteCount() != 64 {
		t.Fatalf("tsv = %s, want done with a padded 64 byte frame", tsv)
	}
	if sim.Register(EIR)&EIRTxIF != 0 {
		t.Fatalf("TXIF not cleared")
	}
}
