package enc28j60

import (
	"errors"
	"testing"
)

func TestParsePacketHeader(t *testing.T) {
	raw := []byte{0x4A, 0x00, 0x44, 0x00, 0x80, 0x03}
	hdr, err := ParsePacketHeader(raw)
	if err != nil {
		t.Fatalf("ParsePacketHeader: %v", err)
	}
	want := PacketHeader{NextPacketPtr: 0x004A, ByteCount: 68, Status: RxOK | RxMulticast | RxBroadcast}
	if hdr != want {
		t.Fatalf("header = %+v, want %+v", hdr, want)
	}
	if string(hdr.Bytes()) != string(raw) {
		t.Fatalf("Bytes = % X", hdr.Bytes())
	}
	if _, err := ParsePacketHeader(raw[:5]); err == nil {
		t.Fatalf("short header accepted")
	}
}

func TestPacketHeaderValidate(t *testing.T) {
	cases := []struct {
		name    string
		hdr     PacketHeader
		lenErr  bool
		wantErr bool
	}{
		{"ok", PacketHeader{ByteCount: 64, Status: RxOK}, false, false},
		{"minimum", PacketHeader{ByteCount: 18, Status: RxOK}, false, false},
		{"maximum", PacketHeader{ByteCount: 1518, Status: RxOK}, false, false},
		{"runt", PacketHeader{ByteCount: 17, Status: RxOK}, true, true},
		{"zero", PacketHeader{ByteCount: 0, Status: RxOK}, true, true},
		{"giant", PacketHeader{ByteCount: 1519, Status: RxOK}, true, true},
		{"crc", PacketHeader{ByteCount: 64, Status: RxCRCError}, false, true},
	}
	for _, tc := range cases {
		err := tc.hdr.validate(1518)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v", tc.name, err)
			continue
		}
		var lenErr *InvalidPacketLengthError
		if errors.As(err, &lenErr) != tc.lenErr {
			t.Errorf("%s: length error = %v, want %v", tc.name, err, tc.lenErr)
		}
	}
}

func TestRxStatusString(t *testing.T) {
	if got := (RxOK | RxBroadcast).String(); got != "ok|bcast" {
		t.Fatalf("String = %q", got)
	}
	if got := RxStatus(0).String(); got != "none" {
		t.Fatalf("String = %q", got)
	}
}

func TestChipReceiveBudget(t *testing.T) {
	chip, sim := newTestChip(t)
	ring, err := chip.InitRing(DefaultRxWindow, DefaultTxWindow)
	if err != nil {
		t.Fatalf("InitRing: %v", err)
	}
	if err := chip.SetBits(ECON1, ECON1RxEn); err != nil {
		t.Fatalf("enable rx: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := sim.Inject(testFrame(60+i, byte(i))); err != nil {
			t.Fatalf("Inject: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.RxBudget = 2
	drop := func(PacketHeader, error) { t.Errorf("unexpected drop") }

	batch, err := chip.receive(ring, &cfg, drop)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(batch.frames) != 2 || !batch.more {
		t.Fatalf("first pass: %d frames, more=%v", len(batch.frames), batch.more)
	}
	if len(batch.frames[0]) != 60 || len(batch.frames[1]) != 61 {
		t.Fatalf("frame lengths %d, %d", len(batch.frames[0]), len(batch.frames[1]))
	}

	batch, err = chip.receive(ring, &cfg, drop)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(batch.frames) != 1 || batch.more || sim.PacketCount() != 0 {
		t.Fatalf("second pass: %d frames, more=%v, EPKTCNT=%d", len(batch.frames), batch.more, sim.PacketCount())
	}
	if sim.Register16(ERXRDPT) != ring.HardwareReadPtr() {
		t.Fatalf("ERXRDPT = 0x%04X, ring says 0x%04X", sim.Register16(ERXRDPT), ring.HardwareReadPtr())
	}
}
