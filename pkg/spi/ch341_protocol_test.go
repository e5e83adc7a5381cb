package spi

import (
	"bytes"
	"testing"
)

func TestReverseBits(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0x00,
		0x01: 0x80,
		0x1F: 0xF8,
		0x3A: 0x5C,
		0xFF: 0xFF,
	}
	for in, want := range cases {
		if got := ReverseBits(in); got != want {
			t.Errorf("ReverseBits(%02X) = %02X, want %02X", in, got, want)
		}
		if got := ReverseBits(ReverseBits(in)); got != in {
			t.Errorf("ReverseBits twice(%02X) = %02X", in, got)
		}
	}
}

func TestEncodeSPIStreamSplitsPackets(t *testing.T) {
	p := NewCH341Protocol(PacketLength)
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}

	packets := p.EncodeSPIStream(data)
	if len(packets) != 2 {
		t.Fatalf("len(packets) = %d, want 2", len(packets))
	}
	if len(packets[0]) != PacketLength || len(packets[1]) != 40-31+1 {
		t.Fatalf("packet sizes = %d, %d", len(packets[0]), len(packets[1]))
	}
	for _, pkt := range packets {
		if pkt[0] != CmdSPIStream {
			t.Fatalf("packet command = %02X, want %02X", pkt[0], CmdSPIStream)
		}
	}
	if packets[0][2] != ReverseBits(0x01) {
		t.Fatalf("payload not bit-reversed: %02X", packets[0][2])
	}

	decoded := p.DecodeSPIStream(packets[1][1:])
	if !bytes.Equal(decoded, data[31:]) {
		t.Fatalf("decoded = %X, want %X", decoded, data[31:])
	}
}

func TestEncodeChipSelect(t *testing.T) {
	p := NewCH341Protocol(0)
	if p.PacketSize != PacketLength {
		t.Fatalf("PacketSize = %d, want %d", p.PacketSize, PacketLength)
	}

	assert := p.EncodeChipSelect(true)
	if assert[0] != CmdUIOStream || assert[1] != UIOStreamOut|0x36 {
		t.Fatalf("assert = %X", assert)
	}
	release := p.EncodeChipSelect(false)
	if release[1] != UIOStreamOut|0x37 || release[len(release)-1] != UIOStreamEnd {
		t.Fatalf("release = %X", release)
	}

	speed := p.EncodeSpeed(SpeedFast)
	if !bytes.Equal(speed, []byte{CmdI2CStream, I2CStreamSet | SpeedFast, I2CStreamEnd}) {
		t.Fatalf("speed = %X", speed)
	}
}
