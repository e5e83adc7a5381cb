package spi

// CH341A command bytes. The bridge has no native SPI opcode set; chip-select
// and pin direction go through the UIO stream, clock rate through the I2C
// stream, and data through the SPI stream.
const (
	CmdSPIStream = 0xA8
	CmdI2CStream = 0xAA
	CmdUIOStream = 0xAB
)

// I2C stream sub-commands used for configuration
const (
	I2CStreamSet = 0x60
	I2CStreamEnd = 0x00
)

// UIO stream sub-commands
const (
	UIOStreamOut = 0x80
	UIOStreamDir = 0x40
	UIOStreamEnd = 0x20
)

// UIO pin masks: D0 is CS0, D3 is SCK, D5 is MOSI
const (
	uioPinsIdle   = 0x37 // all chip selects high, SCK low, data high
	uioPinsCS0Low = 0x36
	uioPinsOutput = 0x3F
)

// Speed selectors understood by the I2C stream set command. The SPI clock
// follows the same divider.
const (
	SpeedLow    = 0x00
	SpeedNormal = 0x01
	SpeedFast   = 0x02
	SpeedHigh   = 0x03
)

// PacketLength is the CH341A bulk packet size
const PacketLength = 32

// CH341Protocol handles encoding/decoding of CH341A stream packets
type CH341Protocol struct {
	PacketSize int
}

// NewCH341Protocol creates a new protocol handler
func NewCH341Protocol(packetSize int) *CH341Protocol {
	if packetSize <= 0 {
		packetSize = PacketLength
	}
	return &CH341Protocol{PacketSize: packetSize}
}

// EncodeSpeed builds the stream configuration packet
func (p *CH341Protocol) EncodeSpeed(sel byte) []byte {
	return []byte{CmdI2CStream, I2CStreamSet | (sel & 0x07), I2CStreamEnd}
}

// EncodeEnablePins drives the bridge pins to idle and sets their direction
func (p *CH341Protocol) EncodeEnablePins(enable bool) []byte {
	dir := byte(0x00)
	if enable {
		dir = uioPinsOutput
	}
	return []byte{CmdUIOStream, UIOStreamOut | uioPinsIdle, UIOStreamDir | dir, UIOStreamEnd}
}

// EncodeChipSelect asserts or releases CS0
func (p *CH341Protocol) EncodeChipSelect(assert bool) []byte {
	if assert {
		return []byte{CmdUIOStream, UIOStreamOut | uioPinsCS0Low, UIOStreamDir | uioPinsOutput, UIOStreamEnd}
	}
	return []byte{CmdUIOStream, UIOStreamOut | uioPinsIdle, UIOStreamEnd}
}

// EncodeSPIStream splits data into SPI stream packets. Each packet carries the
// stream command followed by up to PacketSize-1 bit-reversed bytes.
func (p *CH341Protocol) EncodeSPIStream(data []byte) [][]byte {
	per := p.PacketSize - 1
	var packets [][]byte
	for off := 0; off < len(data); off += per {
		end := off + per
		if end > len(data) {
			end = len(data)
		}
		pkt := make([]byte, 0, end-off+1)
		pkt = append(pkt, CmdSPIStream)
		for _, b := range data[off:end] {
			pkt = append(pkt, ReverseBits(b))
		}
		packets = append(packets, pkt)
	}
	return packets
}

// DecodeSPIStream restores bit order of the bytes read back for one stream
// packet
func (p *CH341Protocol) DecodeSPIStream(resp []byte) []byte {
	out := make([]byte, len(resp))
	for i, b := range resp {
		out[i] = ReverseBits(b)
	}
	return out
}

// ReverseBits mirrors a byte: the CH341 shifts LSB first while SPI
// peripherals such as the ENC28J60 expect MSB first
func ReverseBits(b byte) byte {
	b = (b&0xF0)>>4 | (b&0x0F)<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}
