package enc28j60

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	headerLen   = 6
	fcsLen      = 4
	minFrameLen = 14 + fcsLen
)

// RxStatus is the receive status vector stored after each packet's byte count
type RxStatus uint16

const (
	RxLongDropEvent    RxStatus = 1 << 0
	RxCarrierEvent     RxStatus = 1 << 2
	RxCRCError         RxStatus = 1 << 4
	RxLengthCheckError RxStatus = 1 << 5
	RxLengthOutOfRange RxStatus = 1 << 6
	RxOK               RxStatus = 1 << 7
	RxMulticast        RxStatus = 1 << 8
	RxBroadcast        RxStatus = 1 << 9
	RxDribbleNibble    RxStatus = 1 << 10
	RxControlFrame     RxStatus = 1 << 11
	RxPauseFrame       RxStatus = 1 << 12
	RxUnknownOpcode    RxStatus = 1 << 13
	RxVLAN             RxStatus = 1 << 14
)

var rxStatusNames = []struct {
	bit  RxStatus
	name string
}{
	{RxLongDropEvent, "long-drop"},
	{RxCarrierEvent, "carrier"},
	{RxCRCError, "crc"},
	{RxLengthCheckError, "len-check"},
	{RxLengthOutOfRange, "len-range"},
	{RxOK, "ok"},
	{RxMulticast, "mcast"},
	{RxBroadcast, "bcast"},
	{RxDribbleNibble, "dribble"},
	{RxControlFrame, "ctrl"},
	{RxPauseFrame, "pause"},
	{RxUnknownOpcode, "unknown-op"},
	{RxVLAN, "vlan"},
}

// OK reports whether the chip flagged the packet as received correctly
func (s RxStatus) OK() bool {
	return s&RxOK != 0
}

func (s RxStatus) String() string {
	var parts []string
	for _, n := range rxStatusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// PacketHeader precedes every packet in the receive ring
type PacketHeader struct {
	NextPacketPtr uint16
	ByteCount     uint16
	Status        RxStatus
}

// ParsePacketHeader decodes the 6-byte little-endian header
func ParsePacketHeader(b []byte) (PacketHeader, error) {
	if len(b) < headerLen {
		return PacketHeader{}, fmt.Errorf("enc28j60: short packet header (%d bytes)", len(b))
	}
	return PacketHeader{
		NextPacketPtr: binary.LittleEndian.Uint16(b[0:2]),
		ByteCount:     binary.LittleEndian.Uint16(b[2:4]),
		Status:        RxStatus(binary.LittleEndian.Uint16(b[4:6])),
	}, nil
}

// Bytes encodes the header in chip order
func (h PacketHeader) Bytes() []byte {
	b := make([]byte, headerLen)
	binary.LittleEndian.PutUint16(b[0:2], h.NextPacketPtr)
	binary.LittleEndian.PutUint16(b[2:4], h.ByteCount)
	binary.LittleEndian.PutUint16(b[4:6], uint16(h.Status))
	return b
}

// validate checks the byte count and status of a header
func (h PacketHeader) validate(maxLen int) error {
	n := int(h.ByteCount)
	if n < minFrameLen || n > maxLen {
		return &InvalidPacketLengthError{Length: n, Max: maxLen}
	}
	if !h.Status.OK() {
		return fmt.Errorf("enc28j60: receive status %s", h.Status)
	}
	return nil
}

// rxBatch is the outcome of one receive pass
type rxBatch struct {
	frames       [][]byte
	bytes        int
	lengthErrors int
	statusErrors int
	more         bool
}

// receive drains up to budget packets from the ring in chip order. Packets
// failing validation are skipped without touching the frames already
// collected. A corrupted next pointer stops the pass with an
// InvalidPointerError and leaves the ring at the last good packet.
func (c *Chip) receive(ring *Ring, cfg *Config, drop func(PacketHeader, error)) (rxBatch, error) {
	var batch rxBatch
	for i := 0; i < cfg.RxBudget; i++ {
		count, err := c.PacketCount()
		if err != nil {
			return batch, err
		}
		if count == 0 {
			return batch, nil
		}

		if err := c.WriteRegister16(ERDPT, ring.RxReadPtr); err != nil {
			return batch, err
		}
		raw, err := c.ReadBuffer(headerLen)
		if err != nil {
			return batch, err
		}
		hdr, _ := ParsePacketHeader(raw)

		if verr := hdr.validate(cfg.MaxFrameLen); verr != nil {
			var lenErr *InvalidPacketLengthError
			if errors.As(verr, &lenErr) {
				batch.lengthErrors++
			} else {
				batch.statusErrors++
			}
			drop(hdr, verr)
		} else {
			payload, err := c.ReadBuffer(int(hdr.ByteCount))
			if err != nil {
				return batch, err
			}
			if !cfg.KeepFCS {
				payload = payload[:len(payload)-fcsLen]
			}
			batch.frames = append(batch.frames, payload)
			batch.bytes += len(payload)
		}

		if err := c.AdvanceReadPointer(ring, ring.alignNext(hdr.NextPacketPtr)); err != nil {
			return batch, err
		}
		if err := c.SetBits(ECON2, ECON2PktDec); err != nil {
			return batch, err
		}
	}

	count, err := c.PacketCount()
	if err != nil {
		return batch, err
	}
	batch.more = count > 0
	return batch, nil
}
