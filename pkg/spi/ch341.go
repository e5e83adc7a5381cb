package spi

import (
	"fmt"
	"sync"
)

// CH341Bus implements Bus on top of a CH341A USB bridge. The bridge has no
// interrupt input, so pair it with a polling interrupt line.
type CH341Bus struct {
	pipe     *bulkPipe
	protocol *CH341Protocol

	info   BusInfo
	closed bool

	mu sync.Mutex
}

// NewCH341Bus opens the first CH341A bridge and configures it for SPI mode 0
func NewCH341Bus(speed byte) (*CH341Bus, error) {
	pipe, err := openBulkPipe(VendorIDWCH, ProductIDCH341A)
	if err != nil {
		return nil, fmt.Errorf("open ch341: %w", err)
	}

	b := &CH341Bus{
		pipe:     pipe,
		protocol: NewCH341Protocol(pipe.maxPacket),
		info: BusInfo{
			Name:        "CH341A",
			Kind:        InterfaceKindCH341,
			Path:        fmt.Sprintf("usb:%04X:%04X", VendorIDWCH, ProductIDCH341A),
			MaxSpeedHz:  2_000_000,
			MaxTransfer: 4096,
		},
	}

	if err := b.send(b.protocol.EncodeSpeed(speed)); err != nil {
		pipe.Close()
		return nil, fmt.Errorf("failed to set speed: %w", err)
	}
	if err := b.send(b.protocol.EncodeEnablePins(true)); err != nil {
		pipe.Close()
		return nil, fmt.Errorf("failed to enable pins: %w", err)
	}

	return b, nil
}

func (b *CH341Bus) Info() BusInfo {
	return b.info
}

// Tx asserts CS0, streams w while capturing MISO into r and releases CS0
func (b *CH341Bus) Tx(w, r []byte) error {
	if err := ValidateTransfer(w, r); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if err := b.send(b.protocol.EncodeChipSelect(true)); err != nil {
		return fmt.Errorf("chip select failed: %w", err)
	}

	off := 0
	for _, pkt := range b.protocol.EncodeSPIStream(w) {
		if err := b.send(pkt); err != nil {
			b.send(b.protocol.EncodeChipSelect(false))
			return fmt.Errorf("spi stream failed: %w", err)
		}
		resp := make([]byte, len(pkt)-1)
		if err := b.pipe.readFull(resp); err != nil {
			b.send(b.protocol.EncodeChipSelect(false))
			return fmt.Errorf("spi stream failed: %w", err)
		}
		if r != nil {
			copy(r[off:], b.protocol.DecodeSPIStream(resp))
		}
		off += len(resp)
	}

	if err := b.send(b.protocol.EncodeChipSelect(false)); err != nil {
		return fmt.Errorf("chip release failed: %w", err)
	}
	return nil
}

func (b *CH341Bus) send(pkt []byte) error {
	return b.pipe.write(pkt)
}

// Close releases the pins and the USB device
func (b *CH341Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.send(b.protocol.EncodeEnablePins(false))
	return b.pipe.Close()
}
