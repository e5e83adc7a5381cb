package spi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// CH341A USB identifiers
	VendorIDWCH     = 0x1A86
	ProductIDCH341A = 0x5512

	// The bridge exposes one bulk pipe in each direction on interface 0.
	EndpointOUT = 0x02
	EndpointIN  = 0x82

	DefaultTimeout = time.Second
)

var errShortRead = errors.New("spi: ch341 returned no data")

// bulkPipe is the pair of bulk endpoints a CH341A is driven through
type bulkPipe struct {
	usb     *gousb.Context
	dev     *gousb.Device
	release func()

	out *gousb.OutEndpoint
	in  *gousb.InEndpoint

	maxPacket int
	timeout   time.Duration
}

// openBulkPipe claims interface 0 of the first device matching vid:pid
func openBulkPipe(vid, pid uint16) (*bulkPipe, error) {
	usb := gousb.NewContext()
	dev, err := usb.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err == nil && dev == nil {
		err = fmt.Errorf("no device %04X:%04X", vid, pid)
	}
	if err != nil {
		usb.Close()
		return nil, err
	}

	// ch341 serial driver binds the interface on Linux.
	_ = dev.SetAutoDetach(true)

	p := &bulkPipe{usb: usb, dev: dev, maxPacket: PacketLength, timeout: DefaultTimeout}
	if err := p.claim(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *bulkPipe) claim() error {
	intf, release, err := p.dev.DefaultInterface()
	if err != nil {
		return fmt.Errorf("claim interface: %w", err)
	}
	p.release = release

	if p.out, err = intf.OutEndpoint(EndpointOUT & 0x0F); err != nil {
		return fmt.Errorf("endpoint 0x%02X: %w", EndpointOUT, err)
	}
	if p.in, err = intf.InEndpoint(EndpointIN & 0x0F); err != nil {
		return fmt.Errorf("endpoint 0x%02X: %w", EndpointIN, err)
	}
	if n := p.in.Desc.MaxPacketSize; n > 0 && n < p.maxPacket {
		p.maxPacket = n
	}
	return nil
}

func (p *bulkPipe) write(pkt []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if _, err := p.out.WriteContext(ctx, pkt); err != nil {
		return fmt.Errorf("usb write: %w", err)
	}
	return nil
}

// readFull fills buf, which may take several bulk packets
func (p *bulkPipe) readFull(buf []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for got := 0; got < len(buf); {
		n, err := p.in.ReadContext(ctx, buf[got:])
		if err != nil {
			return fmt.Errorf("usb read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w after %d of %d bytes", errShortRead, got, len(buf))
		}
		got += n
	}
	return nil
}

func (p *bulkPipe) Close() error {
	if p.release != nil {
		p.release()
		p.release = nil
	}
	if p.dev != nil {
		p.dev.Close()
		p.dev = nil
	}
	if p.usb != nil {
		p.usb.Close()
		p.usb = nil
	}
	return nil
}
