package spi

import (
	"errors"
	"fmt"
)

// BusInfo describes capabilities reported by an SPI bus implementation
type BusInfo struct {
	Name        string
	Kind        InterfaceKind
	Path        string
	Mode        int
	SpeedHz     int
	MaxSpeedHz  int
	MaxTransfer int // largest single chip-select framed transfer, 0 means unlimited
	HasIRQ      bool
}

// Bus abstracts a physical or virtual SPI master wired to one chip select.
//
// Tx performs exactly one chip-select framed, full-duplex transfer: every
// byte of w is clocked out while the byte shifted in at the same position is
// stored in r. r may be nil for write-only transfers; otherwise it must be at
// least as long as w.
type Bus interface {
	Info() BusInfo
	Tx(w, r []byte) error
	Close() error
}

// ErrNotImplemented lets backends signal that a requested capability is not
// available on this host without relying on fmt.Errorf each time.
var ErrNotImplemented = errors.New("spi: not implemented")

// ErrClosed is returned by transfers issued after Close
var ErrClosed = errors.New("spi: bus closed")

// ValidateTransfer checks the buffer pair handed to Tx
func ValidateTransfer(w, r []byte) error {
	if len(w) == 0 {
		return fmt.Errorf("spi: empty transfer")
	}
	if r != nil && len(r) < len(w) {
		return fmt.Errorf("spi: rx buffer too short, need %d bytes, have %d", len(w), len(r))
	}
	return nil
}

// Chunks splits n bytes into pieces no larger than max. A max of zero or less
// yields a single chunk.
func Chunks(n, max int) []int {
	if n <= 0 {
		return nil
	}
	if max <= 0 || n <= max {
		return []int{n}
	}
	out := make([]int, 0, (n+max-1)/max)
	for n > 0 {
		c := max
		if n < c {
			c = n
		}
		out = append(out, c)
		n -= c
	}
	return out
}
