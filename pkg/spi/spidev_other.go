//go:build !linux

package spi

// Spidev is only available on Linux
type Spidev struct{}

// OpenSpidev reports ErrNotImplemented off Linux
func OpenSpidev(path string, speedHz int) (*Spidev, error) {
	return nil, ErrNotImplemented
}

func (s *Spidev) Info() BusInfo        { return BusInfo{Kind: InterfaceKindSpidev} }
func (s *Spidev) Tx(w, r []byte) error { return ErrNotImplemented }
func (s *Spidev) Close() error         { return nil }
