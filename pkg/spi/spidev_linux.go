//go:build linux

package spi

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl requests, _IOW('k', nr, size)
const (
	spiIOCWrMode        = 0x40016B01
	spiIOCWrBitsPerWord = 0x40016B03
	spiIOCWrMaxSpeedHz  = 0x40046B04
	spiIOCMessage1      = 0x40206B00
)

// spidev limits a single message to its bufsiz module parameter
const spidevBufsiz = 4096

// spiIOCTransfer mirrors struct spi_ioc_transfer
type spiIOCTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// Spidev implements Bus on a Linux /dev/spidevB.C node.
type Spidev struct {
	mu   sync.Mutex
	fd   int
	info BusInfo
}

// OpenSpidev opens path in SPI mode 0 with 8-bit words at speedHz
func OpenSpidev(path string, speedHz int) (*Spidev, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	s := &Spidev{
		fd: fd,
		info: BusInfo{
			Name:        "spidev",
			Kind:        InterfaceKindSpidev,
			Path:        path,
			SpeedHz:     speedHz,
			MaxSpeedHz:  20_000_000,
			MaxTransfer: spidevBufsiz,
			HasIRQ:      true,
		},
	}

	mode := uint8(0)
	if err := s.ioctl(spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set mode on %s: %w", path, err)
	}
	bits := uint8(8)
	if err := s.ioctl(spiIOCWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set word size on %s: %w", path, err)
	}
	speed := uint32(speedHz)
	if err := s.ioctl(spiIOCWrMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set speed on %s: %w", path, err)
	}
	return s, nil
}

func (s *Spidev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (s *Spidev) Info() BusInfo {
	return s.info
}

func (s *Spidev) Tx(w, r []byte) error {
	if err := ValidateTransfer(w, r); err != nil {
		return err
	}
	if len(w) > spidevBufsiz {
		return fmt.Errorf("spi: transfer of %d bytes exceeds spidev limit %d", len(w), spidevBufsiz)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fd < 0 {
		return ErrClosed
	}

	rx := r
	if rx == nil {
		rx = make([]byte, len(w))
	}
	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(w)),
		speedHz:     uint32(s.info.SpeedHz),
		bitsPerWord: 8,
	}
	err := s.ioctl(spiIOCMessage1, unsafe.Pointer(&xfer))
	runtime.KeepAlive(w)
	runtime.KeepAlive(rx)
	if err != nil {
		return fmt.Errorf("spi: transfer on %s: %w", s.info.Path, err)
	}
	return nil
}

func (s *Spidev) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
