//go:build linux

package netdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// TapDevice is a Linux TAP interface carrying raw Ethernet frames
type TapDevice struct {
	name string
	file *os.File
}

// NewTapDevice creates or attaches to the TAP interface name. An empty name
// lets the kernel pick one.
func NewTapDevice(name string) (*TapDevice, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("netdev: open /dev/net/tun: %w", err)
	}
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netdev: %q: %w", name, err)
	}
	ifr.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netdev: TUNSETIFF %q: %w", name, err)
	}
	// Non-blocking so reads park in the runtime poller and Close wakes them.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netdev: %s: %w", ifr.Name(), err)
	}
	return &TapDevice{
		name: ifr.Name(),
		file: os.NewFile(uintptr(fd), "/dev/net/tun"),
	}, nil
}

// Name is the interface name the kernel assigned
func (t *TapDevice) Name() string {
	return t.name
}

func (t *TapDevice) ReadPacket() ([]byte, error) {
	buf := make([]byte, maxHostFrame)
	n, err := t.file.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("netdev: read %s: %w", t.name, err)
	}
	return buf[:n], nil
}

func (t *TapDevice) WritePacket(frame []byte) error {
	if _, err := t.file.Write(frame); err != nil {
		return fmt.Errorf("netdev: write %s: %w", t.name, err)
	}
	return nil
}

func (t *TapDevice) Close() error {
	return t.file.Close()
}
