//go:build linux

package irq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const sysfsGPIO = "/sys/class/gpio"

// waitSlice bounds each epoll wait so Wait notices ctx and Close
const waitSlice = 100 * time.Millisecond

// GPIO is a sysfs GPIO input configured for falling edge interrupts. The
// ENC28J60 INT pin is active low.
type GPIO struct {
	pin   int
	value *os.File
	epfd  int

	mu     sync.Mutex
	closed bool
}

// OpenGPIO exports pin if needed, configures it as a falling edge input and
// arms epoll on its value file
func OpenGPIO(pin int) (*GPIO, error) {
	dir := filepath.Join(sysfsGPIO, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(sysfsGPIO, "export"), []byte(strconv.Itoa(pin)), 0); err != nil {
			return nil, fmt.Errorf("irq: export gpio%d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0); err != nil {
		return nil, fmt.Errorf("irq: gpio%d direction: %w", pin, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "edge"), []byte("falling"), 0); err != nil {
		return nil, fmt.Errorf("irq: gpio%d edge: %w", pin, err)
	}

	value, err := os.Open(filepath.Join(dir, "value"))
	if err != nil {
		return nil, fmt.Errorf("irq: gpio%d value: %w", pin, err)
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		value.Close()
		return nil, fmt.Errorf("irq: epoll create: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(value.Fd())}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(value.Fd()), &ev); err != nil {
		unix.Close(epfd)
		value.Close()
		return nil, fmt.Errorf("irq: epoll ctl: %w", err)
	}

	g := &GPIO{pin: pin, value: value, epfd: epfd}
	// The first poll after open always reports; consume it.
	if err := g.ack(); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// ack reads the value file, which re-arms the edge
func (g *GPIO) ack() error {
	var buf [2]byte
	if _, err := g.value.Seek(0, 0); err != nil {
		return fmt.Errorf("irq: gpio%d: %w", g.pin, err)
	}
	if _, err := g.value.Read(buf[:]); err != nil {
		return fmt.Errorf("irq: gpio%d: %w", g.pin, err)
	}
	return nil
}

func (g *GPIO) Wait(ctx context.Context) error {
	events := make([]unix.EpollEvent, 1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		closed := g.closed
		g.mu.Unlock()
		if closed {
			return ErrClosed
		}

		n, err := unix.EpollWait(g.epfd, events, int(waitSlice/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("irq: epoll wait: %w", err)
		}
		if n > 0 {
			return g.ack()
		}
	}
}

func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	unix.Close(g.epfd)
	return g.value.Close()
}
