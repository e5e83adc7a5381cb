package enc28j60

import (
	"crypto/rand"
	"fmt"
	"net"
	"time"
)

// Handler types. The driver runs them on its own delivery goroutine, one at
// a time and in event order, never with the chip lock held. A handler may
// call back into the driver, including Transmit, Close and Open.
type (
	RxHandler    func(frame []byte)
	LinkHandler  func(up bool)
	FaultHandler func(err error)
)

// Config controls driver bring-up and the receive pipeline
type Config struct {
	// Station address. A random locally administered address is generated
	// by Validate when empty.
	MAC net.HardwareAddr

	FullDuplex  bool
	Promiscuous bool

	// KeepFCS leaves the 4-byte frame check sequence on received frames.
	KeepFCS bool

	// SRAM partition. The two windows must cover the 8 KB buffer exactly.
	RxWindow Window
	TxWindow Window

	MaxFrameLen int           // programmed into MAMXFL, FCS included (default: 1518)
	RxBudget    int           // packets drained per dispatch pass (default: 16)
	ResetDelay  time.Duration // settle time after the reset opcode (default: 2ms)
	PollLimit   int           // bound on MII busy and RXBUSY polling (default: 100)

	// DropLogLimit caps how many dropped-packet messages are logged over
	// the driver lifetime (default: 32).
	DropLogLimit uint32

	RxHandler    RxHandler
	LinkHandler  LinkHandler
	FaultHandler FaultHandler
}

// DefaultConfig returns the configuration used when no options are given
func DefaultConfig() Config {
	return Config{
		RxWindow:     DefaultRxWindow,
		TxWindow:     DefaultTxWindow,
		MaxFrameLen:  1518,
		RxBudget:     16,
		ResetDelay:   2 * time.Millisecond,
		PollLimit:    100,
		DropLogLimit: 32,
	}
}

// Validate normalizes zero values and checks the buffer layout and MAC
func (c *Config) Validate() error {
	if c.MaxFrameLen <= 0 {
		c.MaxFrameLen = 1518
	}
	if c.MaxFrameLen < minFrameLen || c.MaxFrameLen > 0xFFFF {
		return fmt.Errorf("enc28j60: max frame length %d out of range", c.MaxFrameLen)
	}
	if c.RxBudget < 1 {
		c.RxBudget = 16
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = 2 * time.Millisecond
	}
	if c.PollLimit < 1 {
		c.PollLimit = 100
	}
	if c.RxWindow == (Window{}) && c.TxWindow == (Window{}) {
		c.RxWindow, c.TxWindow = DefaultRxWindow, DefaultTxWindow
	}
	if err := ValidateLayout(c.RxWindow, c.TxWindow); err != nil {
		return err
	}

	if len(c.MAC) == 0 {
		mac, err := RandomMAC()
		if err != nil {
			return err
		}
		c.MAC = mac
	}
	if len(c.MAC) != 6 {
		return fmt.Errorf("enc28j60: MAC address %s is not 6 bytes", c.MAC)
	}
	if c.MAC[0]&0x01 != 0 {
		return fmt.Errorf("enc28j60: MAC address %s is multicast", c.MAC)
	}
	return nil
}

// RandomMAC returns a random unicast, locally administered address
func RandomMAC() (net.HardwareAddr, error) {
	mac := make(net.HardwareAddr, 6)
	if _, err := rand.Read(mac); err != nil {
		return nil, fmt.Errorf("enc28j60: generate MAC: %w", err)
	}
	mac[0] = mac[0]&^0x01 | 0x02
	return mac, nil
}

// Option is a functional option for configuring the Driver
type Option func(*Config)

// WithConfig replaces the whole configuration
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithMAC sets the station address
func WithMAC(mac net.HardwareAddr) Option {
	return func(c *Config) {
		c.MAC = append(net.HardwareAddr(nil), mac...)
	}
}

// WithFullDuplex selects full duplex on both MAC and PHY
func WithFullDuplex(full bool) Option {
	return func(c *Config) {
		c.FullDuplex = full
	}
}

// WithPromiscuous disables the receive filters
func WithPromiscuous(on bool) Option {
	return func(c *Config) {
		c.Promiscuous = on
	}
}

// WithKeepFCS delivers received frames with their trailing CRC
func WithKeepFCS(keep bool) Option {
	return func(c *Config) {
		c.KeepFCS = keep
	}
}

// WithLayout sets the receive ring and transmit window
func WithLayout(rx, tx Window) Option {
	return func(c *Config) {
		c.RxWindow = rx
		c.TxWindow = tx
	}
}

// WithRxBudget bounds the packets drained per interrupt pass
func WithRxBudget(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RxBudget = n
		}
	}
}

// WithResetDelay overrides the post-reset settle time
func WithResetDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResetDelay = d
		}
	}
}

// WithRxHandler sets the callback receiving frames in chip order
func WithRxHandler(h RxHandler) Option {
	return func(c *Config) {
		c.RxHandler = h
	}
}

// WithLinkHandler sets the callback invoked on PHY link changes
func WithLinkHandler(h LinkHandler) Option {
	return func(c *Config) {
		c.LinkHandler = h
	}
}

// WithFaultHandler sets the callback invoked when the driver enters the
// fault state
func WithFaultHandler(h FaultHandler) Option {
	return func(c *Config) {
		c.FaultHandler = h
	}
}
