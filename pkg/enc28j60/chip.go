package enc28j60

import (
	"fmt"
	"net"
	"time"

	"github.com/OpenTraceLab/encspi/pkg/spi"
)

// Chip is the register access layer. It owns the bus session and the cached
// bank selection. A Chip is not safe for concurrent use; the Driver is its
// single point of serialization.
type Chip struct {
	bus  spi.Bus
	bank Bank

	maxTransfer int
	resetDelay  time.Duration
	pollLimit   int

	sleep func(time.Duration)
}

// NewChip wraps bus. The bank cache starts unknown so the first banked
// access always selects explicitly.
func NewChip(bus spi.Bus) *Chip {
	return &Chip{
		bus:         bus,
		bank:        bankUnknown,
		maxTransfer: bus.Info().MaxTransfer,
		resetDelay:  2 * time.Millisecond,
		pollLimit:   100,
		sleep:       time.Sleep,
	}
}

func (c *Chip) configure(cfg *Config) {
	c.resetDelay = cfg.ResetDelay
	c.pollLimit = cfg.PollLimit
}

// Bus returns the underlying bus
func (c *Chip) Bus() spi.Bus {
	return c.bus
}

// Bank returns the cached bank selection
func (c *Chip) Bank() Bank {
	return c.bank
}

func (c *Chip) tx(op string, w, r []byte) error {
	if err := c.bus.Tx(w, r); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return nil
}

func (c *Chip) selectBank(b Bank) error {
	if b == BankCommon || b == c.bank {
		return nil
	}
	if err := c.tx("bank select", []byte{encode(opBFC, ECON1.Addr), ECON1BSel1 | ECON1BSel0}, nil); err != nil {
		c.bank = bankUnknown
		return err
	}
	if b != Bank0 {
		if err := c.tx("bank select", []byte{encode(opBFS, ECON1.Addr), byte(b)}, nil); err != nil {
			c.bank = bankUnknown
			return err
		}
	}
	c.bank = b
	return nil
}

// ReadRegister reads one control register, switching banks first if needed
func (c *Chip) ReadRegister(reg Register) (byte, error) {
	if err := c.selectBank(reg.Bank); err != nil {
		return 0, err
	}
	n := 2
	if reg.MAC {
		n = 3
	}
	w := make([]byte, n)
	r := make([]byte, n)
	w[0] = encode(opRCR, reg.Addr)
	if err := c.tx("read "+reg.Name, w, r); err != nil {
		return 0, err
	}
	return r[n-1], nil
}

// WriteRegister writes one control register. Writes to ECON1 keep the
// current bank selection bits.
func (c *Chip) WriteRegister(reg Register, v byte) error {
	if err := c.selectBank(reg.Bank); err != nil {
		return err
	}
	if reg.Addr != ECON1.Addr {
		return c.tx("write "+reg.Name, []byte{encode(opWCR, reg.Addr), v}, nil)
	}
	if c.bank <= Bank3 {
		v = v&^(ECON1BSel1|ECON1BSel0) | byte(c.bank)
	}
	if err := c.tx("write ECON1", []byte{encode(opWCR, reg.Addr), v}, nil); err != nil {
		c.bank = bankUnknown
		return err
	}
	c.bank = Bank(v & (ECON1BSel1 | ECON1BSel0))
	return nil
}

// SetBits ORs mask into an ETH register
func (c *Chip) SetBits(reg Register, mask byte) error {
	if err := c.bitField(opBFS, reg, mask); err != nil {
		return err
	}
	if reg.Addr == ECON1.Addr && c.bank <= Bank3 {
		c.bank |= Bank(mask & (ECON1BSel1 | ECON1BSel0))
	}
	return nil
}

// ClearBits clears mask in an ETH register
func (c *Chip) ClearBits(reg Register, mask byte) error {
	if err := c.bitField(opBFC, reg, mask); err != nil {
		return err
	}
	if reg.Addr == ECON1.Addr && c.bank <= Bank3 {
		c.bank &^= Bank(mask & (ECON1BSel1 | ECON1BSel0))
	}
	return nil
}

func (c *Chip) bitField(op byte, reg Register, mask byte) error {
	if reg.MAC {
		return fmt.Errorf("enc28j60: bit field operation on MAC/MII register %s", reg.Name)
	}
	if err := c.selectBank(reg.Bank); err != nil {
		return err
	}
	name := "set bits "
	if op == opBFC {
		name = "clear bits "
	}
	return c.tx(name+reg.Name, []byte{encode(op, reg.Addr), mask}, nil)
}

// ReadRegister16 reads a low/high register pair
func (c *Chip) ReadRegister16(reg Register16) (uint16, error) {
	lo, err := c.ReadRegister(reg.Low)
	if err != nil {
		return 0, err
	}
	hi, err := c.ReadRegister(reg.High)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// WriteRegister16 writes the low byte then the high byte
func (c *Chip) WriteRegister16(reg Register16, v uint16) error {
	if err := c.WriteRegister(reg.Low, byte(v)); err != nil {
		return err
	}
	return c.WriteRegister(reg.High, byte(v>>8))
}

// bufferChunk is the largest payload carried in one buffer memory transfer
func (c *Chip) bufferChunk() int {
	if c.maxTransfer <= 1 {
		return 0
	}
	return c.maxTransfer - 1
}

// ReadBuffer reads n bytes of buffer memory at ERDPT
func (c *Chip) ReadBuffer(n int) ([]byte, error) {
	p := make([]byte, n)
	if err := c.ReadBufferInto(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadBufferInto fills p from buffer memory at ERDPT. Long reads are split
// into several transfers; the chip keeps auto-incrementing ERDPT between them.
func (c *Chip) ReadBufferInto(p []byte) error {
	off := 0
	for _, n := range spi.Chunks(len(p), c.bufferChunk()) {
		w := make([]byte, n+1)
		r := make([]byte, n+1)
		w[0] = opRBM
		if err := c.tx("read buffer", w, r); err != nil {
			return err
		}
		copy(p[off:], r[1:])
		off += n
	}
	return nil
}

// WriteBuffer writes p to buffer memory at EWRPT
func (c *Chip) WriteBuffer(p []byte) error {
	off := 0
	for _, n := range spi.Chunks(len(p), c.bufferChunk()) {
		w := make([]byte, n+1)
		w[0] = opWBM
		copy(w[1:], p[off:off+n])
		if err := c.tx("write buffer", w, nil); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// Reset issues the system reset opcode, waits for the oscillator to settle
// and checks the revision register
func (c *Chip) Reset() (Revision, error) {
	if err := c.tx("reset", []byte{opSRC}, nil); err != nil {
		c.bank = bankUnknown
		return 0, err
	}
	c.sleep(c.resetDelay)
	c.bank = Bank0

	v, err := c.ReadRegister(EREVID)
	if err != nil {
		return 0, err
	}
	if !responding(v) {
		return Revision(v), &ChipNotRespondingError{Revision: v}
	}
	return Revision(v), nil
}

// maadr lists the address registers in station address byte order
var maadr = [6]Register{MAADR1, MAADR2, MAADR3, MAADR4, MAADR5, MAADR6}

// SetMACAddress programs the station address
func (c *Chip) SetMACAddress(mac net.HardwareAddr) error {
	if len(mac) != 6 {
		return fmt.Errorf("enc28j60: MAC address %s is not 6 bytes", mac)
	}
	for i, reg := range maadr {
		if err := c.WriteRegister(reg, mac[i]); err != nil {
			return err
		}
	}
	return nil
}

// MACAddress reads the station address back from the chip
func (c *Chip) MACAddress() (net.HardwareAddr, error) {
	mac := make(net.HardwareAddr, 6)
	for i, reg := range maadr {
		v, err := c.ReadRegister(reg)
		if err != nil {
			return nil, err
		}
		mac[i] = v
	}
	return mac, nil
}
