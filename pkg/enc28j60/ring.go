package enc28j60

import "fmt"

// MemorySize is the size of the on-chip packet SRAM
const MemorySize = 8192

// Window is an inclusive range of buffer memory addresses
type Window struct {
	Start uint16
	End   uint16
}

// Size returns the number of bytes covered by the window
func (w Window) Size() int {
	return int(w.End) - int(w.Start) + 1
}

// Contains reports whether addr lies inside the window
func (w Window) Contains(addr uint16) bool {
	return addr >= w.Start && addr <= w.End
}

func (w Window) overlaps(o Window) bool {
	return w.Start <= o.End && o.Start <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("0x%04X-0x%04X", w.Start, w.End)
}

// Default partition: the receive ring takes the low 6.5 KB, leaving room for
// one full frame plus control byte and status vector in the transmit window.
var (
	DefaultRxWindow = Window{Start: 0x0000, End: 0x19FF}
	DefaultTxWindow = Window{Start: 0x1A00, End: 0x1FFF}
)

// ValidateLayout checks that rx and tx partition the SRAM exactly and that
// the receive ring starts on an even address with an even size, since the
// chip only writes packets at even offsets
func ValidateLayout(rx, tx Window) error {
	for _, w := range []Window{rx, tx} {
		if w.Start > w.End || int(w.End) >= MemorySize {
			return fmt.Errorf("%w: window %s", ErrBadLayout, w)
		}
	}
	if rx.overlaps(tx) {
		return fmt.Errorf("%w: rx %s overlaps tx %s", ErrBadLayout, rx, tx)
	}
	if rx.Size()+tx.Size() != MemorySize {
		return fmt.Errorf("%w: rx %s and tx %s do not cover %d bytes", ErrBadLayout, rx, tx, MemorySize)
	}
	if rx.Start%2 != 0 || rx.Size()%2 != 0 {
		return fmt.Errorf("%w: rx %s must start even with an even size", ErrBadLayout, rx)
	}
	return nil
}

// Ring tracks the receive ring bounds, the host read pointer and the
// transmit window
type Ring struct {
	RxStart   uint16
	RxEnd     uint16
	RxReadPtr uint16
	TxStart   uint16
	TxEnd     uint16
}

// NewRing validates the layout and returns a ring with the read pointer at
// the start of the receive window
func NewRing(rx, tx Window) (*Ring, error) {
	if err := ValidateLayout(rx, tx); err != nil {
		return nil, err
	}
	return &Ring{
		RxStart:   rx.Start,
		RxEnd:     rx.End,
		RxReadPtr: rx.Start,
		TxStart:   tx.Start,
		TxEnd:     tx.End,
	}, nil
}

// Size returns the receive ring size in bytes
func (r *Ring) Size() int {
	return int(r.RxEnd) - int(r.RxStart) + 1
}

// Contains reports whether ptr lies inside the receive ring
func (r *Ring) Contains(ptr uint16) bool {
	return ptr >= r.RxStart && ptr <= r.RxEnd
}

// Wrap folds an offset that may have run past RxEnd back into the ring
func (r *Ring) Wrap(ptr int) uint16 {
	size := r.Size()
	off := (ptr - int(r.RxStart)) % size
	if off < 0 {
		off += size
	}
	return uint16(int(r.RxStart) + off)
}

// Distance returns the number of bytes from 'from' forward to 'to' inside
// the ring
func (r *Ring) Distance(from, to uint16) int {
	d := int(to) - int(from)
	if d < 0 {
		d += r.Size()
	}
	return d
}

// FreeSpace returns how many bytes the chip may still write before reaching
// the host read pointer, given its write pointer
func (r *Ring) FreeSpace(writePtr uint16) int {
	return r.Size() - r.Distance(r.RxReadPtr, writePtr) - 1
}

// HardwareReadPtr is the ERXRDPT value matching RxReadPtr. Errata require an
// odd value, so it trails the host pointer by one byte.
func (r *Ring) HardwareReadPtr() uint16 {
	if r.RxReadPtr == r.RxStart {
		return r.RxEnd
	}
	return r.RxReadPtr - 1
}

// Advance commits next as the new read pointer. A pointer outside the ring or
// at an odd offset is rejected and the ring is left untouched.
func (r *Ring) Advance(next uint16) error {
	if !r.Contains(next) || (next-r.RxStart)%2 != 0 {
		return &InvalidPointerError{Ptr: next, Start: r.RxStart, End: r.RxEnd}
	}
	r.RxReadPtr = next
	return nil
}

// Reset moves the read pointer back to the start of the ring
func (r *Ring) Reset() {
	r.RxReadPtr = r.RxStart
}

// alignNext rounds a next-packet pointer up to even, wrapping to RxStart
// when rounding steps just past RxEnd. Pointers outside the ring are
// returned as is for Advance to reject.
func (r *Ring) alignNext(next uint16) uint16 {
	if next%2 == 0 || !r.Contains(next) {
		return next
	}
	if next == r.RxEnd {
		return r.RxStart
	}
	return next + 1
}

// InitRing programs the receive ring bounds, the read pointers and the
// transmit start, and returns the ring state recorded for later use
func (c *Chip) InitRing(rx, tx Window) (*Ring, error) {
	ring, err := NewRing(rx, tx)
	if err != nil {
		return nil, err
	}
	if err := c.programRing(ring); err != nil {
		return nil, err
	}
	if err := c.WriteRegister16(ETXST, ring.TxStart); err != nil {
		return nil, err
	}
	return ring, nil
}

func (c *Chip) programRing(ring *Ring) error {
	if err := c.WriteRegister16(ERXST, ring.RxStart); err != nil {
		return err
	}
	if err := c.WriteRegister16(ERXND, ring.RxEnd); err != nil {
		return err
	}
	if err := c.WriteRegister16(ERXRDPT, ring.HardwareReadPtr()); err != nil {
		return err
	}
	return c.WriteRegister16(ERDPT, ring.RxReadPtr)
}

// AdvanceReadPointer validates next and, when accepted, commits it to the
// ring and frees the consumed space on the chip
func (c *Chip) AdvanceReadPointer(ring *Ring, next uint16) error {
	if err := ring.Advance(next); err != nil {
		return err
	}
	return c.WriteRegister16(ERXRDPT, ring.HardwareReadPtr())
}

// PacketCount returns the number of received packets not yet released
func (c *Chip) PacketCount() (int, error) {
	v, err := c.ReadRegister(EPKTCNT)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
