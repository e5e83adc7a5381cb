package enc28j60

import (
	"errors"
	"fmt"
)

var (
	// ErrRxOverrun reports that the receive ring filled before the host
	// drained it. It is recovered in place and only surfaces inside a
	// FaultError when recovery fails.
	ErrRxOverrun = errors.New("enc28j60: receive buffer overrun")

	ErrTxAbort         = errors.New("enc28j60: transmit aborted")
	ErrTxLateCollision = errors.New("enc28j60: transmit late collision")

	// ErrTxBusy is returned when a transmit is requested while another one is
	// still in flight. The chip has a single transmit buffer.
	ErrTxBusy = errors.New("enc28j60: transmitter busy")

	ErrFrameSize  = errors.New("enc28j60: invalid frame size")
	ErrClosed     = errors.New("enc28j60: driver closed")
	ErrNotOpen    = errors.New("enc28j60: driver not open")
	ErrFault      = errors.New("enc28j60: driver in fault state")
	ErrPHYTimeout = errors.New("enc28j60: MII operation timed out")
	ErrBadLayout  = errors.New("enc28j60: invalid buffer layout")
)

// TransportError wraps a bus failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("enc28j60: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ChipNotRespondingError is returned by Reset when the revision register
// reads back as all zeros or all ones
type ChipNotRespondingError struct {
	Revision byte
}

func (e *ChipNotRespondingError) Error() string {
	return fmt.Sprintf("enc28j60: chip not responding (EREVID=0x%02X)", e.Revision)
}

// TxErrorKind classifies a failed transmit
type TxErrorKind int

const (
	TxAbort TxErrorKind = iota
	TxLateCollision
	TxCancelled
)

func (k TxErrorKind) String() string {
	switch k {
	case TxAbort:
		return "abort"
	case TxLateCollision:
		return "late collision"
	case TxCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("TxErrorKind(%d)", int(k))
}

// TxError is returned by Transmit when the frame did not go out cleanly
type TxError struct {
	Kind   TxErrorKind
	Status TxStatusVector
	Err    error
}

func (e *TxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("enc28j60: transmit %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("enc28j60: transmit %s (tsv %s)", e.Kind, e.Status)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *TxError) Is(target error) bool {
	switch target {
	case ErrTxAbort:
		return e.Kind == TxAbort
	case ErrTxLateCollision:
		return e.Kind == TxLateCollision
	}
	return false
}

// InvalidPacketLengthError describes a receive header whose byte count is
// outside the accepted range
type InvalidPacketLengthError struct {
	Length int
	Max    int
}

func (e *InvalidPacketLengthError) Error() string {
	return fmt.Sprintf("enc28j60: invalid packet length %d (max %d)", e.Length, e.Max)
}

// InvalidPointerError describes a next-packet pointer that does not fall
// inside the receive ring
type InvalidPointerError struct {
	Ptr   uint16
	Start uint16
	End   uint16
}

func (e *InvalidPointerError) Error() string {
	return fmt.Sprintf("enc28j60: next packet pointer 0x%04X outside ring [0x%04X, 0x%04X]", e.Ptr, e.Start, e.End)
}

// FaultError is surfaced when a recovery sequence could not restore the chip.
// The driver must be reopened.
type FaultError struct {
	Cause error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("enc28j60: fault: %v", e.Cause)
}

func (e *FaultError) Unwrap() []error {
	return []error{ErrFault, e.Cause}
}
