package enc28j60

import (
	"encoding/binary"
	"fmt"
)

const (
	tsvLen = 7

	// controlUseMACON3 makes the chip apply the MACON3 padding and CRC
	// settings to the frame.
	controlUseMACON3 = 0x00
)

// TxDescriptor describes the single frame loaded into the transmit window
type TxDescriptor struct {
	StartPtr uint16
	Length   uint16 // payload bytes, control byte excluded
	Control  byte
}

// End is the ETXND value: the address of the last payload byte
func (d TxDescriptor) End() uint16 {
	return d.StartPtr + d.Length
}

// StatusPtr is where the chip writes the transmit status vector
func (d TxDescriptor) StatusPtr() uint16 {
	return d.End() + 1
}

// TxStatusVector is the 7-byte status the chip writes after a transmission
type TxStatusVector [tsvLen]byte

// Status bits, numbered as in the datasheet across the vector
const (
	tsvCRCError           = 20
	tsvLengthCheck        = 21
	tsvLengthOutOfRange   = 22
	tsvDone               = 23
	tsvMulticast          = 24
	tsvBroadcast          = 25
	tsvDefer              = 26
	tsvExcessiveDefer     = 27
	tsvExcessiveCollision = 28
	tsvLateCollision      = 29
	tsvGiant              = 30
	tsvUnderrun           = 31
)

func (v TxStatusVector) bit(n uint) bool {
	return v[n/8]&(1<<(n%8)) != 0
}

func (v *TxStatusVector) setBit(n uint) {
	v[n/8] |= 1 << (n % 8)
}

// ByteCount is the number of bytes in the frame, padding and CRC included
func (v TxStatusVector) ByteCount() int {
	return int(binary.LittleEndian.Uint16(v[0:2]))
}

// TotalBytes counts every byte put on the wire, including collided attempts
func (v TxStatusVector) TotalBytes() int {
	return int(binary.LittleEndian.Uint16(v[4:6]))
}

// Collisions is the number of collisions seen while transmitting
func (v TxStatusVector) Collisions() int {
	return int(v[2] & 0x0F)
}

func (v TxStatusVector) Done() bool      { return v.bit(tsvDone) }
func (v TxStatusVector) CRCError() bool  { return v.bit(tsvCRCError) }
func (v TxStatusVector) Broadcast() bool { return v.bit(tsvBroadcast) }
func (v TxStatusVector) Multicast() bool { return v.bit(tsvMulticast) }
func (v TxStatusVector) Aborted() bool {
	return v.bit(tsvExcessiveCollision) || v.bit(tsvExcessiveDefer)
}
func (v TxStatusVector) LateCollision() bool { return v.bit(tsvLateCollision) }
func (v TxStatusVector) Underrun() bool      { return v.bit(tsvUnderrun) }
func (v TxStatusVector) Giant() bool         { return v.bit(tsvGiant) }

func (v TxStatusVector) String() string {
	return fmt.Sprintf("bytes=%d collisions=%d done=%t abort=%t latecol=%t",
		v.ByteCount(), v.Collisions(), v.Done(), v.Aborted(), v.LateCollision())
}

// maxPayload returns the largest payload the transmit window and the
// configured frame length accept. The chip appends the 4-byte CRC.
func maxPayload(ring *Ring, maxFrameLen int) int {
	n := maxFrameLen - fcsLen
	room := int(ring.TxEnd) - int(ring.TxStart) + 1 - 1 - tsvLen
	if room < n {
		n = room
	}
	return n
}

// startTransmit loads payload into the transmit window and sets TXRTS
func (c *Chip) startTransmit(ring *Ring, payload []byte) (TxDescriptor, error) {
	desc := TxDescriptor{StartPtr: ring.TxStart, Length: uint16(len(payload)), Control: controlUseMACON3}

	// Errata: the transmit logic can stall after an error, reset it before
	// every frame.
	if err := c.SetBits(ECON1, ECON1TxRst); err != nil {
		return desc, err
	}
	if err := c.ClearBits(ECON1, ECON1TxRst); err != nil {
		return desc, err
	}
	if err := c.ClearBits(EIR, EIRTxIF|EIRTxErIF); err != nil {
		return desc, err
	}

	if err := c.WriteRegister16(EWRPT, desc.StartPtr); err != nil {
		return desc, err
	}
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, desc.Control)
	buf = append(buf, payload...)
	if err := c.WriteBuffer(buf); err != nil {
		return desc, err
	}
	if err := c.WriteRegister16(ETXST, desc.StartPtr); err != nil {
		return desc, err
	}
	if err := c.WriteRegister16(ETXND, desc.End()); err != nil {
		return desc, err
	}
	return desc, c.SetBits(ECON1, ECON1TxRTS)
}

// readTSV reads the status vector written after the frame
func (c *Chip) readTSV(desc TxDescriptor) (TxStatusVector, error) {
	var tsv TxStatusVector
	if err := c.WriteRegister16(ERDPT, desc.StatusPtr()); err != nil {
		return tsv, err
	}
	if err := c.ReadBufferInto(tsv[:]); err != nil {
		return tsv, err
	}
	return tsv, nil
}

// txFailure inspects a status vector and ESTAT snapshot for transmit errors
func txFailure(tsv TxStatusVector, estat byte) (TxErrorKind, bool) {
	switch {
	case tsv.LateCollision() || estat&ESTATLateCol != 0:
		return TxLateCollision, true
	case tsv.Aborted() || estat&ESTATTxAbrt != 0:
		return TxAbort, true
	}
	return 0, false
}

// classifyTx returns the TxError for a failed frame, or nil
func classifyTx(tsv TxStatusVector, estat byte) error {
	if kind, failed := txFailure(tsv, estat); failed {
		return &TxError{Kind: kind, Status: tsv}
	}
	return nil
}

// finishTransmit handles TXIF: read the status vector and report the
// outcome of the frame
func (c *Chip) finishTransmit(desc TxDescriptor) (TxStatusVector, error) {
	if err := c.ClearBits(EIR, EIRTxIF); err != nil {
		return TxStatusVector{}, err
	}
	tsv, err := c.readTSV(desc)
	if err != nil {
		return tsv, err
	}
	estat, err := c.ReadRegister(ESTAT)
	if err != nil {
		return tsv, err
	}
	return tsv, classifyTx(tsv, estat)
}

// recoverTx handles TXERIF and aborted sends: reset the transmit logic,
// drop the request bit and clear the error flags. It returns the typed
// transmit failure, or a bus error.
func (c *Chip) recoverTx(desc TxDescriptor) (*TxError, error) {
	estat, err := c.ReadRegister(ESTAT)
	if err != nil {
		return nil, err
	}
	tsv, err := c.readTSV(desc)
	if err != nil {
		return nil, err
	}
	if err := c.SetBits(ECON1, ECON1TxRst); err != nil {
		return nil, err
	}
	if err := c.ClearBits(ECON1, ECON1TxRst|ECON1TxRTS); err != nil {
		return nil, err
	}
	if err := c.ClearBits(EIR, EIRTxErIF|EIRTxIF); err != nil {
		return nil, err
	}
	if err := c.ClearBits(ESTAT, ESTATLateCol|ESTATTxAbrt); err != nil {
		return nil, err
	}
	kind, failed := txFailure(tsv, estat)
	if !failed {
		kind = TxAbort
	}
	return &TxError{Kind: kind, Status: tsv}, nil
}

// abortTransmit cancels an in-flight frame through the error recovery path
func (c *Chip) abortTransmit(desc TxDescriptor) error {
	if err := c.ClearBits(ECON1, ECON1TxRTS); err != nil {
		return err
	}
	_, err := c.recoverTx(desc)
	return err
}
