package enc28j60

import (
	"fmt"
	"strings"
)

// InterruptStatus is the EIR snapshot taken at the start of a dispatch pass,
// together with the pending packet count. PKTIF is unreliable on some
// revisions, so a non-zero count alone also means receive work.
type InterruptStatus struct {
	Flags       byte
	PacketCount int
}

func (s InterruptStatus) String() string {
	return fmt.Sprintf("EIR=0x%02X EPKTCNT=%d", s.Flags, s.PacketCount)
}

// knownFlags are the EIR bits with a dedicated action
const knownFlags = EIRPktIF | EIRLinkIF | EIRTxIF | EIRTxErIF | EIRRxErIF

// Action is one step of a dispatch pass
type Action uint8

const (
	ActionRecoverOverrun Action = iota
	ActionRecoverTxError
	ActionCompleteTx
	ActionReceive
	ActionLinkChange
	ActionClearUnknown
	ActionRecoverRing
)

var actionNames = map[Action]string{
	ActionRecoverOverrun: "RecoverOverrun",
	ActionRecoverTxError: "RecoverTxError",
	ActionCompleteTx:     "CompleteTx",
	ActionReceive:        "Receive",
	ActionLinkChange:     "LinkChange",
	ActionClearUnknown:   "ClearUnknown",
	ActionRecoverRing:    "RecoverRing",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", a)
}

// dispatchRule maps a condition on the status snapshot to an action. Rules
// are evaluated in table order.
type dispatchRule struct {
	action Action
	match  func(InterruptStatus) bool
}

var dispatchTable = []dispatchRule{
	{ActionRecoverOverrun, func(s InterruptStatus) bool { return s.Flags&EIRRxErIF != 0 }},
	{ActionRecoverTxError, func(s InterruptStatus) bool { return s.Flags&EIRTxErIF != 0 }},
	{ActionCompleteTx, func(s InterruptStatus) bool { return s.Flags&EIRTxIF != 0 }},
	{ActionReceive, func(s InterruptStatus) bool {
		// Overrun recovery flushes the ring, nothing is left to read.
		return s.Flags&EIRRxErIF == 0 && (s.Flags&EIRPktIF != 0 || s.PacketCount > 0)
	}},
	{ActionLinkChange, func(s InterruptStatus) bool { return s.Flags&EIRLinkIF != 0 }},
	{ActionClearUnknown, func(s InterruptStatus) bool { return s.Flags&^knownFlags != 0 }},
}

// Plan returns the ordered actions for a status snapshot
func Plan(s InterruptStatus) []Action {
	var actions []Action
	for _, rule := range dispatchTable {
		if rule.match(s) {
			actions = append(actions, rule.action)
		}
	}
	return actions
}

// FormatPlan renders a plan for logs
func FormatPlan(actions []Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.String()
	}
	return strings.Join(names, ",")
}

// interruptStatus reads EIR and EPKTCNT
func (c *Chip) interruptStatus() (InterruptStatus, error) {
	flags, err := c.ReadRegister(EIR)
	if err != nil {
		return InterruptStatus{}, err
	}
	count, err := c.PacketCount()
	if err != nil {
		return InterruptStatus{}, err
	}
	return InterruptStatus{Flags: flags, PacketCount: count}, nil
}

// RecoverOverrun restores the receive ring after RXERIF: stop reception,
// reset the receive logic, re-program the ring with the read pointer back at
// RxStart, release every queued packet, clear the flag and restart
// reception. The result is read back before reporting success.
func (c *Chip) RecoverOverrun(ring *Ring) error {
	if err := c.ClearBits(ECON1, ECON1RxEn); err != nil {
		return err
	}
	if err := c.waitRxIdle(); err != nil {
		return err
	}
	if err := c.SetBits(ECON1, ECON1RxRst); err != nil {
		return err
	}
	if err := c.ClearBits(ECON1, ECON1RxRst); err != nil {
		return err
	}

	ring.Reset()
	if err := c.programRing(ring); err != nil {
		return err
	}
	if err := c.drainPackets(); err != nil {
		return err
	}
	if err := c.ClearBits(EIR, EIRRxErIF); err != nil {
		return err
	}
	if err := c.SetBits(ECON1, ECON1RxEn); err != nil {
		return err
	}
	return c.verifyRing(ring)
}

func (c *Chip) waitRxIdle() error {
	for i := 0; i < c.pollLimit; i++ {
		v, err := c.ReadRegister(ESTAT)
		if err != nil {
			return err
		}
		if v&ESTATRxBusy == 0 {
			return nil
		}
	}
	return fmt.Errorf("enc28j60: receiver still busy after %d polls", c.pollLimit)
}

// drainPackets decrements EPKTCNT to zero
func (c *Chip) drainPackets() error {
	count, err := c.PacketCount()
	if err != nil {
		return err
	}
	for ; count > 0; count-- {
		if err := c.SetBits(ECON2, ECON2PktDec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chip) verifyRing(ring *Ring) error {
	rdpt, err := c.ReadRegister16(ERXRDPT)
	if err != nil {
		return err
	}
	if rdpt != ring.HardwareReadPtr() {
		return fmt.Errorf("enc28j60: ERXRDPT reads 0x%04X after recovery, want 0x%04X", rdpt, ring.HardwareReadPtr())
	}
	econ1, err := c.ReadRegister(ECON1)
	if err != nil {
		return err
	}
	if econ1&ECON1RxEn == 0 {
		return fmt.Errorf("enc28j60: receive not re-enabled after recovery")
	}
	return nil
}
