package enc28j60

// Counters are the driver statistics since New. They survive reopening.
type Counters struct {
	RxPackets      uint64
	RxBytes        uint64
	RxLengthErrors uint64
	RxStatusErrors uint64
	RxOverruns     uint64
	RingResets     uint64

	TxPackets        uint64
	TxBytes          uint64
	TxAborts         uint64
	TxLateCollisions uint64
	TxCancelled      uint64
	TxBusy           uint64

	LinkChanges uint64
	Faults      uint64
}

// RxDropped is the number of packets skipped by the receive pipeline
func (c Counters) RxDropped() uint64 {
	return c.RxLengthErrors + c.RxStatusErrors
}

// TxErrors is the number of frames that did not go out cleanly
func (c Counters) TxErrors() uint64 {
	return c.TxAborts + c.TxLateCollisions + c.TxCancelled
}

// Fields returns the counters as name/value pairs in a stable order
func (c Counters) Fields() []Field {
	return []Field{
		{"rx_packets", c.RxPackets},
		{"rx_bytes", c.RxBytes},
		{"rx_length_errors", c.RxLengthErrors},
		{"rx_status_errors", c.RxStatusErrors},
		{"rx_overruns", c.RxOverruns},
		{"ring_resets", c.RingResets},
		{"tx_packets", c.TxPackets},
		{"tx_bytes", c.TxBytes},
		{"tx_aborts", c.TxAborts},
		{"tx_late_collisions", c.TxLateCollisions},
		{"tx_cancelled", c.TxCancelled},
		{"tx_busy", c.TxBusy},
		{"link_changes", c.LinkChanges},
		{"faults", c.Faults},
	}
}

// Field is one named counter value
type Field struct {
	Name  string
	Value uint64
}

func (c *Counters) countTxError(err *TxError) {
	switch err.Kind {
	case TxAbort:
		c.TxAborts++
	case TxLateCollision:
		c.TxLateCollisions++
	case TxCancelled:
		c.TxCancelled++
	}
}
