package enc28j60

import "fmt"

// Revision is the silicon revision read from EREVID
type Revision byte

var revisionNames = map[Revision]string{
	0x02: "B1",
	0x04: "B4",
	0x05: "B5",
	0x06: "B7",
}

// Known reports whether the revision is one Microchip documented
func (r Revision) Known() bool {
	_, ok := revisionNames[r]
	return ok
}

// Name returns the silicon revision name, or "unknown"
func (r Revision) Name() string {
	if name, ok := revisionNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Revision) String() string {
	return fmt.Sprintf("%s (0x%02X)", r.Name(), byte(r))
}

// responding reports whether an EREVID value came from a live chip. A
// floating or shorted MISO reads as all ones or all zeros.
func responding(v byte) bool {
	return v != 0x00 && v != 0xFF
}
