package enc28j60

// SPI instruction set. The three-bit opcode sits in the top of the first byte,
// the five-bit argument (register address or constant) in the bottom.
const (
	opRCR = 0x00 // read control register
	opRBM = 0x3A // read buffer memory
	opWCR = 0x40 // write control register
	opWBM = 0x7A // write buffer memory
	opBFS = 0x80 // bit field set
	opBFC = 0xA0 // bit field clear
	opSRC = 0xFF // system reset command
)

const addrMask = 0x1F

func encode(op, addr byte) byte {
	return op | (addr & addrMask)
}
