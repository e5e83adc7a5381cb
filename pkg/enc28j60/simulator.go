package enc28j60

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sync"

	"github.com/OpenTraceLab/encspi/pkg/spi"
)

// Errors reported by Simulator.Inject.
var (
	ErrSimRxDisabled = errors.New("enc28j60 simulator: reception disabled")
	ErrSimOverrun    = errors.New("enc28j60 simulator: receive buffer full")
)

const (
	commonBase = 0x1B
	eieSources = EIEPktIE | EIEDMAIE | EIELinkIE | EIETxIE | EIETxErIE | EIERxErIE
)

// Simulator models an ENC28J60 behind a spi.SimBus: banked registers, the
// buffer memory with receive ring wrap, MII access to the PHY, transmission
// with status vectors, packet injection and the INT line.
type Simulator struct {
	mu sync.Mutex

	banked [4][commonBase]byte
	common [5]byte
	mem    [MemorySize]byte
	phy    [0x20]uint16

	rev  byte
	link bool

	sent        [][]byte
	holdTx      bool
	pendingTx   bool
	failArmed   bool
	failKind    TxErrorKind
	busErr      error
	intAsserted bool
	onInterrupt func()

	bus *spi.SimBus
}

// NewSimulator returns a powered-up chip reporting revision rev with the
// link up
func NewSimulator(rev byte) *Simulator {
	s := &Simulator{rev: rev, link: true}
	s.reset()
	s.bus = spi.NewSimBus(spi.BusInfo{
		Name:        "ENC28J60 simulator",
		Kind:        spi.InterfaceKindSim,
		SpeedHz:     20_000_000,
		MaxSpeedHz:  20_000_000,
		MaxTransfer: 64,
		HasIRQ:      true,
	})
	s.bus.OnTransfer = s.transfer
	return s
}

// Bus returns the bus the simulated chip is attached to
func (s *Simulator) Bus() *spi.SimBus {
	return s.bus
}

// SetInterruptHandler registers fn to be called on every falling edge of INT
func (s *Simulator) SetInterruptHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInterrupt = fn
}

// FailTransfers makes every following transfer fail with err. A nil err
// restores normal operation.
func (s *Simulator) FailTransfers(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busErr = err
}

func (s *Simulator) transfer(w []byte) ([]byte, error) {
	s.mu.Lock()
	if err := s.busErr; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	out := make([]byte, len(w))
	s.execute(w, out)
	fire, cb := s.updateInt()
	s.mu.Unlock()
	if fire && cb != nil {
		cb()
	}
	return out, nil
}

func (s *Simulator) execute(w, out []byte) {
	switch {
	case w[0] == opSRC:
		s.reset()
		return
	case w[0] == opRBM:
		for i := 1; i < len(w); i++ {
			out[i] = s.readMem()
		}
		return
	case w[0] == opWBM:
		for i := 1; i < len(w); i++ {
			s.writeMem(w[i])
		}
		return
	}
	if len(w) < 2 {
		return
	}

	addr := w[0] & addrMask
	switch w[0] &^ addrMask {
	case opRCR:
		v := s.readReg(addr)
		if s.isMAC(addr) {
			if len(w) >= 3 {
				out[2] = v
			}
		} else {
			out[1] = v
		}
	case opWCR:
		s.writeReg(addr, w[1])
	case opBFS:
		if !s.isMAC(addr) {
			s.writeReg(addr, s.raw(addr)|w[1])
		}
	case opBFC:
		if !s.isMAC(addr) {
			s.writeReg(addr, s.raw(addr)&^w[1])
		}
	}
}

func (s *Simulator) reset() {
	s.banked = [4][commonBase]byte{}
	s.common = [5]byte{}
	s.common[ECON2.Addr-commonBase] = ECON2AutoInc
	s.common[ESTAT.Addr-commonBase] = ESTATClkRdy

	s.set16(ERDPT, 0x05FA)
	s.set16(ERXST, 0x05FA)
	s.set16(ERXND, 0x1FFF)
	s.set16(ERXRDPT, 0x05FA)
	s.banked[Bank1][ERXFCON.Addr] = ERXFCONUCEn | ERXFCONCRCEn | ERXFCONBCEn
	s.set16(MAMXFL, 0x0600)
	s.banked[Bank3][EREVID.Addr] = s.rev

	s.phy = [0x20]uint16{}
	s.phy[PHID1.Addr] = 0x0083
	s.phy[PHID2.Addr] = 0x1400
	s.phy[PHLCON.Addr] = 0x3422
	s.updateLinkStatus()

	s.pendingTx = false
	s.intAsserted = false
}

func (s *Simulator) bank() Bank {
	return Bank(s.common[ECON1.Addr-commonBase] & (ECON1BSel1 | ECON1BSel0))
}

func (s *Simulator) isMAC(addr byte) bool {
	if addr >= commonBase {
		return false
	}
	b := s.bank()
	return b == Bank2 || (b == Bank3 && addr <= MISTAT.Addr)
}

// raw returns the stored register value in the current bank
func (s *Simulator) raw(addr byte) byte {
	if addr >= commonBase {
		return s.common[addr-commonBase]
	}
	return s.banked[s.bank()][addr]
}

func (s *Simulator) readReg(addr byte) byte {
	return s.raw(addr)
}

func (s *Simulator) writeReg(addr, v byte) {
	if addr >= commonBase {
		s.writeCommon(addr, v)
		return
	}
	b := s.bank()
	switch {
	case b == Bank0 && (addr == ERXWRPTL.Addr || addr == ERXWRPTH.Addr):
		return
	case b == Bank1 && addr == EPKTCNT.Addr:
		return
	case b == Bank3 && (addr == EREVID.Addr || addr == MISTAT.Addr):
		return
	}
	s.banked[b][addr] = v

	switch {
	case b == Bank0 && (addr == ERXSTL.Addr || addr == ERXSTH.Addr):
		s.set16(ERXWRPT, s.get16(ERXST))
	case b == Bank2 && addr == MICMD.Addr && v&MICMDMIIRd != 0:
		s.miiRead()
	case b == Bank2 && addr == MIWRH.Addr:
		s.miiWrite()
	}
}

func (s *Simulator) writeCommon(addr, v byte) {
	i := addr - commonBase
	old := s.common[i]
	switch addr {
	case EIR.Addr:
		v = v&^EIRPktIF | old&EIRPktIF
	case ESTAT.Addr:
		// Only LATECOL and TXABRT are writable, and only to clear them.
		soft := byte(ESTATLateCol | ESTATTxAbrt)
		v = old&^soft | old&v&soft
	case ECON2.Addr:
		if v&ECON2PktDec != 0 {
			s.decrementPacketCount()
		}
		v &^= ECON2PktDec
	}
	s.common[i] = v

	if addr != ECON1.Addr {
		return
	}
	if v&ECON1RxRst != 0 {
		s.set16(ERXWRPT, s.get16(ERXST))
	}
	if v&ECON1TxRst != 0 {
		s.pendingTx = false
	}
	switch {
	case old&ECON1TxRTS == 0 && v&ECON1TxRTS != 0 && v&ECON1TxRst == 0:
		if s.holdTx {
			s.pendingTx = true
		} else {
			s.completeTx()
		}
	case old&ECON1TxRTS != 0 && v&ECON1TxRTS == 0:
		s.pendingTx = false
	}
}

func (s *Simulator) get16(r Register16) uint16 {
	return uint16(s.banked[r.High.Bank][r.High.Addr])<<8 | uint16(s.banked[r.Low.Bank][r.Low.Addr])
}

func (s *Simulator) set16(r Register16, v uint16) {
	s.banked[r.Low.Bank][r.Low.Addr] = byte(v)
	s.banked[r.High.Bank][r.High.Addr] = byte(v >> 8)
}

func (s *Simulator) autoInc() bool {
	return s.common[ECON2.Addr-commonBase]&ECON2AutoInc != 0
}

func (s *Simulator) readMem() byte {
	ptr := s.get16(ERDPT) % MemorySize
	v := s.mem[ptr]
	if s.autoInc() {
		if ptr == s.get16(ERXND) {
			ptr = s.get16(ERXST)
		} else {
			ptr = (ptr + 1) % MemorySize
		}
		s.set16(ERDPT, ptr)
	}
	return v
}

func (s *Simulator) writeMem(v byte) {
	ptr := s.get16(EWRPT) % MemorySize
	s.mem[ptr] = v
	if s.autoInc() {
		s.set16(EWRPT, (ptr+1)%MemorySize)
	}
}

func (s *Simulator) setFlags(mask byte) {
	s.common[EIR.Addr-commonBase] |= mask
}

func (s *Simulator) clearFlags(mask byte) {
	s.common[EIR.Addr-commonBase] &^= mask
}

func (s *Simulator) decrementPacketCount() {
	n := s.banked[Bank1][EPKTCNT.Addr]
	if n > 0 {
		n--
		s.banked[Bank1][EPKTCNT.Addr] = n
	}
	if n == 0 {
		s.clearFlags(EIRPktIF)
	}
}

// updateInt recomputes the INT line and reports a new assertion
func (s *Simulator) updateInt() (bool, func()) {
	eie := s.common[EIE.Addr-commonBase]
	eir := s.common[EIR.Addr-commonBase]
	asserted := eie&EIEIntIE != 0 && eir&eie&eieSources != 0

	estat := &s.common[ESTAT.Addr-commonBase]
	if asserted {
		*estat |= ESTATInt
	} else {
		*estat &^= ESTATInt
	}
	fire := asserted && !s.intAsserted
	s.intAsserted = asserted
	return fire, s.onInterrupt
}

func (s *Simulator) completeTx() {
	start, end := s.get16(ETXST), s.get16(ETXND)
	var frame []byte
	for p := int(start) + 1; p <= int(end); p++ {
		frame = append(frame, s.mem[p%MemorySize])
	}

	wire := len(frame)
	if wire < 60 {
		wire = 60
	}
	wire += fcsLen

	var tsv TxStatusVector
	binary.LittleEndian.PutUint16(tsv[0:2], uint16(wire))
	binary.LittleEndian.PutUint16(tsv[4:6], uint16(wire))
	tsv.setBit(tsvDone)
	if len(frame) > 0 && frame[0]&0x01 != 0 {
		if isBroadcast(frame) {
			tsv.setBit(tsvBroadcast)
		} else {
			tsv.setBit(tsvMulticast)
		}
	}

	estat := &s.common[ESTAT.Addr-commonBase]
	if s.failArmed {
		s.failArmed = false
		switch s.failKind {
		case TxLateCollision:
			tsv.setBit(tsvLateCollision)
			*estat |= ESTATLateCol
		default:
			tsv.setBit(tsvExcessiveCollision)
			tsv[2] |= 0x0F
			*estat |= ESTATTxAbrt
		}
		s.setFlags(EIRTxErIF)
	} else {
		s.sent = append(s.sent, frame)
		s.setFlags(EIRTxIF)
	}
	for i, b := range tsv {
		s.mem[(int(end)+1+i)%MemorySize] = b
	}
	s.common[ECON1.Addr-commonBase] &^= ECON1TxRTS
	s.pendingTx = false
}

func isBroadcast(frame []byte) bool {
	if len(frame) < 6 {
		return false
	}
	for _, b := range frame[:6] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func (s *Simulator) miiRead() {
	addr := s.banked[Bank2][MIREGADR.Addr] & 0x1F
	v := s.phy[addr]
	if addr == PHIR.Addr {
		s.phy[addr] = 0
		s.clearFlags(EIRLinkIF)
	}
	s.banked[Bank2][MIRDL.Addr] = byte(v)
	s.banked[Bank2][MIRDH.Addr] = byte(v >> 8)
}

func (s *Simulator) miiWrite() {
	addr := s.banked[Bank2][MIREGADR.Addr] & 0x1F
	v := uint16(s.banked[Bank2][MIWRH.Addr])<<8 | uint16(s.banked[Bank2][MIWRL.Addr])
	switch addr {
	case PHSTAT1.Addr, PHSTAT2.Addr, PHID1.Addr, PHID2.Addr, PHIR.Addr:
		return
	case PHCON1.Addr:
		if v&PHCON1PRst != 0 {
			return
		}
	}
	s.phy[addr] = v
}

func (s *Simulator) updateLinkStatus() {
	if s.link {
		s.phy[PHSTAT1.Addr] |= PHSTAT1LLStat
		s.phy[PHSTAT2.Addr] |= PHSTAT2LStat
	} else {
		s.phy[PHSTAT1.Addr] &^= PHSTAT1LLStat
		s.phy[PHSTAT2.Addr] &^= PHSTAT2LStat
	}
}

// SetLink changes the cable state. With PHY link interrupts enabled the
// change raises EIR.LINKIF.
func (s *Simulator) SetLink(up bool) {
	s.mu.Lock()
	s.link = up
	s.updateLinkStatus()
	phie := s.phy[PHIE.Addr]
	if phie&PHIEPLnkIE != 0 {
		s.phy[PHIR.Addr] |= PHIRPLnkIF
		if phie&PHIEPGEIE != 0 {
			s.setFlags(EIRLinkIF)
		}
	}
	fire, cb := s.updateInt()
	s.mu.Unlock()
	if fire && cb != nil {
		cb()
	}
}

// Inject delivers a frame from the wire. The simulator appends the FCS,
// writes header and frame at ERXWRPT and raises PKTIF. When the ring has
// no room, RXERIF is raised instead and ErrSimOverrun returned.
func (s *Simulator) Inject(frame []byte) error {
	s.mu.Lock()
	err := s.inject(frame)
	fire, cb := s.updateInt()
	s.mu.Unlock()
	if fire && cb != nil {
		cb()
	}
	return err
}

func (s *Simulator) inject(frame []byte) error {
	if s.common[ECON1.Addr-commonBase]&ECON1RxEn == 0 {
		return ErrSimRxDisabled
	}
	if len(frame) == 0 {
		return errors.New("enc28j60 simulator: empty frame")
	}
	data := make([]byte, len(frame), len(frame)+fcsLen)
	copy(data, frame)
	data = binary.LittleEndian.AppendUint32(data, crc32.ChecksumIEEE(frame))

	st, nd := s.get16(ERXST), s.get16(ERXND)
	wr, rd := s.get16(ERXWRPT), s.get16(ERXRDPT)
	need := headerLen + len(data)
	if need%2 != 0 {
		need++
	}
	var free int
	switch {
	case wr > rd:
		free = int(nd-st) - int(wr-rd)
	case wr == rd:
		free = int(nd - st)
	default:
		free = int(rd) - int(wr) - 1
	}
	if need > free || s.banked[Bank1][EPKTCNT.Addr] == 0xFF {
		s.setFlags(EIRRxErIF)
		return ErrSimOverrun
	}

	size := int(nd) - int(st) + 1
	wrap := func(p int) uint16 {
		return uint16(int(st) + (p-int(st))%size)
	}
	next := wrap(int(wr) + need)

	status := RxOK
	if frame[0]&0x01 != 0 {
		if isBroadcast(frame) {
			status |= RxBroadcast
		} else {
			status |= RxMulticast
		}
	}
	hdr := PacketHeader{NextPacketPtr: next, ByteCount: uint16(len(data)), Status: status}
	for i, b := range append(hdr.Bytes(), data...) {
		s.mem[wrap(int(wr)+i)] = b
	}

	s.set16(ERXWRPT, next)
	s.banked[Bank1][EPKTCNT.Addr]++
	s.setFlags(EIRPktIF)
	return nil
}

// HoldTransmit keeps frames queued after TXRTS until released, so tests can
// observe the in-flight state
func (s *Simulator) HoldTransmit(hold bool) {
	s.mu.Lock()
	s.holdTx = hold
	if !hold && s.pendingTx && s.common[ECON1.Addr-commonBase]&ECON1TxRTS != 0 {
		s.completeTx()
	}
	fire, cb := s.updateInt()
	s.mu.Unlock()
	if fire && cb != nil {
		cb()
	}
}

// FailNextTransmit makes the next frame fail with kind (TxAbort or
// TxLateCollision)
func (s *Simulator) FailNextTransmit(kind TxErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failArmed = true
	s.failKind = kind
}

// Transmitted returns the frames sent successfully so far
func (s *Simulator) Transmitted() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	for i, f := range s.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Bank returns the bank currently selected in ECON1
func (s *Simulator) Bank() Bank {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank()
}

// Register returns a register value without side effects
func (s *Simulator) Register(r Register) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Addr >= commonBase {
		return s.common[r.Addr-commonBase]
	}
	return s.banked[r.Bank][r.Addr]
}

// Register16 returns a register pair value without side effects
func (s *Simulator) Register16(r Register16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get16(r)
}

// PHY returns a PHY register value without side effects
func (s *Simulator) PHY(r PHYRegister) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phy[r.Addr&0x1F]
}

// PacketCount returns EPKTCNT
func (s *Simulator) PacketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.banked[Bank1][EPKTCNT.Addr])
}

// Memory returns a copy of n bytes of buffer memory from addr
func (s *Simulator) Memory(addr uint16, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = s.mem[(int(addr)+i)%MemorySize]
	}
	return out
}

// WriteMemory overwrites buffer memory, e.g. to corrupt a packet header.
func (s *Simulator) WriteMemory(addr uint16, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range data {
		s.mem[(int(addr)+i)%MemorySize] = b
	}
}

// SetRevision changes the value EREVID reports
func (s *Simulator) SetRevision(rev byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev = rev
	s.banked[Bank3][EREVID.Addr] = rev
}

// InterruptAsserted reports the INT line state
func (s *Simulator) InterruptAsserted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intAsserted
}
