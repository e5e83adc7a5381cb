package enc28j60

import (
	"fmt"
	"sort"
	"strings"
)

// Bank is one of the four 32-register control pages
type Bank uint8

const (
	Bank0 Bank = iota
	Bank1
	Bank2
	Bank3

	// BankCommon marks the registers mapped into every bank (0x1B-0x1F).
	BankCommon Bank = 0xFF
)

func (b Bank) String() string {
	if b == BankCommon {
		return "common"
	}
	return fmt.Sprintf("bank%d", uint8(b))
}

// bankUnknown is the cache value after a failed bank select
const bankUnknown Bank = 0xFE

// Register identifies one 8-bit control register
type Register struct {
	Name string
	Bank Bank
	Addr uint8
	// MAC and MII registers shift out a dummy byte before the data on RCR
	// and do not support the bit field opcodes.
	MAC bool
}

func (r Register) String() string {
	return r.Name
}

// Register16 is a low/high register pair holding a 16-bit pointer or value
type Register16 struct {
	Name string
	Low  Register
	High Register
}

// PHYRegister is a 16-bit PHY register reached through the MII interface
type PHYRegister struct {
	Name string
	Addr uint8
}

func eth(name string, bank Bank, addr uint8) Register {
	return Register{Name: name, Bank: bank, Addr: addr}
}

func mac(name string, bank Bank, addr uint8) Register {
	return Register{Name: name, Bank: bank, Addr: addr, MAC: true}
}

// Common registers
var (
	EIE   = eth("EIE", BankCommon, 0x1B)
	EIR   = eth("EIR", BankCommon, 0x1C)
	ESTAT = eth("ESTAT", BankCommon, 0x1D)
	ECON2 = eth("ECON2", BankCommon, 0x1E)
	ECON1 = eth("ECON1", BankCommon, 0x1F)
)

// Bank 0
var (
	ERDPTL   = eth("ERDPTL", Bank0, 0x00)
	ERDPTH   = eth("ERDPTH", Bank0, 0x01)
	EWRPTL   = eth("EWRPTL", Bank0, 0x02)
	EWRPTH   = eth("EWRPTH", Bank0, 0x03)
	ETXSTL   = eth("ETXSTL", Bank0, 0x04)
	ETXSTH   = eth("ETXSTH", Bank0, 0x05)
	ETXNDL   = eth("ETXNDL", Bank0, 0x06)
	ETXNDH   = eth("ETXNDH", Bank0, 0x07)
	ERXSTL   = eth("ERXSTL", Bank0, 0x08)
	ERXSTH   = eth("ERXSTH", Bank0, 0x09)
	ERXNDL   = eth("ERXNDL", Bank0, 0x0A)
	ERXNDH   = eth("ERXNDH", Bank0, 0x0B)
	ERXRDPTL = eth("ERXRDPTL", Bank0, 0x0C)
	ERXRDPTH = eth("ERXRDPTH", Bank0, 0x0D)
	ERXWRPTL = eth("ERXWRPTL", Bank0, 0x0E)
	ERXWRPTH = eth("ERXWRPTH", Bank0, 0x0F)
)

// Bank 1
var (
	ERXFCON = eth("ERXFCON", Bank1, 0x18)
	EPKTCNT = eth("EPKTCNT", Bank1, 0x19)
)

// Bank 2
var (
	MACON1   = mac("MACON1", Bank2, 0x00)
	MACON3   = mac("MACON3", Bank2, 0x02)
	MACON4   = mac("MACON4", Bank2, 0x03)
	MABBIPG  = mac("MABBIPG", Bank2, 0x04)
	MAIPGL   = mac("MAIPGL", Bank2, 0x06)
	MAIPGH   = mac("MAIPGH", Bank2, 0x07)
	MAMXFLL  = mac("MAMXFLL", Bank2, 0x0A)
	MAMXFLH  = mac("MAMXFLH", Bank2, 0x0B)
	MICMD    = mac("MICMD", Bank2, 0x12)
	MIREGADR = mac("MIREGADR", Bank2, 0x14)
	MIWRL    = mac("MIWRL", Bank2, 0x16)
	MIWRH    = mac("MIWRH", Bank2, 0x17)
	MIRDL    = mac("MIRDL", Bank2, 0x18)
	MIRDH    = mac("MIRDH", Bank2, 0x19)
)

// Bank 3
var (
	MAADR5 = mac("MAADR5", Bank3, 0x00)
	MAADR6 = mac("MAADR6", Bank3, 0x01)
	MAADR3 = mac("MAADR3", Bank3, 0x02)
	MAADR4 = mac("MAADR4", Bank3, 0x03)
	MAADR1 = mac("MAADR1", Bank3, 0x04)
	MAADR2 = mac("MAADR2", Bank3, 0x05)
	MISTAT = mac("MISTAT", Bank3, 0x0A)
	EREVID = eth("EREVID", Bank3, 0x12)
)

// 16-bit pairs
var (
	ERDPT   = Register16{"ERDPT", ERDPTL, ERDPTH}
	EWRPT   = Register16{"EWRPT", EWRPTL, EWRPTH}
	ETXST   = Register16{"ETXST", ETXSTL, ETXSTH}
	ETXND   = Register16{"ETXND", ETXNDL, ETXNDH}
	ERXST   = Register16{"ERXST", ERXSTL, ERXSTH}
	ERXND   = Register16{"ERXND", ERXNDL, ERXNDH}
	ERXRDPT = Register16{"ERXRDPT", ERXRDPTL, ERXRDPTH}
	ERXWRPT = Register16{"ERXWRPT", ERXWRPTL, ERXWRPTH}
	MAIPG   = Register16{"MAIPG", MAIPGL, MAIPGH}
	MAMXFL  = Register16{"MAMXFL", MAMXFLL, MAMXFLH}
	MIWR    = Register16{"MIWR", MIWRL, MIWRH}
	MIRD    = Register16{"MIRD", MIRDL, MIRDH}
)

// PHY registers
var (
	PHCON1  = PHYRegister{"PHCON1", 0x00}
	PHSTAT1 = PHYRegister{"PHSTAT1", 0x01}
	PHID1   = PHYRegister{"PHID1", 0x02}
	PHID2   = PHYRegister{"PHID2", 0x03}
	PHCON2  = PHYRegister{"PHCON2", 0x10}
	PHSTAT2 = PHYRegister{"PHSTAT2", 0x11}
	PHIE    = PHYRegister{"PHIE", 0x12}
	PHIR    = PHYRegister{"PHIR", 0x13}
	PHLCON  = PHYRegister{"PHLCON", 0x14}
)

// EIE bits
const (
	EIEIntIE  = 0x80
	EIEPktIE  = 0x40
	EIEDMAIE  = 0x20
	EIELinkIE = 0x10
	EIETxIE   = 0x08
	EIETxErIE = 0x02
	EIERxErIE = 0x01
)

// EIR bits
const (
	EIRPktIF  = 0x40
	EIRDMAIF  = 0x20
	EIRLinkIF = 0x10
	EIRTxIF   = 0x08
	EIRTxErIF = 0x02
	EIRRxErIF = 0x01
)

// ESTAT bits
const (
	ESTATInt     = 0x80
	ESTATLateCol = 0x10
	ESTATRxBusy  = 0x04
	ESTATTxAbrt  = 0x02
	ESTATClkRdy  = 0x01
)

// ECON2 bits
const (
	ECON2AutoInc = 0x80
	ECON2PktDec  = 0x40
	ECON2PwrSv   = 0x20
	ECON2VRPS    = 0x08
)

// ECON1 bits
const (
	ECON1TxRst  = 0x80
	ECON1RxRst  = 0x40
	ECON1DMASt  = 0x20
	ECON1CsumEn = 0x10
	ECON1TxRTS  = 0x08
	ECON1RxEn   = 0x04
	ECON1BSel1  = 0x02
	ECON1BSel0  = 0x01
)

// ERXFCON bits
const (
	ERXFCONUCEn  = 0x80
	ERXFCONAndOr = 0x40
	ERXFCONCRCEn = 0x20
	ERXFCONPMEn  = 0x10
	ERXFCONMPEn  = 0x08
	ERXFCONHTEn  = 0x04
	ERXFCONMCEn  = 0x02
	ERXFCONBCEn  = 0x01
)

// MACON1 bits
const (
	MACON1LoopBk  = 0x10
	MACON1TxPaus  = 0x08
	MACON1RxPaus  = 0x04
	MACON1PassAll = 0x02
	MACON1MARxEn  = 0x01
)

// MACON3 bits
const (
	MACON3PadCfg2 = 0x80
	MACON3PadCfg1 = 0x40
	MACON3PadCfg0 = 0x20
	MACON3TxCRCEn = 0x10
	MACON3PHdrLen = 0x08
	MACON3HFrmLen = 0x04
	MACON3FrmLnEn = 0x02
	MACON3FulDpx  = 0x01
)

// MACON4 bits
const MACON4Defer = 0x40

// MICMD bits
const (
	MICMDMIIScan = 0x02
	MICMDMIIRd   = 0x01
)

// MISTAT bits
const (
	MISTATNValid = 0x04
	MISTATScan   = 0x02
	MISTATBusy   = 0x01
)

// PHY register bits
const (
	PHCON1PRst    = 0x8000
	PHCON1PLoopBk = 0x4000
	PHCON1PPwrSv  = 0x0800
	PHCON1PDpxMd  = 0x0100

	PHSTAT1PFDpx  = 0x1000
	PHSTAT1PHDpx  = 0x0800
	PHSTAT1LLStat = 0x0004
	PHSTAT1JBStat = 0x0002

	PHCON2FrcLink = 0x4000
	PHCON2TxDis   = 0x2000
	PHCON2Jabber  = 0x0400
	PHCON2HDLDis  = 0x0100

	PHSTAT2TxStat  = 1 << 13
	PHSTAT2RxStat  = 1 << 12
	PHSTAT2ColStat = 1 << 11
	PHSTAT2LStat   = 1 << 10
	PHSTAT2DpxStat = 1 << 9
	PHSTAT2Plrity  = 1 << 5

	PHIEPLnkIE = 1 << 4
	PHIEPGEIE  = 1 << 1

	PHIRPLnkIF = 1 << 4
	PHIRPGIF   = 1 << 2
)

var allRegisters = []Register{
	EIE, EIR, ESTAT, ECON2, ECON1,
	ERDPTL, ERDPTH, EWRPTL, EWRPTH, ETXSTL, ETXSTH, ETXNDL, ETXNDH,
	ERXSTL, ERXSTH, ERXNDL, ERXNDH, ERXRDPTL, ERXRDPTH, ERXWRPTL, ERXWRPTH,
	ERXFCON, EPKTCNT,
	MACON1, MACON3, MACON4, MABBIPG, MAIPGL, MAIPGH, MAMXFLL, MAMXFLH,
	MICMD, MIREGADR, MIWRL, MIWRH, MIRDL, MIRDH,
	MAADR5, MAADR6, MAADR3, MAADR4, MAADR1, MAADR2, MISTAT, EREVID,
}

var allRegisters16 = []Register16{
	ERDPT, EWRPT, ETXST, ETXND, ERXST, ERXND, ERXRDPT, ERXWRPT, MAIPG, MAMXFL, MIWR, MIRD,
}

var allPHY = []PHYRegister{
	PHCON1, PHSTAT1, PHID1, PHID2, PHCON2, PHSTAT2, PHIE, PHIR, PHLCON,
}

// Registers returns every known 8-bit register ordered by bank then address,
// common registers last
func Registers() []Register {
	out := append([]Register(nil), allRegisters...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bank != out[j].Bank {
			return out[i].Bank < out[j].Bank
		}
		return out[i].Addr < out[j].Addr
	})
	return out
}

// PHYRegisters returns every known PHY register
func PHYRegisters() []PHYRegister {
	return append([]PHYRegister(nil), allPHY...)
}

// LookupRegister finds an 8-bit register by name, ignoring case
func LookupRegister(name string) (Register, bool) {
	for _, r := range allRegisters {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Register{}, false
}

// LookupRegister16 finds a 16-bit register pair by name, ignoring case
func LookupRegister16(name string) (Register16, bool) {
	for _, r := range allRegisters16 {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Register16{}, false
}

// LookupPHY finds a PHY register by name, ignoring case
func LookupPHY(name string) (PHYRegister, bool) {
	for _, r := range allPHY {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return PHYRegister{}, false
}
