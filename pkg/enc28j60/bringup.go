package enc28j60

// Inter-packet gap values recommended by the datasheet
const (
	bbipgFullDuplex = 0x15
	bbipgHalfDuplex = 0x12
	ipgFullDuplex   = 0x0012
	ipgHalfDuplex   = 0x0C12
)

// enabledInterrupts are the sources the dispatcher services
const enabledInterrupts = EIEIntIE | EIEPktIE | EIELinkIE | EIETxIE | EIETxErIE | EIERxErIE

// Init resets the chip and programs it from cfg: receive ring and transmit
// window, receive filters, MAC framing and duplex, station address, PHY and
// interrupt sources. Reception is enabled last.
func (c *Chip) Init(cfg *Config) (*Ring, Revision, error) {
	c.configure(cfg)

	rev, err := c.Reset()
	if err != nil {
		return nil, rev, err
	}
	if err := c.WriteRegister(ECON1, 0); err != nil {
		return nil, rev, err
	}
	if err := c.SetBits(ECON2, ECON2AutoInc); err != nil {
		return nil, rev, err
	}

	ring, err := c.InitRing(cfg.RxWindow, cfg.TxWindow)
	if err != nil {
		return nil, rev, err
	}

	filter := byte(ERXFCONUCEn | ERXFCONCRCEn | ERXFCONBCEn)
	if cfg.Promiscuous {
		filter = 0
	}
	if err := c.WriteRegister(ERXFCON, filter); err != nil {
		return nil, rev, err
	}

	if err := c.initMAC(cfg); err != nil {
		return nil, rev, err
	}
	if err := c.initPHY(cfg); err != nil {
		return nil, rev, err
	}

	if err := c.ClearBits(EIR, 0xFF); err != nil {
		return nil, rev, err
	}
	if err := c.WriteRegister(EIE, enabledInterrupts); err != nil {
		return nil, rev, err
	}
	if err := c.SetBits(ECON1, ECON1RxEn); err != nil {
		return nil, rev, err
	}
	return ring, rev, nil
}

func (c *Chip) initMAC(cfg *Config) error {
	macon1 := byte(MACON1MARxEn)
	macon3 := byte(MACON3PadCfg0 | MACON3TxCRCEn | MACON3FrmLnEn)
	macon4 := byte(MACON4Defer)
	bbipg, ipg := byte(bbipgHalfDuplex), uint16(ipgHalfDuplex)
	if cfg.FullDuplex {
		macon1 |= MACON1TxPaus | MACON1RxPaus
		macon3 |= MACON3FulDpx
		macon4 = 0
		bbipg, ipg = bbipgFullDuplex, ipgFullDuplex
	}

	if err := c.WriteRegister(MACON1, macon1); err != nil {
		return err
	}
	if err := c.WriteRegister(MACON3, macon3); err != nil {
		return err
	}
	if err := c.WriteRegister(MACON4, macon4); err != nil {
		return err
	}
	if err := c.WriteRegister16(MAMXFL, uint16(cfg.MaxFrameLen)); err != nil {
		return err
	}
	if err := c.WriteRegister(MABBIPG, bbipg); err != nil {
		return err
	}
	if err := c.WriteRegister16(MAIPG, ipg); err != nil {
		return err
	}
	return c.SetMACAddress(cfg.MAC)
}

func (c *Chip) initPHY(cfg *Config) error {
	var phcon1, phcon2 uint16
	if cfg.FullDuplex {
		phcon1 = PHCON1PDpxMd
	} else {
		// Keep half duplex frames from looping back.
		phcon2 = PHCON2HDLDis
	}
	if err := c.WritePHY(PHCON1, phcon1); err != nil {
		return err
	}
	if err := c.WritePHY(PHCON2, phcon2); err != nil {
		return err
	}
	return c.WritePHY(PHIE, PHIEPGEIE|PHIEPLnkIE)
}
