package enc28j60

// ReadPHY reads a PHY register through the MII management interface
func (c *Chip) ReadPHY(reg PHYRegister) (uint16, error) {
	if err := c.WriteRegister(MIREGADR, reg.Addr); err != nil {
		return 0, err
	}
	if err := c.WriteRegister(MICMD, MICMDMIIRd); err != nil {
		return 0, err
	}
	if err := c.waitMII(); err != nil {
		return 0, err
	}
	if err := c.WriteRegister(MICMD, 0); err != nil {
		return 0, err
	}
	return c.ReadRegister16(MIRD)
}

// WritePHY writes a PHY register. The write starts when MIWRH is written.
func (c *Chip) WritePHY(reg PHYRegister, v uint16) error {
	if err := c.WriteRegister(MIREGADR, reg.Addr); err != nil {
		return err
	}
	if err := c.WriteRegister16(MIWR, v); err != nil {
		return err
	}
	return c.waitMII()
}

func (c *Chip) waitMII() error {
	for i := 0; i < c.pollLimit; i++ {
		v, err := c.ReadRegister(MISTAT)
		if err != nil {
			return err
		}
		if v&MISTATBusy == 0 {
			return nil
		}
	}
	return ErrPHYTimeout
}

// LinkUp reports the PHY link state from PHSTAT2
func (c *Chip) LinkUp() (bool, error) {
	v, err := c.ReadPHY(PHSTAT2)
	if err != nil {
		return false, err
	}
	return v&PHSTAT2LStat != 0, nil
}

// PHYID returns the 32-bit identifier from PHID1 and PHID2
func (c *Chip) PHYID() (uint32, error) {
	hi, err := c.ReadPHY(PHID1)
	if err != nil {
		return 0, err
	}
	lo, err := c.ReadPHY(PHID2)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

// ackLinkChange reads PHIR, which clears EIR.LINKIF, and returns the new
// link state.
func (c *Chip) ackLinkChange() (bool, error) {
	if _, err := c.ReadPHY(PHIR); err != nil {
		return false, err
	}
	return c.LinkUp()
}
