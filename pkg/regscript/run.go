package regscript

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
)

// Target is the register access a script needs. *enc28j60.Chip implements
// it.
type Target interface {
	ReadRegister(reg enc28j60.Register) (byte, error)
	WriteRegister(reg enc28j60.Register, v byte) error
	SetBits(reg enc28j60.Register, mask byte) error
	ClearBits(reg enc28j60.Register, mask byte) error
	ReadRegister16(reg enc28j60.Register16) (uint16, error)
	WriteRegister16(reg enc28j60.Register16, v uint16) error
	ReadPHY(reg enc28j60.PHYRegister) (uint16, error)
	WritePHY(reg enc28j60.PHYRegister, v uint16) error
	Reset() (enc28j60.Revision, error)
}

// ExpectError reports a failed expect line
type ExpectError struct {
	Pos  string
	Reg  string
	Got  uint16
	Want uint16
	Mask uint16
}

func (e *ExpectError) Error() string {
	return fmt.Sprintf("%s: expect %s: got 0x%04X, want 0x%04X (mask 0x%04X)", e.Pos, e.Reg, e.Got, e.Want, e.Mask)
}

// Run executes the script against t, printing every read to out. It stops
// at the first failing line.
func Run(ctx context.Context, t Target, s *Script, out io.Writer) error {
	for _, st := range s.Stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exec(ctx, t, st, out); err != nil {
			if _, ok := err.(*ExpectError); ok {
				return err
			}
			return fmt.Errorf("%s: %w", st.Pos, err)
		}
	}
	return nil
}

func exec(ctx context.Context, t Target, st *Stmt, out io.Writer) error {
	switch {
	case st.Read != nil:
		v, width, err := read(t, st.Read.Reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-8s = %s\n", st.Read.Reg, hex(v, width))

	case st.Write != nil:
		return write(t, st.Write.Reg, st.Write.Value)

	case st.Set != nil:
		reg, mask, err := maskOperands(st.Set)
		if err != nil {
			return err
		}
		return t.SetBits(reg, mask)

	case st.Clear != nil:
		reg, mask, err := maskOperands(st.Clear)
		if err != nil {
			return err
		}
		return t.ClearBits(reg, mask)

	case st.Expect != nil:
		return expect(t, st)

	case st.PHYRead != nil:
		reg, ok := enc28j60.LookupPHY(st.PHYRead.Reg)
		if !ok {
			return fmt.Errorf("unknown PHY register %q", st.PHYRead.Reg)
		}
		v, err := t.ReadPHY(reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-8s = %s\n", reg.Name, hex(v, 16))

	case st.PHYWrite != nil:
		reg, ok := enc28j60.LookupPHY(st.PHYWrite.Reg)
		if !ok {
			return fmt.Errorf("unknown PHY register %q", st.PHYWrite.Reg)
		}
		v, err := parseValue(st.PHYWrite.Value, 16)
		if err != nil {
			return err
		}
		return t.WritePHY(reg, v)

	case st.Reset:
		rev, err := t.Reset()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reset, revision %s\n", rev)

	case st.Sleep != "":
		d, err := time.ParseDuration(st.Sleep)
		if err != nil {
			return err
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// read resolves name as an 8-bit register first, then as a pair
func read(t Target, name string) (uint16, int, error) {
	if reg, ok := enc28j60.LookupRegister(name); ok {
		v, err := t.ReadRegister(reg)
		return uint16(v), 8, err
	}
	if reg, ok := enc28j60.LookupRegister16(name); ok {
		v, err := t.ReadRegister16(reg)
		return v, 16, err
	}
	return 0, 0, fmt.Errorf("unknown register %q", name)
}

func write(t Target, name, value string) error {
	if reg, ok := enc28j60.LookupRegister(name); ok {
		v, err := parseValue(value, 8)
		if err != nil {
			return err
		}
		return t.WriteRegister(reg, byte(v))
	}
	if reg, ok := enc28j60.LookupRegister16(name); ok {
		v, err := parseValue(value, 16)
		if err != nil {
			return err
		}
		return t.WriteRegister16(reg, v)
	}
	return fmt.Errorf("unknown register %q", name)
}

func maskOperands(m *Mask) (enc28j60.Register, byte, error) {
	reg, ok := enc28j60.LookupRegister(m.Reg)
	if !ok {
		return reg, 0, fmt.Errorf("unknown register %q", m.Reg)
	}
	v, err := parseValue(m.Bits, 8)
	return reg, byte(v), err
}

func expect(t Target, st *Stmt) error {
	e := st.Expect
	got, width, err := read(t, e.Reg)
	if err != nil {
		return err
	}
	want, err := parseValue(e.Value, width)
	if err != nil {
		return err
	}
	mask := uint16(1<<width - 1)
	if e.Mask != "" {
		if mask, err = parseValue(e.Mask, width); err != nil {
			return err
		}
	}
	if got&mask != want&mask {
		return &ExpectError{Pos: st.Pos.String(), Reg: e.Reg, Got: got, Want: want, Mask: mask}
	}
	return nil
}

func parseValue(s string, bits int) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("value %s does not fit %d bits", s, bits)
	}
	return uint16(v), nil
}

func hex(v uint16, width int) string {
	if width == 8 {
		return fmt.Sprintf("0x%02X", v)
	}
	return fmt.Sprintf("0x%04X", v)
}
