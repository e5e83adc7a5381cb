// Package regscript runs small register scripts against an ENC28J60 for
// bring-up and debugging:
//
//	# enable reception and check it stuck
//	set ECON1 0x04
//	expect ECON1 0x04 mask 0x04
//	read ERXST
//	phy read PHSTAT2
//	sleep 10ms
package regscript

import "github.com/alecthomas/participle/v2/lexer"

// Script is a parsed register script
type Script struct {
	Stmts []*Stmt `@@*`
}

// Stmt is one script line
type Stmt struct {
	Pos lexer.Position

	Read     *Read   `  @@`
	Write    *Write  `| @@`
	Set      *Mask   `| "set" @@`
	Clear    *Mask   `| "clear" @@`
	Expect   *Expect `| @@`
	PHYRead  *Read   `| "phy" @@`
	PHYWrite *Write  `| "phy" @@`
	Reset    bool    `| @"reset"`
	Sleep    string  `| "sleep" @Duration`
}

// Read prints a register, register pair or, after "phy", a PHY register
type Read struct {
	Reg string `"read" @Ident`
}

// Write stores a value in a register or register pair
type Write struct {
	Reg   string `"write" @Ident`
	Value string `@Number`
}

// Mask is the operand of set and clear
type Mask struct {
	Reg  string `@Ident`
	Bits string `@Number`
}

// Expect fails the script when (reg & mask) != value
type Expect struct {
	Reg   string `"expect" @Ident`
	Value string `@Number`
	Mask  string `( "mask" @Number )?`
}
