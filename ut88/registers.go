package ut88

import (
	"fmt"
	"strings"
)

func (c *CPU) A() byte { return c.regs[regA] }
func (c *CPU) B() byte { return c.regs[regB] }
func (c *CPU) C() byte { return c.regs[regC] }
func (c *CPU) D() byte { return c.regs[regD] }
func (c *CPU) E() byte { return c.regs[regE] }
func (c *CPU) H() byte { return c.regs[regH] }
func (c *CPU) L() byte { return c.regs[regL] }

func (c *CPU) SetA(x byte) { c.regs[regA] = x }
func (c *CPU) SetB(x byte) { c.regs[regB] = x }
func (c *CPU) SetC(x byte) { c.regs[regC] = x }
func (c *CPU) SetD(x byte) { c.regs[regD] = x }
func (c *CPU) SetE(x byte) { c.regs[regE] = x }
func (c *CPU) SetH(x byte) { c.regs[regH] = x }
func (c *CPU) SetL(x byte) { c.regs[regL] = x }

func (c *CPU) BC() uint16 { return c.pair(pairBC) }
func (c *CPU) DE() uint16 { return c.pair(pairDE) }
func (c *CPU) HL() uint16 { return c.pair(pairHL) }
func (c *CPU) SP() uint16 { return c.sp }
func (c *CPU) PC() uint16 { return c.pc }

func (c *CPU) SetBC(x uint16) { c.setPair(pairBC, x) }
func (c *CPU) SetDE(x uint16) { c.setPair(pairDE, x) }
func (c *CPU) SetHL(x uint16) { c.setPair(pairHL, x) }
func (c *CPU) SetSP(x uint16) { c.sp = x }

// SetPC moves the program counter and leaves a halted state.
func (c *CPU) SetPC(x uint16) {
	c.pc = x
	c.halted = false
}

func (c *CPU) Sign() bool      { return c.p.s }
func (c *CPU) Zero() bool      { return c.p.z }
func (c *CPU) HalfCarry() bool { return c.p.ac }
func (c *CPU) Parity() bool    { return c.p.p }
func (c *CPU) Carry() bool     { return c.p.c }

func (c *CPU) SetSign(f bool)      { c.p.s = f }
func (c *CPU) SetZero(f bool)      { c.p.z = f }
func (c *CPU) SetHalfCarry(f bool) { c.p.ac = f }
func (c *CPU) SetParity(f bool)    { c.p.p = f }
func (c *CPU) SetCarry(f bool)     { c.p.c = f }

// PSW returns the flags as the byte PUSH PSW stores.
func (c *CPU) PSW() byte {
	return c.p.encode()
}

// Cycles returns the number of cycles executed since the CPU was created.
func (c *CPU) Cycles() uint64 {
	return c.cycles
}

// InterruptsEnabled reports the INTE flip-flop, set by EI and cleared by DI.
func (c *CPU) InterruptsEnabled() bool {
	return c.inte
}

// Pending returns the injected instruction bytes not executed yet.
func (c *CPU) Pending() []byte {
	return append([]byte(nil), c.queue...)
}

type registerInfo struct {
	width int // bits
	get   func(c *CPU) int
	set   func(c *CPU, x int)
}

func byteRegister(index int) registerInfo {
	return registerInfo{
		width: 8,
		get:   func(c *CPU) int { return int(c.regs[index]) },
		set:   func(c *CPU, x int) { c.regs[index] = byte(x) },
	}
}

func pairRegister(index byte) registerInfo {
	return registerInfo{
		width: 16,
		get:   func(c *CPU) int { return int(c.pair(index)) },
		set:   func(c *CPU, x int) { c.setPair(index, uint16(x)) },
	}
}

var namedRegisters = map[string]registerInfo{
	"a":  byteRegister(regA),
	"b":  byteRegister(regB),
	"c":  byteRegister(regC),
	"d":  byteRegister(regD),
	"e":  byteRegister(regE),
	"h":  byteRegister(regH),
	"l":  byteRegister(regL),
	"bc": pairRegister(pairBC),
	"de": pairRegister(pairDE),
	"hl": pairRegister(pairHL),
	"sp": pairRegister(pairSP),
	"pc": {
		width: 16,
		get:   func(c *CPU) int { return int(c.pc) },
		set:   func(c *CPU, x int) { c.SetPC(uint16(x)) },
	},
	"f": {
		width: 8,
		get:   func(c *CPU) int { return int(c.p.encode()) },
		set:   func(c *CPU, x int) { c.p.decodeFrom(byte(x)) },
	},
}

// Register reads a register by name (a, b, ..., bc, de, hl, sp, pc, f).
func (c *CPU) Register(name string) (int, error) {
	r, ok := namedRegisters[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown register %q", ErrPrecondition, name)
	}
	return r.get(c), nil
}

// SetRegister writes a register by name. Values out of the register range are
// rejected instead of being truncated.
func (c *CPU) SetRegister(name string, x int) error {
	r, ok := namedRegisters[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: unknown register %q", ErrPrecondition, name)
	}
	if x < 0 || x >= 1<<r.width {
		return fmt.Errorf("%w: value %d out of range for %d bit register %s", ErrPrecondition, x, r.width, name)
	}
	r.set(c, x)
	return nil
}

// State is a copy of the CPU registers.
type State struct {
	A, B, C, D, E, H, L byte
	SP, PC              uint16
	Flags               byte
	InterruptsEnabled   bool
	Cycles              uint64
	Pending             []byte
}

// State returns a copy of the registers.
func (c *CPU) State() State {
	return State{
		A: c.regs[regA], B: c.regs[regB], C: c.regs[regC], D: c.regs[regD],
		E: c.regs[regE], H: c.regs[regH], L: c.regs[regL],
		SP:                c.sp,
		PC:                c.pc,
		Flags:             c.p.encode(),
		InterruptsEnabled: c.inte,
		Cycles:            c.cycles,
		Pending:           c.Pending(),
	}
}
