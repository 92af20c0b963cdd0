package ut88

import (
	"fmt"
	"math/bits"
)

// CPU emulates the Intel 8080 (KR580VM80A in the UT-88 and Radio-86RK).
// References:
//   Intel 8080 Microcomputer Systems User's Manual, September 1975
//   http://www.emulator101.com/reference/8080-by-opcode.html

// CPUFrequency is the clock of the UT-88 CPU.
const CPUFrequency = 2000000

// maxInjected is the longest instruction the interrupt logic can put on the data bus.
const maxInjected = 3

// Register encodings used by the opcodes.
const (
	regB = iota
	regC
	regD
	regE
	regH
	regL
	regM // memory at HL
	regA
)

// Register pair encodings.
const (
	pairBC = iota
	pairDE
	pairHL
	pairSP // PSW for PUSH/POP
)

type status struct {
	s  bool // sign
	z  bool // zero
	ac bool // auxiliary (half) carry
	p  bool // parity, set when even
	c  bool // carry
}

// encode encodes the status to the PSW low byte: S Z 0 AC 0 P 1 C.
func (s *status) encode() byte {
	res := byte(0x02)
	if s.c {
		res |= 1 << 0
	}
	if s.p {
		res |= 1 << 2
	}
	if s.ac {
		res |= 1 << 4
	}
	if s.z {
		res |= 1 << 6
	}
	if s.s {
		res |= 1 << 7
	}
	return res
}

// decodeFrom decodes a PSW low byte to the status.
func (s *status) decodeFrom(data byte) {
	s.c = (data>>0)&1 == 1
	s.p = (data>>2)&1 == 1
	s.ac = (data>>4)&1 == 1
	s.z = (data>>6)&1 == 1
	s.s = (data>>7)&1 == 1
}

type CPU struct {
	p            *status // Flags
	regs         [8]byte // B, C, D, E, H, L, (unused), A
	sp           uint16  // Stack pointer
	pc           uint16  // Program counter
	cycles       uint64  // Executed cycles
	inte         bool    // Interrupts enabled
	queue        []byte  // Injected instruction bytes
	injected     bool    // Current instruction came from the queue
	halted       bool    // PC stays on a HLT until an interrupt is taken
	taken        bool    // Conditional call/return was taken
	lastAddress  uint16  // For debug
	lastOpcode   byte    // For debug
	lastOperand  uint16  // For debug
	inteHook     func(enabled bool)
	bus          Bus
	instructions []instruction
}

type instruction struct {
	mnemonic string
	execute  func(opcode byte) error
	size     uint16
	cycles   int
	taken    int // cycles of a taken conditional call/return
}

func (c *CPU) createInstructions() []instruction {
	return []instruction{
		{"NOP", c.nop, 1, 4, 0},          // 0x00
		{"LXI B", c.lxi, 3, 10, 0},       // 0x01
		{"STAX B", c.stax, 1, 7, 0},      // 0x02
		{"INX B", c.inx, 1, 5, 0},        // 0x03
		{"INR B", c.inr, 1, 5, 0},        // 0x04
		{"DCR B", c.dcr, 1, 5, 0},        // 0x05
		{"MVI B", c.mvi, 2, 7, 0},        // 0x06
		{"RLC", c.rlc, 1, 4, 0},          // 0x07
		{},                               // 0x08
		{"DAD B", c.dad, 1, 10, 0},       // 0x09
		{"LDAX B", c.ldax, 1, 7, 0},      // 0x0A
		{"DCX B", c.dcx, 1, 5, 0},        // 0x0B
		{"INR C", c.inr, 1, 5, 0},        // 0x0C
		{"DCR C", c.dcr, 1, 5, 0},        // 0x0D
		{"MVI C", c.mvi, 2, 7, 0},        // 0x0E
		{"RRC", c.rrc, 1, 4, 0},          // 0x0F
		{},                               // 0x10
		{"LXI D", c.lxi, 3, 10, 0},       // 0x11
		{"STAX D", c.stax, 1, 7, 0},      // 0x12
		{"INX D", c.inx, 1, 5, 0},        // 0x13
		{"INR D", c.inr, 1, 5, 0},        // 0x14
		{"DCR D", c.dcr, 1, 5, 0},        // 0x15
		{"MVI D", c.mvi, 2, 7, 0},        // 0x16
		{"RAL", c.ral, 1, 4, 0},          // 0x17
		{},                               // 0x18
		{"DAD D", c.dad, 1, 10, 0},       // 0x19
		{"LDAX D", c.ldax, 1, 7, 0},      // 0x1A
		{"DCX D", c.dcx, 1, 5, 0},        // 0x1B
		{"INR E", c.inr, 1, 5, 0},        // 0x1C
		{"DCR E", c.dcr, 1, 5, 0},        // 0x1D
		{"MVI E", c.mvi, 2, 7, 0},        // 0x1E
		{"RAR", c.rar, 1, 4, 0},          // 0x1F
		{},                               // 0x20
		{"LXI H", c.lxi, 3, 10, 0},       // 0x21
		{"SHLD", c.shld, 3, 16, 0},       // 0x22
		{"INX H", c.inx, 1, 5, 0},        // 0x23
		{"INR H", c.inr, 1, 5, 0},        // 0x24
		{"DCR H", c.dcr, 1, 5, 0},        // 0x25
		{"MVI H", c.mvi, 2, 7, 0},        // 0x26
		{"DAA", c.daa, 1, 4, 0},          // 0x27
		{},                               // 0x28
		{"DAD H", c.dad, 1, 10, 0},       // 0x29
		{"LHLD", c.lhld, 3, 16, 0},       // 0x2A
		{"DCX H", c.dcx, 1, 5, 0},        // 0x2B
		{"INR L", c.inr, 1, 5, 0},        // 0x2C
		{"DCR L", c.dcr, 1, 5, 0},        // 0x2D
		{"MVI L", c.mvi, 2, 7, 0},        // 0x2E
		{"CMA", c.cma, 1, 4, 0},          // 0x2F
		{},                               // 0x30
		{"LXI SP", c.lxi, 3, 10, 0},      // 0x31
		{"STA", c.sta, 3, 13, 0},         // 0x32
		{"INX SP", c.inx, 1, 5, 0},       // 0x33
		{"INR M", c.inr, 1, 10, 0},       // 0x34
		{"DCR M", c.dcr, 1, 10, 0},       // 0x35
		{"MVI M", c.mvi, 2, 10, 0},       // 0x36
		{"STC", c.stc, 1, 4, 0},          // 0x37
		{},                               // 0x38
		{"DAD SP", c.dad, 1, 10, 0},      // 0x39
		{"LDA", c.lda, 3, 13, 0},         // 0x3A
		{"DCX SP", c.dcx, 1, 5, 0},       // 0x3B
		{"INR A", c.inr, 1, 5, 0},        // 0x3C
		{"DCR A", c.dcr, 1, 5, 0},        // 0x3D
		{"MVI A", c.mvi, 2, 7, 0},        // 0x3E
		{"CMC", c.cmc, 1, 4, 0},          // 0x3F
		{"MOV B,B", c.mov, 1, 5, 0},      // 0x40
		{"MOV B,C", c.mov, 1, 5, 0},      // 0x41
		{"MOV B,D", c.mov, 1, 5, 0},      // 0x42
		{"MOV B,E", c.mov, 1, 5, 0},      // 0x43
		{"MOV B,H", c.mov, 1, 5, 0},      // 0x44
		{"MOV B,L", c.mov, 1, 5, 0},      // 0x45
		{"MOV B,M", c.mov, 1, 7, 0},      // 0x46
		{"MOV B,A", c.mov, 1, 5, 0},      // 0x47
		{"MOV C,B", c.mov, 1, 5, 0},      // 0x48
		{"MOV C,C", c.mov, 1, 5, 0},      // 0x49
		{"MOV C,D", c.mov, 1, 5, 0},      // 0x4A
		{"MOV C,E", c.mov, 1, 5, 0},      // 0x4B
		{"MOV C,H", c.mov, 1, 5, 0},      // 0x4C
		{"MOV C,L", c.mov, 1, 5, 0},      // 0x4D
		{"MOV C,M", c.mov, 1, 7, 0},      // 0x4E
		{"MOV C,A", c.mov, 1, 5, 0},      // 0x4F
		{"MOV D,B", c.mov, 1, 5, 0},      // 0x50
		{"MOV D,C", c.mov, 1, 5, 0},      // 0x51
		{"MOV D,D", c.mov, 1, 5, 0},      // 0x52
		{"MOV D,E", c.mov, 1, 5, 0},      // 0x53
		{"MOV D,H", c.mov, 1, 5, 0},      // 0x54
		{"MOV D,L", c.mov, 1, 5, 0},      // 0x55
		{"MOV D,M", c.mov, 1, 7, 0},      // 0x56
		{"MOV D,A", c.mov, 1, 5, 0},      // 0x57
		{"MOV E,B", c.mov, 1, 5, 0},      // 0x58
		{"MOV E,C", c.mov, 1, 5, 0},      // 0x59
		{"MOV E,D", c.mov, 1, 5, 0},      // 0x5A
		{"MOV E,E", c.mov, 1, 5, 0},      // 0x5B
		{"MOV E,H", c.mov, 1, 5, 0},      // 0x5C
		{"MOV E,L", c.mov, 1, 5, 0},      // 0x5D
		{"MOV E,M", c.mov, 1, 7, 0},      // 0x5E
		{"MOV E,A", c.mov, 1, 5, 0},      // 0x5F
		{"MOV H,B", c.mov, 1, 5, 0},      // 0x60
		{"MOV H,C", c.mov, 1, 5, 0},      // 0x61
		{"MOV H,D", c.mov, 1, 5, 0},      // 0x62
		{"MOV H,E", c.mov, 1, 5, 0},      // 0x63
		{"MOV H,H", c.mov, 1, 5, 0},      // 0x64
		{"MOV H,L", c.mov, 1, 5, 0},      // 0x65
		{"MOV H,M", c.mov, 1, 7, 0},      // 0x66
		{"MOV H,A", c.mov, 1, 5, 0},      // 0x67
		{"MOV L,B", c.mov, 1, 5, 0},      // 0x68
		{"MOV L,C", c.mov, 1, 5, 0},      // 0x69
		{"MOV L,D", c.mov, 1, 5, 0},      // 0x6A
		{"MOV L,E", c.mov, 1, 5, 0},      // 0x6B
		{"MOV L,H", c.mov, 1, 5, 0},      // 0x6C
		{"MOV L,L", c.mov, 1, 5, 0},      // 0x6D
		{"MOV L,M", c.mov, 1, 7, 0},      // 0x6E
		{"MOV L,A", c.mov, 1, 5, 0},      // 0x6F
		{"MOV M,B", c.mov, 1, 7, 0},      // 0x70
		{"MOV M,C", c.mov, 1, 7, 0},      // 0x71
		{"MOV M,D", c.mov, 1, 7, 0},      // 0x72
		{"MOV M,E", c.mov, 1, 7, 0},      // 0x73
		{"MOV M,H", c.mov, 1, 7, 0},      // 0x74
		{"MOV M,L", c.mov, 1, 7, 0},      // 0x75
		{"HLT", c.hlt, 1, 7, 0},          // 0x76
		{"MOV M,A", c.mov, 1, 7, 0},      // 0x77
		{"MOV A,B", c.mov, 1, 5, 0},      // 0x78
		{"MOV A,C", c.mov, 1, 5, 0},      // 0x79
		{"MOV A,D", c.mov, 1, 5, 0},      // 0x7A
		{"MOV A,E", c.mov, 1, 5, 0},      // 0x7B
		{"MOV A,H", c.mov, 1, 5, 0},      // 0x7C
		{"MOV A,L", c.mov, 1, 5, 0},      // 0x7D
		{"MOV A,M", c.mov, 1, 7, 0},      // 0x7E
		{"MOV A,A", c.mov, 1, 5, 0},      // 0x7F
		{"ADD B", c.add, 1, 4, 0},        // 0x80
		{"ADD C", c.add, 1, 4, 0},        // 0x81
		{"ADD D", c.add, 1, 4, 0},        // 0x82
		{"ADD E", c.add, 1, 4, 0},        // 0x83
		{"ADD H", c.add, 1, 4, 0},        // 0x84
		{"ADD L", c.add, 1, 4, 0},        // 0x85
		{"ADD M", c.add, 1, 7, 0},        // 0x86
		{"ADD A", c.add, 1, 4, 0},        // 0x87
		{"ADC B", c.adc, 1, 4, 0},        // 0x88
		{"ADC C", c.adc, 1, 4, 0},        // 0x89
		{"ADC D", c.adc, 1, 4, 0},        // 0x8A
		{"ADC E", c.adc, 1, 4, 0},        // 0x8B
		{"ADC H", c.adc, 1, 4, 0},        // 0x8C
		{"ADC L", c.adc, 1, 4, 0},        // 0x8D
		{"ADC M", c.adc, 1, 7, 0},        // 0x8E
		{"ADC A", c.adc, 1, 4, 0},        // 0x8F
		{"SUB B", c.sub, 1, 4, 0},        // 0x90
		{"SUB C", c.sub, 1, 4, 0},        // 0x91
		{"SUB D", c.sub, 1, 4, 0},        // 0x92
		{"SUB E", c.sub, 1, 4, 0},        // 0x93
		{"SUB H", c.sub, 1, 4, 0},        // 0x94
		{"SUB L", c.sub, 1, 4, 0},        // 0x95
		{"SUB M", c.sub, 1, 7, 0},        // 0x96
		{"SUB A", c.sub, 1, 4, 0},        // 0x97
		{"SBB B", c.sbb, 1, 4, 0},        // 0x98
		{"SBB C", c.sbb, 1, 4, 0},        // 0x99
		{"SBB D", c.sbb, 1, 4, 0},        // 0x9A
		{"SBB E", c.sbb, 1, 4, 0},        // 0x9B
		{"SBB H", c.sbb, 1, 4, 0},        // 0x9C
		{"SBB L", c.sbb, 1, 4, 0},        // 0x9D
		{"SBB M", c.sbb, 1, 7, 0},        // 0x9E
		{"SBB A", c.sbb, 1, 4, 0},        // 0x9F
		{"ANA B", c.ana, 1, 4, 0},        // 0xA0
		{"ANA C", c.ana, 1, 4, 0},        // 0xA1
		{"ANA D", c.ana, 1, 4, 0},        // 0xA2
		{"ANA E", c.ana, 1, 4, 0},        // 0xA3
		{"ANA H", c.ana, 1, 4, 0},        // 0xA4
		{"ANA L", c.ana, 1, 4, 0},        // 0xA5
		{"ANA M", c.ana, 1, 7, 0},        // 0xA6
		{"ANA A", c.ana, 1, 4, 0},        // 0xA7
		{"XRA B", c.xra, 1, 4, 0},        // 0xA8
		{"XRA C", c.xra, 1, 4, 0},        // 0xA9
		{"XRA D", c.xra, 1, 4, 0},        // 0xAA
		{"XRA E", c.xra, 1, 4, 0},        // 0xAB
		{"XRA H", c.xra, 1, 4, 0},        // 0xAC
		{"XRA L", c.xra, 1, 4, 0},        // 0xAD
		{"XRA M", c.xra, 1, 7, 0},        // 0xAE
		{"XRA A", c.xra, 1, 4, 0},        // 0xAF
		{"ORA B", c.ora, 1, 4, 0},        // 0xB0
		{"ORA C", c.ora, 1, 4, 0},        // 0xB1
		{"ORA D", c.ora, 1, 4, 0},        // 0xB2
		{"ORA E", c.ora, 1, 4, 0},        // 0xB3
		{"ORA H", c.ora, 1, 4, 0},        // 0xB4
		{"ORA L", c.ora, 1, 4, 0},        // 0xB5
		{"ORA M", c.ora, 1, 7, 0},        // 0xB6
		{"ORA A", c.ora, 1, 4, 0},        // 0xB7
		{"CMP B", c.cmp, 1, 4, 0},        // 0xB8
		{"CMP C", c.cmp, 1, 4, 0},        // 0xB9
		{"CMP D", c.cmp, 1, 4, 0},        // 0xBA
		{"CMP E", c.cmp, 1, 4, 0},        // 0xBB
		{"CMP H", c.cmp, 1, 4, 0},        // 0xBC
		{"CMP L", c.cmp, 1, 4, 0},        // 0xBD
		{"CMP M", c.cmp, 1, 7, 0},        // 0xBE
		{"CMP A", c.cmp, 1, 4, 0},        // 0xBF
		{"RNZ", c.rcc, 1, 5, 11},         // 0xC0
		{"POP B", c.pop, 1, 10, 0},       // 0xC1
		{"JNZ", c.jcc, 3, 10, 0},         // 0xC2
		{"JMP", c.jmp, 3, 10, 0},         // 0xC3
		{"CNZ", c.ccc, 3, 11, 17},        // 0xC4
		{"PUSH B", c.push, 1, 11, 0},     // 0xC5
		{"ADI", c.addImmediate, 2, 7, 0}, // 0xC6
		{"RST 0", c.rst, 1, 11, 0},       // 0xC7
		{"RZ", c.rcc, 1, 5, 11},          // 0xC8
		{"RET", c.ret, 1, 10, 0},         // 0xC9
		{"JZ", c.jcc, 3, 10, 0},          // 0xCA
		{},                               // 0xCB
		{"CZ", c.ccc, 3, 11, 17},         // 0xCC
		{"CALL", c.call, 3, 17, 0},       // 0xCD
		{"ACI", c.adcImmediate, 2, 7, 0}, // 0xCE
		{"RST 1", c.rst, 1, 11, 0},       // 0xCF
		{"RNC", c.rcc, 1, 5, 11},         // 0xD0
		{"POP D", c.pop, 1, 10, 0},       // 0xD1
		{"JNC", c.jcc, 3, 10, 0},         // 0xD2
		{"OUT", c.out, 2, 10, 0},         // 0xD3
		{"CNC", c.ccc, 3, 11, 17},        // 0xD4
		{"PUSH D", c.push, 1, 11, 0},     // 0xD5
		{"SUI", c.subImmediate, 2, 7, 0}, // 0xD6
		{"RST 2", c.rst, 1, 11, 0},       // 0xD7
		{"RC", c.rcc, 1, 5, 11},          // 0xD8
		{},                               // 0xD9
		{"JC", c.jcc, 3, 10, 0},          // 0xDA
		{"IN", c.in, 2, 10, 0},           // 0xDB
		{"CC", c.ccc, 3, 11, 17},         // 0xDC
		{},                               // 0xDD
		{"SBI", c.sbbImmediate, 2, 7, 0}, // 0xDE
		{"RST 3", c.rst, 1, 11, 0},       // 0xDF
		{"RPO", c.rcc, 1, 5, 11},         // 0xE0
		{"POP H", c.pop, 1, 10, 0},       // 0xE1
		{"JPO", c.jcc, 3, 10, 0},         // 0xE2
		{"XTHL", c.xthl, 1, 18, 0},       // 0xE3
		{"CPO", c.ccc, 3, 11, 17},        // 0xE4
		{"PUSH H", c.push, 1, 11, 0},     // 0xE5
		{"ANI", c.anaImmediate, 2, 7, 0}, // 0xE6
		{"RST 4", c.rst, 1, 11, 0},       // 0xE7
		{"RPE", c.rcc, 1, 5, 11},         // 0xE8
		{"PCHL", c.pchl, 1, 5, 0},        // 0xE9
		{"JPE", c.jcc, 3, 10, 0},         // 0xEA
		{"XCHG", c.xchg, 1, 4, 0},        // 0xEB
		{"CPE", c.ccc, 3, 11, 17},        // 0xEC
		{},                               // 0xED
		{"XRI", c.xraImmediate, 2, 7, 0}, // 0xEE
		{"RST 5", c.rst, 1, 11, 0},       // 0xEF
		{"RP", c.rcc, 1, 5, 11},          // 0xF0
		{"POP PSW", c.pop, 1, 10, 0},     // 0xF1
		{"JP", c.jcc, 3, 10, 0},          // 0xF2
		{"DI", c.di, 1, 4, 0},            // 0xF3
		{"CP", c.ccc, 3, 11, 17},         // 0xF4
		{"PUSH PSW", c.push, 1, 11, 0},   // 0xF5
		{"ORI", c.oraImmediate, 2, 7, 0}, // 0xF6
		{"RST 6", c.rst, 1, 11, 0},       // 0xF7
		{"RM", c.rcc, 1, 5, 11},          // 0xF8
		{"SPHL", c.sphl, 1, 5, 0},        // 0xF9
		{"JM", c.jcc, 3, 10, 0},          // 0xFA
		{"EI", c.ei, 1, 4, 0},            // 0xFB
		{"CM", c.ccc, 3, 11, 17},         // 0xFC
		{},                               // 0xFD
		{"CPI", c.cmpImmediate, 2, 7, 0}, // 0xFE
		{"RST 7", c.rst, 1, 11, 0},       // 0xFF
	}
}

// NewCPU creates a new 8080 CPU attached to bus.
func NewCPU(bus Bus) *CPU {
	c := &CPU{
		p:   &status{},
		bus: bus,
	}
	c.instructions = c.createInstructions()
	c.Reset()
	return c
}

// Reset clears registers, flags and interrupt state. The cycle counter is kept.
func (c *CPU) Reset() {
	c.regs = [8]byte{}
	*c.p = status{}
	c.sp = 0
	c.pc = 0
	c.inte = false
	c.queue = nil
	c.injected = false
	c.halted = false
}

// ScheduleInterrupt puts instruction bytes on the data bus, they are executed instead of
// memory as soon as interrupts are enabled. A new call replaces pending bytes.
func (c *CPU) ScheduleInterrupt(instruction ...byte) error {
	if len(instruction) == 0 || len(instruction) > maxInjected {
		return fmt.Errorf("%w: %d injected bytes, want 1 to %d", ErrPrecondition, len(instruction), maxInjected)
	}
	c.queue = append([]byte(nil), instruction...)
	return nil
}

// SetInterruptHook sets a function called with the INTE pin level on every EI and DI.
func (c *CPU) SetInterruptHook(hook func(enabled bool)) {
	c.inteHook = hook
}

// fromQueue reports whether the next fetch is served by the injected instruction.
func (c *CPU) fromQueue() bool {
	return c.inte && len(c.queue) > 0
}

// fetch8 fetches a byte of the instruction stream.
func (c *CPU) fetch8() (byte, error) {
	if c.injected || c.fromQueue() {
		if len(c.queue) == 0 {
			return 0, fmt.Errorf("%w: instruction 0x%02x needs more bytes", ErrMalformedInterrupt, c.lastOpcode)
		}
		data := c.queue[0]
		c.queue = c.queue[1:]
		return data, nil
	}
	data, err := c.bus.Read8(c.pc)
	if err != nil {
		return 0, err
	}
	c.pc++
	return data, nil
}

// fetch16 fetches a word of the instruction stream, low byte first.
func (c *CPU) fetch16() (uint16, error) {
	if c.injected || c.fromQueue() {
		if len(c.queue) < 2 {
			return 0, fmt.Errorf("%w: instruction 0x%02x needs 2 more bytes, %d queued", ErrMalformedInterrupt, c.lastOpcode, len(c.queue))
		}
		data := uint16(c.queue[1])<<8 | uint16(c.queue[0])
		c.queue = c.queue[2:]
		c.lastOperand = data
		return data, nil
	}
	data, err := c.bus.Read16(c.pc)
	if err != nil {
		return 0, err
	}
	c.pc += 2
	c.lastOperand = data
	return data, nil
}

// operand8 fetches an immediate byte operand.
func (c *CPU) operand8() (byte, error) {
	data, err := c.fetch8()
	if err != nil {
		return 0, err
	}
	c.lastOperand = uint16(data)
	return data, nil
}

// Step performs the instruction cycle - fetch, decode, execute. It returns the cycles
// the instruction took.
func (c *CPU) Step() (int, error) {
	c.injected = false
	c.lastAddress = c.pc
	c.lastOperand = 0
	fromQueue := c.fromQueue()
	if fromQueue && c.halted {
		// The interrupt returns to the instruction after the HLT.
		c.pc++
		c.halted = false
	}
	opcode, err := c.fetch8()
	if err != nil {
		return 0, err
	}
	c.injected = fromQueue
	c.lastOpcode = opcode
	instruction := c.instructions[opcode]
	if instruction.execute == nil {
		return 0, fmt.Errorf("%w: opcode=0x%02x, address=0x%04x", ErrInvalidInstruction, opcode, c.lastAddress)
	}
	c.taken = false
	err = instruction.execute(opcode)
	c.injected = false
	if err != nil {
		return 0, err
	}
	cycles := instruction.cycles
	if c.taken {
		cycles = instruction.taken
	}
	c.cycles += uint64(cycles)
	return cycles, nil
}

// LastExecution describes the last executed instruction.
func (c *CPU) LastExecution() string {
	instruction := c.instructions[c.lastOpcode]
	text := instruction.mnemonic
	switch instruction.size {
	case 2:
		text = fmt.Sprintf("%s 0x%02x", text, c.lastOperand)
	case 3:
		text = fmt.Sprintf("%s 0x%04x", text, c.lastOperand)
	}
	return fmt.Sprintf("0x%04x: %-16s %s", c.lastAddress, text, c.String())
}

func (c *CPU) String() string {
	flags := []byte("szapc")
	for i, f := range []bool{c.p.s, c.p.z, c.p.ac, c.p.p, c.p.c} {
		if f {
			flags[i] -= 'a' - 'A'
		}
	}
	return fmt.Sprintf("A=0x%02x, BC=0x%04x, DE=0x%04x, HL=0x%04x, SP=0x%04x, PC=0x%04x, F=%s, INTE=%v",
		c.regs[regA], c.pair(pairBC), c.pair(pairDE), c.pair(pairHL), c.sp, c.pc, flags, c.inte)
}

// reg reads a register by its 3 bit encoding, M goes to memory at HL.
func (c *CPU) reg(index byte) (byte, error) {
	if index == regM {
		return c.bus.Read8(c.pair(pairHL))
	}
	return c.regs[index], nil
}

// setReg writes a register by its 3 bit encoding, M goes to memory at HL.
func (c *CPU) setReg(index byte, x byte) error {
	if index == regM {
		return c.bus.Write8(c.pair(pairHL), x)
	}
	c.regs[index] = x
	return nil
}

// pair reads a register pair by its 2 bit encoding, 3 is SP.
func (c *CPU) pair(index byte) uint16 {
	switch index {
	case pairBC:
		return uint16(c.regs[regB])<<8 | uint16(c.regs[regC])
	case pairDE:
		return uint16(c.regs[regD])<<8 | uint16(c.regs[regE])
	case pairHL:
		return uint16(c.regs[regH])<<8 | uint16(c.regs[regL])
	}
	return c.sp
}

// setPair writes a register pair by its 2 bit encoding, 3 is SP.
func (c *CPU) setPair(index byte, x uint16) {
	switch index {
	case pairBC:
		c.regs[regB], c.regs[regC] = byte(x>>8), byte(x&0xFF)
	case pairDE:
		c.regs[regD], c.regs[regE] = byte(x>>8), byte(x&0xFF)
	case pairHL:
		c.regs[regH], c.regs[regL] = byte(x>>8), byte(x&0xFF)
	default:
		c.sp = x
	}
}

// condition evaluates the 3 bit condition code: NZ, Z, NC, C, PO, PE, P, M.
func (c *CPU) condition(code byte) bool {
	switch code & 0x07 {
	case 0:
		return !c.p.z
	case 1:
		return c.p.z
	case 2:
		return !c.p.c
	case 3:
		return c.p.c
	case 4:
		return !c.p.p
	case 5:
		return c.p.p
	case 6:
		return !c.p.s
	}
	return c.p.s
}

// setZSP sets zero, sign and parity flags from x.
func (c *CPU) setZSP(x byte) {
	c.p.z = x == 0
	c.p.s = x&0x80 != 0
	c.p.p = bits.OnesCount8(x)%2 == 0
}

// pushWord pushes a word to the stack.
func (c *CPU) pushWord(x uint16) error {
	c.sp -= 2
	return c.bus.WriteStack(c.sp, x)
}

// popWord pops a word from the stack.
func (c *CPU) popWord() (uint16, error) {
	x, err := c.bus.ReadStack(c.sp)
	if err != nil {
		return 0, err
	}
	c.sp += 2
	return x, nil
}

// NOP - No Operation.
func (c *CPU) nop(opcode byte) error {
	return nil
}

// HLT - Halt. The CPU stays on the HLT until an interrupt instruction is injected.
func (c *CPU) hlt(opcode byte) error {
	if !c.injected {
		c.pc--
		c.halted = true
	}
	return nil
}

// MOV - Move register or memory to register or memory.
func (c *CPU) mov(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	return c.setReg((opcode>>3)&0x07, x)
}

// MVI - Move Immediate.
func (c *CPU) mvi(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	return c.setReg((opcode>>3)&0x07, x)
}

// LXI - Load register pair Immediate.
func (c *CPU) lxi(opcode byte) error {
	x, err := c.fetch16()
	if err != nil {
		return err
	}
	c.setPair((opcode>>4)&0x03, x)
	return nil
}

// LDA - Load Accumulator direct.
func (c *CPU) lda(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	x, err := c.bus.Read8(address)
	if err != nil {
		return err
	}
	c.regs[regA] = x
	return nil
}

// STA - Store Accumulator direct.
func (c *CPU) sta(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	return c.bus.Write8(address, c.regs[regA])
}

// LHLD - Load H and L direct.
func (c *CPU) lhld(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	x, err := c.bus.Read16(address)
	if err != nil {
		return err
	}
	c.setPair(pairHL, x)
	return nil
}

// SHLD - Store H and L direct.
func (c *CPU) shld(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	return c.bus.Write16(address, c.pair(pairHL))
}

// LDAX - Load Accumulator indirect (BC or DE).
func (c *CPU) ldax(opcode byte) error {
	x, err := c.bus.Read8(c.pair((opcode >> 4) & 0x01))
	if err != nil {
		return err
	}
	c.regs[regA] = x
	return nil
}

// STAX - Store Accumulator indirect (BC or DE).
func (c *CPU) stax(opcode byte) error {
	return c.bus.Write8(c.pair((opcode>>4)&0x01), c.regs[regA])
}

// XCHG - Exchange DE and HL.
func (c *CPU) xchg(opcode byte) error {
	de, hl := c.pair(pairDE), c.pair(pairHL)
	c.setPair(pairDE, hl)
	c.setPair(pairHL, de)
	return nil
}

// addWithCarry adds x and the carry to the accumulator.
func (c *CPU) addWithCarry(x byte, carry byte) {
	a := c.regs[regA]
	res := uint16(a) + uint16(x) + uint16(carry)
	c.p.ac = (a&0x0F)+(x&0x0F)+carry > 0x0F
	c.p.c = res > 0xFF
	c.regs[regA] = byte(res & 0xFF)
	c.setZSP(c.regs[regA])
}

// subtract subtracts x and the borrow from the accumulator and returns the result
// without storing it. As on the 8080, AC is the carry of the low nibble of the
// complemented addition, i.e. set when there was no borrow from bit 4.
func (c *CPU) subtract(x byte, borrow byte) byte {
	a := c.regs[regA]
	res := int(a) - int(x) - int(borrow)
	c.p.ac = int(a&0x0F)-int(x&0x0F)-int(borrow) >= 0
	c.p.c = res < 0
	r := byte(res & 0xFF)
	c.setZSP(r)
	return r
}

func (c *CPU) carry() byte {
	if c.p.c {
		return 1
	}
	return 0
}

// logical finishes AND/XOR/OR: carry and half carry are cleared.
func (c *CPU) logical(x byte) {
	c.regs[regA] = x
	c.p.c = false
	c.p.ac = false
	c.setZSP(x)
}

// ADD - Add register or memory to accumulator.
func (c *CPU) add(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.addWithCarry(x, 0)
	return nil
}

// ADC - Add register or memory to accumulator with carry.
func (c *CPU) adc(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.addWithCarry(x, c.carry())
	return nil
}

// SUB - Subtract register or memory from accumulator.
func (c *CPU) sub(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.regs[regA] = c.subtract(x, 0)
	return nil
}

// SBB - Subtract register or memory from accumulator with borrow.
func (c *CPU) sbb(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.regs[regA] = c.subtract(x, c.carry())
	return nil
}

// ANA - Logical AND register or memory with accumulator.
func (c *CPU) ana(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.logical(c.regs[regA] & x)
	return nil
}

// XRA - Logical XOR register or memory with accumulator.
func (c *CPU) xra(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.logical(c.regs[regA] ^ x)
	return nil
}

// ORA - Logical OR register or memory with accumulator.
func (c *CPU) ora(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.logical(c.regs[regA] | x)
	return nil
}

// CMP - Compare register or memory with accumulator.
func (c *CPU) cmp(opcode byte) error {
	x, err := c.reg(opcode & 0x07)
	if err != nil {
		return err
	}
	c.subtract(x, 0)
	return nil
}

// ADI - Add Immediate to accumulator.
func (c *CPU) addImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.addWithCarry(x, 0)
	return nil
}

// ACI - Add Immediate to accumulator with carry.
func (c *CPU) adcImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.addWithCarry(x, c.carry())
	return nil
}

// SUI - Subtract Immediate from accumulator.
func (c *CPU) subImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.regs[regA] = c.subtract(x, 0)
	return nil
}

// SBI - Subtract Immediate from accumulator with borrow.
func (c *CPU) sbbImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.regs[regA] = c.subtract(x, c.carry())
	return nil
}

// ANI - AND Immediate with accumulator.
func (c *CPU) anaImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.logical(c.regs[regA] & x)
	return nil
}

// XRI - XOR Immediate with accumulator.
func (c *CPU) xraImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.logical(c.regs[regA] ^ x)
	return nil
}

// ORI - OR Immediate with accumulator.
func (c *CPU) oraImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.logical(c.regs[regA] | x)
	return nil
}

// CPI - Compare Immediate with accumulator.
func (c *CPU) cmpImmediate(opcode byte) error {
	x, err := c.operand8()
	if err != nil {
		return err
	}
	c.subtract(x, 0)
	return nil
}

// INR - Increment register or memory. Carry is not affected.
func (c *CPU) inr(opcode byte) error {
	index := (opcode >> 3) & 0x07
	x, err := c.reg(index)
	if err != nil {
		return err
	}
	x++
	c.p.ac = x&0x0F == 0
	c.setZSP(x)
	return c.setReg(index, x)
}

// DCR - Decrement register or memory. Carry is not affected.
func (c *CPU) dcr(opcode byte) error {
	index := (opcode >> 3) & 0x07
	x, err := c.reg(index)
	if err != nil {
		return err
	}
	x--
	c.p.ac = x&0x0F != 0x0F
	c.setZSP(x)
	return c.setReg(index, x)
}

// INX - Increment register pair.
func (c *CPU) inx(opcode byte) error {
	index := (opcode >> 4) & 0x03
	c.setPair(index, c.pair(index)+1)
	return nil
}

// DCX - Decrement register pair.
func (c *CPU) dcx(opcode byte) error {
	index := (opcode >> 4) & 0x03
	c.setPair(index, c.pair(index)-1)
	return nil
}

// DAD - Add register pair to HL, only carry is affected.
func (c *CPU) dad(opcode byte) error {
	res := uint32(c.pair(pairHL)) + uint32(c.pair((opcode>>4)&0x03))
	c.p.c = res > 0xFFFF
	c.setPair(pairHL, uint16(res&0xFFFF))
	return nil
}

// DAA - Decimal Adjust Accumulator.
func (c *CPU) daa(opcode byte) error {
	x := int(c.regs[regA])
	if x&0x0F > 9 || c.p.ac {
		x += 0x06
		c.p.ac = true
	}
	if x>>4 > 9 || c.p.c {
		x += 0x60
		c.p.c = true
	}
	c.regs[regA] = byte(x & 0xFF)
	c.setZSP(c.regs[regA])
	return nil
}

// RLC - Rotate accumulator Left.
func (c *CPU) rlc(opcode byte) error {
	a := c.regs[regA]
	c.p.c = a&0x80 != 0
	c.regs[regA] = a<<1 | a>>7
	return nil
}

// RRC - Rotate accumulator Right.
func (c *CPU) rrc(opcode byte) error {
	a := c.regs[regA]
	c.p.c = a&0x01 != 0
	c.regs[regA] = a>>1 | a<<7
	return nil
}

// RAL - Rotate accumulator Left through carry.
func (c *CPU) ral(opcode byte) error {
	a := c.regs[regA]
	carry := c.carry()
	c.p.c = a&0x80 != 0
	c.regs[regA] = a<<1 | carry
	return nil
}

// RAR - Rotate accumulator Right through carry.
func (c *CPU) rar(opcode byte) error {
	a := c.regs[regA]
	carry := c.carry()
	c.p.c = a&0x01 != 0
	c.regs[regA] = a>>1 | carry<<7
	return nil
}

// CMA - Complement Accumulator.
func (c *CPU) cma(opcode byte) error {
	c.regs[regA] = ^c.regs[regA]
	return nil
}

// STC - Set Carry.
func (c *CPU) stc(opcode byte) error {
	c.p.c = true
	return nil
}

// CMC - Complement Carry.
func (c *CPU) cmc(opcode byte) error {
	c.p.c = !c.p.c
	return nil
}

// JMP - Jump.
func (c *CPU) jmp(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	c.pc = address
	return nil
}

// Jcc - Conditional jump, costs the same either way.
func (c *CPU) jcc(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	if c.condition(opcode >> 3) {
		c.pc = address
	}
	return nil
}

// CALL - Call subroutine.
func (c *CPU) call(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	if err := c.pushWord(c.pc); err != nil {
		return err
	}
	c.pc = address
	return nil
}

// Ccc - Conditional call.
func (c *CPU) ccc(opcode byte) error {
	address, err := c.fetch16()
	if err != nil {
		return err
	}
	if !c.condition(opcode >> 3) {
		return nil
	}
	c.taken = true
	if err := c.pushWord(c.pc); err != nil {
		return err
	}
	c.pc = address
	return nil
}

// RET - Return from subroutine.
func (c *CPU) ret(opcode byte) error {
	address, err := c.popWord()
	if err != nil {
		return err
	}
	c.pc = address
	return nil
}

// Rcc - Conditional return.
func (c *CPU) rcc(opcode byte) error {
	if !c.condition(opcode >> 3) {
		return nil
	}
	c.taken = true
	return c.ret(opcode)
}

// RST - Restart, a one byte call to 8*n.
func (c *CPU) rst(opcode byte) error {
	if err := c.pushWord(c.pc); err != nil {
		return err
	}
	c.pc = uint16(opcode & 0x38)
	return nil
}

// PCHL - Jump to HL.
func (c *CPU) pchl(opcode byte) error {
	c.pc = c.pair(pairHL)
	return nil
}

// PUSH - Push register pair or PSW.
func (c *CPU) push(opcode byte) error {
	index := (opcode >> 4) & 0x03
	if index == pairSP {
		return c.pushWord(uint16(c.regs[regA])<<8 | uint16(c.p.encode()))
	}
	return c.pushWord(c.pair(index))
}

// POP - Pop register pair or PSW.
func (c *CPU) pop(opcode byte) error {
	x, err := c.popWord()
	if err != nil {
		return err
	}
	index := (opcode >> 4) & 0x03
	if index == pairSP {
		c.regs[regA] = byte(x >> 8)
		c.p.decodeFrom(byte(x & 0xFF))
		return nil
	}
	c.setPair(index, x)
	return nil
}

// XTHL - Exchange top of stack with HL.
func (c *CPU) xthl(opcode byte) error {
	x, err := c.bus.ReadStack(c.sp)
	if err != nil {
		return err
	}
	if err := c.bus.WriteStack(c.sp, c.pair(pairHL)); err != nil {
		return err
	}
	c.setPair(pairHL, x)
	return nil
}

// SPHL - Move HL to SP.
func (c *CPU) sphl(opcode byte) error {
	c.sp = c.pair(pairHL)
	return nil
}

// IN - Input from port.
func (c *CPU) in(opcode byte) error {
	port, err := c.operand8()
	if err != nil {
		return err
	}
	x, err := c.bus.ReadIO(port)
	if err != nil {
		return err
	}
	c.regs[regA] = x
	return nil
}

// OUT - Output to port.
func (c *CPU) out(opcode byte) error {
	port, err := c.operand8()
	if err != nil {
		return err
	}
	return c.bus.WriteIO(port, c.regs[regA])
}

// EI - Enable Interrupts.
func (c *CPU) ei(opcode byte) error {
	c.setInte(true)
	return nil
}

// DI - Disable Interrupts.
func (c *CPU) di(opcode byte) error {
	c.setInte(false)
	return nil
}

func (c *CPU) setInte(enabled bool) {
	c.inte = enabled
	if c.inteHook != nil {
		c.inteHook(enabled)
	}
}
