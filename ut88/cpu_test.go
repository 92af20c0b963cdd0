package ut88

import (
	"errors"
	"testing"
)

// newTestCPU creates a CPU on a strict machine with 64k of RAM holding program at 0.
func newTestCPU(t *testing.T, program ...byte) (*CPU, *RAM) {
	t.Helper()
	m := NewMachine()
	m.SetStrict(true)
	ram := NewRAM("RAM", 0x10000)
	if err := m.AddMemory(ram, 0); err != nil {
		t.Fatal(err)
	}
	copy(ram.Bytes(), program)
	cpu := NewCPU(m)
	m.AttachCPU(cpu)
	return cpu, ram
}

// port is an I/O device remembering the last written value.
type port struct {
	in  byte
	out byte
}

func (p *port) Read8(offset uint16) (byte, error)     { return p.in, nil }
func (p *port) Write8(offset uint16, data byte) error { p.out = data; return nil }

func TestInstructionCycles(t *testing.T) {
	tests := []struct {
		name    string
		program []byte
		setup   func(c *CPU)
		want    int
		wantPC  uint16
	}{
		{name: "NOP", program: []byte{0x00}, want: 4, wantPC: 1},
		{name: "MOV B,C", program: []byte{0x41}, want: 5, wantPC: 1},
		{name: "MOV M,A", program: []byte{0x77}, setup: func(c *CPU) { c.SetHL(0x100) }, want: 7, wantPC: 1},
		{name: "MVI M", program: []byte{0x36, 0x12}, setup: func(c *CPU) { c.SetHL(0x100) }, want: 10, wantPC: 2},
		{name: "INR M", program: []byte{0x34}, setup: func(c *CPU) { c.SetHL(0x100) }, want: 10, wantPC: 1},
		{name: "LXI B", program: []byte{0x01, 0x34, 0x12}, want: 10, wantPC: 3},
		{name: "JMP", program: []byte{0xC3, 0x00, 0x20}, want: 10, wantPC: 0x2000},
		{name: "JNZ not taken", program: []byte{0xC2, 0x00, 0x20}, setup: func(c *CPU) { c.SetZero(true) }, want: 10, wantPC: 3},
		{name: "CALL", program: []byte{0xCD, 0x00, 0x20}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 17, wantPC: 0x2000},
		{name: "CNZ taken", program: []byte{0xC4, 0x00, 0x20}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 17, wantPC: 0x2000},
		{name: "CNZ not taken", program: []byte{0xC4, 0x00, 0x20}, setup: func(c *CPU) { c.SetZero(true) }, want: 11, wantPC: 3},
		{name: "RET", program: []byte{0xC9}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 10, wantPC: 0},
		{name: "RNZ taken", program: []byte{0xC0}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 11, wantPC: 0},
		{name: "RNZ not taken", program: []byte{0xC0}, setup: func(c *CPU) { c.SetZero(true) }, want: 5, wantPC: 1},
		{name: "PUSH B", program: []byte{0xC5}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 11, wantPC: 1},
		{name: "POP B", program: []byte{0xC1}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 10, wantPC: 1},
		{name: "XTHL", program: []byte{0xE3}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 18, wantPC: 1},
		{name: "RST 7", program: []byte{0xFF}, setup: func(c *CPU) { c.SetSP(0x8000) }, want: 11, wantPC: 0x38},
		{name: "PCHL", program: []byte{0xE9}, setup: func(c *CPU) { c.SetHL(0x1234) }, want: 5, wantPC: 0x1234},
		{name: "DAA", program: []byte{0x27}, want: 4, wantPC: 1},
		{name: "HLT", program: []byte{0x76}, want: 7, wantPC: 0},
		{name: "EI", program: []byte{0xFB}, want: 4, wantPC: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := newTestCPU(t, tt.program...)
			if tt.setup != nil {
				tt.setup(cpu)
			}
			got, err := cpu.Step()
			if err != nil {
				t.Fatalf("Step() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("cycles: got=%d, want=%d", got, tt.want)
			}
			if cpu.PC() != tt.wantPC {
				t.Errorf("pc: got=0x%04x, want=0x%04x", cpu.PC(), tt.wantPC)
			}
			if cpu.Cycles() != uint64(tt.want) {
				t.Errorf("cycle counter: got=%d, want=%d", cpu.Cycles(), tt.want)
			}
		})
	}
}

func TestArithmeticFlags(t *testing.T) {
	tests := []struct {
		name                        string
		program                     []byte
		a, b                        byte
		carry                       bool
		wantA                       byte
		wantS, wantZ, wantAC, wantP bool
		wantC                       bool
	}{
		{name: "ADD carry out", program: []byte{0x80}, a: 0xF0, b: 0x20, wantA: 0x10, wantC: true},
		{name: "ADD half carry", program: []byte{0x80}, a: 0x0F, b: 0x01, wantA: 0x10, wantAC: true},
		{name: "ADD zero", program: []byte{0x80}, a: 0x80, b: 0x80, wantA: 0x00, wantZ: true, wantP: true, wantC: true},
		{name: "ADC uses carry", program: []byte{0x88}, a: 0x01, b: 0x01, carry: true, wantA: 0x03, wantP: true},
		{name: "SUB borrow", program: []byte{0x90}, a: 0x00, b: 0x01, wantA: 0xFF, wantS: true, wantP: true, wantC: true},
		{name: "SUB no nibble borrow", program: []byte{0x90}, a: 0x35, b: 0x12, wantA: 0x23, wantAC: true},
		{name: "SBB uses borrow", program: []byte{0x98}, a: 0x05, b: 0x02, carry: true, wantA: 0x02, wantAC: true},
		{name: "CMP equal keeps A", program: []byte{0xB8}, a: 0x42, b: 0x42, wantA: 0x42, wantZ: true, wantAC: true, wantP: true},
		{name: "ANA clears carry", program: []byte{0xA0}, a: 0xF0, b: 0x3C, carry: true, wantA: 0x30, wantP: true},
		{name: "XRA self", program: []byte{0xA8}, a: 0x5A, b: 0x5A, wantA: 0x00, wantZ: true, wantP: true},
		{name: "ORA sign", program: []byte{0xB0}, a: 0x80, b: 0x01, wantA: 0x81, wantS: true, wantP: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := newTestCPU(t, tt.program...)
			cpu.SetA(tt.a)
			cpu.SetB(tt.b)
			cpu.SetCarry(tt.carry)
			if _, err := cpu.Step(); err != nil {
				t.Fatalf("Step() failed: %v", err)
			}
			if cpu.A() != tt.wantA {
				t.Errorf("a: got=0x%02x, want=0x%02x", cpu.A(), tt.wantA)
			}
			got := []bool{cpu.Sign(), cpu.Zero(), cpu.HalfCarry(), cpu.Parity(), cpu.Carry()}
			want := []bool{tt.wantS, tt.wantZ, tt.wantAC, tt.wantP, tt.wantC}
			for i, name := range []string{"sign", "zero", "half carry", "parity", "carry"} {
				if got[i] != want[i] {
					t.Errorf("%s: got=%v, want=%v", name, got[i], want[i])
				}
			}
		})
	}
}

func TestZeroSignParityFromResult(t *testing.T) {
	for x := 0; x < 0x100; x++ {
		cpu, _ := newTestCPU(t, 0xF6, 0x00) // ORI 0
		cpu.SetA(byte(x))
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
		ones := 0
		for i := 0; i < 8; i++ {
			ones += (x >> i) & 1
		}
		if cpu.Zero() != (x == 0) {
			t.Errorf("zero(0x%02x): got=%v", x, cpu.Zero())
		}
		if cpu.Sign() != (x&0x80 != 0) {
			t.Errorf("sign(0x%02x): got=%v", x, cpu.Sign())
		}
		if cpu.Parity() != (ones%2 == 0) {
			t.Errorf("parity(0x%02x): got=%v, want=%v", x, cpu.Parity(), ones%2 == 0)
		}
	}
}

func TestDAA(t *testing.T) {
	tests := []struct {
		a, wantA      byte
		ac, c         bool
		wantAC, wantC bool
	}{
		{a: 0x9B, wantA: 0x01, wantAC: true, wantC: true},
		{a: 0x15, wantA: 0x15},
		{a: 0x0A, wantA: 0x10, wantAC: true},
		{a: 0x12, ac: true, wantA: 0x18, wantAC: true},
		{a: 0x20, c: true, wantA: 0x80, wantC: true},
	}
	for _, tt := range tests {
		cpu, _ := newTestCPU(t, 0x27)
		cpu.SetA(tt.a)
		cpu.SetHalfCarry(tt.ac)
		cpu.SetCarry(tt.c)
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
		if cpu.A() != tt.wantA || cpu.HalfCarry() != tt.wantAC || cpu.Carry() != tt.wantC {
			t.Errorf("DAA 0x%02x: got=(0x%02x, ac=%v, c=%v), want=(0x%02x, ac=%v, c=%v)",
				tt.a, cpu.A(), cpu.HalfCarry(), cpu.Carry(), tt.wantA, tt.wantAC, tt.wantC)
		}
	}
}

func TestIncrementDecrement(t *testing.T) {
	cpu, _ := newTestCPU(t, 0x04, 0x05, 0x05) // INR B, DCR B, DCR B
	cpu.SetB(0xFF)
	cpu.SetCarry(true)
	if _, err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if cpu.B() != 0x00 || !cpu.Zero() || !cpu.HalfCarry() || !cpu.Carry() {
		t.Errorf("INR 0xFF: got=(0x%02x, z=%v, ac=%v, c=%v), want=(0x00, z=true, ac=true, c=true)", cpu.B(), cpu.Zero(), cpu.HalfCarry(), cpu.Carry())
	}
	if _, err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if cpu.B() != 0xFF || !cpu.Sign() || cpu.HalfCarry() {
		t.Errorf("DCR 0x00: got=(0x%02x, s=%v, ac=%v), want=(0xff, s=true, ac=false)", cpu.B(), cpu.Sign(), cpu.HalfCarry())
	}
	if _, err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if cpu.B() != 0xFE || !cpu.HalfCarry() {
		t.Errorf("DCR 0xFF: got=(0x%02x, ac=%v), want=(0xfe, ac=true)", cpu.B(), cpu.HalfCarry())
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	// PUSH B, PUSH D, PUSH H, PUSH PSW, POP H, POP D, POP B, POP PSW
	cpu, ram := newTestCPU(t, 0xC5, 0xD5, 0xE5, 0xF5, 0xE1, 0xD1, 0xC1, 0xF1)
	cpu.SetSP(0x8000)
	cpu.SetBC(0x1122)
	cpu.SetDE(0x3344)
	cpu.SetHL(0x5566)
	cpu.SetA(0x77)
	cpu.SetCarry(true)
	cpu.SetZero(true)
	for i := 0; i < 4; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if cpu.SP() != 0x8000-8 {
		t.Fatalf("sp: got=0x%04x, want=0x%04x", cpu.SP(), 0x8000-8)
	}
	// The high byte lives at the higher address.
	if got := ram.Bytes()[0x7FFF]; got != 0x11 {
		t.Errorf("stack high byte: got=0x%02x, want=0x11", got)
	}
	if got := ram.Bytes()[0x7FFE]; got != 0x22 {
		t.Errorf("stack low byte: got=0x%02x, want=0x22", got)
	}
	// PSW: S Z 0 AC 0 P 1 C
	if got := ram.Bytes()[0x7FF8]; got != 0x43 {
		t.Errorf("pushed flags: got=0x%02x, want=0x43", got)
	}
	for i := 0; i < 4; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if cpu.SP() != 0x8000 {
		t.Errorf("sp: got=0x%04x, want=0x8000", cpu.SP())
	}
	// Registers are rotated by the pop order: PSW went to HL, HL to DE, DE to BC.
	if cpu.HL() != 0x7743 {
		t.Errorf("hl: got=0x%04x, want=0x7743", cpu.HL())
	}
	if cpu.DE() != 0x5566 {
		t.Errorf("de: got=0x%04x, want=0x5566", cpu.DE())
	}
	if cpu.BC() != 0x3344 {
		t.Errorf("bc: got=0x%04x, want=0x3344", cpu.BC())
	}
	// 0x22 has no flag bits set, only the fixed bit 1 remains.
	if cpu.A() != 0x11 || cpu.PSW() != 0x02 {
		t.Errorf("psw: got=(0x%02x, 0x%02x), want=(0x11, 0x02)", cpu.A(), cpu.PSW())
	}
}

func TestInterruptInjection(t *testing.T) {
	tests := []struct {
		name   string
		inte   bool
		wantPC uint16
		wantSP uint16
	}{
		{name: "enabled", inte: true, wantPC: 0x0038, wantSP: 0x7FFE},
		{name: "disabled", inte: false, wantPC: 0x0101, wantSP: 0x8000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, ram := newTestCPU(t)
			ram.Bytes()[0x0100] = 0x00 // NOP
			cpu.SetPC(0x0100)
			cpu.SetSP(0x8000)
			cpu.inte = tt.inte
			if err := cpu.ScheduleInterrupt(0xFF); err != nil {
				t.Fatal(err)
			}
			if _, err := cpu.Step(); err != nil {
				t.Fatalf("Step() failed: %v", err)
			}
			if cpu.PC() != tt.wantPC {
				t.Errorf("pc: got=0x%04x, want=0x%04x", cpu.PC(), tt.wantPC)
			}
			if cpu.SP() != tt.wantSP {
				t.Errorf("sp: got=0x%04x, want=0x%04x", cpu.SP(), tt.wantSP)
			}
			if tt.inte {
				// The return address is the instruction that was not executed.
				if ret, _ := cpu.bus.ReadStack(cpu.SP()); ret != 0x0100 {
					t.Errorf("return address: got=0x%04x, want=0x0100", ret)
				}
				if len(cpu.Pending()) != 0 {
					t.Errorf("pending: got=% x, want empty", cpu.Pending())
				}
			}
		})
	}
}

func TestInjectedCall(t *testing.T) {
	cpu, _ := newTestCPU(t)
	cpu.SetPC(0x0200)
	cpu.SetSP(0x8000)
	cpu.inte = true
	if err := cpu.ScheduleInterrupt(0xCD, 0x34, 0x12); err != nil {
		t.Fatal(err)
	}
	cycles, err := cpu.Step()
	if err != nil {
		t.Fatal(err)
	}
	if cycles != 17 || cpu.PC() != 0x1234 {
		t.Errorf("got=(%d, 0x%04x), want=(17, 0x1234)", cycles, cpu.PC())
	}
}

func TestHaltIdles(t *testing.T) {
	cpu, ram := newTestCPU(t)
	ram.Bytes()[0x0300] = 0x76
	cpu.SetPC(0x0300)
	// HLT from memory idles on itself.
	if _, err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if cpu.PC() != 0x0300 {
		t.Errorf("pc after HLT: got=0x%04x, want=0x0300", cpu.PC())
	}
}

func TestHaltResumesAfterInterrupt(t *testing.T) {
	// EI; HLT; MVI A,0x42; HLT
	cpu, ram := newTestCPU(t, 0xFB, 0x76, 0x3E, 0x42, 0x76)
	// RST 7 handler: EI; RET
	copy(ram.Bytes()[0x38:], []byte{0xFB, 0xC9})
	cpu.SetSP(0x8000)
	for i := 0; i < 4; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if cpu.PC() != 0x0001 {
		t.Fatalf("pc while halted: got=0x%04x, want=0x0001", cpu.PC())
	}
	if err := cpu.ScheduleInterrupt(0xFF); err != nil {
		t.Fatal(err)
	}
	if _, err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if cpu.PC() != 0x0038 {
		t.Errorf("pc after RST 7: got=0x%04x, want=0x0038", cpu.PC())
	}
	if ret, _ := cpu.bus.ReadStack(cpu.SP()); ret != 0x0002 {
		t.Errorf("return address: got=0x%04x, want=0x0002", ret)
	}
	for i := 0; i < 10; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if cpu.A() != 0x42 || cpu.PC() != 0x0004 {
		t.Errorf("got a=0x%02x pc=0x%04x, want a=0x42 pc=0x0004", cpu.A(), cpu.PC())
	}
}

func TestConditions(t *testing.T) {
	flags := []struct {
		name string
		set  func(c *CPU, f bool)
	}{
		{"zero", (*CPU).SetZero},
		{"carry", (*CPU).SetCarry},
		{"parity", (*CPU).SetParity},
		{"sign", (*CPU).SetSign},
	}
	// NZ, Z, NC, C, PO, PE, P, M
	names := []string{"NZ", "Z", "NC", "C", "PO", "PE", "P", "M"}
	for code := byte(0); code < 8; code++ {
		flag := flags[code/2]
		for _, set := range []bool{false, true} {
			taken := set == (code%2 == 1)
			tests := []struct {
				kind        string
				opcode      byte
				takenPC     uint16
				skipPC      uint16
				takenCycles int
				skipCycles  int
			}{
				{"J", 0xC2 | code<<3, 0x2000, 0x0003, 10, 10},
				{"C", 0xC4 | code<<3, 0x2000, 0x0003, 17, 11},
				{"R", 0xC0 | code<<3, 0x1234, 0x0001, 11, 5},
			}
			for _, tt := range tests {
				cpu, ram := newTestCPU(t, tt.opcode, 0x00, 0x20)
				copy(ram.Bytes()[0x8000:], []byte{0x34, 0x12})
				cpu.SetSP(0x8000)
				flag.set(cpu, set)
				cycles, err := cpu.Step()
				if err != nil {
					t.Fatalf("%s%s: %v", tt.kind, names[code], err)
				}
				wantPC, wantCycles := tt.skipPC, tt.skipCycles
				if taken {
					wantPC, wantCycles = tt.takenPC, tt.takenCycles
				}
				if cpu.PC() != wantPC || cycles != wantCycles {
					t.Errorf("%s%s with %s=%v: got=(0x%04x, %d), want=(0x%04x, %d)",
						tt.kind, names[code], flag.name, set, cpu.PC(), cycles, wantPC, wantCycles)
				}
			}
		}
	}
}

func TestRotatesAndCarry(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		a      byte
		carry  bool
		wantA  byte
		wantC  bool
	}{
		{name: "RLC", opcode: 0x07, a: 0x85, wantA: 0x0B, wantC: true},
		{name: "RLC no carry", opcode: 0x07, a: 0x41, carry: true, wantA: 0x82},
		{name: "RRC", opcode: 0x0F, a: 0x01, wantA: 0x80, wantC: true},
		{name: "RAL", opcode: 0x17, a: 0x85, wantA: 0x0A, wantC: true},
		{name: "RAL carry in", opcode: 0x17, a: 0x05, carry: true, wantA: 0x0B},
		{name: "RAR carry in", opcode: 0x1F, a: 0x01, carry: true, wantA: 0x80, wantC: true},
		{name: "RAR", opcode: 0x1F, a: 0x02, wantA: 0x01},
		{name: "CMA keeps carry", opcode: 0x2F, a: 0x51, carry: true, wantA: 0xAE, wantC: true},
		{name: "STC", opcode: 0x37, a: 0x12, wantA: 0x12, wantC: true},
		{name: "CMC set", opcode: 0x3F, a: 0x12, wantA: 0x12, wantC: true},
		{name: "CMC clear", opcode: 0x3F, a: 0x12, carry: true, wantA: 0x12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := newTestCPU(t, tt.opcode)
			cpu.SetA(tt.a)
			cpu.SetCarry(tt.carry)
			if _, err := cpu.Step(); err != nil {
				t.Fatal(err)
			}
			if cpu.A() != tt.wantA || cpu.Carry() != tt.wantC {
				t.Errorf("got=(0x%02x, c=%v), want=(0x%02x, c=%v)", cpu.A(), cpu.Carry(), tt.wantA, tt.wantC)
			}
		})
	}
}

func TestDataMovement(t *testing.T) {
	tests := []struct {
		name    string
		program []byte
		setup   func(c *CPU, mem []byte)
		check   func(t *testing.T, c *CPU, mem []byte)
	}{
		{
			name:    "XCHG",
			program: []byte{0xEB},
			setup:   func(c *CPU, mem []byte) { c.SetDE(0x1234); c.SetHL(0x5678) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.DE() != 0x5678 || c.HL() != 0x1234 {
					t.Errorf("got de=0x%04x hl=0x%04x, want de=0x5678 hl=0x1234", c.DE(), c.HL())
				}
			},
		},
		{
			name:    "XTHL",
			program: []byte{0xE3},
			setup: func(c *CPU, mem []byte) {
				c.SetSP(0x8000)
				c.SetHL(0x5678)
				copy(mem[0x8000:], []byte{0x34, 0x12})
			},
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.HL() != 0x1234 || mem[0x8000] != 0x78 || mem[0x8001] != 0x56 || c.SP() != 0x8000 {
					t.Errorf("got hl=0x%04x stack=% x sp=0x%04x, want hl=0x1234 stack=78 56 sp=0x8000", c.HL(), mem[0x8000:0x8002], c.SP())
				}
			},
		},
		{
			name:    "LHLD",
			program: []byte{0x2A, 0x00, 0x30},
			setup:   func(c *CPU, mem []byte) { copy(mem[0x3000:], []byte{0xCD, 0xAB}) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.HL() != 0xABCD {
					t.Errorf("hl: got=0x%04x, want=0xabcd", c.HL())
				}
			},
		},
		{
			name:    "SHLD",
			program: []byte{0x22, 0x00, 0x30},
			setup:   func(c *CPU, mem []byte) { c.SetHL(0xABCD) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if mem[0x3000] != 0xCD || mem[0x3001] != 0xAB {
					t.Errorf("memory: got=% x, want=cd ab", mem[0x3000:0x3002])
				}
			},
		},
		{
			name:    "LDA",
			program: []byte{0x3A, 0x00, 0x30},
			setup:   func(c *CPU, mem []byte) { mem[0x3000] = 0x42 },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.A() != 0x42 {
					t.Errorf("a: got=0x%02x, want=0x42", c.A())
				}
			},
		},
		{
			name:    "STA",
			program: []byte{0x32, 0x00, 0x30},
			setup:   func(c *CPU, mem []byte) { c.SetA(0x42) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if mem[0x3000] != 0x42 {
					t.Errorf("memory: got=0x%02x, want=0x42", mem[0x3000])
				}
			},
		},
		{
			name:    "LDAX B",
			program: []byte{0x0A},
			setup:   func(c *CPU, mem []byte) { c.SetBC(0x3000); mem[0x3000] = 0x11 },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.A() != 0x11 {
					t.Errorf("a: got=0x%02x, want=0x11", c.A())
				}
			},
		},
		{
			name:    "LDAX D",
			program: []byte{0x1A},
			setup:   func(c *CPU, mem []byte) { c.SetDE(0x3001); mem[0x3001] = 0x22 },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.A() != 0x22 {
					t.Errorf("a: got=0x%02x, want=0x22", c.A())
				}
			},
		},
		{
			name:    "STAX B",
			program: []byte{0x02},
			setup:   func(c *CPU, mem []byte) { c.SetBC(0x3000); c.SetA(0x99) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if mem[0x3000] != 0x99 {
					t.Errorf("memory: got=0x%02x, want=0x99", mem[0x3000])
				}
			},
		},
		{
			name:    "STAX D",
			program: []byte{0x12},
			setup:   func(c *CPU, mem []byte) { c.SetDE(0x3001); c.SetA(0x98) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if mem[0x3001] != 0x98 {
					t.Errorf("memory: got=0x%02x, want=0x98", mem[0x3001])
				}
			},
		},
		{
			name:    "SPHL",
			program: []byte{0xF9},
			setup:   func(c *CPU, mem []byte) { c.SetHL(0x1234) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.SP() != 0x1234 {
					t.Errorf("sp: got=0x%04x, want=0x1234", c.SP())
				}
			},
		},
		{
			name:    "DAD B carry",
			program: []byte{0x09},
			setup:   func(c *CPU, mem []byte) { c.SetHL(0xFFFF); c.SetBC(0x0002) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.HL() != 0x0001 || !c.Carry() {
					t.Errorf("got=(0x%04x, c=%v), want=(0x0001, c=true)", c.HL(), c.Carry())
				}
			},
		},
		{
			name:    "DAD H clears carry",
			program: []byte{0x29},
			setup:   func(c *CPU, mem []byte) { c.SetHL(0x1234); c.SetCarry(true) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.HL() != 0x2468 || c.Carry() {
					t.Errorf("got=(0x%04x, c=%v), want=(0x2468, c=false)", c.HL(), c.Carry())
				}
			},
		},
		{
			name:    "DAD SP",
			program: []byte{0x39},
			setup:   func(c *CPU, mem []byte) { c.SetHL(0x8000); c.SetSP(0x8000) },
			check: func(t *testing.T, c *CPU, mem []byte) {
				if c.HL() != 0x0000 || !c.Carry() {
					t.Errorf("got=(0x%04x, c=%v), want=(0x0000, c=true)", c.HL(), c.Carry())
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, ram := newTestCPU(t, tt.program...)
			tt.setup(cpu, ram.Bytes())
			if _, err := cpu.Step(); err != nil {
				t.Fatalf("Step() failed: %v", err)
			}
			tt.check(t, cpu, ram.Bytes())
		})
	}
}

func TestMalformedInterrupt(t *testing.T) {
	cpu, _ := newTestCPU(t)
	cpu.inte = true
	if err := cpu.ScheduleInterrupt(0xCD, 0x34); err != nil {
		t.Fatal(err)
	}
	_, err := cpu.Step()
	if !errors.Is(err, ErrMalformedInterrupt) {
		t.Errorf("err: got=%v, want=%v", err, ErrMalformedInterrupt)
	}
}

func TestScheduleInterruptTooLong(t *testing.T) {
	cpu, _ := newTestCPU(t)
	err := cpu.ScheduleInterrupt(0xCD, 0x00, 0x00, 0x00)
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("err: got=%v, want=%v", err, ErrPrecondition)
	}
}

func TestInvalidInstruction(t *testing.T) {
	for _, opcode := range []byte{0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38, 0xCB, 0xD9, 0xDD, 0xED, 0xFD} {
		cpu, _ := newTestCPU(t, opcode)
		_, err := cpu.Step()
		if !errors.Is(err, ErrInvalidInstruction) {
			t.Errorf("opcode 0x%02x: got=%v, want=%v", opcode, err, ErrInvalidInstruction)
		}
	}
}

func TestEveryDocumentedOpcodeHasAnEntry(t *testing.T) {
	cpu, _ := newTestCPU(t)
	invalid := 0
	for opcode, instruction := range cpu.instructions {
		if instruction.execute == nil {
			invalid++
			continue
		}
		if instruction.mnemonic == "" || instruction.size < 1 || instruction.size > 3 || instruction.cycles == 0 {
			t.Errorf("opcode 0x%02x: bad entry %+v", opcode, instruction)
		}
	}
	if len(cpu.instructions) != 256 {
		t.Errorf("table size: got=%d, want=256", len(cpu.instructions))
	}
	if invalid != 12 {
		t.Errorf("undocumented opcodes: got=%d, want=12", invalid)
	}
}

func TestInOut(t *testing.T) {
	cpu, _ := newTestCPU(t, 0xDB, 0x10, 0xD3, 0x11) // IN 0x10, OUT 0x11
	m := cpu.bus.(*Machine)
	p := &port{in: 0x5A}
	if err := m.AddIO(p, 0x10, 0x11); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if p.out != 0x5A {
		t.Errorf("out: got=0x%02x, want=0x5a", p.out)
	}
}

func TestInterruptHook(t *testing.T) {
	cpu, _ := newTestCPU(t, 0xFB, 0xF3) // EI, DI
	var levels []bool
	cpu.SetInterruptHook(func(enabled bool) { levels = append(levels, enabled) })
	for i := 0; i < 2; i++ {
		if _, err := cpu.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if len(levels) != 2 || !levels[0] || levels[1] {
		t.Errorf("levels: got=%v, want=[true false]", levels)
	}
}

func TestSetRegister(t *testing.T) {
	cpu, _ := newTestCPU(t)
	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"a", 0xFF, false},
		{"a", 0x100, true},
		{"hl", 0xFFFF, false},
		{"sp", 0x10000, true},
		{"pc", -1, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		err := cpu.SetRegister(tt.name, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetRegister(%q, %d): got err=%v, want err=%v", tt.name, tt.value, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrPrecondition) {
			t.Errorf("SetRegister(%q, %d): got=%v, want=%v", tt.name, tt.value, err, ErrPrecondition)
		}
	}
	if got, _ := cpu.Register("HL"); got != 0xFFFF {
		t.Errorf("hl: got=0x%04x, want=0xffff", got)
	}
	if cpu.H() != 0xFF || cpu.L() != 0xFF {
		t.Errorf("h, l: got=(0x%02x, 0x%02x), want=(0xff, 0xff)", cpu.H(), cpu.L())
	}
}

func TestReset(t *testing.T) {
	cpu, _ := newTestCPU(t, 0x00)
	if _, err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	cpu.SetA(1)
	cpu.SetSP(0x1234)
	cpu.SetCarry(true)
	cpu.inte = true
	if err := cpu.ScheduleInterrupt(0xFF); err != nil {
		t.Fatal(err)
	}
	cpu.Reset()
	if cpu.A() != 0 || cpu.SP() != 0 || cpu.PC() != 0 || cpu.Carry() || cpu.InterruptsEnabled() || len(cpu.Pending()) != 0 {
		t.Errorf("after reset: got=%s, pending=% x", cpu, cpu.Pending())
	}
	if cpu.Cycles() != 4 {
		t.Errorf("cycles: got=%d, want=4", cpu.Cycles())
	}
}
