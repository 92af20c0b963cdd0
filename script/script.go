// Package script runs Lua scripts that hook emulator breakpoints. A script typically
// replaces a slow firmware routine: it registers a callback at the routine's entry,
// does the work on the host and returns to the caller by popping the return address.
//
//	breakpoint(0xF809, function()
//	  io.write(string.char(get("c")))
//	  ret()
//	end)
//
// Functions available to scripts:
//
//	breakpoint(addr, fn)  call fn every time PC reaches addr
//	get(reg), set(reg, v) read/write a register (a, b, c, d, e, h, l, bc, de, hl, sp, pc, f)
//	peek(addr), poke(addr, v)
//	ret()                 return from the current subroutine
//	quiet(), verbose()    enter/exit a scope without instruction traces
//	log(msg)
package script

import (
	"fmt"

	"github.com/golang/glog"
	lua "github.com/yuin/gopher-lua"

	"github.com/grafalex82/ut88-sub000/ut88"
)

// Script is a loaded Lua state bound to an emulator.
type Script struct {
	state    *lua.LState
	emulator *ut88.Emulator
}

// New creates a Lua state with the emulator functions registered.
func New(emulator *ut88.Emulator) *Script {
	s := &Script{state: lua.NewState(), emulator: emulator}
	for name, fn := range map[string]lua.LGFunction{
		"breakpoint": s.breakpoint,
		"get":        s.get,
		"set":        s.set,
		"peek":       s.peek,
		"poke":       s.poke,
		"ret":        s.ret,
		"quiet":      s.quiet,
		"verbose":    s.verbose,
		"log":        s.log,
	} {
		s.state.SetGlobal(name, s.state.NewFunction(fn))
	}
	return s
}

// LoadFile runs a script file, usually registering breakpoints.
func (s *Script) LoadFile(path string) error {
	if err := s.state.DoFile(path); err != nil {
		return fmt.Errorf("Failed to run script %s: %w", path, err)
	}
	glog.Infof("Script %s loaded", path)
	return nil
}

// LoadString runs script source.
func (s *Script) LoadString(source string) error {
	if err := s.state.DoString(source); err != nil {
		return fmt.Errorf("Failed to run script: %w", err)
	}
	return nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.state.Close()
}

func (s *Script) checkAddress(L *lua.LState, n int) uint16 {
	x := L.CheckInt(n)
	if x < 0 || x > 0xFFFF {
		L.ArgError(n, fmt.Sprintf("address 0x%x out of range", x))
	}
	return uint16(x)
}

// raise turns a Go error into a Lua error.
func raise(L *lua.LState, err error) int {
	L.RaiseError("%v", err)
	return 0
}

func (s *Script) breakpoint(L *lua.LState) int {
	address := s.checkAddress(L, 1)
	fn := L.CheckFunction(2)
	s.emulator.AddBreakpoint(address, func() error {
		return s.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	})
	return 0
}

func (s *Script) get(L *lua.LState) int {
	x, err := s.emulator.CPU().Register(L.CheckString(1))
	if err != nil {
		return raise(L, err)
	}
	L.Push(lua.LNumber(x))
	return 1
}

func (s *Script) set(L *lua.LState) int {
	if err := s.emulator.CPU().SetRegister(L.CheckString(1), L.CheckInt(2)); err != nil {
		return raise(L, err)
	}
	return 0
}

func (s *Script) peek(L *lua.LState) int {
	x, err := s.emulator.Bus().Read8(s.checkAddress(L, 1))
	if err != nil {
		return raise(L, err)
	}
	L.Push(lua.LNumber(x))
	return 1
}

func (s *Script) poke(L *lua.LState) int {
	address := s.checkAddress(L, 1)
	x := L.CheckInt(2)
	if x < 0 || x > 0xFF {
		L.ArgError(2, fmt.Sprintf("value %d out of range", x))
		return 0
	}
	if err := s.emulator.Bus().Write8(address, byte(x)); err != nil {
		return raise(L, err)
	}
	return 0
}

func (s *Script) ret(L *lua.LState) int {
	cpu := s.emulator.CPU()
	address, err := s.emulator.Bus().ReadStack(cpu.SP())
	if err != nil {
		return raise(L, err)
	}
	cpu.SetSP(cpu.SP() + 2)
	cpu.SetPC(address)
	return 0
}

func (s *Script) quiet(L *lua.LState) int {
	s.emulator.Log.Enter()
	return 0
}

func (s *Script) verbose(L *lua.LState) int {
	s.emulator.Log.Exit()
	return 0
}

func (s *Script) log(L *lua.LState) int {
	glog.Infof("script: %s", L.CheckString(1))
	return 0
}
