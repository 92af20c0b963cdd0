package ut88

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// DefaultUpdateInterval is how many CPU cycles pass between two Machine.Update calls,
// 100 times per second at CPUFrequency.
const DefaultUpdateInterval = CPUFrequency / 100

// tapeExtensions carry a sync byte in front of the memory image header.
var tapeExtensions = map[string]bool{
	".rku": true,
	".gam": true,
}

// Breakpoint is called before the instruction at its address is fetched. It may change
// CPU and machine state, including PC.
type Breakpoint func() error

// Emulator drives a CPU and its machine: breakpoints, periodic device updates and
// memory loading.
type Emulator struct {
	cpu     *CPU
	machine *Machine
	bus     Bus

	breakpoints map[uint16][]Breakpoint
	stopped     bool

	// UpdateInterval is the number of cycles between machine updates.
	UpdateInterval uint64
	lastUpdate     uint64

	// Log scopes instruction tracing.
	Log LogContext
}

// NewEmulator creates a driver for cpu. bus is the bus the CPU is attached to (possibly a
// decorator of machine), memory images are loaded through it.
func NewEmulator(machine *Machine, cpu *CPU, bus Bus) *Emulator {
	return &Emulator{
		cpu:            cpu,
		machine:        machine,
		bus:            bus,
		breakpoints:    make(map[uint16][]Breakpoint),
		UpdateInterval: DefaultUpdateInterval,
		lastUpdate:     cpu.Cycles(),
	}
}

// CPU returns the emulated CPU.
func (e *Emulator) CPU() *CPU {
	return e.cpu
}

// Machine returns the emulated machine.
func (e *Emulator) Machine() *Machine {
	return e.machine
}

// Bus returns the bus the CPU is attached to.
func (e *Emulator) Bus() Bus {
	return e.bus
}

// Reset resets the CPU. Memory is kept.
func (e *Emulator) Reset() {
	glog.Infof("CPU reset")
	e.cpu.Reset()
}

// AddBreakpoint appends a callback for address. All callbacks of an address run in
// registration order every time PC reaches it.
func (e *Emulator) AddBreakpoint(address uint16, callback Breakpoint) {
	e.breakpoints[address] = append(e.breakpoints[address], callback)
}

// ClearBreakpoints removes all callbacks of address.
func (e *Emulator) ClearBreakpoints(address uint16) {
	delete(e.breakpoints, address)
}

// Breakpoints returns the addresses that have callbacks.
func (e *Emulator) Breakpoints() []uint16 {
	addresses := make([]uint16, 0, len(e.breakpoints))
	for address := range e.breakpoints {
		addresses = append(addresses, address)
	}
	return addresses
}

// Stop makes a running Run return after the current instruction.
func (e *Emulator) Stop() {
	e.stopped = true
}

// Step runs the breakpoints at PC, executes one instruction and updates the machine
// when UpdateInterval cycles have passed.
func (e *Emulator) Step() (int, error) {
	for _, callback := range e.breakpoints[e.cpu.PC()] {
		if err := callback(); err != nil {
			return 0, err
		}
	}
	cycles, err := e.cpu.Step()
	if err != nil {
		return cycles, err
	}
	e.Log.Tracef("%s", e.cpu.LastExecution())
	if e.UpdateInterval > 0 && e.cpu.Cycles()-e.lastUpdate >= e.UpdateInterval {
		e.lastUpdate = e.cpu.Cycles()
		if err := e.machine.Update(); err != nil {
			return cycles, err
		}
	}
	return cycles, nil
}

// Run executes instructions until at least cycles cycles have been spent, Stop is
// called or an error occurs.
func (e *Emulator) Run(cycles uint64) error {
	e.stopped = false
	start := e.cpu.Cycles()
	for e.cpu.Cycles()-start < cycles {
		if _, err := e.Step(); err != nil {
			return err
		}
		if e.stopped {
			return nil
		}
	}
	return nil
}

// LoadBinary writes data to memory starting at address.
func (e *Emulator) LoadBinary(address uint16, data []byte) error {
	if int(address)+len(data) > 0x10000 {
		return fmt.Errorf("%w: %d bytes do not fit at 0x%04x", ErrPrecondition, len(data), address)
	}
	for i, x := range data {
		if err := e.bus.Write8(address+uint16(i), x); err != nil {
			return err
		}
	}
	return nil
}

// LoadMemory loads a memory image: a big-endian start and inclusive end address
// followed by end-start+1 bytes. Tape images have a sync byte before the header.
func (e *Emulator) LoadMemory(image []byte, tape bool) (start, end uint16, err error) {
	if tape {
		if len(image) == 0 {
			return 0, 0, fmt.Errorf("%w: empty tape image", ErrPrecondition)
		}
		image = image[1:]
	}
	if len(image) < 4 {
		return 0, 0, fmt.Errorf("%w: memory image header is truncated", ErrPrecondition)
	}
	start = binary.BigEndian.Uint16(image[0:2])
	end = binary.BigEndian.Uint16(image[2:4])
	if end < start {
		return 0, 0, fmt.Errorf("%w: memory image end 0x%04x is before start 0x%04x", ErrPrecondition, end, start)
	}
	size := int(end) - int(start) + 1
	if len(image)-4 < size {
		return 0, 0, fmt.Errorf("%w: memory image 0x%04x-0x%04x has only %d of %d bytes", ErrPrecondition, start, end, len(image)-4, size)
	}
	if err := e.LoadBinary(start, image[4:4+size]); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// LoadFile loads a memory image file, tape images are recognized by extension.
func (e *Emulator) LoadFile(path string) (start, end uint16, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("Failed to read %s: %w", path, err)
	}
	tape := tapeExtensions[strings.ToLower(filepath.Ext(path))]
	start, end, err = e.LoadMemory(b, tape)
	if err != nil {
		return 0, 0, fmt.Errorf("Failed to load %s: %w", path, err)
	}
	glog.Infof("Loaded %s at 0x%04x-0x%04x", path, start, end)
	return start, end, nil
}
