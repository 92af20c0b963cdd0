package ut88

import (
	"fmt"

	"github.com/golang/glog"
)

// Bus is what the CPU sees of the machine.
type Bus interface {
	Read8(address uint16) (byte, error)
	Write8(address uint16, data byte) error
	Read16(address uint16) (uint16, error)
	Write16(address uint16, data uint16) error
	ReadStack(address uint16) (uint16, error)
	WriteStack(address uint16, data uint16) error
	ReadIO(port byte) (byte, error)
	WriteIO(port byte, data byte) error
}

// Machine routes memory, stack and I/O accesses to the registered devices.
//
// Memory ranges may overlap, the first registered range containing an address wins.
// I/O ports are mapped one by one, a later registration silently takes over the ports
// of an earlier one.
type Machine struct {
	memories  []*region
	ports     [256]*region
	ioDevices []*region
	others    []Updater
	strict    bool
	cpu       *CPU
}

// NewMachine creates an empty machine in lenient mode.
func NewMachine() *Machine {
	return &Machine{}
}

// SetStrict switches between strict (unmapped access fails) and lenient mode.
func (m *Machine) SetStrict(strict bool) {
	m.strict = strict
}

// Strict reports whether unmapped accesses fail.
func (m *Machine) Strict() bool {
	return m.strict
}

// AttachCPU sets the CPU interrupts are delivered to.
func (m *Machine) AttachCPU(cpu *CPU) {
	m.cpu = cpu
}

// AddMemory registers a device at start, the end address comes from its Size.
func (m *Machine) AddMemory(device Sizer, start uint16) error {
	size := device.Size()
	if size <= 0 || int(start)+size-1 > 0xFFFF {
		return fmt.Errorf("%w: %s of size 0x%x does not fit at 0x%04x", ErrPrecondition, deviceName(device), size, start)
	}
	return m.AddMemoryRange(device, start, start+uint16(size-1))
}

// AddMemoryRange registers a device for the [start, end] address range.
func (m *Machine) AddMemoryRange(device any, start, end uint16) error {
	if end < start {
		return fmt.Errorf("%w: bad memory range 0x%04x-0x%04x", ErrPrecondition, start, end)
	}
	m.memories = append(m.memories, &region{name: deviceName(device), start: start, end: end, device: device})
	glog.V(1).Infof("Memory 0x%04x-0x%04x: %s", start, end, deviceName(device))
	return nil
}

// AddIO registers a device for the [start, end] port range.
func (m *Machine) AddIO(device any, start, end byte) error {
	if end < start {
		return fmt.Errorf("%w: bad port range 0x%02x-0x%02x", ErrPrecondition, start, end)
	}
	r := &region{name: deviceName(device), start: uint16(start), end: uint16(end), device: device}
	for port := int(start); port <= int(end); port++ {
		m.ports[port] = r
	}
	m.ioDevices = append(m.ioDevices, r)
	glog.V(1).Infof("I/O 0x%02x-0x%02x: %s", start, end, deviceName(device))
	return nil
}

// AddOther registers a device that is only ticked by Update.
func (m *Machine) AddOther(device Updater) {
	m.others = append(m.others, device)
}

func (m *Machine) memory(address uint16) *region {
	for _, r := range m.memories {
		if r.contains(address) {
			return r
		}
	}
	return nil
}

func (m *Machine) unmapped(kind string, address uint16) error {
	return fmt.Errorf("%w: no device to %s at 0x%04x", ErrAddressing, kind, address)
}

// Read8 reads a byte from memory.
func (m *Machine) Read8(address uint16) (byte, error) {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return 0, m.unmapped("read byte", address)
		}
		glog.V(1).Infof("Unmapped byte read: address=0x%04x", address)
		return 0xFF, nil
	}
	return r.read8(address)
}

// Write8 writes a byte to memory.
func (m *Machine) Write8(address uint16, data byte) error {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return m.unmapped("write byte", address)
		}
		glog.V(1).Infof("Unmapped byte write: address=0x%04x, data=0x%02x", address, data)
		return nil
	}
	return r.write8(address, data)
}

// Read16 reads a little-endian word from memory.
func (m *Machine) Read16(address uint16) (uint16, error) {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return 0, m.unmapped("read word", address)
		}
		glog.V(1).Infof("Unmapped word read: address=0x%04x", address)
		return 0xFFFF, nil
	}
	return r.read16(address)
}

// Write16 writes a little-endian word to memory.
func (m *Machine) Write16(address uint16, data uint16) error {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return m.unmapped("write word", address)
		}
		glog.V(1).Infof("Unmapped word write: address=0x%04x, data=0x%04x", address, data)
		return nil
	}
	return r.write16(address, data)
}

// ReadStack reads a stack word.
func (m *Machine) ReadStack(address uint16) (uint16, error) {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return 0, m.unmapped("read stack", address)
		}
		glog.V(1).Infof("Unmapped stack read: address=0x%04x", address)
		return 0xFFFF, nil
	}
	return r.readStack(address)
}

// WriteStack writes a stack word.
func (m *Machine) WriteStack(address uint16, data uint16) error {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return m.unmapped("write stack", address)
		}
		glog.V(1).Infof("Unmapped stack write: address=0x%04x, data=0x%04x", address, data)
		return nil
	}
	return r.writeStack(address, data)
}

// ReadBurst reads count bytes starting at address, the whole burst must belong to one
// device.
func (m *Machine) ReadBurst(address uint16, count int) ([]byte, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative burst of %d bytes at 0x%04x", ErrPrecondition, count, address)
	}
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return nil, m.unmapped("read burst", address)
		}
		glog.V(1).Infof("Unmapped burst read: address=0x%04x, count=%d", address, count)
		out := make([]byte, count)
		for i := range out {
			out[i] = 0xFF
		}
		return out, nil
	}
	return r.readBurst(address, count)
}

// WriteBurst writes data starting at address.
func (m *Machine) WriteBurst(address uint16, data []byte) error {
	r := m.memory(address)
	if r == nil {
		if m.strict {
			return m.unmapped("write burst", address)
		}
		glog.V(1).Infof("Unmapped burst write: address=0x%04x, count=%d", address, len(data))
		return nil
	}
	return r.writeBurst(address, data)
}

// ReadIO reads an I/O port.
func (m *Machine) ReadIO(port byte) (byte, error) {
	r := m.ports[port]
	if r == nil {
		if m.strict {
			return 0, fmt.Errorf("%w: no device to read I/O port 0x%02x", ErrAddressing, port)
		}
		glog.V(1).Infof("Unmapped I/O read: port=0x%02x", port)
		return 0xFF, nil
	}
	return r.read8(uint16(port))
}

// WriteIO writes an I/O port.
func (m *Machine) WriteIO(port byte, data byte) error {
	r := m.ports[port]
	if r == nil {
		if m.strict {
			return fmt.Errorf("%w: no device to write I/O port 0x%02x", ErrAddressing, port)
		}
		glog.V(1).Infof("Unmapped I/O write: port=0x%02x, data=0x%02x", port, data)
		return nil
	}
	return r.write8(uint16(port), data)
}

// Peek reads a memory byte for display purposes. Only plain memory (devices with burst
// access) is looked at so register side effects are not triggered, anything else reads
// as 0xFF.
func (m *Machine) Peek(address uint16) byte {
	r := m.memory(address)
	if r == nil {
		return 0xFF
	}
	data, err := r.readBurst(address, 1)
	if err != nil {
		return 0xFF
	}
	return data[0]
}

// Update ticks every memory device, every distinct I/O device and every other device
// once, in registration order.
func (m *Machine) Update() error {
	seen := make(map[any]bool, len(m.memories)+len(m.ioDevices))
	for _, r := range m.memories {
		if seen[r.device] {
			continue
		}
		seen[r.device] = true
		if err := r.update(); err != nil {
			return err
		}
	}
	for _, r := range m.ioDevices {
		if seen[r.device] {
			continue
		}
		seen[r.device] = true
		if err := r.update(); err != nil {
			return err
		}
	}
	for _, d := range m.others {
		if err := d.Update(); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleInterrupt delivers an interrupt to the CPU. There is no interrupt controller,
// pull-up resistors keep the data bus at 0xFF so the CPU sees RST 7.
func (m *Machine) ScheduleInterrupt() error {
	if m.cpu == nil {
		return fmt.Errorf("%w: no CPU attached to the machine", ErrPrecondition)
	}
	return m.cpu.ScheduleInterrupt(0xFF)
}
