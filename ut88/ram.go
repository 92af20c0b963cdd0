package ut88

import "fmt"

// RAM is a plain read/write memory device.
type RAM struct {
	name string
	data []byte
}

// NewRAM creates a RAM of the given size.
func NewRAM(name string, size int) *RAM {
	return &RAM{name: name, data: make([]byte, size)}
}

func (r *RAM) String() string {
	return r.name
}

// Size returns the size of the RAM in bytes.
func (r *RAM) Size() int {
	return len(r.data)
}

// Bytes exposes the backing store, e.g. for the video window.
func (r *RAM) Bytes() []byte {
	return r.data
}

func (r *RAM) check(offset uint16, n int) error {
	if int(offset)+n > len(r.data) {
		return fmt.Errorf("%w: %s offset 0x%04x+%d exceeds size 0x%04x", ErrAddressing, r.name, offset, n, len(r.data))
	}
	return nil
}

// Read8 reads a byte.
func (r *RAM) Read8(offset uint16) (byte, error) {
	if err := r.check(offset, 1); err != nil {
		return 0, err
	}
	return r.data[offset], nil
}

// Write8 writes a byte.
func (r *RAM) Write8(offset uint16, data byte) error {
	if err := r.check(offset, 1); err != nil {
		return err
	}
	r.data[offset] = data
	return nil
}

// Read16 reads a word, low byte first.
func (r *RAM) Read16(offset uint16) (uint16, error) {
	if err := r.check(offset, 2); err != nil {
		return 0, err
	}
	return uint16(r.data[offset+1])<<8 | uint16(r.data[offset]), nil
}

// Write16 writes a word, low byte first.
func (r *RAM) Write16(offset uint16, data uint16) error {
	if err := r.check(offset, 2); err != nil {
		return err
	}
	r.data[offset] = byte(data & 0xFF)
	r.data[offset+1] = byte(data >> 8)
	return nil
}

// ReadStack is a word read.
func (r *RAM) ReadStack(offset uint16) (uint16, error) {
	return r.Read16(offset)
}

// WriteStack is a word write.
func (r *RAM) WriteStack(offset uint16, data uint16) error {
	return r.Write16(offset, data)
}

// ReadBurst copies count bytes out of the RAM.
func (r *RAM) ReadBurst(offset uint16, count int) ([]byte, error) {
	if err := r.check(offset, count); err != nil {
		return nil, err
	}
	out := make([]byte, count)
	copy(out, r.data[offset:])
	return out, nil
}

// WriteBurst copies data into the RAM.
func (r *RAM) WriteBurst(offset uint16, data []byte) error {
	if err := r.check(offset, len(data)); err != nil {
		return err
	}
	copy(r.data[offset:], data)
	return nil
}

// ROM is a read-only memory device, writes are rejected.
type ROM struct {
	RAM
}

// NewROM creates a ROM holding a copy of data.
func NewROM(name string, data []byte) *ROM {
	rom := &ROM{RAM{name: name, data: make([]byte, len(data))}}
	copy(rom.data, data)
	return rom
}

func (r *ROM) readonly(offset uint16) error {
	return fmt.Errorf("%w: %s is read only, offset=0x%04x", ErrAddressing, r.name, offset)
}

// Write8 always fails.
func (r *ROM) Write8(offset uint16, data byte) error {
	return r.readonly(offset)
}

// Write16 always fails.
func (r *ROM) Write16(offset uint16, data uint16) error {
	return r.readonly(offset)
}

// WriteStack always fails.
func (r *ROM) WriteStack(offset uint16, data uint16) error {
	return r.readonly(offset)
}

// WriteBurst always fails.
func (r *ROM) WriteBurst(offset uint16, data []byte) error {
	return r.readonly(offset)
}
