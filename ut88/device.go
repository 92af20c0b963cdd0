package ut88

import "fmt"

// Peripherals implement any subset of the interfaces below. The Machine checks which
// capability a device has before routing an access to it, an access the device can't
// serve is an addressing error.

// ByteReader reads a byte at a device-local offset.
type ByteReader interface {
	Read8(offset uint16) (byte, error)
}

// ByteWriter writes a byte at a device-local offset.
type ByteWriter interface {
	Write8(offset uint16, data byte) error
}

// WordReader reads a little-endian word at a device-local offset.
type WordReader interface {
	Read16(offset uint16) (uint16, error)
}

// WordWriter writes a little-endian word at a device-local offset.
type WordWriter interface {
	Write16(offset uint16, data uint16) error
}

// StackReader serves POP/RET traffic.
type StackReader interface {
	ReadStack(offset uint16) (uint16, error)
}

// StackWriter serves PUSH/CALL traffic.
type StackWriter interface {
	WriteStack(offset uint16, data uint16) error
}

// BurstReader reads count contiguous bytes, used by DMA.
type BurstReader interface {
	ReadBurst(offset uint16, count int) ([]byte, error)
}

// BurstWriter writes contiguous bytes, used by DMA.
type BurstWriter interface {
	WriteBurst(offset uint16, data []byte) error
}

// Updater is ticked periodically by Machine.Update.
type Updater interface {
	Update() error
}

// Sizer reports the byte width of a device.
type Sizer interface {
	Size() int
}

// region binds a device to an absolute [start, end] range.
type region struct {
	name   string
	start  uint16
	end    uint16
	device any
}

func (r *region) contains(address uint16) bool {
	return r.start <= address && address <= r.end
}

func (r *region) offset(address uint16) (uint16, error) {
	if !r.contains(address) {
		return 0, fmt.Errorf("%w: 0x%04x is out of %s range 0x%04x-0x%04x", ErrAddressing, address, r.name, r.start, r.end)
	}
	return address - r.start, nil
}

func (r *region) unsupported(op string, address uint16) error {
	return fmt.Errorf("%w: %s operation not supported at this address: 0x%04x", ErrAddressing, op, address)
}

func (r *region) read8(address uint16) (byte, error) {
	d, ok := r.device.(ByteReader)
	if !ok {
		return 0, r.unsupported("byte read", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return 0, err
	}
	return d.Read8(offset)
}

func (r *region) write8(address uint16, data byte) error {
	d, ok := r.device.(ByteWriter)
	if !ok {
		return r.unsupported("byte write", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return err
	}
	return d.Write8(offset, data)
}

func (r *region) read16(address uint16) (uint16, error) {
	d, ok := r.device.(WordReader)
	if !ok {
		return 0, r.unsupported("word read", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return 0, err
	}
	return d.Read16(offset)
}

func (r *region) write16(address uint16, data uint16) error {
	d, ok := r.device.(WordWriter)
	if !ok {
		return r.unsupported("word write", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return err
	}
	return d.Write16(offset, data)
}

func (r *region) readStack(address uint16) (uint16, error) {
	d, ok := r.device.(StackReader)
	if !ok {
		return 0, r.unsupported("stack read", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return 0, err
	}
	return d.ReadStack(offset)
}

func (r *region) writeStack(address uint16, data uint16) error {
	d, ok := r.device.(StackWriter)
	if !ok {
		return r.unsupported("stack write", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return err
	}
	return d.WriteStack(offset, data)
}

func (r *region) readBurst(address uint16, count int) ([]byte, error) {
	d, ok := r.device.(BurstReader)
	if !ok {
		return nil, r.unsupported("burst read", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if _, err := r.offset(address + uint16(count-1)); err != nil || int(address)+count-1 > 0xFFFF {
			return nil, fmt.Errorf("%w: burst of %d bytes at 0x%04x crosses the end of %s", ErrAddressing, count, address, r.name)
		}
	}
	return d.ReadBurst(offset, count)
}

func (r *region) writeBurst(address uint16, data []byte) error {
	d, ok := r.device.(BurstWriter)
	if !ok {
		return r.unsupported("burst write", address)
	}
	offset, err := r.offset(address)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := r.offset(address + uint16(len(data)-1)); err != nil || int(address)+len(data)-1 > 0xFFFF {
			return fmt.Errorf("%w: burst of %d bytes at 0x%04x crosses the end of %s", ErrAddressing, len(data), address, r.name)
		}
	}
	return d.WriteBurst(offset, data)
}

func (r *region) update() error {
	if d, ok := r.device.(Updater); ok {
		return d.Update()
	}
	return nil
}

// deviceName gives a readable name for logs, a device may implement fmt.Stringer.
func deviceName(device any) string {
	if s, ok := device.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", device)
}
