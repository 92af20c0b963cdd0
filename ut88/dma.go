package ut88

import (
	"fmt"

	"github.com/golang/glog"
)

// DMA emulates the Intel 8257 (KR580VT57) 4 channel DMA controller. Transfers are not
// cycle by cycle: a peripheral calls Read or Write and the whole block moves in one bus
// burst.
// Reference:
//
//	Intel 8257/8257-5 Programmable DMA Controller datasheet
//
// Register map (device-local offsets):
//
//	0, 2, 4, 6  channel 0-3 start address, low byte then high byte
//	1, 3, 5, 7  channel 0-3 count (count-1 in bits 0-13, bit 14 read, bit 15 write)
//	8           mode register on write, status register on read
type DMA struct {
	bus      BurstBus
	channels [dmaChannels]dmaChannel

	autoload         bool
	tcStop           bool
	extendedWrite    bool
	rotatingPriority bool

	// waitingHighByte is the first/last flip-flop shared by all channel registers,
	// a mode register write resets it to the low byte.
	waitingHighByte bool
	// status has a terminal count bit per channel, cleared when read.
	status byte
}

// BurstBus is the bus side a DMA controller transfers through.
type BurstBus interface {
	ReadBurst(address uint16, count int) ([]byte, error)
	WriteBurst(address uint16, data []byte) error
}

const (
	dmaChannels  = 4
	dmaRegisters = 9
	dmaMode      = 8
	// autoloadChannel is reloaded from autoloadShadow after each transfer.
	autoloadChannel = 2
	autoloadShadow  = 3
)

// Mode register bits.
const (
	modeRotatingPriority = 1 << 4
	modeExtendedWrite    = 1 << 5
	modeTCStop           = 1 << 6
	modeAutoload         = 1 << 7
)

// Count register high byte flags.
const (
	countRead  = 1 << 6
	countWrite = 1 << 7
)

type dmaChannel struct {
	enabled  bool
	start    uint16
	count    int  // bytes to transfer, the register holds count-1
	rawCount byte // low byte of the count register
	read     bool
	write    bool
	startSet bool
	countSet bool
}

// NewDMA creates a DMA controller transferring through bus.
func NewDMA(bus BurstBus) *DMA {
	return &DMA{bus: bus}
}

func (d *DMA) String() string {
	return "DMA"
}

// Size returns the number of registers.
func (d *DMA) Size() int {
	return dmaRegisters
}

// Autoload reports whether channel 2 is reloaded from channel 3 after a transfer.
func (d *DMA) Autoload() bool { return d.autoload }

// TCStop reports the TC stop mode bit.
func (d *DMA) TCStop() bool { return d.tcStop }

// ExtendedWrite reports the extended write mode bit.
func (d *DMA) ExtendedWrite() bool { return d.extendedWrite }

// RotatingPriority reports the rotating priority mode bit.
func (d *DMA) RotatingPriority() bool { return d.rotatingPriority }

// Enabled reports whether a channel is enabled.
func (d *DMA) Enabled(channel int) bool {
	if channel < 0 || channel >= dmaChannels {
		return false
	}
	return d.channels[channel].enabled
}

// Channel returns the start address and byte count of a channel.
func (d *DMA) Channel(channel int) (start uint16, count int, err error) {
	if err := checkChannel(channel); err != nil {
		return 0, 0, err
	}
	ch := &d.channels[channel]
	return ch.start, ch.count, nil
}

func checkChannel(channel int) error {
	if channel < 0 || channel >= dmaChannels {
		return fmt.Errorf("%w: DMA channel %d does not exist", ErrPrecondition, channel)
	}
	return nil
}

// Write8 writes a register.
func (d *DMA) Write8(offset uint16, data byte) error {
	switch {
	case offset < dmaMode:
		d.writeChannel(int(offset/2), offset%2 == 1, data)
		return nil
	case offset == dmaMode:
		return d.writeMode(data)
	}
	return fmt.Errorf("%w: DMA has no register at offset %d", ErrAddressing, offset)
}

func (d *DMA) writeChannel(channel int, isCount bool, data byte) {
	ch := &d.channels[channel]
	high := d.waitingHighByte
	switch {
	case !isCount && !high:
		ch.start = ch.start&0xFF00 | uint16(data)
	case !isCount && high:
		ch.start = ch.start&0x00FF | uint16(data)<<8
		ch.startSet = true
	case isCount && !high:
		ch.rawCount = data
	default:
		ch.count = (int(data&0x3F)<<8 | int(ch.rawCount)) + 1
		ch.read = data&countRead != 0
		ch.write = data&countWrite != 0
		ch.countSet = true
	}
	d.waitingHighByte = !d.waitingHighByte
	if channel == autoloadChannel && d.autoload {
		shadow := &d.channels[autoloadShadow]
		enabled := shadow.enabled
		*shadow = *ch
		shadow.enabled = enabled
	}
}

func (d *DMA) writeMode(data byte) error {
	for i := 0; i < dmaChannels; i++ {
		ch := &d.channels[i]
		if data&(1<<i) != 0 && !(ch.startSet && ch.countSet) {
			return fmt.Errorf("%w: DMA channel %d enabled before its address and count are set", ErrPrecondition, i)
		}
	}
	d.autoload = data&modeAutoload != 0
	d.tcStop = data&modeTCStop != 0
	d.extendedWrite = data&modeExtendedWrite != 0
	d.rotatingPriority = data&modeRotatingPriority != 0
	for i := 0; i < dmaChannels; i++ {
		d.channels[i].enabled = data&(1<<i) != 0
	}
	// Loading the mode register resets the first/last flip-flop.
	d.waitingHighByte = false
	glog.V(1).Infof("DMA mode=0x%02x", data)
	return nil
}

// Read8 reads a register, the channel registers return the current address and count.
func (d *DMA) Read8(offset uint16) (byte, error) {
	switch {
	case offset < dmaMode:
		ch := &d.channels[offset/2]
		high := d.waitingHighByte
		d.waitingHighByte = !d.waitingHighByte
		if offset%2 == 0 {
			if high {
				return byte(ch.start >> 8), nil
			}
			return byte(ch.start & 0xFF), nil
		}
		raw := 0
		if ch.count > 0 {
			raw = ch.count - 1
		}
		if !high {
			return byte(raw & 0xFF), nil
		}
		x := byte(raw>>8) & 0x3F
		if ch.read {
			x |= countRead
		}
		if ch.write {
			x |= countWrite
		}
		return x, nil
	case offset == dmaMode:
		x := d.status
		d.status = 0
		return x, nil
	}
	return 0, fmt.Errorf("%w: DMA has no register at offset %d", ErrAddressing, offset)
}

func (d *DMA) ready(channel int, write bool) (*dmaChannel, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	ch := &d.channels[channel]
	if !ch.enabled {
		return nil, fmt.Errorf("%w: DMA channel %d is not enabled", ErrPrecondition, channel)
	}
	if write && !ch.write {
		return nil, fmt.Errorf("%w: DMA channel %d is not configured for write", ErrPrecondition, channel)
	}
	if !write && !ch.read {
		return nil, fmt.Errorf("%w: DMA channel %d is not configured for read", ErrPrecondition, channel)
	}
	return ch, nil
}

// complete finishes a transfer: the autoload channel is reloaded from its shadow,
// any other channel is disabled until reprogrammed.
func (d *DMA) complete(channel int) {
	d.status |= 1 << channel
	if channel == autoloadChannel && d.autoload {
		shadow := d.channels[autoloadShadow]
		ch := &d.channels[channel]
		ch.start, ch.count, ch.rawCount = shadow.start, shadow.count, shadow.rawCount
		ch.read, ch.write = shadow.read, shadow.write
		return
	}
	d.channels[channel].enabled = false
}

// Read transfers the channel's block from memory to the peripheral.
func (d *DMA) Read(channel int) ([]byte, error) {
	ch, err := d.ready(channel, false)
	if err != nil {
		return nil, err
	}
	data, err := d.bus.ReadBurst(ch.start, ch.count)
	if err != nil {
		return nil, err
	}
	d.complete(channel)
	return data, nil
}

// Write transfers data from the peripheral to memory, data must be exactly the
// channel's count long.
func (d *DMA) Write(channel int, data []byte) error {
	ch, err := d.ready(channel, true)
	if err != nil {
		return err
	}
	if len(data) != ch.count {
		return fmt.Errorf("%w: DMA channel %d expects %d bytes, got %d", ErrPrecondition, channel, ch.count, len(data))
	}
	if err := d.bus.WriteBurst(ch.start, data); err != nil {
		return err
	}
	d.complete(channel)
	return nil
}
