package ut88

import (
	"fmt"

	"github.com/golang/glog"
)

// Model selects the machine configuration.
type Model string

const (
	ModelUT88 Model = "ut88"
	ModelRK86 Model = "rk86"
)

// Memory map of the supported models.
const (
	// UT-88
	ut88RAMStart       = 0x0000
	ut88RAMSize        = 0xC000
	ut88VideoRAMStart  = 0xE800
	ut88VideoRAMSize   = 0x0800
	ut88MonitorRAM     = 0xF400
	ut88MonitorRAMSize = 0x0400
	ut88SpeakerPort    = 0xA1

	// Radio-86RK
	rk86RAMStart = 0x0000
	rk86RAMSize  = 0x8000
	rk86DMAStart = 0xE000

	// Both models keep the monitor at the top of the address space.
	ROMStart = 0xF800
)

// Config describes the machine to build.
type Config struct {
	Model Model
	// ROM is the monitor image mapped at ROMStart, may be empty.
	ROM []byte
	// Strict makes unmapped accesses fail instead of reading 0xFF.
	Strict bool
	// QuasiDisk is an optional UT-88 quasi-disk image to load.
	QuasiDisk string
	// Start is the initial program counter.
	Start uint16
}

// Console is an assembled machine.
type Console struct {
	CPU      *CPU
	Machine  *Machine
	Emulator *Emulator
	Speaker  *Speaker

	// UT-88 only
	QuasiDisk *QuasiDisk
	VideoRAM  *RAM

	// Radio-86RK only
	DMA    *DMA
	Screen *ScreenFetcher
}

// NewConsole assembles the machine described by cfg.
func NewConsole(cfg Config) (*Console, error) {
	c := &Console{Machine: NewMachine()}
	c.Machine.SetStrict(cfg.Strict)
	var bus Bus = c.Machine
	switch cfg.Model {
	case ModelUT88, "":
		if err := c.Machine.AddMemory(NewRAM("RAM", ut88RAMSize), ut88RAMStart); err != nil {
			return nil, err
		}
		c.VideoRAM = NewRAM("video RAM", ut88VideoRAMSize)
		if err := c.Machine.AddMemory(c.VideoRAM, ut88VideoRAMStart); err != nil {
			return nil, err
		}
		if err := c.Machine.AddMemory(NewRAM("monitor RAM", ut88MonitorRAMSize), ut88MonitorRAM); err != nil {
			return nil, err
		}
		c.QuasiDisk = NewQuasiDisk()
		if cfg.QuasiDisk != "" {
			if err := c.QuasiDisk.Load(cfg.QuasiDisk); err != nil {
				return nil, err
			}
		}
		bus = NewQuasiDiskMachine(c.Machine, c.QuasiDisk, QuasiDiskPort)
	case ModelRK86:
		if err := c.Machine.AddMemory(NewRAM("RAM", rk86RAMSize), rk86RAMStart); err != nil {
			return nil, err
		}
		c.DMA = NewDMA(c.Machine)
		if err := c.Machine.AddMemory(c.DMA, rk86DMAStart); err != nil {
			return nil, err
		}
		c.Screen = NewScreenFetcher(c.DMA, autoloadChannel)
		c.Machine.AddOther(c.Screen)
	default:
		return nil, fmt.Errorf("%w: unknown model %q", ErrPrecondition, cfg.Model)
	}
	if len(cfg.ROM) > 0 {
		if err := c.Machine.AddMemory(NewROM("monitor ROM", cfg.ROM), ROMStart); err != nil {
			return nil, err
		}
	}
	c.CPU = NewCPU(bus)
	c.Machine.AttachCPU(c.CPU)
	c.Speaker = NewSpeaker(c.CPU.Cycles)
	if cfg.Model == ModelRK86 {
		c.CPU.SetInterruptHook(c.Speaker.SetLevel)
		c.Machine.AddOther(c.Speaker)
	} else if err := c.Machine.AddIO(c.Speaker, ut88SpeakerPort, ut88SpeakerPort); err != nil {
		return nil, err
	}
	c.Emulator = NewEmulator(c.Machine, c.CPU, bus)
	c.CPU.SetPC(cfg.Start)
	glog.Infof("%s machine ready, PC=0x%04x", modelName(cfg.Model), cfg.Start)
	return c, nil
}

func modelName(m Model) string {
	if m == "" {
		return string(ModelUT88)
	}
	return string(m)
}

// Reset resets the CPU and restarts at start.
func (c *Console) Reset(start uint16) {
	c.Emulator.Reset()
	c.CPU.SetPC(start)
}
