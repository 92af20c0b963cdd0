package ut88

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
)

const (
	quasiDiskPages    = 4
	quasiDiskPageSize = 0x10000
	// QuasiDiskPort is the configuration port the UT-88 uses for the quasi-disk.
	QuasiDiskPort byte = 0x40
)

// QuasiDisk is the UT-88 bank switched RAM disk: 4 pages of 64k. It is only reachable
// through stack operations (PUSH/POP) once a page is selected via the configuration port.
type QuasiDisk struct {
	data []byte
	page int // -1 when no page selected
}

// NewQuasiDisk creates an empty quasi-disk with no page selected.
func NewQuasiDisk() *QuasiDisk {
	return &QuasiDisk{data: make([]byte, quasiDiskPages*quasiDiskPageSize), page: -1}
}

func (q *QuasiDisk) String() string {
	return "quasi-disk"
}

// Size returns the total size of all pages.
func (q *QuasiDisk) Size() int {
	return len(q.data)
}

// Select selects the page stack accesses go to.
func (q *QuasiDisk) Select(page int) error {
	if page < 0 || page >= quasiDiskPages {
		return fmt.Errorf("%w: quasi-disk page %d does not exist", ErrPrecondition, page)
	}
	q.page = page
	return nil
}

// Deselect disconnects the quasi-disk.
func (q *QuasiDisk) Deselect() {
	q.page = -1
}

// Page returns the selected page or -1.
func (q *QuasiDisk) Page() int {
	return q.page
}

func (q *QuasiDisk) index(offset uint16) (int, error) {
	if q.page < 0 {
		return 0, errors.New("quasi-disk: no page selected")
	}
	return q.page*quasiDiskPageSize + int(offset), nil
}

// ReadStack reads a word from the selected page.
func (q *QuasiDisk) ReadStack(offset uint16) (uint16, error) {
	l, err := q.index(offset)
	if err != nil {
		return 0, err
	}
	h, _ := q.index(offset + 1)
	return uint16(q.data[h])<<8 | uint16(q.data[l]), nil
}

// WriteStack writes a word to the selected page.
func (q *QuasiDisk) WriteStack(offset uint16, data uint16) error {
	l, err := q.index(offset)
	if err != nil {
		return err
	}
	h, _ := q.index(offset + 1)
	q.data[l] = byte(data & 0xFF)
	q.data[h] = byte(data >> 8)
	return nil
}

// Load reads a disk image from path. Short images fill the disk from the start.
func (q *QuasiDisk) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Failed to load quasi-disk image: %w", err)
	}
	if len(b) > len(q.data) {
		return fmt.Errorf("%w: quasi-disk image %s is %d bytes, want at most %d", ErrPrecondition, path, len(b), len(q.data))
	}
	copy(q.data, b)
	glog.Infof("Quasi-disk image loaded from %s (%d bytes)", path, len(b))
	return nil
}

// Save writes the disk image to path.
func (q *QuasiDisk) Save(path string) error {
	if err := os.WriteFile(path, q.data, 0o644); err != nil {
		return fmt.Errorf("Failed to save quasi-disk image: %w", err)
	}
	glog.Infof("Quasi-disk image saved to %s", path)
	return nil
}

// QuasiDiskMachine decorates a Bus: writes to the configuration port switch stack
// traffic between normal memory and a quasi-disk page. Everything else passes through.
type QuasiDiskMachine struct {
	Bus
	disk *QuasiDisk
	port byte
}

// NewQuasiDiskMachine wraps bus, port is the configuration port.
func NewQuasiDiskMachine(bus Bus, disk *QuasiDisk, port byte) *QuasiDiskMachine {
	return &QuasiDiskMachine{Bus: bus, disk: disk, port: port}
}

// pageFor decodes the configuration value: the lowest cleared bit of the low nibble
// is the selected page.
func pageFor(value byte) (int, bool) {
	for page := 0; page < quasiDiskPages; page++ {
		if value&(1<<page) == 0 {
			return page, true
		}
	}
	return 0, false
}

// WriteIO intercepts the configuration port, other ports go to the wrapped bus.
func (m *QuasiDiskMachine) WriteIO(port byte, data byte) error {
	if port != m.port {
		return m.Bus.WriteIO(port, data)
	}
	if data == 0xFF {
		m.disk.Deselect()
		glog.V(1).Infof("Quasi-disk disconnected")
		return nil
	}
	page, ok := pageFor(data)
	if !ok {
		return fmt.Errorf("%w: quasi-disk configuration value 0x%02x selects no page", ErrPrecondition, data)
	}
	glog.V(1).Infof("Quasi-disk page %d selected", page)
	return m.disk.Select(page)
}

// ReadStack reads from the quasi-disk when a page is selected.
func (m *QuasiDiskMachine) ReadStack(address uint16) (uint16, error) {
	if m.disk.Page() < 0 {
		return m.Bus.ReadStack(address)
	}
	return m.disk.ReadStack(address)
}

// WriteStack writes to the quasi-disk when a page is selected.
func (m *QuasiDiskMachine) WriteStack(address uint16, data uint16) error {
	if m.disk.Page() < 0 {
		return m.Bus.WriteStack(address, data)
	}
	return m.disk.WriteStack(address, data)
}
