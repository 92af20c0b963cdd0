package ut88

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/bradleyjkemp/memviz"
	"golang.org/x/term"
)

// errQuit is returned by Command when the user asks to quit.
var errQuit = errors.New("quit")

// IsQuit reports whether err asks the debugger loop to end.
func IsQuit(err error) bool {
	return errors.Is(err, errQuit)
}

// DebugConsole executes debugger commands against a console.
// commands:
//
//	s [n|ns|nd]:
//	  execute n step(s), ns runs n emulated seconds, nd steps printing every state.
//	p [cpu|dma|qd]:
//	  print.
//	br 0xADDR:
//	  set a break point.
//	m 0xADDR [n]:
//	  dump memory.
//	set REG 0xVALUE:
//	  set a register.
//	dot FILE:
//	  write the CPU state graph (graphviz) to FILE.
//	r:
//	  reset.
//	q:
//	  quit.
type DebugConsole struct {
	*Console
	out    io.Writer
	cycles uint64
	hit    bool
	start  uint16
}

// NewDebugConsole creates a debugger for console writing to out, start is the reset
// address.
func NewDebugConsole(console *Console, out io.Writer, start uint16) *DebugConsole {
	return &DebugConsole{Console: console, out: out, start: start}
}

var stepRe = regexp.MustCompile("^([0-9]+)([sd]?)$")

func (c *DebugConsole) step() (int, error) {
	cycles, err := c.Emulator.Step()
	c.cycles += uint64(cycles)
	return cycles, err
}

func (c *DebugConsole) basePrint() {
	fmt.Fprintln(c.out, "--------------------------------------------------")
	fmt.Fprintf(c.out, "Executed cycles: %d\n", c.cycles)
	fmt.Fprintln(c.out, "Last: "+c.CPU.LastExecution())
	fmt.Fprintf(c.out, "CPU:  %s\n", c.CPU)
}

func (c *DebugConsole) printCommand(args []string) {
	if len(args) < 2 {
		c.basePrint()
		return
	}
	switch args[1] {
	case "c", "cpu":
		fmt.Fprintf(c.out, "%s, cycles=%d, pending=% x\n", c.CPU, c.CPU.Cycles(), c.CPU.Pending())
	case "d", "dma":
		if c.DMA == nil {
			fmt.Fprintln(c.out, "No DMA controller")
			return
		}
		for i := 0; i < dmaChannels; i++ {
			start, count, _ := c.DMA.Channel(i)
			fmt.Fprintf(c.out, "channel %d: enabled=%v, start=0x%04x, count=%d\n", i, c.DMA.Enabled(i), start, count)
		}
		fmt.Fprintf(c.out, "autoload=%v, tc stop=%v\n", c.DMA.Autoload(), c.DMA.TCStop())
	case "qd", "quasidisk":
		if c.QuasiDisk == nil {
			fmt.Fprintln(c.out, "No quasi-disk")
			return
		}
		fmt.Fprintf(c.out, "quasi-disk page: %d\n", c.QuasiDisk.Page())
	}
}

func (c *DebugConsole) stepCommand(args []string) (int, error) {
	if len(args) < 2 {
		return c.step()
	}
	m := stepRe.FindStringSubmatch(args[1])
	if m == nil {
		return 0, fmt.Errorf("Bad step count %q", args[1])
	}
	num, _ := strconv.Atoi(m[1])
	c.hit = false
	cycles := 0
	switch m[2] {
	case "s":
		// Emulated seconds, not wall clock.
		for cycles < CPUFrequency*num && !c.hit {
			v, err := c.step()
			cycles += v
			if err != nil {
				return cycles, err
			}
		}
	case "d":
		for i := 0; i < num && !c.hit; i++ {
			v, err := c.step()
			c.basePrint()
			cycles += v
			if err != nil {
				return cycles, err
			}
		}
	default:
		for i := 0; i < num && !c.hit; i++ {
			v, err := c.step()
			cycles += v
			if err != nil {
				return cycles, err
			}
		}
	}
	return cycles, nil
}

func parseNumber(s string) (int, error) {
	x, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("Bad number %q", s)
	}
	return int(x), nil
}

func parseAddress(s string) (uint16, error) {
	x, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if x < 0 || x > 0xFFFF {
		return 0, fmt.Errorf("%w: address 0x%x out of range", ErrPrecondition, x)
	}
	return uint16(x), nil
}

func (c *DebugConsole) breakPointCommand(args []string) error {
	if len(args) < 2 {
		for _, address := range c.Emulator.Breakpoints() {
			fmt.Fprintf(c.out, "0x%04x\n", address)
		}
		return nil
	}
	address, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	c.Emulator.AddBreakpoint(address, func() error {
		fmt.Fprintf(c.out, "Break at: 0x%04x\n", address)
		c.hit = true
		c.Emulator.Stop()
		return nil
	})
	return nil
}

func (c *DebugConsole) memoryCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("Usage: m ADDR [COUNT]")
	}
	address, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	count := 0x80
	if len(args) > 2 {
		if count, err = parseNumber(args[2]); err != nil {
			return err
		}
	}
	for i := 0; i < count; i++ {
		a := address + uint16(i)
		if i%16 == 0 {
			if i > 0 {
				fmt.Fprintln(c.out)
			}
			fmt.Fprintf(c.out, "%04x:", a)
		}
		fmt.Fprintf(c.out, " %02x", c.Machine.Peek(a))
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *DebugConsole) setCommand(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("Usage: set REG VALUE")
	}
	x, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	return c.CPU.SetRegister(args[1], x)
}

func (c *DebugConsole) dotCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("Usage: dot FILE")
	}
	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	state := c.CPU.State()
	memviz.Map(f, &state)
	fmt.Fprintf(c.out, "CPU state written to %s\n", args[1])
	return nil
}

// Command executes one debugger command line.
func (c *DebugConsole) Command(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "p", "print":
		c.printCommand(args)
	case "s", "step":
		cycles, err := c.stepCommand(args)
		c.basePrint() // Print data before it die.
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Executed %d CPU cycles.\n", cycles)
	case "br", "breakpoint":
		return c.breakPointCommand(args)
	case "m", "memory":
		return c.memoryCommand(args)
	case "set":
		return c.setCommand(args)
	case "dot":
		return c.dotCommand(args)
	case "r", "reset":
		c.Reset(c.start)
	case "q", "quit":
		fmt.Fprintln(c.out, "Quitting.")
		return errQuit
	default:
		return fmt.Errorf("Unknown command %s", line)
	}
	return nil
}

// Run reads commands from stdin until quit. A terminal gets line editing and history.
func (c *DebugConsole) Run() error {
	fmt.Fprintln(c.out, "Debugger mode, 'q' to quit")
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		scanner := bufio.NewScanner(os.Stdin)
		return c.loop(func() (string, bool) {
			fmt.Fprint(c.out, ">> ")
			if !scanner.Scan() {
				return "", false
			}
			return scanner.Text(), true
		})
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, ">> ")
	return c.loop(func() (string, bool) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return "", false
		}
		defer term.Restore(fd, state)
		line, err := t.ReadLine()
		return line, err == nil
	})
}

func (c *DebugConsole) loop(read func() (string, bool)) error {
	for {
		line, ok := read()
		if !ok {
			return nil
		}
		err := c.Command(line)
		if IsQuit(err) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(c.out, "Error:", err)
		}
	}
}
