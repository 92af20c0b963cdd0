package ut88

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDebugConsole(t *testing.T) (*DebugConsole, *bytes.Buffer) {
	t.Helper()
	console, err := NewConsole(Config{Model: ModelUT88})
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return NewDebugConsole(console, out, 0), out
}

func TestDebugConsoleStepAndBreak(t *testing.T) {
	c, out := newTestDebugConsole(t)
	for _, line := range []string{"br 0x0002", "s 10"} {
		if err := c.Command(line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if !strings.Contains(out.String(), "Break at: 0x0002") {
		t.Errorf("output: got=%q, want a break message", out.String())
	}
	if c.CPU.PC() != 0x0003 {
		t.Errorf("pc: got=0x%04x, want=0x0003", c.CPU.PC())
	}
}

func TestDebugConsoleCommands(t *testing.T) {
	c, out := newTestDebugConsole(t)
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{line: "set a 0x42"},
		{line: "p cpu", want: "A=0x42"},
		{line: "set hl 0x10000", wantErr: true},
		{line: "m 0xe800 4", want: "e800: 00 00 00 00"},
		{line: "p qd", want: "quasi-disk page: -1"},
		{line: "p dma", want: "No DMA controller"},
		{line: "s 3d", want: "Executed 12 CPU cycles."},
		{line: "s x", wantErr: true},
		{line: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		out.Reset()
		err := c.Command(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: got err=%v, want err=%v", tt.line, err, tt.wantErr)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%s: got output=%q, want it to contain %q", tt.line, out.String(), tt.want)
		}
	}
	if err := c.Command("q"); !IsQuit(err) {
		t.Errorf("q: got err=%v, want quit", err)
	}
}

func TestDebugConsoleReset(t *testing.T) {
	c, _ := newTestDebugConsole(t)
	c.start = 0x1000
	if err := c.Command("s 2"); err != nil {
		t.Fatal(err)
	}
	if err := c.Command("r"); err != nil {
		t.Fatal(err)
	}
	if c.CPU.PC() != 0x1000 {
		t.Errorf("pc: got=0x%04x, want=0x1000", c.CPU.PC())
	}
}

func TestDebugConsoleDot(t *testing.T) {
	c, _ := newTestDebugConsole(t)
	path := filepath.Join(t.TempDir(), "cpu.dot")
	if err := c.Command("dot " + path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "digraph") {
		t.Errorf("dot file: got=%q, want a graphviz digraph", b)
	}
}

func TestDebugConsoleLoop(t *testing.T) {
	c, out := newTestDebugConsole(t)
	lines := []string{"set b 1", "nope", "q", "set b 2"}
	err := c.loop(func() (string, bool) {
		if len(lines) == 0 {
			return "", false
		}
		line := lines[0]
		lines = lines[1:]
		return line, true
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.CPU.B() != 1 {
		t.Errorf("b: got=%d, want=1 (commands after q must not run)", c.CPU.B())
	}
	if !strings.Contains(out.String(), "Error: Unknown command nope") {
		t.Errorf("output: got=%q, want the error to be printed", out.String())
	}
}
