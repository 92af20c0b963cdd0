package main

import (
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/grafalex82/ut88-sub000/script"
	"github.com/grafalex82/ut88-sub000/statsview"
	"github.com/grafalex82/ut88-sub000/ui"
	"github.com/grafalex82/ut88-sub000/ut88"
	"github.com/grafalex82/ut88-sub000/wavwriter"
)

// fileList is a repeatable path flag.
type fileList []string

func (f *fileList) String() string {
	return strings.Join(*f, ",")
}

func (f *fileList) Set(s string) error {
	*f = append(*f, s)
	return nil
}

var (
	model      = flag.String("model", "ut88", "machine model: ut88 or rk86")
	rom        = flag.String("rom", "", "path to the monitor ROM image")
	start      = flag.String("start", "0xF800", "start address")
	strict     = flag.Bool("strict", false, "fail on accesses to unmapped addresses and ports")
	quasidisk  = flag.String("quasidisk", "", "path to the quasi-disk image (ut88 only), saved on exit")
	debug      = flag.Bool("debug", false, "run as debug mode")
	luaScript  = flag.String("script", "", "path to a Lua breakpoint script")
	wav        = flag.String("wav", "", "record the speaker to a WAV file")
	width      = flag.Int("width", 256*3, "window width")
	height     = flag.Int("height", 256*3, "window height")
	headless   = flag.Bool("headless", false, "run without a window")
	cycles     = flag.Uint64("cycles", 0, "stop after this many CPU cycles, 0 runs forever (headless only)")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	stats      = flag.Bool("statsview", false, "serve runtime statistics")
	loads      fileList
)

func init() {
	flag.Var(&loads, "load", "memory image to load (repeatable), .rku/.gam are tape images")
	runtime.LockOSThread()
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			glog.Fatal("Failed to create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Fatal("Failed to start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}
	if *stats {
		statsview.Launch(os.Stdout)
	}
	startAddress, err := strconv.ParseUint(*start, 0, 16)
	if err != nil {
		glog.Fatalln("Bad start address: ", *start)
	}
	cfg := ut88.Config{
		Model:     ut88.Model(*model),
		Strict:    *strict,
		QuasiDisk: *quasidisk,
		Start:     uint16(startAddress),
	}
	if *rom != "" {
		if cfg.ROM, err = os.ReadFile(*rom); err != nil {
			glog.Fatalln("Failed to read: " + *rom)
		}
	}
	console, err := ut88.NewConsole(cfg)
	if err != nil {
		glog.Fatalln("Failed to initiate Console: ", err)
	}
	for _, path := range loads {
		if _, _, err := console.Emulator.LoadFile(path); err != nil {
			glog.Fatalln(err)
		}
	}
	if *luaScript != "" {
		s := script.New(console.Emulator)
		defer s.Close()
		if err := s.LoadFile(*luaScript); err != nil {
			glog.Fatalln(err)
		}
	}
	if *wav != "" {
		w := wavwriter.New(*wav, ut88.SampleRate)
		console.Speaker.AddSink(w)
		defer func() {
			if err := w.Close(); err != nil {
				glog.Errorln(err)
			}
		}()
	}
	if *quasidisk != "" && console.QuasiDisk != nil {
		defer func() {
			if err := console.QuasiDisk.Save(*quasidisk); err != nil {
				glog.Errorln(err)
			}
		}()
	}

	switch {
	case *debug:
		err = ut88.NewDebugConsole(console, os.Stdout, cfg.Start).Run()
	case *headless:
		err = runHeadless(console.Emulator, *cycles)
	default:
		err = ui.Start(console, *width, *height, cfg.Start)
	}
	if err != nil {
		// Deferred saves still run.
		glog.Errorln(err)
	}
}

func runHeadless(emulator *ut88.Emulator, cycles uint64) error {
	if cycles > 0 {
		return emulator.Run(cycles)
	}
	for {
		if err := emulator.Run(ut88.CPUFrequency); err != nil {
			return err
		}
	}
}
