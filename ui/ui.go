package ui

import (
	"time"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/golang/glog"

	"github.com/grafalex82/ut88-sub000/ut88"
)

const (
	framesPerSecond = 50
	// Memory view: the whole address space, one pixel per byte.
	memoryWidth  = 256
	memoryHeight = 256
	// Radio-86RK screen: 78 characters per row, one pixel per character code.
	screenWidth = 78
)

// frame returns the image to show: the DMA fetched screen when the machine has one,
// the memory view otherwise.
func frame(console *ut88.Console, memory []byte) ([]byte, int, int) {
	if console.Screen != nil {
		if data, n := console.Screen.Frame(); n > 0 && len(data) >= screenWidth {
			return data, screenWidth, len(data) / screenWidth
		}
	}
	for i := range memory {
		memory[i] = console.Machine.Peek(uint16(i))
	}
	return memory, memoryWidth, memoryHeight
}

func mainLoop(window *glfw.Window, console *ut88.Console, program uint32, start uint16) error {
	memory := make([]byte, memoryWidth*memoryHeight)
	for range time.Tick(time.Second / framesPerSecond) {
		if err := console.Emulator.Run(ut88.CPUFrequency / framesPerSecond); err != nil {
			return err
		}
		image, w, h := frame(console, memory)
		updateTexture(program, image, w, h)
		window.SwapBuffers()
		glfw.PollEvents()
		if reset(window) {
			console.Reset(start)
		}
		if window.ShouldClose() {
			return nil
		}
	}
	return nil
}

// Start is the main entrypoint, it returns when the window is closed or the emulation
// fails.
func Start(console *ut88.Console, width int, height int, start uint16) error {
	err := glfw.Init()
	if err != nil {
		return err
	}
	defer glfw.Terminate()
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	window, err := glfw.CreateWindow(width, height, "UT-88", nil, nil)
	if err != nil {
		return err
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		return err
	}
	program, err := newProgram()
	if err != nil {
		return err
	}
	gl.UseProgram(program)

	a := newAudio()
	if err := a.start(); err != nil {
		// The machine is still usable without sound.
		glog.Warningln(err)
	} else {
		defer a.terminate()
		console.Speaker.SetAudioOut(a.channel)
	}
	return mainLoop(window, console, program, start)
}
