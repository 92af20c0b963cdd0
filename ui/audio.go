package ui

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/grafalex82/ut88-sub000/ut88"
)

// volume scales the full scale speaker square wave.
const volume = 0.05

type audio struct {
	stream  *portaudio.Stream
	channel chan float32
}

func newAudio() *audio {
	a := &audio{}
	a.channel = make(chan float32, ut88.SampleRate)
	return a
}

func (a *audio) start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("Failed to initialize the audio: %w", err)
	}
	cb := func(out []float32) {
		for i := range out {
			select {
			case x := <-a.channel:
				out[i] = x * volume
			default:
				out[i] = 0
			}
		}
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, ut88.SampleRate, 0, cb)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("Failed to open the audio stream: %w", err)
	}
	a.stream = stream
	if err := stream.Start(); err != nil {
		return fmt.Errorf("Failed to start the audio stream: %w", err)
	}
	return nil
}

func (a *audio) terminate() {
	if a.stream != nil {
		a.stream.Close()
	}
	portaudio.Terminate()
}
