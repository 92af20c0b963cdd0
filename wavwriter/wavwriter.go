// Package wavwriter records speaker output to a WAV file. Samples are buffered in memory
// and the file is written when recording ends.
package wavwriter

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/golang/glog"
)

const bitDepth = 16

// WavWriter buffers mono samples in the [-1, 1] range.
type WavWriter struct {
	filename   string
	sampleRate int
	buffer     []int
}

// New creates a writer for filename.
func New(filename string, sampleRate int) *WavWriter {
	return &WavWriter{
		filename:   filename,
		sampleRate: sampleRate,
	}
}

// AddSamples appends samples to the recording.
func (w *WavWriter) AddSamples(samples []float32) {
	for _, x := range samples {
		switch {
		case x > 1:
			x = 1
		case x < -1:
			x = -1
		}
		// Keep some headroom, the speaker only produces full scale square waves.
		w.buffer = append(w.buffer, int(x*0x3FFF))
	}
}

// Len returns the number of recorded samples.
func (w *WavWriter) Len() int {
	return len(w.buffer)
}

// Close encodes the recording to the file.
func (w *WavWriter) Close() (rerr error) {
	f, err := os.Create(w.filename)
	if err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("wavwriter: %w", err)
		}
	}()
	enc := wav.NewEncoder(f, w.sampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.sampleRate},
		Data:           w.buffer,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	glog.Infof("wavwriter: %d samples written to %s", len(w.buffer), w.filename)
	return nil
}
