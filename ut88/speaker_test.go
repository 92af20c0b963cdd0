package ut88

import "testing"

type sampleRecorder struct {
	samples []float32
}

func (r *sampleRecorder) AddSamples(samples []float32) {
	r.samples = append(r.samples, samples...)
}

func TestSpeakerRendersTransitions(t *testing.T) {
	var clock uint64
	s := NewSpeaker(func() uint64 { return clock })
	rec := &sampleRecorder{}
	s.AddSink(rec)
	out := make(chan float32, 4)
	s.SetAudioOut(out)

	// Low for 100 samples, then high for 100 samples.
	perSample := cyclesPerSample
	clock = uint64(100 * perSample)
	s.SetLevel(true)
	clock = uint64(200 * perSample)
	if err := s.Update(); err != nil {
		t.Fatal(err)
	}
	if len(rec.samples) < 199 || len(rec.samples) > 201 {
		t.Fatalf("samples: got=%d, want=200", len(rec.samples))
	}
	if rec.samples[0] != -1 || rec.samples[50] != -1 {
		t.Errorf("first half: got=(%v, %v), want=(-1, -1)", rec.samples[0], rec.samples[50])
	}
	if rec.samples[150] != 1 || rec.samples[len(rec.samples)-1] != 1 {
		t.Errorf("second half: got=(%v, %v), want=(1, 1)", rec.samples[150], rec.samples[len(rec.samples)-1])
	}
	// The channel takes what fits and drops the rest.
	if len(out) != 4 {
		t.Errorf("audio channel: got=%d samples, want=4", len(out))
	}
}

func TestSpeakerPort(t *testing.T) {
	m := NewMachine()
	var clock uint64
	s := NewSpeaker(func() uint64 { return clock })
	rec := &sampleRecorder{}
	s.AddSink(rec)
	if err := m.AddIO(s, 0xA1, 0xA1); err != nil {
		t.Fatal(err)
	}
	perSample := cyclesPerSample
	if err := m.WriteIO(0xA1, 0x01); err != nil {
		t.Fatal(err)
	}
	clock = uint64(10 * perSample)
	if err := m.Update(); err != nil {
		t.Fatal(err)
	}
	if len(rec.samples) == 0 || rec.samples[len(rec.samples)-1] != 1 {
		t.Errorf("samples: got=%v, want trailing 1", rec.samples)
	}
}

func TestSpeakerNothingToRender(t *testing.T) {
	s := NewSpeaker(func() uint64 { return 0 })
	rec := &sampleRecorder{}
	s.AddSink(rec)
	if err := s.Update(); err != nil {
		t.Fatal(err)
	}
	if len(rec.samples) != 0 {
		t.Errorf("samples: got=%d, want=0", len(rec.samples))
	}
}
