package ut88

// SampleRate is the rate the speaker renders audio at.
const SampleRate = 44100

const cyclesPerSample = float64(CPUFrequency) / SampleRate

// SampleSink receives rendered speaker samples.
type SampleSink interface {
	AddSamples(samples []float32)
}

type transition struct {
	cycle uint64
	level bool
}

// Speaker is the one bit sound output: the tape output line on the UT-88, the INTE pin
// on the Radio-86RK. Bit 0 of a written value is the line level. Level changes are
// stamped with the CPU cycle counter and turned into samples on Update.
type Speaker struct {
	clock   func() uint64
	level   bool
	pending []transition
	next    float64 // cycle of the next sample
	out     chan float32
	sinks   []SampleSink
}

// NewSpeaker creates a speaker, clock returns the current CPU cycle.
func NewSpeaker(clock func() uint64) *Speaker {
	return &Speaker{clock: clock, next: float64(clock())}
}

func (s *Speaker) String() string {
	return "speaker"
}

// SetAudioOut sets the channel samples are sent to, samples are dropped when it is full.
func (s *Speaker) SetAudioOut(c chan float32) {
	s.out = c
}

// AddSink adds a receiver of every rendered sample.
func (s *Speaker) AddSink(sink SampleSink) {
	s.sinks = append(s.sinks, sink)
}

// Write8 sets the line level.
func (s *Speaker) Write8(offset uint16, data byte) error {
	s.SetLevel(data&0x01 != 0)
	return nil
}

// SetLevel sets the line level at the current cycle.
func (s *Speaker) SetLevel(level bool) {
	s.pending = append(s.pending, transition{cycle: s.clock(), level: level})
}

// Update renders the samples up to the current cycle.
func (s *Speaker) Update() error {
	now := float64(s.clock())
	var samples []float32
	for s.next < now {
		for len(s.pending) > 0 && float64(s.pending[0].cycle) <= s.next {
			s.level = s.pending[0].level
			s.pending = s.pending[1:]
		}
		x := float32(-1)
		if s.level {
			x = 1
		}
		samples = append(samples, x)
		s.next += cyclesPerSample
	}
	if len(samples) == 0 {
		return nil
	}
	if s.out != nil {
		for _, x := range samples {
			select {
			case s.out <- x:
			default:
			}
		}
	}
	for _, sink := range s.sinks {
		sink.AddSamples(samples)
	}
	return nil
}
