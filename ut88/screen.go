package ut88

import "fmt"

// ScreenFetcher is the memory side of the Radio-86RK video controller: on every update
// it pulls the frame from video memory through a DMA channel, the way the 8275 CRT
// controller requests a DMA burst per frame.
type ScreenFetcher struct {
	dma     *DMA
	channel int
	frame   []byte
	frames  int
}

// NewScreenFetcher creates a fetcher reading through channel of dma.
func NewScreenFetcher(dma *DMA, channel int) *ScreenFetcher {
	return &ScreenFetcher{dma: dma, channel: channel}
}

func (s *ScreenFetcher) String() string {
	return fmt.Sprintf("screen (DMA channel %d)", s.channel)
}

// Update fetches a frame when the channel is programmed, nothing happens otherwise.
func (s *ScreenFetcher) Update() error {
	if !s.dma.Enabled(s.channel) {
		return nil
	}
	data, err := s.dma.Read(s.channel)
	if err != nil {
		return err
	}
	s.frame = data
	s.frames++
	return nil
}

// Frame returns the last fetched frame and the number of frames fetched so far.
func (s *ScreenFetcher) Frame() ([]byte, int) {
	return s.frame, s.frames
}
