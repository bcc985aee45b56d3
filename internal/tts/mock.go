package tts

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/loqa-tts/internal/audio"
)

const mockToneHz = 440

type mockSynth struct {
	sampleRate int
	channels   int
	perRune    time.Duration
}

// NewMockSynth returns a synthesizer that renders a quiet tone lasting
// runeMS milliseconds per character of input.
func NewMockSynth(sampleRate, channels, runeMS int) Synthesizer {
	if runeMS <= 0 {
		runeMS = 60
	}
	return &mockSynth{sampleRate: sampleRate, channels: channels, perRune: time.Duration(runeMS) * time.Millisecond}
}

// MockDuration reports how long the mock renders text.
func MockDuration(text string, runeMS int) time.Duration {
	if runeMS <= 0 {
		runeMS = 60
	}
	return time.Duration(utf8.RuneCountInString(text)*runeMS) * time.Millisecond
}

func (m *mockSynth) SynthesizeToFile(ctx context.Context, req SynthRequest, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Duration(utf8.RuneCountInString(req.Text)) * m.perRune
	frames := int(d * time.Duration(m.sampleRate) / time.Second)
	samples := make([]int, frames*m.channels)
	for i := 0; i < frames; i++ {
		v := int(4000 * math.Sin(2*math.Pi*mockToneHz*float64(i)/float64(m.sampleRate)))
		for c := 0; c < m.channels; c++ {
			samples[i*m.channels+c] = v
		}
	}
	clip, err := audio.FromSamples(audio.Format{SampleRate: m.sampleRate, Channels: m.channels, BitDepth: 16}, samples)
	if err != nil {
		return fmt.Errorf("mock tts: %w", err)
	}
	return clip.WriteFile(path)
}
