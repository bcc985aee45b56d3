package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-tts/internal/config"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text  string
	Voice string
}

// Synthesizer is the contract for producing audio. Implementations write a
// complete WAV file to path or return an error.
type Synthesizer interface {
	SynthesizeToFile(ctx context.Context, req SynthRequest, path string) error
}

// New builds the backend selected by cfg.Mode.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels, cfg.MockRuneMS), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}
