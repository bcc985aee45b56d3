package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	// sem holds one token; the engine runs one invocation at a time.
	sem chan struct{}
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	OutputPath string `json:"output_path"`
}

// NewExecSynth runs command once per segment. The command receives an
// execRequest as JSON on stdin and must write a WAV file to output_path.
// Invocations are serialized.
func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels, sem: make(chan struct{}, 1)}, nil
}

func (e *execSynth) SynthesizeToFile(ctx context.Context, req SynthRequest, path string) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for tts engine: %w", ctx.Err())
	}
	defer func() { <-e.sem }()

	data, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.Voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
		OutputPath: path,
	})
	if err != nil {
		return err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("tts command failed: %w: %s", err, msg)
		}
		return fmt.Errorf("tts command failed: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("tts command produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("tts command produced an empty file")
	}
	return nil
}
