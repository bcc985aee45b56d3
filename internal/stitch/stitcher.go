package stitch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

const instrumentationName = "github.com/loqalabs/loqa-tts/stitch"

// Options configures a Stitcher.
type Options struct {
	// TempDir holds segment artifacts while a request runs.
	TempDir string
	// SilenceGap is inserted between consecutive synthesized segments.
	SilenceGap time.Duration
	Voice      string
	// Format is used for the output when no segment is synthesized.
	Format audio.Format
}

// Result is a stitched waveform ready to send.
type Result struct {
	Audio    []byte
	Duration time.Duration
	Segments int
}

// Stitcher turns an ordered list of texts into one WAV payload.
type Stitcher struct {
	synth  tts.Synthesizer
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer
}

// NewStitcher creates the artifact directory if it is missing.
func NewStitcher(synth tts.Synthesizer, opts Options, log *slog.Logger) (*Stitcher, error) {
	if synth == nil {
		return nil, fmt.Errorf("stitcher requires a synthesizer")
	}
	if opts.TempDir == "" {
		return nil, fmt.Errorf("stitcher requires a temp dir")
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if opts.Format.BitDepth == 0 {
		opts.Format.BitDepth = 16
	}
	return &Stitcher{
		synth:  synth,
		opts:   opts,
		log:    log.With(slog.String("component", "stitcher")),
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Stitch synthesizes every non-blank text in order and concatenates the
// segments, separated by the configured silence gap. The first failure
// aborts the loop. Segment artifacts are removed before Stitch returns,
// whatever the outcome.
func (s *Stitcher) Stitch(ctx context.Context, texts []string) (Result, error) {
	arts := newArtifacts(s.opts.TempDir, s.log)
	defer arts.cleanup()

	combined := audio.Empty(s.opts.Format)
	var prev audio.Format
	segments := 0
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		clip, err := s.segment(ctx, i, text, arts.next())
		if err != nil {
			return Result{}, err
		}
		if segments > 0 && s.opts.SilenceGap > 0 {
			if err := combined.Append(audio.Silence(s.opts.SilenceGap, prev)); err != nil {
				return Result{}, assemblyFailure(fmt.Errorf("append silence before segment %d: %w", i, err))
			}
		}
		if err := combined.Append(clip); err != nil {
			return Result{}, assemblyFailure(fmt.Errorf("append segment %d: %w", i, err))
		}
		prev = clip.Format()
		segments++
	}

	data, err := combined.Bytes()
	if err != nil {
		return Result{}, assemblyFailure(fmt.Errorf("encode output: %w", err))
	}
	return Result{Audio: data, Duration: combined.Duration(), Segments: segments}, nil
}

func (s *Stitcher) segment(ctx context.Context, index int, text, path string) (*audio.Clip, error) {
	ctx, span := s.tracer.Start(ctx, "stitch.segment", trace.WithAttributes(
		attribute.Int("segment.index", index),
		attribute.Int("segment.runes", len([]rune(text))),
	))
	defer span.End()

	s.log.Debug("synthesizing segment", slog.Int("index", index), slog.String("text", text))

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, synthesisFailure(fmt.Errorf("segment %d: %w", index, err))
	}
	if err := s.synth.SynthesizeToFile(ctx, tts.SynthRequest{Text: text, Voice: s.opts.Voice}, path); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return nil, synthesisFailure(fmt.Errorf("synthesize segment %d: %w", index, err))
	}
	clip, err := audio.Decode(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, assemblyFailure(fmt.Errorf("segment %d: %w", index, err))
	}
	span.SetAttributes(attribute.Int64("segment.duration_ms", clip.Duration().Milliseconds()))
	return clip, nil
}
