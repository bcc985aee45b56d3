package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

const invalidTextsMessage = "Invalid input: 'texts' should be a list of strings."

// Reporter receives a summary of every handled request.
type Reporter interface {
	Report(ctx context.Context, status protocol.StitchStatus) error
}

// ServiceOptions bounds request handling.
type ServiceOptions struct {
	// MaxTexts rejects longer lists when positive.
	MaxTexts int
	// Timeout bounds a whole request when positive.
	Timeout time.Duration
}

// Service is the request boundary shared by the HTTP and bus transports.
// It validates input, drives the Stitcher and converts every failure into
// a Response.
type Service struct {
	stitcher  *Stitcher
	opts      ServiceOptions
	log       *slog.Logger
	reporters []Reporter
	metrics   *metrics
	tracer    trace.Tracer
}

// Response is the outcome of one request: either Audio or Err is set.
type Response struct {
	RequestID string
	Audio     []byte
	Duration  time.Duration
	Segments  int
	Err       error
}

// Status returns the HTTP status code for the response.
func (r Response) Status() int { return StatusCode(r.Err) }

func NewService(stitcher *Stitcher, opts ServiceOptions, log *slog.Logger, reporters ...Reporter) *Service {
	log = log.With(slog.String("component", "stitch-service"))
	m, err := newMetrics(otel.Meter(instrumentationName))
	if err != nil {
		log.Warn("failed to initialize metrics", slogError(err))
	}
	return &Service{
		stitcher:  stitcher,
		opts:      opts,
		log:       log,
		reporters: reporters,
		metrics:   m,
		tracer:    otel.Tracer(instrumentationName),
	}
}

// Handle processes one raw JSON request body received over transport.
func (s *Service) Handle(ctx context.Context, transport string, body []byte) Response {
	resp := Response{RequestID: uuid.NewString()}
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "stitch.request", trace.WithAttributes(
		attribute.String("request.id", resp.RequestID),
		attribute.String("transport", transport),
	))
	defer span.End()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	texts, err := ParseRequest(body, s.opts.MaxTexts)
	if err == nil {
		span.SetAttributes(attribute.Int("request.texts", len(texts)))
		var res Result
		res, err = s.stitcher.Stitch(ctx, texts)
		if err == nil {
			resp.Audio = res.Audio
			resp.Duration = res.Duration
			resp.Segments = res.Segments
		}
	}
	resp.Err = err

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	s.finish(ctx, transport, len(texts), resp, time.Since(start))
	return resp
}

func (s *Service) finish(ctx context.Context, transport string, texts int, resp Response, elapsed time.Duration) {
	status := protocol.StitchStatus{
		RequestID:  resp.RequestID,
		Transport:  transport,
		Texts:      texts,
		Segments:   resp.Segments,
		DurationMS: resp.Duration.Milliseconds(),
		Bytes:      len(resp.Audio),
		Completed:  resp.Err == nil,
		Timestamp:  time.Now().UTC(),
	}
	outcome := "completed"
	if resp.Err != nil {
		outcome = string(KindOf(resp.Err))
		status.ErrorKind = outcome
		status.Error = resp.Err.Error()
	}

	s.metrics.record(ctx, transport, outcome, resp.Segments, elapsed)

	attrs := []any{
		slog.String("request_id", resp.RequestID),
		slog.String("transport", transport),
		slog.Int("texts", texts),
		slog.Int("segments", resp.Segments),
		slog.Int64("elapsed_ms", elapsed.Milliseconds()),
	}
	switch {
	case resp.Err == nil:
		s.log.Info("stitch completed", append(attrs, slog.Int64("audio_ms", status.DurationMS), slog.Int("bytes", status.Bytes))...)
	case KindOf(resp.Err) == KindInvalidInput:
		s.log.Warn("stitch request rejected", append(attrs, slogError(resp.Err))...)
	default:
		s.log.Error("stitch failed", append(attrs, slog.String("kind", outcome), slogError(resp.Err))...)
	}

	reportCtx := context.WithoutCancel(ctx)
	for _, r := range s.reporters {
		if err := r.Report(reportCtx, status); err != nil {
			s.log.Warn("failed to report stitch status", slog.String("request_id", resp.RequestID), slogError(err))
		}
	}
}

// ParseRequest validates a JSON body of the form {"texts": [string, ...]}.
// A missing or null field, a non-array value and any non-string element are
// all invalid input.
func ParseRequest(body []byte, maxTexts int) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, invalidInput("Invalid input: request body must be a JSON object.")
	}
	raw, ok := fields["texts"]
	if !ok {
		return nil, invalidInput("Invalid input: 'texts' is required.")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, invalidInput(invalidTextsMessage)
	}
	if maxTexts > 0 && len(items) > maxTexts {
		return nil, invalidInput("Invalid input: at most %d texts are allowed per request.", maxTexts)
	}
	texts := make([]string, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '"' {
			return nil, invalidInput(invalidTextsMessage)
		}
		if err := json.Unmarshal(item, &texts[i]); err != nil {
			return nil, invalidInput(invalidTextsMessage)
		}
	}
	return texts, nil
}
