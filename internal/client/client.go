// Package client calls a running stitch service over HTTP and stores the
// returned audio locally.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

// ErrEmptyText is returned when every text given to Synthesize is blank.
var ErrEmptyText = errors.New("no text to synthesize")

// Options configures a Client.
type Options struct {
	// BaseURL is the service root, e.g. http://localhost:39685.
	BaseURL string
	// OutputDir receives downloaded WAV files. It is created on demand.
	OutputDir  string
	HTTPClient *http.Client
}

// Client talks to POST /tts.
type Client struct {
	baseURL string
	outDir  string
	http    *http.Client
}

// Audio is a downloaded stitched waveform.
type Audio struct {
	Path     string
	Duration time.Duration
}

// StatusError carries a non-2xx reply from the service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tts service returned %d: %s", e.StatusCode, e.Message)
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("client requires a base url")
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Join(os.TempDir(), "loqa-tts")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{baseURL: base, outDir: outDir, http: httpClient}, nil
}

// Synthesize sends the non-blank texts to the service and writes the reply
// to a fresh file under the output directory.
func (c *Client) Synthesize(ctx context.Context, texts []string) (Audio, error) {
	filtered := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return Audio{}, ErrEmptyText
	}

	body, err := json.Marshal(protocol.StitchRequest{Texts: filtered})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.http.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("call tts service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Audio{}, readStatusError(resp)
	}

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return Audio{}, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(c.outDir, uuid.NewString()+".wav")
	if err := writeFile(path, resp.Body); err != nil {
		return Audio{}, err
	}

	_, duration, err := audio.ProbeFile(path)
	if err != nil {
		_ = os.Remove(path)
		return Audio{}, fmt.Errorf("downloaded audio is not valid: %w", err)
	}
	return Audio{Path: path, Duration: duration}, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("download audio: %w", err)
	}
	return f.Close()
}

func readStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(data))
	var payload protocol.ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
