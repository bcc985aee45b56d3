package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

func TestSynthesizeWritesAudio(t *testing.T) {
	var received protocol.StitchRequest
	clip := audio.Silence(250*time.Millisecond, audio.Format{SampleRate: 8000, Channels: 1, BitDepth: 16})
	wavBytes, err := clip.Bytes()
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wavBytes)
	}))
	t.Cleanup(srv.Close)

	outDir := filepath.Join(t.TempDir(), "out")
	c, err := New(Options{BaseURL: srv.URL + "/", OutputDir: outDir})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := c.Synthesize(context.Background(), []string{"hello", "", "  ", "world"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(received.Texts) != 2 || received.Texts[0] != "hello" || received.Texts[1] != "world" {
		t.Fatalf("expected blank texts to be filtered, got %q", received.Texts)
	}
	if filepath.Dir(got.Path) != outDir {
		t.Fatalf("expected file under %s, got %s", outDir, got.Path)
	}
	if got.Duration != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got.Duration)
	}
	if _, err := os.Stat(got.Path); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1", OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Synthesize(context.Background(), []string{"", " \n"}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "Invalid input: 'texts' should be a list of strings."})
	}))
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	c, err := New(Options{BaseURL: srv.URL, OutputDir: outDir})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Synthesize(context.Background(), []string{"hi"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || statusErr.Message != "Invalid input: 'texts' should be a list of strings." {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Fatalf("expected no files after failure, got %d", len(entries))
	}
}

func TestSynthesizeRejectsInvalidAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a wav"))
	}))
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	c, err := New(Options{BaseURL: srv.URL, OutputDir: outDir})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Synthesize(context.Background(), []string{"hi"}); err == nil {
		t.Fatal("expected decode failure")
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Fatalf("expected invalid download to be removed, got %d files", len(entries))
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without base url")
	}
}
