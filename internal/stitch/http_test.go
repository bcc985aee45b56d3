package stitch

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

func newTestHandler(t *testing.T, synth tts.Synthesizer, gap time.Duration, maxBody int64) (*HTTPHandler, string) {
	t.Helper()
	s, dir := newTestStitcher(t, synth, gap)
	svc := NewService(s, ServiceOptions{}, newLogger())
	return NewHTTPHandler(svc, maxBody, "", newLogger()), dir
}

func postTTS(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got content type %q", ct)
	}
	var payload protocol.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error
}

func TestHTTPHandlerReturnsAttachment(t *testing.T) {
	gap := 200 * time.Millisecond
	h, dir := newTestHandler(t, nil, gap, 1<<20)

	rec := postTTS(h, `{"texts":["good","morning"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil || disposition != "attachment" || params["filename"] != "combined_output.wav" {
		t.Fatalf("unexpected content disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Header().Get("Content-Length") != strconv.Itoa(rec.Body.Len()) {
		t.Fatalf("content length %s does not match body %d", rec.Header().Get("Content-Length"), rec.Body.Len())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	clip, err := audio.DecodeReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := tts.MockDuration("good", testRuneMS) + gap + tts.MockDuration("morning", testRuneMS)
	assertDuration(t, clip.Duration(), want)
	assertEmptyDir(t, dir)
}

func TestHTTPHandlerEmptyTexts(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0, 0)

	rec := postTTS(h, `{"texts":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	clip, err := audio.DecodeReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if clip.Duration() != 0 {
		t.Fatalf("expected empty audio, got %v", clip.Duration())
	}
}

func TestHTTPHandlerInvalidInput(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0, 0)

	for _, body := range []string{`{"texts":"hello"}`, `{"texts":[1,2]}`, `{}`, `not json`} {
		rec := postTTS(h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
		if msg := decodeError(t, rec); !strings.HasPrefix(msg, "Invalid input") {
			t.Fatalf("body %s: unexpected error %q", body, msg)
		}
	}
}

func TestHTTPHandlerSynthesisFailure(t *testing.T) {
	synth := &failingSynth{inner: tts.NewMockSynth(testFormat.SampleRate, testFormat.Channels, testRuneMS), failAt: 0}
	h, dir := newTestHandler(t, synth, 0, 0)

	rec := postTTS(h, `{"texts":["boom"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "engine crashed") {
		t.Fatalf("expected engine error in body, got %q", msg)
	}
	assertEmptyDir(t, dir)
}

func TestHTTPHandlerMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tts", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected Allow header %q", rec.Header().Get("Allow"))
	}
}

func TestHTTPHandlerBodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0, 16)

	rec := postTTS(h, `{"texts":["this body is far too long"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "exceeds 16 bytes") {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestHTTPHandlerCustomDownloadName(t *testing.T) {
	s, _ := newTestStitcher(t, nil, 0)
	h := NewHTTPHandler(NewService(s, ServiceOptions{}, newLogger()), 0, "greeting.wav", newLogger())

	rec := postTTS(h, `{"texts":["hi"]}`)
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil || params["filename"] != "greeting.wav" {
		t.Fatalf("unexpected content disposition %q", rec.Header().Get("Content-Disposition"))
	}
}
