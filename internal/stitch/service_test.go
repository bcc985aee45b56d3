package stitch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

type recordingReporter struct {
	mu       sync.Mutex
	statuses []protocol.StitchStatus
	err      error
}

func (r *recordingReporter) Report(ctx context.Context, status protocol.StitchStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return r.err
}

func (r *recordingReporter) last(t *testing.T) protocol.StitchStatus {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		t.Fatal("expected a reported status")
	}
	return r.statuses[len(r.statuses)-1]
}

// blockingSynth waits for its context to end.
type blockingSynth struct{}

func (blockingSynth) SynthesizeToFile(ctx context.Context, _ tts.SynthRequest, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestParseRequest(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    []string
		wantErr string
	}{
		{name: "list", body: `{"texts":["a","b"]}`, want: []string{"a", "b"}},
		{name: "empty list", body: `{"texts":[]}`, want: []string{}},
		{name: "blank strings kept", body: `{"texts":["", " "]}`, want: []string{"", " "}},
		{name: "extra fields ignored", body: `{"texts":["a"],"voice":"x"}`, want: []string{"a"}},
		{name: "missing field", body: `{}`, wantErr: "'texts' is required"},
		{name: "null field", body: `{"texts":null}`, wantErr: invalidTextsMessage},
		{name: "string field", body: `{"texts":"hello"}`, wantErr: invalidTextsMessage},
		{name: "object field", body: `{"texts":{"a":"b"}}`, wantErr: invalidTextsMessage},
		{name: "number element", body: `{"texts":["a",1]}`, wantErr: invalidTextsMessage},
		{name: "null element", body: `{"texts":["a",null]}`, wantErr: invalidTextsMessage},
		{name: "nested list", body: `{"texts":[["a"]]}`, wantErr: invalidTextsMessage},
		{name: "not json", body: `texts=a`, wantErr: "JSON object"},
		{name: "top level array", body: `["a"]`, wantErr: "JSON object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRequest([]byte(tc.body), 0)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				if KindOf(err) != KindInvalidInput || StatusCode(err) != 400 {
					t.Fatalf("expected invalid input, got kind %s", KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %q, got %q", tc.want, got)
				}
			}
		})
	}
}

func TestParseRequestMaxTexts(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"texts":["a","b","c"]}`), 2); KindOf(err) != KindInvalidInput || err == nil {
		t.Fatalf("expected limit rejection, got %v", err)
	}
	if _, err := ParseRequest([]byte(`{"texts":["a","b"]}`), 2); err != nil {
		t.Fatalf("unexpected error at limit: %v", err)
	}
}

func TestServiceHandleReportsOutcome(t *testing.T) {
	s, _ := newTestStitcher(t, nil, 0)
	rep := &recordingReporter{}
	svc := NewService(s, ServiceOptions{}, newLogger(), rep)

	resp := svc.Handle(context.Background(), "http", []byte(`{"texts":["hi","","there"]}`))
	if resp.Err != nil {
		t.Fatalf("handle: %v", resp.Err)
	}
	if resp.RequestID == "" || len(resp.Audio) == 0 || resp.Status() != 200 {
		t.Fatalf("unexpected response: id=%q bytes=%d status=%d", resp.RequestID, len(resp.Audio), resp.Status())
	}

	st := rep.last(t)
	if st.RequestID != resp.RequestID || !st.Completed || st.Transport != "http" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Texts != 3 || st.Segments != 2 || st.Bytes != len(resp.Audio) {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.DurationMS != resp.Duration.Milliseconds() {
		t.Fatalf("expected duration %d, got %d", resp.Duration.Milliseconds(), st.DurationMS)
	}
}

func TestServiceHandleInvalidInput(t *testing.T) {
	s, _ := newTestStitcher(t, nil, 0)
	rep := &recordingReporter{}
	svc := NewService(s, ServiceOptions{}, newLogger(), rep)

	resp := svc.Handle(context.Background(), "nats", []byte(`{"texts":"oops"}`))
	if resp.Status() != 400 || resp.Audio != nil {
		t.Fatalf("expected 400 without audio, got %d", resp.Status())
	}
	st := rep.last(t)
	if st.Completed || st.ErrorKind != string(KindInvalidInput) || st.Error != invalidTextsMessage {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestServiceReporterErrorDoesNotFailRequest(t *testing.T) {
	s, _ := newTestStitcher(t, nil, 0)
	rep := &recordingReporter{err: errors.New("disk full")}
	svc := NewService(s, ServiceOptions{}, newLogger(), rep)

	resp := svc.Handle(context.Background(), "http", []byte(`{"texts":["hi"]}`))
	if resp.Err != nil {
		t.Fatalf("reporter failure leaked into response: %v", resp.Err)
	}
}

func TestServiceTimeout(t *testing.T) {
	s, dir := newTestStitcher(t, blockingSynth{}, 0)
	rep := &recordingReporter{}
	svc := NewService(s, ServiceOptions{Timeout: 50 * time.Millisecond}, newLogger(), rep)

	start := time.Now()
	resp := svc.Handle(context.Background(), "http", []byte(`{"texts":["slow"]}`))
	if !errors.Is(resp.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", resp.Err)
	}
	if resp.Status() != 500 {
		t.Fatalf("expected 500, got %d", resp.Status())
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout was not enforced")
	}
	// Reporters still run after the request context expired.
	if st := rep.last(t); st.ErrorKind != string(KindSynthesis) {
		t.Fatalf("unexpected status: %+v", st)
	}
	assertEmptyDir(t, dir)
}

func TestStatusCode(t *testing.T) {
	if StatusCode(nil) != 200 {
		t.Fatal("nil error should map to 200")
	}
	if StatusCode(errors.New("plain")) != 500 {
		t.Fatal("untagged error should map to 500")
	}
	if StatusCode(assemblyFailure(errors.New("x"))) != 500 {
		t.Fatal("assembly failure should map to 500")
	}
}
