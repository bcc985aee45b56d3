package protocol

import "time"

// StitchRequest is the body accepted by POST /tts and tts.stitch.request.
type StitchRequest struct {
	Texts []string `json:"texts"`
}

// ErrorResponse is returned whenever no audio is produced.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StitchStatus summarizes one handled request. It never carries audio.
type StitchStatus struct {
	RequestID  string    `json:"request_id"`
	Transport  string    `json:"transport"`
	Texts      int       `json:"texts"`
	Segments   int       `json:"segments"`
	DurationMS int64     `json:"duration_ms"`
	Bytes      int       `json:"bytes"`
	Completed  bool      `json:"completed"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectStitchRequest   = "tts.stitch.request"
	SubjectStitchCompleted = "tts.stitch.completed"
	SubjectStitchFailed    = "tts.stitch.failed"

	// Reply headers on tts.stitch.request.
	HeaderStatus    = "Loqa-Status"
	HeaderError     = "Loqa-Error"
	HeaderRequestID = "Loqa-Request-Id"
)
