package stitch

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

// HTTPHandler serves POST /tts.
type HTTPHandler struct {
	svc          *Service
	maxBodyBytes int64
	downloadName string
	log          *slog.Logger
}

func NewHTTPHandler(svc *Service, maxBodyBytes int64, downloadName string, log *slog.Logger) *HTTPHandler {
	if downloadName == "" {
		downloadName = "combined_output.wav"
	}
	return &HTTPHandler{
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
		downloadName: downloadName,
		log:          log.With(slog.String("component", "stitch-http")),
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body io.Reader = r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusBadRequest, "Invalid input: request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes.")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid input: failed to read request body.")
		return
	}

	resp := h.svc.Handle(r.Context(), "http", data)
	w.Header().Set("X-Request-Id", resp.RequestID)
	if resp.Err != nil {
		h.writeError(w, resp.Status(), resp.Err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.downloadName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Audio); err != nil {
		h.log.Warn("failed to write audio response", slog.String("request_id", resp.RequestID), slogError(err))
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: message}); err != nil {
		h.log.Warn("failed to write error response", slogError(err))
	}
}
