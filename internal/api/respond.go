package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
	// Assessment is the partial state of a failed run.
	Assessment *models.Assessment `json:"assessment,omitempty"`
}

func writeErrorMessage(w http.ResponseWriter, status int, message, kind string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = http.StatusText(status)
	}
	respondJSON(w, status, errorResponse{Error: errorBody{Message: msg, Kind: kind}})
}

// statusFor maps err to a status code. A missing server-side credential is
// the operator's problem, not the caller's.
func statusFor(err error) int {
	var ce *apperr.ConfigurationError
	if errors.As(err, &ce) && ce.Field == "credential" {
		return http.StatusInternalServerError
	}
	return apperr.HTTPStatus(err)
}

func writeError(w http.ResponseWriter, err error, partial *models.Assessment) {
	respondJSON(w, statusFor(err), errorResponse{
		Error:      errorBody{Message: err.Error(), Kind: string(apperr.KindOf(err))},
		Assessment: partial,
	})
}

// decodeJSON returns io.EOF unchanged for an empty body.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Configuration("body", fmt.Sprintf("request larger than %d bytes", tooLarge.Limit))
		}
		return apperr.Configuration("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// writeSSE writes one server-sent event; multi-line data is split across
// data lines.
func writeSSE(w http.ResponseWriter, event string, data []byte) error {
	if event = strings.TrimSpace(event); event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMessage(w, http.StatusInternalServerError, "streaming unsupported", "internal")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}
