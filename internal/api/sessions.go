package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/conversation"
	"github.com/example/control-assessor/internal/ingest"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/report"
)

var heartbeatInterval = 15 * time.Second

type handlers struct {
	Deps
}

type createRequest struct {
	Mode string `json:"mode"`
}

// messageRequest carries either typed text or an uploaded document. When both
// are present the text is prepended to the extracted document.
type messageRequest struct {
	Content     string `json:"content"`
	DataBase64  string `json:"data_base64,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Pages       string `json:"pages,omitempty"`
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	s, err := h.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return s, true
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, h.MaxRequestBytes, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err, nil)
		return
	}
	s, err := h.Sessions.Create(req.Mode)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	out := []conversation.Snapshot{}
	for _, s := range h.Sessions.List() {
		out = append(out, s.Snapshot())
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		respondJSON(w, http.StatusOK, s.Snapshot())
	}
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resetSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		s.Reset()
		respondJSON(w, http.StatusOK, s.Snapshot())
	}
}

func (h *handlers) messageText(r *http.Request, req messageRequest) (string, error) {
	if strings.TrimSpace(req.DataBase64) == "" {
		if strings.TrimSpace(req.Content) == "" {
			return "", apperr.Configuration("content", "required")
		}
		return req.Content, nil
	}
	data, err := ingest.DecodeBase64(req.DataBase64)
	if err != nil {
		return "", err
	}
	res, err := h.Ingest.Extract(r.Context(), ingest.Document{
		Data:        data,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Pages:       req.Pages,
	})
	if err != nil {
		return "", err
	}
	if c := strings.TrimSpace(req.Content); c != "" {
		return c + "\n\n" + res.Text, nil
	}
	return res.Text, nil
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func (h *handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(w, r, h.MaxRequestBytes, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = apperr.Configuration("body", "required")
		}
		writeError(w, err, nil)
		return
	}
	text, err := h.messageText(r, req)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	if !wantsStream(r) {
		reply, err := s.Submit(r.Context(), text, conversation.Listener{})
		if err != nil {
			writeError(w, err, reply.Assessment)
			return
		}
		respondJSON(w, http.StatusOK, reply)
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	// progress and fragments may arrive from pipeline goroutines
	var mu sync.Mutex
	send := func(event string, v any) {
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_ = writeSSE(w, event, b)
		flusher.Flush()
	}

	reply, err := s.Submit(r.Context(), text, conversation.Listener{
		Progress: func(p orchestrator.Progress) { send(orchestrator.EventStage, p) },
		Fragment: func(f string) { send(orchestrator.EventToken, map[string]string{"chunk": f}) },
	})
	if err != nil {
		h.Logger.Warn("message failed", "request_id", requestIDFromContext(r.Context()), "session_id", s.ID, "error", err)
		send(orchestrator.EventError, errorResponse{
			Error:      errorBody{Message: err.Error(), Kind: string(apperr.KindOf(err))},
			Assessment: reply.Assessment,
		})
		return
	}
	send(orchestrator.EventTurn, reply)

	mu.Lock()
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
	mu.Unlock()
}

func (h *handlers) getReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	a, ok := s.Assessment()
	if !ok {
		writeError(w, fmt.Errorf("report: %w", apperr.ErrNotFound), nil)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, report.Format(a))
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	art, ok := s.Artifact()
	if !ok {
		writeError(w, fmt.Errorf("artifact: %w", apperr.ErrNotFound), nil)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

// events relays the session's hub traffic until the client disconnects.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.Hub == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "event stream disabled", string(apperr.KindInternal))
		return
	}
	ch, unsubscribe := h.Hub.Subscribe(s.ID)
	defer unsubscribe()

	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	ready, _ := json.Marshal(map[string]string{"session_id": s.ID})
	_ = writeSSE(w, "ready", ready)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case b, open := <-ch:
			if !open {
				return
			}
			var head struct {
				Event string `json:"event"`
			}
			_ = json.Unmarshal(b, &head)
			if err := writeSSE(w, head.Event, b); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
