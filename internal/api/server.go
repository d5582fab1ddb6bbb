// Package api exposes assessment sessions over HTTP.
package api

import (
	"net/http"

	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/conversation"
	"github.com/example/control-assessor/internal/ingest"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/platform/logger"
)

type Deps struct {
	Sessions *conversation.Store
	Hub      *orchestrator.Hub
	Ingest   *ingest.Extractor
	Logger   *logger.Logger

	MaxRequestBytes int64
	// AllowOrigin is the CORS origin; "*" when empty.
	AllowOrigin string
}

func NewServer(cfg *config.Config, deps Deps) *http.Server {
	if deps.MaxRequestBytes == 0 {
		deps.MaxRequestBytes = cfg.HTTP.MaxRequestBytes
	}
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		// streaming responses outlive any fixed write deadline
		WriteTimeout: 0,
	}
}

func NewHandler(deps Deps) http.Handler {
	deps.Logger = logger.OrNop(deps.Logger)
	if deps.Ingest == nil {
		deps.Ingest = ingest.New(ingest.Limits{}, deps.Logger)
	}
	h := &handlers{Deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions", h.listSessions)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/messages", h.postMessage)
	mux.HandleFunc("POST /sessions/{id}/reset", h.resetSession)
	mux.HandleFunc("GET /sessions/{id}/report", h.getReport)
	mux.HandleFunc("GET /sessions/{id}/download", h.download)
	mux.HandleFunc("GET /sessions/{id}/events", h.events)

	var handler http.Handler = mux
	handler = recoverMiddleware(deps.Logger)(handler)
	handler = accessLogMiddleware(deps.Logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = cors(deps.AllowOrigin)(handler)
	return handler
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
