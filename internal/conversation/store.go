package conversation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/platform/logger"
	"github.com/example/control-assessor/internal/providers/llm"
)

// Store keeps sessions in memory, keyed by UUID.
type Store struct {
	pipeline Pipeline
	chat     llm.Client
	opts     Options
	hub      *orchestrator.Hub
	log      *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore(pipeline Pipeline, chat llm.Client, opts Options, hub *orchestrator.Hub, log *logger.Logger) *Store {
	return &Store{
		pipeline: pipeline,
		chat:     chat,
		opts:     opts,
		hub:      hub,
		log:      logger.OrNop(log),
		sessions: map[string]*Session{},
	}
}

// Create opens a session. An empty mode uses the configured default.
func (st *Store) Create(mode string) (*Session, error) {
	opts := st.opts
	if mode != "" {
		opts.Mode = mode
	}
	s, err := NewSession(uuid.NewString(), st.pipeline, st.chat, opts, st.hub, st.log)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	st.log.Info("session created", "session_id", s.ID, "mode", s.Mode)
	return s, nil
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	st.log.Info("session deleted", "session_id", id)
	return nil
}

// List returns every session, oldest first.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
