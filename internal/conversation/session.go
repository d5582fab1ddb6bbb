// Package conversation keeps the per-user chat log and routes each user turn
// either to the assessment pipeline or to a streamed chat completion.
package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/platform/logger"
	"github.com/example/control-assessor/internal/prompts"
	"github.com/example/control-assessor/internal/providers/llm"
	"github.com/example/control-assessor/internal/report"
)

type State string

const (
	StateEmpty     State = "empty"
	StatePopulated State = "populated"
)

// Reply kinds.
const (
	KindAssessment = "assessment"
	KindChat       = "chat"
)

// Pipeline runs a full assessment; *orchestrator.Orchestrator satisfies it.
type Pipeline interface {
	Run(ctx context.Context, input, credential string, onProgress func(orchestrator.Progress)) (models.Assessment, error)
}

// Listener receives intermediate output while a turn is processed. Both
// callbacks are optional.
type Listener struct {
	Progress func(orchestrator.Progress)
	Fragment func(string)
}

// Reply is the outcome of one submitted user turn. On a failed assessment
// Assessment holds the partial state for display only.
type Reply struct {
	Kind       string             `json:"kind"`
	Turn       models.Turn        `json:"turn"`
	Assessment *models.Assessment `json:"assessment,omitempty"`
}

// Options configures new sessions.
type Options struct {
	Mode       string
	Seed       string
	ChatModel  llm.ModelConfig
	Credential string

	// ChatTimeout bounds one streamed chat reply; zero means unbounded.
	ChatTimeout time.Duration
}

// OptionsFromConfig derives session options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Mode:        cfg.Chat.Mode,
		ChatModel:   llm.ModelConfig{Model: cfg.ChatModel(), Temperature: cfg.Chat.Temperature},
		Credential:  cfg.LLM.APIKey,
		ChatTimeout: cfg.Chat.Timeout,
	}
	if cfg.Chat.SeedSystemTurn {
		opts.Seed = cfg.Chat.SystemPrompt
		if strings.TrimSpace(opts.Seed) == "" {
			opts.Seed = prompts.MustGet(prompts.ChatSystem).Text()
		}
	}
	return opts
}

// Session is one conversation. Submissions are serialized.
type Session struct {
	ID        string
	Mode      string
	CreatedAt time.Time

	pipeline Pipeline
	chat     llm.Client
	opts     Options
	hub      *orchestrator.Hub
	log      *logger.Logger

	mu         sync.Mutex
	turns      []models.Turn
	assessment models.Assessment
	populated  bool
	artifact   *report.Artifact
	lastRun    *models.Run
}

func NewSession(id string, pipeline Pipeline, chat llm.Client, opts Options, hub *orchestrator.Hub, log *logger.Logger) (*Session, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	switch mode {
	case "":
		mode = config.ModeConversational
	case config.ModeConversational, config.ModeAssessOnly:
	default:
		return nil, apperr.Configuration("mode", fmt.Sprintf("unsupported mode %q", opts.Mode))
	}
	s := &Session{
		ID:        id,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		pipeline:  pipeline,
		chat:      chat,
		opts:      opts,
		hub:       hub,
		log:       logger.OrNop(log).With("session_id", id),
	}
	s.turns = s.seedTurns()
	return s, nil
}

func (s *Session) seedTurns() []models.Turn {
	if strings.TrimSpace(s.opts.Seed) == "" {
		return nil
	}
	return []models.Turn{{Role: models.RoleSystem, Content: s.opts.Seed, CreatedAt: s.CreatedAt}}
}

func (s *Session) publish(event string, payload any) {
	if s.hub != nil {
		s.hub.Publish(s.ID, orchestrator.Event{Event: event, Payload: payload})
	}
}

// Submit appends the user turn and answers it. An empty session (or any
// session in assess_only mode) runs the assessment pipeline; a populated one
// streams a chat completion over the whole log. On failure the log is left
// exactly as it was before the call.
func (s *Session) Submit(ctx context.Context, text string, l Listener) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, apperr.Configuration("content", "empty message")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.turns)
	s.turns = append(s.turns, models.Turn{Role: models.RoleUser, Content: text, CreatedAt: time.Now().UTC()})

	var (
		reply Reply
		err   error
	)
	if !s.populated || s.Mode == config.ModeAssessOnly {
		reply, err = s.assess(ctx, text, l)
	} else {
		reply, err = s.converse(ctx, before, l)
	}
	if err != nil {
		s.turns = s.turns[:before]
		s.log.Warn("turn failed", "kind", reply.Kind, "error", err)
		s.publish(orchestrator.EventError, map[string]any{"message": err.Error(), "kind": apperr.KindOf(err)})
		return reply, err
	}
	s.turns = append(s.turns, reply.Turn)
	s.publish(orchestrator.EventTurn, reply.Turn)
	return reply, nil
}

func (s *Session) assess(ctx context.Context, text string, l Listener) (Reply, error) {
	s.log.Info("running assessment", "chars", len(text))
	run := &models.Run{Status: models.StatusRunning, StartedAt: time.Now().UTC()}
	s.lastRun = run
	fail := func(state models.Assessment, err error) (Reply, error) {
		run.Status, run.Error, run.Assessment = models.StatusFailed, err.Error(), state
		run.FinishedAt = time.Now().UTC()
		return Reply{Kind: KindAssessment, Assessment: &state}, err
	}

	state, err := s.pipeline.Run(ctx, text, s.opts.Credential, func(p orchestrator.Progress) {
		s.publish(orchestrator.EventStage, p)
		if l.Progress != nil {
			l.Progress(p)
		}
	})
	if err != nil {
		return fail(state, err)
	}
	art, err := report.CSV(state)
	if err != nil {
		return fail(state, fmt.Errorf("build artifact: %w", err))
	}
	run.Status, run.Assessment, run.FinishedAt = models.StatusSuccess, state, time.Now().UTC()
	s.assessment = state
	s.populated = true
	s.artifact = &art
	return Reply{
		Kind:       KindAssessment,
		Turn:       models.Turn{Role: models.RoleAssistant, Content: report.Format(state), CreatedAt: time.Now().UTC()},
		Assessment: &state,
	}, nil
}

func (s *Session) converse(ctx context.Context, turnIndex int, l Listener) (Reply, error) {
	messages := make([]llm.Message, len(s.turns))
	for i, t := range s.turns {
		messages[i] = llm.Message{Role: t.Role, Content: t.Content}
	}

	var appendTok func(string, string)
	if s.hub != nil {
		appendTok = s.hub.TokenAppender(s.ID)
		defer s.hub.StopTokenAppender(s.ID)
	}
	streamID := "turn-" + strconv.Itoa(turnIndex+1)

	if s.opts.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ChatTimeout)
		defer cancel()
	}

	start := time.Now()
	cfg := s.opts.ChatModel.WithKey(s.opts.Credential)
	text, err := llm.Collect(s.chat.CompleteStream(ctx, messages, cfg), func(frag string) {
		if appendTok != nil {
			appendTok(streamID, frag)
		}
		if l.Fragment != nil {
			l.Fragment(frag)
		}
	})
	if err != nil {
		return Reply{Kind: KindChat}, fmt.Errorf("chat: %w", err)
	}
	s.log.Info("chat reply", "model", cfg.Model, "chars", len(text), "duration", time.Since(start))
	return Reply{
		Kind: KindChat,
		Turn: models.Turn{Role: models.RoleAssistant, Content: text, CreatedAt: time.Now().UTC()},
	}, nil
}

// Reset returns the session to Empty, keeping only the seed turn.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = s.seedTurns()
	s.assessment = models.Assessment{}
	s.populated = false
	s.artifact = nil
	s.lastRun = nil
	s.publish(orchestrator.EventReset, nil)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.populated {
		return StatePopulated
	}
	return StateEmpty
}

// Turns returns a copy of the conversation log.
func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), s.turns...)
}

// Assessment returns the state of the last successful run.
func (s *Session) Assessment() (models.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessment, s.populated
}

func (s *Session) Artifact() (report.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return report.Artifact{}, false
	}
	return *s.artifact, true
}

// LastRun reports the most recent pipeline execution since the last reset,
// including failed ones.
func (s *Session) LastRun() (models.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return models.Run{}, false
	}
	return *s.lastRun, true
}

// Snapshot is the serializable view of a session.
type Snapshot struct {
	ID          string             `json:"id"`
	Mode        string             `json:"mode"`
	State       State              `json:"state"`
	Turns       []models.Turn      `json:"turns"`
	Assessment  *models.Assessment `json:"assessment,omitempty"`
	LastRun     *models.Run        `json:"last_run,omitempty"`
	HasArtifact bool               `json:"has_artifact"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:          s.ID,
		Mode:        s.Mode,
		State:       StateEmpty,
		Turns:       append([]models.Turn{}, s.turns...),
		HasArtifact: s.artifact != nil,
		CreatedAt:   s.CreatedAt,
	}
	if s.populated {
		a := s.assessment
		snap.State = StatePopulated
		snap.Assessment = &a
	}
	if s.lastRun != nil {
		r := *s.lastRun
		snap.LastRun = &r
	}
	return snap
}
