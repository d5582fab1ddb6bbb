// Package app wires configuration, providers, the pipeline and the session
// store into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/example/control-assessor/internal/agents"
	"github.com/example/control-assessor/internal/api"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/conversation"
	"github.com/example/control-assessor/internal/ingest"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/platform/logger"
	"github.com/example/control-assessor/internal/providers/llm"
)

type App struct {
	Log    *logger.Logger
	Config *config.Config

	Client   llm.Client
	Pipeline *orchestrator.Orchestrator
	Hub      *orchestrator.Hub
	Sessions *conversation.Store
	Ingest   *ingest.Extractor
}

// New loads the configuration at path (empty for defaults and environment)
// and builds the application.
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return Build(cfg, log)
}

func Build(cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)
	client, err := llm.New(cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	stages, err := agents.Configure(agents.DefaultStages(), cfg.LLM.Model, cfg.Stages)
	if err != nil {
		return nil, err
	}
	pipeline := orchestrator.New(
		agents.NewExecutor(client, cfg.Pipeline.MaxRepairAttempts, log),
		stages,
		orchestrator.Options{
			ParallelAnalysis: cfg.Pipeline.ParallelAnalysis,
			StageTimeout:     cfg.Pipeline.StageTimeout,
		},
		log,
	)
	hub := orchestrator.NewHub()

	log.Info("app configured",
		"provider", cfg.LLM.Provider,
		"chat_model", cfg.ChatModel(),
		"mode", cfg.Chat.Mode,
		"parallel_analysis", cfg.Pipeline.ParallelAnalysis,
		"credential_set", cfg.LLM.APIKey != "",
	)
	return &App{
		Log:      log,
		Config:   cfg,
		Client:   client,
		Pipeline: pipeline,
		Hub:      hub,
		Sessions: conversation.NewStore(pipeline, client, conversation.OptionsFromConfig(cfg), hub, log),
		Ingest:   ingest.New(ingest.LimitsFromConfig(cfg.Ingest), log),
	}, nil
}

func (a *App) Server() *http.Server {
	return api.NewServer(a.Config, api.Deps{
		Sessions: a.Sessions,
		Hub:      a.Hub,
		Ingest:   a.Ingest,
		Logger:   a.Log,
	})
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := a.Server()
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
		defer cancel()
		a.Log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	a.Log.Sync()
}

// NotifyContext is cancelled on SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
