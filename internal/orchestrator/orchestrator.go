package orchestrator

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/control-assessor/internal/agents"
	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/models"
	"github.com/example/control-assessor/internal/platform/logger"
)

// Progress is reported after each stage completes, in pipeline order.
type Progress struct {
	Stage string       `json:"stage"`
	Field models.Field `json:"field"`
	Title string       `json:"title"`
	Text  string       `json:"text"`
	Index int          `json:"index"`
	Total int          `json:"total"`
}

type Options struct {
	// ParallelAnalysis runs adjacent Parallel stages concurrently.
	ParallelAnalysis bool
	// StageTimeout bounds each stage; zero means no bound beyond ctx.
	StageTimeout time.Duration
}

type Orchestrator struct {
	Executor *agents.Executor
	Stages   []agents.Stage
	Options  Options
	Logger   *logger.Logger
}

func New(executor *agents.Executor, stages []agents.Stage, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{Executor: executor, Stages: stages, Options: opts, Logger: logger.OrNop(log)}
}

// Run executes every stage against input and returns the populated state.
// The first failing stage aborts the run; the state built so far is returned
// alongside the error for display only.
func (o *Orchestrator) Run(ctx context.Context, input, credential string, onProgress func(Progress)) (models.Assessment, error) {
	state := models.NewAssessment(input)
	if strings.TrimSpace(credential) == "" {
		return state, apperr.Configuration("credential", "missing API key")
	}
	if strings.TrimSpace(input) == "" {
		return state, apperr.Configuration("original_input", "empty control description")
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	log := logger.OrNop(o.Logger)

	start := time.Now()
	total := len(o.Stages)
	for i := 0; i < total; {
		j := i + 1
		if o.Options.ParallelAnalysis && o.Stages[i].Parallel {
			for j < total && o.Stages[j].Parallel {
				j++
			}
		}

		var err error
		if j-i == 1 {
			state, err = o.runOne(ctx, i, state, credential, onProgress)
		} else {
			state, err = o.runWave(ctx, i, j, state, credential, onProgress)
		}
		if err != nil {
			log.Error("assessment failed", "error", err, "completed", len(state.Populated())-1, "duration", time.Since(start))
			return state, err
		}
		i = j
	}
	log.Info("assessment complete", "stages", total, "duration", time.Since(start))
	return state, nil
}

func (o *Orchestrator) execute(ctx context.Context, st agents.Stage, state models.Assessment, credential string) (models.Assessment, error) {
	if o.Options.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Options.StageTimeout)
		defer cancel()
	}
	log := logger.OrNop(o.Logger)
	log.Debug("stage started", "stage", st.Name)
	start := time.Now()
	next, err := o.Executor.Execute(ctx, st, state, credential)
	if err != nil {
		log.Warn("stage failed", "stage", st.Name, "error", err, "duration", time.Since(start))
		return state, err
	}
	log.Info("stage finished", "stage", st.Name, "duration", time.Since(start))
	return next, nil
}

func (o *Orchestrator) progress(i int, state models.Assessment) Progress {
	st := o.Stages[i]
	return Progress{
		Stage: st.Name,
		Field: st.Output,
		Title: st.Output.Title(),
		Text:  state.Value(st.Output),
		Index: i,
		Total: len(o.Stages),
	}
}

func (o *Orchestrator) runOne(ctx context.Context, i int, state models.Assessment, credential string, onProgress func(Progress)) (models.Assessment, error) {
	next, err := o.execute(ctx, o.Stages[i], state, credential)
	if err != nil {
		return state, err
	}
	onProgress(o.progress(i, next))
	return next, nil
}

// runWave runs stages [from, to) concurrently from the same input state, then
// merges their outputs and reports progress in pipeline order.
func (o *Orchestrator) runWave(ctx context.Context, from, to int, state models.Assessment, credential string, onProgress func(Progress)) (models.Assessment, error) {
	results := make([]models.Assessment, to-from)
	failed := make([]bool, to-from)

	g, gctx := errgroup.WithContext(ctx)
	for k := range results {
		st := o.Stages[from+k]
		g.Go(func() error {
			next, err := o.execute(gctx, st, state, credential)
			if err != nil {
				failed[k] = true
				return err
			}
			results[k] = next
			return nil
		})
	}
	err := g.Wait()

	for k := range results {
		if failed[k] {
			break
		}
		st := o.Stages[from+k]
		state = state.With(st.Output, results[k].Value(st.Output))
		onProgress(o.progress(from+k, state))
	}
	return state, err
}
