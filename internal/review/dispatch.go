// Package review holds the multi-pass review pipeline: parallel dispatch,
// opinion reconciliation, prompt rendering, and the orchestrating service.
package review

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/oracle"
	"github.com/quorumreview/internal/retry"
	"github.com/quorumreview/pkg/models"
)

// DefaultTemperatures is the sampling spread used when none is configured.
var DefaultTemperatures = []float64{0.2, 0.5, 0.8}

// TaskMeta records which sampling parameters produced a task's opinion.
// It lives beside the dispatch result for diagnostics and is never attached
// to the Opinion itself.
type TaskMeta struct {
	TaskID       string  `json:"task_id"`
	ReviewNumber int     `json:"review_number"`
	Temperature  float64 `json:"temperature"`
	Failed       bool    `json:"failed"`
}

// Result is the settled outcome of one parallel dispatch. Opinions holds
// the successful tasks' opinions in task order.
type Result struct {
	Opinions  []*models.Opinion
	Failures  []error
	Attempted int
	Meta      []TaskMeta
}

// AllFailed reports whether no task produced an opinion.
func (r *Result) AllFailed() bool { return len(r.Opinions) == 0 }

// ErrorOpinion is the terminal opinion surfaced when every parallel review
// failed. It is a value, not an error: total dispatch failure resolves to a
// well-formed Opinion the caller can store and display.
func ErrorOpinion() *models.Opinion {
	return &models.Opinion{
		Decision: models.DecisionError,
		Summary:  "Failed to complete any reviews",
		Comments: []*models.Comment{},
		Error:    "All parallel reviews failed",
	}
}

// Options sets the fixed request parameters shared by all dispatched tasks.
type Options struct {
	Model     string
	MaxTokens int
}

// Dispatcher fans one review prompt out to several oracle calls, one per
// temperature, each through the retrying invoker, and joins every task
// before classifying the outcome.
type Dispatcher struct {
	client  oracle.Client
	invoker *retry.Invoker
	parser  *oracle.Parser
	opts    Options
	log     zerolog.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(client oracle.Client, invoker *retry.Invoker, parser *oracle.Parser, opts Options, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		client:  client,
		invoker: invoker,
		parser:  parser,
		opts:    opts,
		log:     log,
	}
}

// Dispatch launches one review task per temperature and waits for all of
// them to settle. Tasks share nothing; each either yields an opinion or a
// terminal error after its retry budget.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, temps []float64) *Result {
	if len(temps) == 0 {
		temps = DefaultTemperatures
	}

	type slot struct {
		opinion *models.Opinion
		err     error
	}
	slots := make([]slot, len(temps))
	meta := make([]TaskMeta, len(temps))

	var wg sync.WaitGroup
	for i, temp := range temps {
		taskID := uuid.NewString()
		meta[i] = TaskMeta{TaskID: taskID, ReviewNumber: i + 1, Temperature: temp}

		wg.Add(1)
		go func(i int, temp float64, taskID string) {
			defer wg.Done()

			var resp oracle.Response
			err := d.invoker.Do(ctx, func(ctx context.Context) error {
				var callErr error
				resp, callErr = d.client.Complete(ctx, oracle.Request{
					Model:       d.opts.Model,
					MaxTokens:   d.opts.MaxTokens,
					Temperature: temp,
					Prompt:      prompt,
				})
				return callErr
			})
			if err != nil {
				d.log.Warn().
					Str("task_id", taskID).
					Float64("temperature", temp).
					Err(err).
					Msg("review task failed")
				slots[i].err = err
				return
			}

			slots[i].opinion = d.parser.Parse(resp.Text)
		}(i, temp, taskID)
	}
	wg.Wait()

	res := &Result{Attempted: len(temps), Meta: meta}
	for i := range slots {
		if slots[i].err != nil {
			meta[i].Failed = true
			res.Failures = append(res.Failures, slots[i].err)
			continue
		}
		res.Opinions = append(res.Opinions, slots[i].opinion)
	}

	d.log.Info().
		Int("attempted", res.Attempted).
		Int("succeeded", len(res.Opinions)).
		Msg("parallel dispatch settled")

	return res
}
