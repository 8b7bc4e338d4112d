package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/changeset"
	"github.com/quorumreview/internal/redact"
	"github.com/quorumreview/internal/state"
	"github.com/quorumreview/internal/strategy"
	"github.com/quorumreview/pkg/models"
)

// ErrChangeTooLarge rejects changes above the review limits. The wrapped
// message carries the measured size and the limits that were exceeded.
var ErrChangeTooLarge = errors.New("change too large for automated review")

// Request is the boundary input for one review run. Files carries the loose
// per-file records when the caller already has them; Diff carries raw
// unified diff text. When both are present Files drives the descriptor and
// Diff only enriches the prompt.
type Request struct {
	PRID        string                `json:"pr_id"`
	Platform    string                `json:"platform"`
	Repository  string                `json:"repository"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Files       []changeset.FileInput `json:"files,omitempty"`
	Diff        string                `json:"diff,omitempty"`
}

// Report is the result of one review run: the strategy that drove it, the
// final opinion, and the persisted state snapshot.
type Report struct {
	Decision strategy.ExecutionDecision `json:"decision"`
	Opinion  *models.Opinion            `json:"opinion"`
	State    *state.ReviewState         `json:"state"`
}

// Service orchestrates one review end to end: normalize and validate the
// change, pick an execution mode, run the oracle passes for that mode,
// reconcile the opinions, and persist the review state at every phase
// transition so an interrupted run leaves an inspectable trail.
type Service struct {
	selector   *strategy.Selector
	dispatcher *Dispatcher
	merger     *Merger
	scrubber   *redact.Scrubber
	store      state.Store
	temps      []float64
	log        zerolog.Logger
}

// NewService wires a Service. temps is the sampling spread for parallel
// dispatch; single-call paths use its first entry. A nil scrubber disables
// redaction, empty temps fall back to DefaultTemperatures.
func NewService(selector *strategy.Selector, dispatcher *Dispatcher, merger *Merger, scrubber *redact.Scrubber, store state.Store, temps []float64, log zerolog.Logger) *Service {
	if len(temps) == 0 {
		temps = DefaultTemperatures
	}
	return &Service{
		selector:   selector,
		dispatcher: dispatcher,
		merger:     merger,
		scrubber:   scrubber,
		store:      store,
		temps:      temps,
		log:        log,
	}
}

// Run executes one review. Validation failures and oversized changes return
// typed errors; oracle failures degrade per dispatch classification and
// never surface as errors. Storage failures propagate: state is not assumed
// durable until Save returns nil.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	cd, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := strategy.Validate(&cd); err != nil {
		return nil, err
	}

	decision, err := s.selector.Select(&cd)
	if err != nil {
		return nil, err
	}

	st := state.NewState(req.PRID, req.Platform, req.Repository)
	s.recordContext(st, cd, decision)
	if err := s.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save initial state: %w", err)
	}

	if decision.Mode == strategy.ModeRejectTooLarge {
		rejection := fmt.Errorf("%w: %d files (max %d), %d changed lines (max %d)",
			ErrChangeTooLarge, decision.Metrics.FileCount, decision.MaxFiles, decision.Metrics.TotalLOC, decision.MaxLOC)
		st.AddError(state.PhaseInitializing, rejection)
		if err := s.store.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("failed to save rejected state: %w", err)
		}
		return nil, rejection
	}

	if err := s.advance(ctx, st, state.PhaseReview); err != nil {
		return nil, err
	}

	opinions := s.collectOpinions(ctx, st, cd, decision, req.Diff)
	recordFindings(st, opinions)
	if err := s.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save review findings: %w", err)
	}

	if err := s.advance(ctx, st, state.PhaseSynthesis); err != nil {
		return nil, err
	}

	final, err := s.synthesize(ctx, st, opinions)
	if err != nil {
		return nil, err
	}
	st.Synthesis = final
	if err := s.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save synthesis: %w", err)
	}

	if err := s.advance(ctx, st, state.PhaseOutput); err != nil {
		return nil, err
	}
	st.Output = final
	if err := s.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save output: %w", err)
	}

	s.log.Info().
		Str("review", st.Key.String()).
		Str("mode", string(decision.Mode)).
		Str("decision", string(final.Decision)).
		Int("comments", len(final.Comments)).
		Msg("review completed")

	return &Report{Decision: decision, Opinion: final, State: st}, nil
}

// normalize builds the ChangeDescriptor from whichever wire form the
// request carries.
func (s *Service) normalize(req Request) (models.ChangeDescriptor, error) {
	if len(req.Files) > 0 {
		return changeset.Normalize(req.Title, req.Description, req.Files), nil
	}
	if strings.TrimSpace(req.Diff) != "" {
		cd, err := changeset.FromUnifiedDiff(strings.NewReader(req.Diff), req.Title, req.Description)
		if err != nil {
			return models.ChangeDescriptor{}, err
		}
		return cd, nil
	}
	return changeset.Normalize(req.Title, req.Description, nil), nil
}

// collectOpinions runs the oracle passes the decision calls for and returns
// every opinion that survived. Failed tasks land in the state's error log.
func (s *Service) collectOpinions(ctx context.Context, st *state.ReviewState, cd models.ChangeDescriptor, decision strategy.ExecutionDecision, diff string) []*models.Opinion {
	switch decision.Mode {
	case strategy.ModeParallel:
		prompt := s.buildPrompt(cd, diff, 0, 0)
		res := s.dispatcher.Dispatch(ctx, prompt, s.temps)
		recordFailures(st, res)
		return res.Opinions

	case strategy.ModeIncrementalBatch:
		return s.collectBatched(ctx, st, cd, decision)

	default: // sequential
		prompt := s.buildPrompt(cd, diff, 0, 0)
		res := s.dispatcher.Dispatch(ctx, prompt, s.temps[:1])
		recordFailures(st, res)
		return res.Opinions
	}
}

// collectBatched reviews the change in file batches, one single-temperature
// pass per batch. Batches that fail are logged and skipped; the survivors
// are reconciled by the caller like any other set of opinions.
func (s *Service) collectBatched(ctx context.Context, st *state.ReviewState, cd models.ChangeDescriptor, decision strategy.ExecutionDecision) []*models.Opinion {
	size := decision.BatchSize
	if size <= 0 {
		size = len(cd.Files)
	}
	total := (len(cd.Files) + size - 1) / size

	var opinions []*models.Opinion
	for i := 0; i < total; i++ {
		lo := i * size
		hi := lo + size
		if hi > len(cd.Files) {
			hi = len(cd.Files)
		}

		batch := models.ChangeDescriptor{
			Title:       cd.Title,
			Description: cd.Description,
			Files:       cd.Files[lo:hi],
		}
		prompt := s.buildPrompt(batch, "", i+1, total)

		res := s.dispatcher.Dispatch(ctx, prompt, s.temps[:1])
		recordFailures(st, res)
		opinions = append(opinions, res.Opinions...)

		s.log.Debug().
			Int("batch", i+1).
			Int("batches", total).
			Int("files", hi-lo).
			Bool("succeeded", !res.AllFailed()).
			Msg("batch reviewed")
	}
	return opinions
}

// synthesize classifies the collected opinions into the final one: none
// survived yields the terminal error opinion, one is returned directly with
// no reconciliation call, several go through the merger.
func (s *Service) synthesize(ctx context.Context, st *state.ReviewState, opinions []*models.Opinion) (*models.Opinion, error) {
	switch len(opinions) {
	case 0:
		st.AddErrorMessage(state.PhaseSynthesis, "all review passes failed")
		return ErrorOpinion(), nil
	case 1:
		return opinions[0], nil
	}

	merged, err := s.merger.Merge(ctx, opinions)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// buildPrompt renders one review prompt, scrubbing detected secrets from
// every free-text field before it leaves the process.
func (s *Service) buildPrompt(cd models.ChangeDescriptor, diff string, batch, batches int) string {
	cd.Title = s.scrubber.Scrub(cd.Title)
	cd.Description = s.scrubber.Scrub(cd.Description)

	return BuildReviewPrompt(PromptInput{
		Change:  cd,
		Pattern: changeset.ChangePattern(cd),
		Diff:    s.scrubber.Scrub(diff),
		Batch:   batch,
		Batches: batches,
	})
}

// advance moves the state forward one phase and persists the checkpoint.
func (s *Service) advance(ctx context.Context, st *state.ReviewState, next state.Phase) error {
	if err := st.TransitionTo(next); err != nil {
		return err
	}
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("failed to save state at %s: %w", next, err)
	}
	return nil
}

// recordContext stashes the strategy outcome on the state so an interrupted
// or rejected review still explains itself.
func (s *Service) recordContext(st *state.ReviewState, cd models.ChangeDescriptor, d strategy.ExecutionDecision) {
	st.Context["mode"] = string(d.Mode)
	st.Context["reason"] = d.Reason
	st.Context["files"] = strconv.Itoa(d.Metrics.FileCount)
	st.Context["loc"] = strconv.Itoa(d.Metrics.TotalLOC)
	st.Context["complexity"] = strconv.FormatFloat(d.Complexity, 'f', 2, 64)
	st.Context["estimated_tokens"] = strconv.Itoa(strategy.EstimateTokens(d.Metrics, d.Complexity))
	if pattern := changeset.ChangePattern(cd); pattern != changeset.PatternNormal {
		st.Context["pattern"] = string(pattern)
	}
	if len(d.Factors) > 0 {
		st.Context["factors"] = strings.Join(d.Factors, ",")
	}
}

// recordFindings serializes each surviving opinion into the review findings
// category.
func recordFindings(st *state.ReviewState, opinions []*models.Opinion) {
	for _, op := range opinions {
		raw, err := json.Marshal(op)
		if err != nil {
			continue
		}
		st.Findings["review"] = append(st.Findings["review"], string(raw))
	}
}

// recordFailures copies dispatch failures into the state's error log.
func recordFailures(st *state.ReviewState, res *Result) {
	for _, err := range res.Failures {
		st.AddError(state.PhaseReview, err)
	}
}
