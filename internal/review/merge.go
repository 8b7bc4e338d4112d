package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/oracle"
	"github.com/quorumreview/internal/retry"
	"github.com/quorumreview/pkg/models"
)

// ErrEmptyInput is returned when Merge is given zero opinions.
var ErrEmptyInput = errors.New("no opinions to merge")

// Merger reconciles several opinions into one. The reconciliation call runs
// at a fixed temperature so identical inputs merge identically, and the
// mechanical parts of the contract (exact-duplicate collapse, conservative
// decision floor) are enforced locally after parsing.
type Merger struct {
	client  oracle.Client
	invoker *retry.Invoker
	parser  *oracle.Parser
	opts    Options
	temp    float64
	log     zerolog.Logger
}

// NewMerger wires a Merger. temp is the fixed reconciliation temperature;
// zero keeps the merge fully deterministic.
func NewMerger(client oracle.Client, invoker *retry.Invoker, parser *oracle.Parser, opts Options, temp float64, log zerolog.Logger) *Merger {
	return &Merger{
		client:  client,
		invoker: invoker,
		parser:  parser,
		opts:    opts,
		temp:    temp,
		log:     log,
	}
}

// Merge combines opinions. Zero opinions is an error. One opinion is
// returned unchanged with no oracle call. Two or more go through a single
// reconciliation call; if that call fails after retries, the first input
// opinion is returned verbatim.
func (m *Merger) Merge(ctx context.Context, opinions []*models.Opinion) (*models.Opinion, error) {
	switch len(opinions) {
	case 0:
		return nil, ErrEmptyInput
	case 1:
		return opinions[0], nil
	}

	prompt := BuildReconciliationPrompt(opinions)

	var resp oracle.Response
	err := m.invoker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = m.client.Complete(ctx, oracle.Request{
			Model:       m.opts.Model,
			MaxTokens:   m.opts.MaxTokens,
			Temperature: m.temp,
			Prompt:      prompt,
		})
		return callErr
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("reconciliation failed, falling back to first opinion")
		return opinions[0], nil
	}

	merged := m.parser.Parse(resp.Text)
	enforceMergeRules(merged, opinions)

	m.log.Debug().
		Int("inputs", len(opinions)).
		Int("comments", len(merged.Comments)).
		Str("decision", string(merged.Decision)).
		Msg("opinions reconciled")

	return merged, nil
}

// enforceMergeRules applies the mechanical reconciliation guarantees after
// parsing: exact file:line duplicates collapse to one comment, the decision
// never lands below the most conservative input, and issue counts reflect
// the surviving comments.
func enforceMergeRules(merged *models.Opinion, inputs []*models.Opinion) {
	merged.Comments = dedupeComments(merged.Comments)

	decisions := make([]models.Decision, 0, len(inputs))
	for _, op := range inputs {
		decisions = append(decisions, op.Decision)
	}
	if floor := models.MostConservative(decisions...); merged.Decision.Rank() < floor.Rank() {
		merged.Decision = floor
	}

	if len(merged.Comments) > 0 {
		counts := models.CountIssues(merged.Comments)
		merged.Issues = &counts
	} else {
		merged.Issues = nil
	}
}

// dedupeComments collapses comments sharing a file and line, keeping the
// highest severity and, within a severity, the more specific message. Order
// of first appearance is preserved.
func dedupeComments(comments []*models.Comment) []*models.Comment {
	if len(comments) < 2 {
		return comments
	}

	index := make(map[string]int, len(comments))
	out := make([]*models.Comment, 0, len(comments))

	for _, c := range comments {
		key := fmt.Sprintf("%s:%d", c.File, c.Line)
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, c)
			continue
		}

		existing := out[at]
		if c.Severity.Rank() > existing.Severity.Rank() {
			out[at] = c
		} else if c.Severity.Rank() == existing.Severity.Rank() && len(c.Message) > len(existing.Message) {
			out[at] = c
		}
	}

	return out
}
