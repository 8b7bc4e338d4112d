package strategy

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/changeset"
	"github.com/quorumreview/pkg/models"
)

// Mode is the execution shape chosen for one review run.
type Mode string

const (
	// ModeSequential reviews the whole change in a single oracle pass.
	ModeSequential Mode = "SEQUENTIAL"
	// ModeParallel fans the change out to several oracle passes at
	// different sampling temperatures and merges the opinions.
	ModeParallel Mode = "PARALLEL"
	// ModeIncrementalBatch splits the change into file batches reviewed
	// one at a time, then merges the per-batch opinions.
	ModeIncrementalBatch Mode = "INCREMENTAL_BATCH"
	// ModeRejectTooLarge refuses the change outright.
	ModeRejectTooLarge Mode = "REJECT_TOO_LARGE"
)

// Pre-flight and input errors.
var (
	ErrInvalidInput  = errors.New("no change provided")
	ErrEmptyChange   = errors.New("change contains no files")
	ErrZeroLOC       = errors.New("change contains no added or deleted lines")
	ErrGeneratedOnly = errors.New("change touches only generated or vendored files")
)

// Thresholds are the tuning knobs of the decision tree. LOC bounds are
// exclusive, file bounds inclusive.
type Thresholds struct {
	SmallFiles          int     `json:"small_files" koanf:"small_files"`
	SmallLOC            int     `json:"small_loc" koanf:"small_loc"`
	MediumFiles         int     `json:"medium_files" koanf:"medium_files"`
	MediumLOC           int     `json:"medium_loc" koanf:"medium_loc"`
	LargeFiles          int     `json:"large_files" koanf:"large_files"`
	LargeLOC            int     `json:"large_loc" koanf:"large_loc"`
	ComplexityThreshold float64 `json:"complexity_threshold" koanf:"complexity_threshold"`
	DefaultBatchSize    int     `json:"default_batch_size" koanf:"default_batch_size"`
}

// DefaultThresholds returns the stock decision-tree configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SmallFiles:          10,
		SmallLOC:            500,
		MediumFiles:         30,
		MediumLOC:           2000,
		LargeFiles:          100,
		LargeLOC:            5000,
		ComplexityThreshold: 0.7,
		DefaultBatchSize:    10,
	}
}

// ExecutionDecision describes how a change will be reviewed. It is produced
// once per change and carries everything callers need without recomputation.
type ExecutionDecision struct {
	Mode             Mode              `json:"mode"`
	Reason           string            `json:"reason"`
	Metrics          changeset.Metrics `json:"metrics"`
	Complexity       float64           `json:"complexity"`
	Factors          []string          `json:"factors,omitempty"`
	BatchSize        int               `json:"batch_size,omitempty"`
	EstimatedBatches int               `json:"estimated_batches,omitempty"`
	MaxFiles         int               `json:"max_files,omitempty"`
	MaxLOC           int               `json:"max_loc,omitempty"`
}

// Selector applies the decision tree over change metrics and complexity.
type Selector struct {
	thresholds Thresholds
	scorer     *Scorer
	log        zerolog.Logger
}

// NewSelector builds a Selector. A nil scorer gets the built-in heuristics.
func NewSelector(t Thresholds, scorer *Scorer, log zerolog.Logger) *Selector {
	if scorer == nil {
		scorer = NewScorer()
	}
	return &Selector{thresholds: t, scorer: scorer, log: log}
}

// Select chooses the execution mode for a change. The tree is evaluated
// top to bottom and the first matching bucket wins.
func (s *Selector) Select(cd *models.ChangeDescriptor) (ExecutionDecision, error) {
	if cd == nil {
		return ExecutionDecision{}, ErrInvalidInput
	}

	m := changeset.ExtractMetrics(*cd)
	c := s.scorer.Score(*cd, m)

	d := ExecutionDecision{
		Metrics:    m,
		Complexity: c.Score,
		Factors:    c.Factors,
	}
	t := s.thresholds

	switch {
	case m.FileCount <= t.SmallFiles && m.TotalLOC < t.SmallLOC:
		d.Mode = ModeSequential
		d.Reason = fmt.Sprintf("small change: %d files, %d LOC", m.FileCount, m.TotalLOC)

	case m.FileCount <= t.MediumFiles && m.TotalLOC < t.MediumLOC:
		if c.Score > t.ComplexityThreshold {
			d.Mode = ModeParallel
			d.Reason = fmt.Sprintf("medium change with complexity %.2f above threshold %.2f", c.Score, t.ComplexityThreshold)
		} else {
			d.Mode = ModeSequential
			d.Reason = fmt.Sprintf("medium change with complexity %.2f at or below threshold %.2f", c.Score, t.ComplexityThreshold)
		}

	case m.FileCount <= t.LargeFiles && m.TotalLOC < t.LargeLOC:
		d.Mode = ModeIncrementalBatch
		d.BatchSize = s.batchSize(m)
		d.EstimatedBatches = (m.FileCount + d.BatchSize - 1) / d.BatchSize
		d.Reason = fmt.Sprintf("large change: %d files in %d batches of up to %d", m.FileCount, d.EstimatedBatches, d.BatchSize)

	default:
		d.Mode = ModeRejectTooLarge
		d.MaxFiles = t.LargeFiles
		d.MaxLOC = t.LargeLOC
		d.Reason = fmt.Sprintf("change exceeds review limits: %d files (max %d), %d LOC (max %d)", m.FileCount, t.LargeFiles, m.TotalLOC, t.LargeLOC)
	}

	s.log.Debug().
		Str("mode", string(d.Mode)).
		Int("files", m.FileCount).
		Int("loc", m.TotalLOC).
		Float64("complexity", c.Score).
		Strs("factors", c.Factors).
		Msg("selected execution mode")

	return d, nil
}

// batchSize adapts the batch size to the density of the change: fewer files
// per batch when files are large, more when they are small.
func (s *Selector) batchSize(m changeset.Metrics) int {
	size := s.thresholds.DefaultBatchSize
	if m.FileCount == 0 {
		return size
	}

	avg := float64(m.TotalLOC) / float64(m.FileCount)
	switch {
	case avg > 200:
		size /= 2
		if size < 5 {
			size = 5
		}
	case avg < 50:
		size = size * 3 / 2
		if size > 20 {
			size = 20
		}
	}
	return size
}

// EstimateTokens approximates the oracle token budget a review will need,
// for capacity planning only. Complexity inflates the estimate because
// riskier changes get longer prompts and longer answers.
func EstimateTokens(m changeset.Metrics, complexity float64) int {
	base := float64(m.FileCount)*100 + float64(m.TotalLOC)*12.5
	return int(base * (1 + complexity))
}

// Validate runs the pre-flight checks that gate a review: a change must
// exist, carry at least one changed line, and touch at least one file that
// is not generated or vendored.
func Validate(cd *models.ChangeDescriptor) error {
	if cd == nil {
		return ErrInvalidInput
	}
	if len(cd.Files) == 0 {
		return ErrEmptyChange
	}

	totalLOC := 0
	reviewable := false
	for _, f := range cd.Files {
		totalLOC += f.Additions + f.Deletions
		if !changeset.IsGeneratedPath(f.Path) {
			reviewable = true
		}
	}

	if totalLOC == 0 {
		return ErrZeroLOC
	}
	if !reviewable {
		return ErrGeneratedOnly
	}
	return nil
}
