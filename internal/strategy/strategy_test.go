package strategy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/changeset"
	"github.com/quorumreview/pkg/models"
)

// plainChange builds a change of n files with locPerFile changed lines each,
// using paths that trip no complexity heuristic except the test ratio.
func plainChange(n, locPerFile int) *models.ChangeDescriptor {
	cd := &models.ChangeDescriptor{Title: "update handlers"}
	for i := 0; i < n; i++ {
		cd.Files = append(cd.Files, models.FileChange{
			Path:      fmt.Sprintf("internal/handlers/handler_%d.go", i),
			Additions: locPerFile - locPerFile/2,
			Deletions: locPerFile / 2,
		})
	}
	return cd
}

func newTestSelector() *Selector {
	return NewSelector(DefaultThresholds(), nil, zerolog.Nop())
}

func TestSelectNilChange(t *testing.T) {
	_, err := newTestSelector().Select(nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSelectDecisionTree(t *testing.T) {
	tests := []struct {
		name     string
		cd       *models.ChangeDescriptor
		wantMode Mode
	}{
		{"empty change is small", &models.ChangeDescriptor{}, ModeSequential},
		{"small change", plainChange(5, 50), ModeSequential},
		{"small boundary files and loc", plainChange(10, 49), ModeSequential},
		{"medium low complexity", plainChange(10, 50), ModeSequential},
		{"medium twenty files", plainChange(20, 50), ModeSequential},
		{"large by file count", plainChange(31, 10), ModeIncrementalBatch},
		{"large by loc", plainChange(15, 266), ModeIncrementalBatch},
		{"ninety files", plainChange(90, 50), ModeIncrementalBatch},
		{"too many lines", plainChange(20, 250), ModeRejectTooLarge},
		{"too many files", plainChange(101, 10), ModeRejectTooLarge},
	}

	s := newTestSelector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := s.Select(tt.cd)
			if err != nil {
				t.Fatalf("Select returned error: %v", err)
			}
			if d.Mode != tt.wantMode {
				t.Errorf("Mode = %s, want %s (reason: %s)", d.Mode, tt.wantMode, d.Reason)
			}
			if d.Reason == "" {
				t.Error("Reason is empty")
			}
		})
	}
}

// SEQUENTIAL is only ever chosen inside the medium bucket.
func TestSequentialBound(t *testing.T) {
	s := newTestSelector()
	for files := 1; files <= 120; files += 7 {
		for loc := 10; loc <= 6000; loc += 490 {
			per := loc / files
			if per == 0 {
				per = 1
			}
			d, err := s.Select(plainChange(files, per))
			if err != nil {
				t.Fatal(err)
			}
			if d.Mode == ModeSequential {
				if d.Metrics.FileCount > 30 || d.Metrics.TotalLOC >= 2000 {
					t.Errorf("SEQUENTIAL for %d files, %d LOC", d.Metrics.FileCount, d.Metrics.TotalLOC)
				}
			}
		}
	}
}

func TestSelectParallelOnComplexMedium(t *testing.T) {
	cd := plainChange(20, 50)
	cd.Title = "Breaking change: migrate session storage"
	cd.Files[0].Path = "internal/auth/session.go"

	d, err := newTestSelector().Select(cd)
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeParallel {
		t.Fatalf("Mode = %s, want PARALLEL (complexity %.2f, factors %v)", d.Mode, d.Complexity, d.Factors)
	}
	if d.Complexity <= 0.7 {
		t.Errorf("Complexity = %v, want > 0.7", d.Complexity)
	}
}

func TestSelectBatchSizing(t *testing.T) {
	tests := []struct {
		name        string
		thresholds  Thresholds
		cd          *models.ChangeDescriptor
		wantBatch   int
		wantBatches int
	}{
		{"dense files halve the batch", DefaultThresholds(), plainChange(15, 266), 5, 3},
		{"sparse files grow the batch", DefaultThresholds(), plainChange(31, 10), 15, 3},
		{"average density keeps the default", DefaultThresholds(), plainChange(50, 90), 10, 5},
		{"halving floors at five", func() Thresholds { t := DefaultThresholds(); t.DefaultBatchSize = 8; return t }(), plainChange(16, 250), 5, 4},
		{"growth caps at twenty", func() Thresholds { t := DefaultThresholds(); t.DefaultBatchSize = 15; return t }(), plainChange(40, 10), 20, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewSelector(tt.thresholds, nil, zerolog.Nop()).Select(tt.cd)
			if err != nil {
				t.Fatal(err)
			}
			if d.Mode != ModeIncrementalBatch {
				t.Fatalf("Mode = %s, want INCREMENTAL_BATCH", d.Mode)
			}
			if d.BatchSize != tt.wantBatch {
				t.Errorf("BatchSize = %d, want %d", d.BatchSize, tt.wantBatch)
			}
			if d.BatchSize < 5 || d.BatchSize > 20 {
				t.Errorf("BatchSize = %d outside [5,20]", d.BatchSize)
			}
			if d.EstimatedBatches != tt.wantBatches {
				t.Errorf("EstimatedBatches = %d, want %d", d.EstimatedBatches, tt.wantBatches)
			}
		})
	}
}

func TestSelectRejectCarriesLimits(t *testing.T) {
	d, err := newTestSelector().Select(plainChange(101, 10))
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != ModeRejectTooLarge {
		t.Fatalf("Mode = %s, want REJECT_TOO_LARGE", d.Mode)
	}
	if d.MaxFiles != 100 || d.MaxLOC != 5000 {
		t.Errorf("limits = %d files, %d LOC, want 100 and 5000", d.MaxFiles, d.MaxLOC)
	}
}

func TestEstimateTokens(t *testing.T) {
	m := changeset.Metrics{FileCount: 10, TotalLOC: 100}

	if got := EstimateTokens(m, 0); got != 2250 {
		t.Errorf("EstimateTokens(complexity 0) = %d, want 2250", got)
	}
	if got := EstimateTokens(m, 1.0); got != 4500 {
		t.Errorf("EstimateTokens(complexity 1) = %d, want 4500", got)
	}
	if EstimateTokens(m, 0.5) <= EstimateTokens(m, 0.2) {
		t.Error("estimate should grow with complexity")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cd      *models.ChangeDescriptor
		wantErr error
	}{
		{"nil change", nil, ErrInvalidInput},
		{"no files", &models.ChangeDescriptor{}, ErrEmptyChange},
		{
			"zero loc",
			&models.ChangeDescriptor{Files: []models.FileChange{{Path: "a.go"}}},
			ErrZeroLOC,
		},
		{
			"generated only",
			&models.ChangeDescriptor{Files: []models.FileChange{
				{Path: "go.sum", Additions: 40},
				{Path: "vendor/github.com/lib/pq/conn.go", Additions: 900},
				{Path: "web/dist/app.min.js", Additions: 1},
			}},
			ErrGeneratedOnly,
		},
		{
			"mixed generated and real",
			&models.ChangeDescriptor{Files: []models.FileChange{
				{Path: "go.sum", Additions: 40},
				{Path: "internal/server/server.go", Additions: 12},
			}},
			nil,
		},
		{
			"plain change",
			&models.ChangeDescriptor{Files: []models.FileChange{{Path: "main.go", Additions: 3, Deletions: 1}}},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
