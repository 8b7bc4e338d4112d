package changeset

import (
	"testing"

	"github.com/quorumreview/pkg/models"
)

func TestDetectPattern(t *testing.T) {
	tests := []struct {
		name      string
		additions int
		deletions int
		expected  Pattern
	}{
		{"heavy refactor", 1000, 900, PatternChurn},
		{"refactor at balance threshold", 1000, 800, PatternChurn},
		{"mostly additions", 900, 100, PatternGrowth},
		{"growth at threshold", 700, 300, PatternGrowth},
		{"mostly deletions", 100, 900, PatternCleanup},
		{"cleanup at threshold", 300, 700, PatternCleanup},
		{"balanced but small", 500, 400, PatternNormal},
		{"slight addition bias", 600, 500, PatternNormal},
		{"all additions", 1000, 0, PatternGrowth},
		{"all deletions", 0, 1000, PatternCleanup},
		{"no changes", 0, 0, PatternNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectPattern(tt.additions, tt.deletions); got != tt.expected {
				t.Errorf("DetectPattern(%d, %d) = %q, want %q",
					tt.additions, tt.deletions, got, tt.expected)
			}
		})
	}
}

func TestChangePattern(t *testing.T) {
	cd := models.ChangeDescriptor{
		Files: []models.FileChange{
			{Path: "a.go", Additions: 500, Deletions: 20},
			{Path: "b.go", Additions: 400, Deletions: 80},
		},
	}

	if got := ChangePattern(cd); got != PatternGrowth {
		t.Errorf("ChangePattern = %q, want %q", got, PatternGrowth)
	}
}
