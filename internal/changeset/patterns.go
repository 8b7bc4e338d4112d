package changeset

import "github.com/quorumreview/pkg/models"

// Pattern classifies the churn shape of a change.
type Pattern string

const (
	// PatternGrowth is a change that is mostly additions.
	PatternGrowth Pattern = "growth"
	// PatternCleanup is a change that is mostly deletions.
	PatternCleanup Pattern = "cleanup"
	// PatternChurn is a heavy refactor: large, roughly balanced additions
	// and deletions indicating back-and-forth rewriting.
	PatternChurn Pattern = "churn"
	// PatternNormal is everything else, including empty changes.
	PatternNormal Pattern = "normal"
)

const (
	growthRatio    = 0.7
	cleanupRatio   = 0.7
	churnBalance   = 0.8
	churnMinEither = 600
)

// DetectPattern classifies a change from its addition/deletion counts.
// Growth and cleanup are ratio checks; churn additionally requires both
// sides to exceed churnMinEither lines so small balanced edits stay normal.
func DetectPattern(additions, deletions int) Pattern {
	total := additions + deletions
	if total == 0 {
		return PatternNormal
	}

	if float64(additions)/float64(total) >= growthRatio {
		return PatternGrowth
	}
	if float64(deletions)/float64(total) >= cleanupRatio {
		return PatternCleanup
	}

	if additions > churnMinEither && deletions > churnMinEither &&
		float64(deletions) >= float64(additions)*churnBalance &&
		float64(additions) >= float64(deletions)*churnBalance {
		return PatternChurn
	}

	return PatternNormal
}

// ChangePattern classifies a whole change descriptor from its aggregate
// addition/deletion counts.
func ChangePattern(cd models.ChangeDescriptor) Pattern {
	var additions, deletions int
	for _, f := range cd.Files {
		additions += f.Additions
		deletions += f.Deletions
	}
	return DetectPattern(additions, deletions)
}
