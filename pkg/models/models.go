package models

// FileChange is one changed file inside a ChangeDescriptor.
type FileChange struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Delta returns the total number of changed lines in the file.
func (f FileChange) Delta() int {
	return f.Additions + f.Deletions
}

// ChangeDescriptor is the normalized representation of one code change
// (merge/pull request or local diff). It is built once at the boundary and
// treated as immutable by strategy selection and dispatch.
type ChangeDescriptor struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Files       []FileChange `json:"files"`
}

// Decision is the verdict attached to an Opinion.
type Decision string

const (
	DecisionApproved         Decision = "approved"
	DecisionNeedsWork        Decision = "needs_work"
	DecisionChangesRequested Decision = "changes_requested"
	DecisionError            Decision = "error"
)

// Rank orders decisions by conservatism: approved < needs_work <
// changes_requested. Unranked decisions (error, unknown) return 0 and never
// win a conservatism comparison.
func (d Decision) Rank() int {
	switch d {
	case DecisionApproved:
		return 1
	case DecisionNeedsWork:
		return 2
	case DecisionChangesRequested:
		return 3
	default:
		return 0
	}
}

// MostConservative returns the highest-ranked decision among the inputs.
// An empty input yields DecisionApproved.
func MostConservative(decisions ...Decision) Decision {
	result := DecisionApproved
	for _, d := range decisions {
		if d.Rank() > result.Rank() {
			result = d
		}
	}
	return result
}

// Severity is the weight of a single review comment.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: minor < major < critical. Unknown severities rank
// below minor.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// Comment is a single finding in a review opinion.
type Comment struct {
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Why        string   `json:"why,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Resources  []string `json:"resources,omitempty"`
}

// IssueCounts groups comment counts by severity.
type IssueCounts struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

// CountIssues tallies comments by severity.
func CountIssues(comments []*Comment) IssueCounts {
	var counts IssueCounts
	for _, c := range comments {
		switch c.Severity {
		case SeverityCritical:
			counts.Critical++
		case SeverityMajor:
			counts.Major++
		default:
			counts.Minor++
		}
	}
	return counts
}

// Opinion is one structured review result, produced by a single oracle call
// or by merging several. Dispatch bookkeeping (review number, temperature)
// never lives here; the dispatcher keeps it in a side-table keyed by task id.
type Opinion struct {
	Decision Decision     `json:"decision"`
	Summary  string       `json:"summary"`
	Comments []*Comment   `json:"comments"`
	Issues   *IssueCounts `json:"issues,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Clone returns a deep copy of the opinion.
func (o *Opinion) Clone() *Opinion {
	if o == nil {
		return nil
	}
	clone := &Opinion{
		Decision: o.Decision,
		Summary:  o.Summary,
		Error:    o.Error,
	}
	if o.Comments != nil {
		clone.Comments = make([]*Comment, len(o.Comments))
		for i, c := range o.Comments {
			cc := *c
			if c.Resources != nil {
				cc.Resources = append([]string(nil), c.Resources...)
			}
			clone.Comments[i] = &cc
		}
	}
	if o.Issues != nil {
		counts := *o.Issues
		clone.Issues = &counts
	}
	return clone
}
