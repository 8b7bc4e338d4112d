package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quorumreview/internal/changeset"
	"github.com/quorumreview/pkg/models"
)

const reviewInstructions = `You are a careful senior code reviewer. Review the change described below.

Respond with a single JSON object and nothing else:
{
  "decision": "approved" | "needs_work" | "changes_requested",
  "summary": "<one short paragraph>",
  "comments": [
    {
      "file": "<path>",
      "line": <number>,
      "message": "<what is wrong>",
      "severity": "minor" | "major" | "critical",
      "why": "<optional reasoning>",
      "suggestion": "<optional concrete fix>"
    }
  ]
}

Severity guide: critical blocks the merge, major should be fixed before merge,
minor is advisory. Only comment on real problems.`

const reconciliationInstructions = `You are reconciling several independent code reviews of the same change into one final review.

Rules:
- Comments on the same file and line describe the same issue. Keep exactly one of them, with the most specific message and the highest severity among the duplicates.
- Comments that describe the same underlying issue at different locations must also be collapsed into one entry, with the most specific message and the highest severity.
- Every distinct issue raised by any review must survive in the output. Do not drop issues.
- No two output comments may describe the same underlying issue.
- The final decision must be the most conservative among the input decisions, where approved < needs_work < changes_requested.

Respond with a single JSON object in the same shape as the reviews below and nothing else.`

// PromptInput carries everything the prompt renderer needs for one pass.
type PromptInput struct {
	Change  models.ChangeDescriptor
	Pattern changeset.Pattern
	Diff    string
	Batch   int // 1-based when batching, zero otherwise
	Batches int
}

// BuildReviewPrompt renders the instruction block plus the change context
// for one review pass.
func BuildReviewPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(reviewInstructions)
	b.WriteString("\n\n")

	if in.Batch > 0 {
		fmt.Fprintf(&b, "This is batch %d of %d; review only the files listed here.\n\n", in.Batch, in.Batches)
	}

	fmt.Fprintf(&b, "Title: %s\n", in.Change.Title)
	if in.Change.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Change.Description)
	}
	if in.Pattern != "" && in.Pattern != changeset.PatternNormal {
		fmt.Fprintf(&b, "Change shape: %s\n", in.Pattern)
	}

	b.WriteString("\nChanged files:\n")
	for _, f := range in.Change.Files {
		fmt.Fprintf(&b, "- %s (+%d/-%d)\n", f.Path, f.Additions, f.Deletions)
	}

	if in.Diff != "" {
		b.WriteString("\nDiff:\n```diff\n")
		b.WriteString(in.Diff)
		if !strings.HasSuffix(in.Diff, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n")
	}

	return b.String()
}

// BuildReconciliationPrompt renders the merge instructions plus every input
// opinion as JSON.
func BuildReconciliationPrompt(opinions []*models.Opinion) string {
	var b strings.Builder
	b.WriteString(reconciliationInstructions)
	b.WriteString("\n")

	for i, op := range opinions {
		raw, err := json.MarshalIndent(op, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\nReview %d:\n%s\n", i+1, raw)
	}

	return b.String()
}
