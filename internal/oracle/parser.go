package oracle

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/quorumreview/pkg/models"
)

// Parser converts raw oracle text into structured Opinions. Parsing is
// layered: strict JSON first, then JSON extraction plus repair, finally a
// prose fallback. Parse always yields an Opinion.
type Parser struct {
	log zerolog.Logger
}

// NewParser returns a Parser that logs which layer recovered each response.
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log}
}

type opinionWire struct {
	Decision string        `json:"decision"`
	Summary  string        `json:"summary"`
	Comments []commentWire `json:"comments"`
}

type commentWire struct {
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Message    string   `json:"message"`
	Severity   string   `json:"severity"`
	Why        string   `json:"why"`
	Suggestion string   `json:"suggestion"`
	Resources  []string `json:"resources"`
}

// Parse turns one raw oracle response into an Opinion.
func (p *Parser) Parse(raw string) *models.Opinion {
	text := strings.TrimSpace(raw)

	var wire opinionWire
	if err := json.Unmarshal([]byte(text), &wire); err == nil {
		p.log.Debug().Msg("response parsed as strict JSON")
		return p.fromWire(wire)
	}

	if candidate := extractJSON(text); candidate != "" {
		if err := json.Unmarshal([]byte(candidate), &wire); err == nil {
			p.log.Debug().Msg("response parsed after JSON extraction")
			return p.fromWire(wire)
		}

		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			if err := json.Unmarshal([]byte(repaired), &wire); err == nil {
				p.log.Debug().
					Int("original_bytes", len(candidate)).
					Int("repaired_bytes", len(repaired)).
					Msg("response parsed after JSON repair")
				return p.fromWire(wire)
			}
		}
	}

	p.log.Debug().Int("bytes", len(text)).Msg("response recovered via prose fallback")
	return p.parseProse(text)
}

// fromWire normalizes a decoded wire opinion: decision and severity
// vocabulary, trimmed strings, dropped empty comments, recomputed counts.
func (p *Parser) fromWire(w opinionWire) *models.Opinion {
	op := &models.Opinion{
		Decision: normalizeDecision(w.Decision, w.Summary),
		Summary:  strings.TrimSpace(w.Summary),
	}

	for _, c := range w.Comments {
		msg := strings.TrimSpace(c.Message)
		if msg == "" {
			continue
		}
		op.Comments = append(op.Comments, &models.Comment{
			File:       strings.TrimSpace(c.File),
			Line:       c.Line,
			Message:    msg,
			Severity:   normalizeSeverity(c.Severity),
			Why:        strings.TrimSpace(c.Why),
			Suggestion: strings.TrimSpace(c.Suggestion),
			Resources:  c.Resources,
		})
	}

	if len(op.Comments) > 0 {
		counts := models.CountIssues(op.Comments)
		op.Issues = &counts
	}
	return op
}

// parseProse recovers an Opinion from non-JSON text: the decision from
// keyword presence, the summary from the leading prose, and comments from
// lines shaped like "file:line: message".
func (p *Parser) parseProse(text string) *models.Opinion {
	op := &models.Opinion{
		Decision: inferDecision(text),
		Summary:  leadingProse(text),
	}

	op.Comments = extractProseComments(text)
	if len(op.Comments) > 0 {
		counts := models.CountIssues(op.Comments)
		op.Issues = &counts
	}
	return op
}

func normalizeDecision(raw, context string) models.Decision {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approve", "lgtm":
		return models.DecisionApproved
	case "needs_work", "needs work", "needswork":
		return models.DecisionNeedsWork
	case "changes_requested", "changes requested", "request_changes", "rejected":
		return models.DecisionChangesRequested
	case "error":
		return models.DecisionError
	}
	return inferDecision(context)
}

// inferDecision scans text for decision keywords, most conservative first,
// and defaults to approved when nothing matches.
func inferDecision(text string) models.Decision {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "changes requested"),
		strings.Contains(lower, "critical issue"),
		strings.Contains(lower, "fix"):
		return models.DecisionChangesRequested
	case strings.Contains(lower, "significant changes"),
		strings.Contains(lower, "needs"):
		return models.DecisionNeedsWork
	}
	return models.DecisionApproved
}

func normalizeSeverity(raw string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "blocker", "high":
		return models.SeverityCritical
	case "major", "medium":
		return models.SeverityMajor
	default:
		return models.SeverityMinor
	}
}

const maxSummaryLen = 300

// leadingProse takes the first paragraph of the text as the summary.
func leadingProse(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	para := text
	if idx := strings.Index(text, "\n\n"); idx > 0 {
		para = text[:idx]
	}
	para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))

	if len(para) > maxSummaryLen {
		para = para[:maxSummaryLen] + "..."
	}
	return para
}

var proseCommentRe = regexp.MustCompile(`(?m)^\s*[-*]?\s*([\w./\-]+\.\w+)[:/](\d+)\s*[:\-]\s+(.+)$`)

func extractProseComments(text string) []*models.Comment {
	var comments []*models.Comment
	for _, m := range proseCommentRe.FindAllStringSubmatch(text, -1) {
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		comments = append(comments, &models.Comment{
			File:     m[1],
			Line:     line,
			Message:  strings.TrimSpace(m[3]),
			Severity: models.SeverityMinor,
		})
	}
	return comments
}

// extractJSON pulls the JSON payload out of mixed prose, handling fenced
// code blocks and balanced-brace scanning. An unbalanced tail is returned
// as-is so the repair layer can complete it.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	if strings.Contains(raw, "```") {
		var block []string
		inFence := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if inFence && len(block) > 0 {
					break
				}
				inFence = !inFence
				continue
			}
			if inFence {
				block = append(block, line)
			}
		}
		if joined := strings.TrimSpace(strings.Join(block, "\n")); joined != "" {
			return joined
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}

	open := raw[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return raw[start:]
}
