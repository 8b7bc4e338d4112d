// Package redact removes secrets from text before it leaves the process.
package redact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zricethezav/gitleaks/v8/detect"
)

const placeholder = "[REDACTED]"

// Scrubber detects and replaces secrets in outbound text.
type Scrubber struct {
	detector *detect.Detector
	log      zerolog.Logger
}

// New builds a Scrubber with the default gitleaks ruleset.
func New(log zerolog.Logger) (*Scrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load secret detection rules: %w", err)
	}
	return &Scrubber{detector: d, log: log}, nil
}

// Scrub replaces every detected secret with a placeholder. A nil Scrubber
// passes text through unchanged, so callers that could not build a detector
// still send their prompts.
func (s *Scrubber) Scrub(text string) string {
	if s == nil || s.detector == nil || text == "" {
		return text
	}

	findings := s.detector.DetectString(text)
	if len(findings) == 0 {
		return text
	}

	// Longest secrets first: a shorter secret can be a substring of a
	// longer one, and replacing it early would split the longer match.
	secrets := make([]string, 0, len(findings))
	seen := make(map[string]bool, len(findings))
	for _, f := range findings {
		if f.Secret == "" || seen[f.Secret] {
			continue
		}
		seen[f.Secret] = true
		secrets = append(secrets, f.Secret)
	}
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })

	for _, secret := range secrets {
		text = strings.ReplaceAll(text, secret, placeholder)
	}

	s.log.Debug().Int("secrets", len(secrets)).Msg("redacted secrets from outbound text")
	return text
}
