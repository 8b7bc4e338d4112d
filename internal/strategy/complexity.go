// Package strategy decides how a change should be reviewed: it scores the
// change's risk, picks an execution mode from size thresholds, and performs
// the pre-flight checks that gate a review run.
package strategy

import (
	"path"
	"strings"

	"github.com/quorumreview/internal/changeset"
	"github.com/quorumreview/pkg/models"
)

// Heuristic is one independent complexity signal. When Match fires for a
// change, Weight is added to the score and Name is recorded as a factor.
type Heuristic struct {
	Name   string
	Weight float64
	Match  func(cd models.ChangeDescriptor, m changeset.Metrics) bool
}

// Complexity is a bounded risk score together with the names of the
// heuristics that produced it.
type Complexity struct {
	Score   float64  `json:"score"`
	Factors []string `json:"factors,omitempty"`
}

// Scorer computes a complexity score in [0,1] as the capped sum of
// weighted heuristics. New signals are added as Heuristic values rather
// than by editing the scoring loop.
type Scorer struct {
	heuristics []Heuristic
}

// NewScorer returns a Scorer with the built-in heuristics plus any extras.
func NewScorer(extra ...Heuristic) *Scorer {
	return &Scorer{heuristics: append(defaultHeuristics(), extra...)}
}

// Score evaluates every heuristic against the change and returns the capped
// sum of the weights that fired.
func (s *Scorer) Score(cd models.ChangeDescriptor, m changeset.Metrics) Complexity {
	var c Complexity
	for _, h := range s.heuristics {
		if h.Match == nil || !h.Match(cd, m) {
			continue
		}
		c.Score += h.Weight
		c.Factors = append(c.Factors, h.Name)
	}
	if c.Score > 1.0 {
		c.Score = 1.0
	}
	return c
}

const (
	lowTestRatio      = 0.3
	largeFileDelta    = 500
	weightSecurity    = 0.3
	weightArchitect   = 0.3
	weightBreaking    = 0.4
	weightLowTests    = 0.2
	weightLargeDelta  = 0.1
	weightDepManifest = 0.2
)

func defaultHeuristics() []Heuristic {
	return []Heuristic{
		{Name: "security_paths", Weight: weightSecurity, Match: matchSecurityPaths},
		{Name: "architectural_paths", Weight: weightArchitect, Match: matchArchitecturalPaths},
		{Name: "breaking_language", Weight: weightBreaking, Match: matchBreakingLanguage},
		{Name: "low_test_ratio", Weight: weightLowTests, Match: matchLowTestRatio},
		{Name: "large_file_delta", Weight: weightLargeDelta, Match: matchLargeFileDelta},
		{Name: "dependency_manifests", Weight: weightDepManifest, Match: matchDependencyManifests},
	}
}

var securityPathHints = []string{
	"auth", "security", "crypto", "password", "secret", "token",
	"login", "session", "permission", "oauth", "certificate",
}

func matchSecurityPaths(cd models.ChangeDescriptor, _ changeset.Metrics) bool {
	for _, f := range cd.Files {
		lower := strings.ToLower(f.Path)
		for _, hint := range securityPathHints {
			if strings.Contains(lower, hint) {
				return true
			}
		}
	}
	return false
}

var architecturalDirs = []string{".github/", "deploy/", "deployments/", "k8s/", "helm/", "terraform/", "infra/"}

func matchArchitecturalPaths(cd models.ChangeDescriptor, _ changeset.Metrics) bool {
	for _, f := range cd.Files {
		lower := strings.ToLower(f.Path)
		base := path.Base(lower)

		if strings.HasPrefix(base, "dockerfile") || strings.HasPrefix(base, "docker-compose") || base == "makefile" {
			return true
		}
		switch path.Ext(base) {
		case ".yaml", ".yml", ".toml", ".ini", ".tf":
			return true
		}
		for _, dir := range architecturalDirs {
			if strings.HasPrefix(lower, dir) || strings.Contains(lower, "/"+dir) {
				return true
			}
		}
	}
	return false
}

var breakingLanguageHints = []string{
	"breaking", "incompatible", "migration", "migrate",
	"deprecat", "major version", "backward",
}

func matchBreakingLanguage(cd models.ChangeDescriptor, _ changeset.Metrics) bool {
	text := strings.ToLower(cd.Title + " " + cd.Description)
	for _, hint := range breakingLanguageHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

func matchLowTestRatio(_ models.ChangeDescriptor, m changeset.Metrics) bool {
	return m.TestFileRatio < lowTestRatio
}

func matchLargeFileDelta(_ models.ChangeDescriptor, m changeset.Metrics) bool {
	return m.LargestFileDelta > largeFileDelta
}

var dependencyManifests = map[string]bool{
	"go.mod":           true,
	"go.sum":           true,
	"package.json":     true,
	"requirements.txt": true,
	"pyproject.toml":   true,
	"cargo.toml":       true,
	"gemfile":          true,
	"pom.xml":          true,
	"build.gradle":     true,
	"composer.json":    true,
	"mix.exs":          true,
}

func matchDependencyManifests(cd models.ChangeDescriptor, _ changeset.Metrics) bool {
	for _, f := range cd.Files {
		if dependencyManifests[strings.ToLower(path.Base(f.Path))] {
			return true
		}
	}
	return false
}
