// Package changeset normalizes incoming code changes into a single
// ChangeDescriptor shape and derives size, shape, and churn facts from it.
// Everything downstream (strategy selection, dispatch, prompts) consumes the
// normalized descriptor, never the loose wire forms.
package changeset

import (
	"strings"

	"github.com/quorumreview/pkg/models"
)

// FileInput is the loose wire shape change providers send for one file.
// Some providers say "path", others "filename"; counts may be negative or
// missing. Normalize resolves all of that exactly once.
type FileInput struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Normalize builds a ChangeDescriptor from loose provider input. Records
// without any usable path are dropped, paths are trimmed, and negative line
// counts clamp to zero.
func Normalize(title, description string, files []FileInput) models.ChangeDescriptor {
	cd := models.ChangeDescriptor{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
	}

	for _, f := range files {
		path := strings.TrimSpace(f.Path)
		if path == "" {
			path = strings.TrimSpace(f.Filename)
		}
		if path == "" {
			continue
		}

		fc := models.FileChange{
			Path:      path,
			Additions: f.Additions,
			Deletions: f.Deletions,
		}
		if fc.Additions < 0 {
			fc.Additions = 0
		}
		if fc.Deletions < 0 {
			fc.Deletions = 0
		}
		cd.Files = append(cd.Files, fc)
	}

	return cd
}
