package changeset

import (
	"fmt"
	"io"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/quorumreview/pkg/models"
)

// FromUnifiedDiff parses a unified git diff into a normalized
// ChangeDescriptor. Binary files are listed with zero line counts; renamed
// and deleted files keep whichever name still identifies them.
func FromUnifiedDiff(r io.Reader, title, description string) (models.ChangeDescriptor, error) {
	files, _, err := gitdiff.Parse(r)
	if err != nil {
		return models.ChangeDescriptor{}, fmt.Errorf("failed to parse diff: %w", err)
	}

	inputs := make([]FileInput, 0, len(files))
	for _, f := range files {
		name := f.NewName
		if name == "" {
			name = f.OldName
		}

		in := FileInput{Path: name}
		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					in.Additions++
				case gitdiff.OpDelete:
					in.Deletions++
				}
			}
		}
		inputs = append(inputs, in)
	}

	return Normalize(title, description, inputs), nil
}
