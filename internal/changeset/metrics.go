package changeset

import (
	"path"
	"strings"

	"github.com/quorumreview/pkg/models"
)

// Metrics holds the size and shape facts derived from one change.
type Metrics struct {
	FileCount        int     `json:"file_count"`
	TotalLOC         int     `json:"total_loc"`
	LargestFileDelta int     `json:"largest_file_delta"`
	TestFileRatio    float64 `json:"test_file_ratio"`
}

// ExtractMetrics derives Metrics from a change descriptor.
func ExtractMetrics(cd models.ChangeDescriptor) Metrics {
	m := Metrics{FileCount: len(cd.Files)}

	testFiles := 0
	for _, f := range cd.Files {
		delta := f.Delta()
		m.TotalLOC += delta
		if delta > m.LargestFileDelta {
			m.LargestFileDelta = delta
		}
		if IsTestFile(f.Path) {
			testFiles++
		}
	}

	if m.FileCount > 0 {
		m.TestFileRatio = float64(testFiles) / float64(m.FileCount)
	}

	return m
}

// IsTestFile reports whether a path looks like a test file by naming
// convention across common ecosystems.
func IsTestFile(p string) bool {
	lower := strings.ToLower(p)
	base := path.Base(lower)

	for _, dir := range []string{"test/", "tests/", "__tests__/", "spec/"} {
		if strings.HasPrefix(lower, dir) || strings.Contains(lower, "/"+dir) {
			return true
		}
	}

	return strings.Contains(base, "_test.") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.Contains(base, "_spec.") ||
		strings.HasPrefix(base, "test_")
}

// IsGeneratedPath reports whether a path points at generated or vendored
// content that carries no review signal: lockfiles, minified bundles, and
// vendor or build output directories.
func IsGeneratedPath(p string) bool {
	lower := strings.ToLower(p)
	base := path.Base(lower)

	for _, dir := range []string{"vendor/", "node_modules/", "dist/", "build/", "target/", "__pycache__/"} {
		if strings.HasPrefix(lower, dir) || strings.Contains(lower, "/"+dir) {
			return true
		}
	}

	switch base {
	case "go.sum", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		"poetry.lock", "cargo.lock", "gemfile.lock", "composer.lock":
		return true
	}

	return strings.HasSuffix(base, ".min.js") ||
		strings.HasSuffix(base, ".min.css") ||
		strings.HasSuffix(base, ".pb.go")
}
