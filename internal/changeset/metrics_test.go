package changeset

import (
	"math"
	"testing"

	"github.com/quorumreview/pkg/models"
)

func TestExtractMetrics(t *testing.T) {
	cd := models.ChangeDescriptor{
		Title: "Add session cache",
		Files: []models.FileChange{
			{Path: "internal/cache/cache.go", Additions: 120, Deletions: 10},
			{Path: "internal/cache/cache_test.go", Additions: 80, Deletions: 0},
			{Path: "docs/cache.md", Additions: 15, Deletions: 2},
		},
	}

	m := ExtractMetrics(cd)

	if m.FileCount != 3 {
		t.Errorf("FileCount = %d, want 3", m.FileCount)
	}
	if m.TotalLOC != 227 {
		t.Errorf("TotalLOC = %d, want 227", m.TotalLOC)
	}
	if m.LargestFileDelta != 130 {
		t.Errorf("LargestFileDelta = %d, want 130", m.LargestFileDelta)
	}
	if math.Abs(m.TestFileRatio-1.0/3.0) > 1e-9 {
		t.Errorf("TestFileRatio = %f, want 1/3", m.TestFileRatio)
	}
}

func TestExtractMetricsEmptyChange(t *testing.T) {
	m := ExtractMetrics(models.ChangeDescriptor{})

	if m.FileCount != 0 || m.TotalLOC != 0 || m.LargestFileDelta != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}
	if m.TestFileRatio != 0 {
		t.Errorf("TestFileRatio = %f, want 0 for empty change", m.TestFileRatio)
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"internal/retry/backoff_test.go", true},
		{"src/components/Button.test.tsx", true},
		{"src/components/Button.spec.ts", true},
		{"tests/unit/test_parser.py", true},
		{"app/spec/models/user_spec.rb", true},
		{"test_helpers.py", true},
		{"__tests__/render.js", true},
		{"internal/retry/backoff.go", false},
		{"src/components/Button.tsx", false},
		{"contest/results.go", false},
		{"attestation.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsTestFile(tt.path); got != tt.expected {
				t.Errorf("IsTestFile(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestIsGeneratedPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"vendor/github.com/lib/pq/conn.go", true},
		{"web/node_modules/react/index.js", true},
		{"dist/app.js", true},
		{"build/output.bin", true},
		{"go.sum", true},
		{"frontend/package-lock.json", true},
		{"assets/app.min.js", true},
		{"api/service.pb.go", true},
		{"go.mod", false},
		{"internal/server/server.go", false},
		{"builder/builder.go", false},
		{"distance.go", false},
	}

	for _, tt := range tests {
		if got := IsGeneratedPath(tt.path); got != tt.want {
			t.Errorf("IsGeneratedPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cd := Normalize("  Title  ", "desc", []FileInput{
		{Path: "a.go", Additions: 5, Deletions: 2},
		{Filename: "b.go", Additions: 3, Deletions: 1},
		{Path: "  ", Filename: "", Additions: 9, Deletions: 9},
		{Path: "c.go", Additions: -4, Deletions: -1},
	})

	if cd.Title != "Title" {
		t.Errorf("Title = %q, want trimmed %q", cd.Title, "Title")
	}
	if len(cd.Files) != 3 {
		t.Fatalf("len(Files) = %d, want 3 (empty-path record dropped)", len(cd.Files))
	}
	if cd.Files[1].Path != "b.go" {
		t.Errorf("Files[1].Path = %q, want filename fallback b.go", cd.Files[1].Path)
	}
	if cd.Files[2].Additions != 0 || cd.Files[2].Deletions != 0 {
		t.Errorf("negative counts should clamp to zero, got %+v", cd.Files[2])
	}
}
