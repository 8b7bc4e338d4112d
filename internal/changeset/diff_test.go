package changeset

import (
	"strings"
	"testing"
)

const sampleDiff = `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,2 +1,4 @@
 package main
-func run() {}
+func run() error {
+	return nil
+}
diff --git a/README.md b/README.md
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/README.md
@@ -0,0 +1,2 @@
+# quorumreview
+Adaptive multi-pass code review.
`

func TestFromUnifiedDiff(t *testing.T) {
	cd, err := FromUnifiedDiff(strings.NewReader(sampleDiff), "Refactor run", "")
	if err != nil {
		t.Fatalf("FromUnifiedDiff returned error: %v", err)
	}

	if cd.Title != "Refactor run" {
		t.Errorf("Title = %q, want %q", cd.Title, "Refactor run")
	}
	if len(cd.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(cd.Files))
	}

	main := cd.Files[0]
	if main.Path != "main.go" || main.Additions != 3 || main.Deletions != 1 {
		t.Errorf("main.go = %+v, want {main.go 3 1}", main)
	}

	readme := cd.Files[1]
	if readme.Path != "README.md" || readme.Additions != 2 || readme.Deletions != 0 {
		t.Errorf("README.md = %+v, want {README.md 2 0}", readme)
	}
}

func TestFromUnifiedDiffTruncatedHunk(t *testing.T) {
	truncated := `diff --git a/x.go b/x.go
--- a/x.go
+++ b/x.go
@@ -1,3 +1,3 @@
 only one line
`
	_, err := FromUnifiedDiff(strings.NewReader(truncated), "", "")
	if err == nil {
		t.Fatal("expected error for truncated hunk")
	}
}

func TestFromUnifiedDiffNonDiffInput(t *testing.T) {
	cd, err := FromUnifiedDiff(strings.NewReader("just some prose, no diff here\n"), "t", "d")
	if err != nil {
		t.Fatalf("FromUnifiedDiff returned error: %v", err)
	}
	if len(cd.Files) != 0 {
		t.Errorf("len(Files) = %d, want 0", len(cd.Files))
	}
}
