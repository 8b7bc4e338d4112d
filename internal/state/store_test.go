package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quorumreview/pkg/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := NewState("42", "github", "acme/widgets")
	s.Context["head"] = "abc123"
	s.Findings["review"] = []string{"opinion-1"}
	if err := s.TransitionTo(PhaseReview); err != nil {
		t.Fatalf("Expected transition to review to succeed, got %v", err)
	}

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}

	got, err := store.Load(ctx, s.Key)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if got.Phase != PhaseReview {
		t.Errorf("Expected loaded phase %s, got %s", PhaseReview, got.Phase)
	}
	if got.Context["head"] != "abc123" {
		t.Errorf("Expected loaded context to round-trip, got %q", got.Context["head"])
	}
	if len(got.Checkpoints) != 1 {
		t.Errorf("Expected 1 checkpoint, got %d", len(got.Checkpoints))
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := NewState("42", "github", "acme/widgets")
	s.Context["head"] = "abc123"
	s.Output = &models.Opinion{Decision: models.DecisionApproved, Summary: "fine"}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}

	// Mutations after the save must not reach the stored snapshot.
	s.Context["head"] = "def456"
	s.Output.Summary = "changed"

	got, err := store.Load(ctx, s.Key)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if got.Context["head"] != "abc123" {
		t.Errorf("Expected snapshot to keep abc123, got %q", got.Context["head"])
	}
	if got.Output.Summary != "fine" {
		t.Errorf("Expected snapshot summary to stay fine, got %q", got.Output.Summary)
	}

	// Mutations of a loaded copy must not reach the store either.
	got.Context["head"] = "zzz"
	again, err := store.Load(ctx, s.Key)
	if err != nil {
		t.Fatalf("Expected second load to succeed, got %v", err)
	}
	if again.Context["head"] != "abc123" {
		t.Errorf("Expected store content to stay abc123, got %q", again.Context["head"])
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load(context.Background(), Key{PRID: "1", Platform: "github", Repository: "acme/widgets"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing key, got %v", err)
	}
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := NewState("42", "github", "acme/widgets")
	first.Context["attempt"] = "one"
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Expected first save to succeed, got %v", err)
	}

	second := NewState("42", "github", "acme/widgets")
	second.Context["attempt"] = "two"
	if err := second.TransitionTo(PhaseReview); err != nil {
		t.Fatalf("Expected transition to review to succeed, got %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Expected second save to succeed, got %v", err)
	}

	got, err := store.Load(ctx, second.Key)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if got.Context["attempt"] != "two" {
		t.Errorf("Expected the later save to win, got attempt %q", got.Context["attempt"])
	}
	if got.Phase != PhaseReview {
		t.Errorf("Expected the later save's phase %s, got %s", PhaseReview, got.Phase)
	}
}

func TestMemoryStoreCleanupOldStates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := NewState(fmt.Sprintf("old-%d", i), "github", "acme/widgets")
		s.CreatedAt = time.Now().UTC().AddDate(0, 0, -40)
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Expected save to succeed, got %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		s := NewState(fmt.Sprintf("recent-%d", i), "github", "acme/widgets")
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Expected save to succeed, got %v", err)
		}
	}

	removed, err := store.CleanupOldStates(ctx, 30)
	if err != nil {
		t.Fatalf("Expected cleanup to succeed, got %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected cleanup to remove 3 states, got %d", removed)
	}

	for i := 0; i < 2; i++ {
		key := Key{PRID: fmt.Sprintf("recent-%d", i), Platform: "github", Repository: "acme/widgets"}
		if _, err := store.Load(ctx, key); err != nil {
			t.Errorf("Expected recent state %s to survive cleanup, got %v", key, err)
		}
	}
	for i := 0; i < 3; i++ {
		key := Key{PRID: fmt.Sprintf("old-%d", i), Platform: "github", Repository: "acme/widgets"}
		if _, err := store.Load(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected old state %s to be gone, got %v", key, err)
		}
	}
}

func TestMemoryStoreConcurrentSaves(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := NewState(fmt.Sprintf("%d", n), "github", "acme/widgets")
			s.Context["slot"] = fmt.Sprintf("%d", n)
			if err := store.Save(ctx, s); err != nil {
				t.Errorf("Expected save %d to succeed, got %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		key := Key{PRID: fmt.Sprintf("%d", i), Platform: "github", Repository: "acme/widgets"}
		got, err := store.Load(ctx, key)
		if err != nil {
			t.Fatalf("Expected load of %s to succeed, got %v", key, err)
		}
		if got.Context["slot"] != fmt.Sprintf("%d", i) {
			t.Errorf("Expected slot %d, got %q", i, got.Context["slot"])
		}
	}
}
