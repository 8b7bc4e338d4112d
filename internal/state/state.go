// Package state models one review's lifecycle and the durable storage of
// its snapshots.
package state

import (
	"fmt"
	"time"

	"github.com/quorumreview/pkg/models"
)

// Phase is one stage of a review's lifecycle. Phases only move forward,
// one step at a time: initializing, review, synthesis, output.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseReview       Phase = "review"
	PhaseSynthesis    Phase = "synthesis"
	PhaseOutput       Phase = "output"
)

// next returns the only legal successor of a phase; output is terminal.
func (p Phase) next() Phase {
	switch p {
	case PhaseInitializing:
		return PhaseReview
	case PhaseReview:
		return PhaseSynthesis
	case PhaseSynthesis:
		return PhaseOutput
	}
	return ""
}

// Key uniquely identifies one review.
type Key struct {
	PRID       string `json:"pr_id"`
	Platform   string `json:"platform"`
	Repository string `json:"repository"`
}

func (k Key) String() string {
	return k.Platform + "/" + k.Repository + "/" + k.PRID
}

// Checkpoint marks one completed phase transition.
type Checkpoint struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEntry records a failure observed during a phase.
type ErrorEntry struct {
	Phase     Phase     `json:"phase"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewState is the in-memory lifecycle of one review: its phase, the
// context gathered for it, raw findings by category, the synthesized and
// final opinions, plus checkpoints and an error log.
type ReviewState struct {
	Key         Key                 `json:"key"`
	Phase       Phase               `json:"phase"`
	Context     map[string]string   `json:"context,omitempty"`
	Findings    map[string][]string `json:"findings,omitempty"`
	Synthesis   *models.Opinion     `json:"synthesis,omitempty"`
	Output      *models.Opinion     `json:"output,omitempty"`
	Checkpoints []Checkpoint        `json:"checkpoints"`
	Errors      []ErrorEntry        `json:"errors,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewState creates a fresh state in the initializing phase with zero
// checkpoints and empty findings.
func NewState(prID, platform, repository string) *ReviewState {
	now := time.Now().UTC()
	return &ReviewState{
		Key:       Key{PRID: prID, Platform: platform, Repository: repository},
		Phase:     PhaseInitializing,
		Context:   make(map[string]string),
		Findings:  make(map[string][]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IllegalTransitionError rejects a phase move that does not target the
// immediate successor of the current phase.
type IllegalTransitionError struct {
	From Phase
	To   Phase
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// TransitionTo advances the state to next and appends a checkpoint. A move
// that skips a phase, goes backward, or leaves a terminal phase is rejected
// and the state is left untouched.
func (s *ReviewState) TransitionTo(next Phase) error {
	if next == "" || s.Phase.next() != next {
		return &IllegalTransitionError{From: s.Phase, To: next}
	}

	now := time.Now().UTC()
	s.Phase = next
	s.Checkpoints = append(s.Checkpoints, Checkpoint{Phase: next, Timestamp: now})
	s.UpdatedAt = now
	return nil
}

// AddError appends err to the error log. It never fails and never changes
// the phase.
func (s *ReviewState) AddError(phase Phase, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.AddErrorMessage(phase, msg)
}

// AddErrorMessage appends a plain diagnostic string to the error log.
func (s *ReviewState) AddErrorMessage(phase Phase, msg string) {
	now := time.Now().UTC()
	s.Errors = append(s.Errors, ErrorEntry{Phase: phase, Error: msg, Timestamp: now})
	s.UpdatedAt = now
}

// LastActivity returns the most recent checkpoint time, or CreatedAt when
// no transition has happened yet. Age-based cleanup keys off this value.
func (s *ReviewState) LastActivity() time.Time {
	if n := len(s.Checkpoints); n > 0 {
		return s.Checkpoints[n-1].Timestamp
	}
	return s.CreatedAt
}

// Clone deep-copies the state so stored snapshots never alias live ones.
func (s *ReviewState) Clone() *ReviewState {
	c := *s

	if s.Context != nil {
		c.Context = make(map[string]string, len(s.Context))
		for k, v := range s.Context {
			c.Context[k] = v
		}
	}
	if s.Findings != nil {
		c.Findings = make(map[string][]string, len(s.Findings))
		for k, v := range s.Findings {
			c.Findings[k] = append([]string(nil), v...)
		}
	}
	c.Checkpoints = append([]Checkpoint(nil), s.Checkpoints...)
	c.Errors = append([]ErrorEntry(nil), s.Errors...)
	c.Synthesis = s.Synthesis.Clone()
	c.Output = s.Output.Clone()

	return &c
}
