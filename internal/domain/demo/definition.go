package demo

import (
	"errors"
	"fmt"
)

// DefaultBasePoints is awarded for a demo that does not declare its own base.
const DefaultBasePoints = 100

// CompletionMode selects what fires a session's completion.
type CompletionMode string

const (
	// CompleteOnLastStep fires completion when the last step succeeds.
	CompleteOnLastStep CompletionMode = "last_step"
	// CompleteOnRelease fires completion when the dispute board releases funds.
	CompleteOnRelease CompletionMode = "release"
)

var (
	ErrUnknownDemo   = errors.New("unknown demo")
	ErrInvalidDemo   = errors.New("invalid demo definition")
	ErrDuplicateStep = errors.New("duplicate step id")
)

// StepTemplate declares one step of a demo.
type StepTemplate struct {
	ID             string `yaml:"id" json:"id"`
	Title          string `yaml:"title" json:"title"`
	Operation      string `yaml:"operation" json:"operation"`
	RequiresWallet bool   `yaml:"requires_wallet" json:"requiresWallet"`
}

// MilestoneTemplate declares one milestone of a demo's dispute board.
type MilestoneTemplate struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Amount int64  `yaml:"amount" json:"amount"`
}

// Definition describes one guided walkthrough.
type Definition struct {
	ID          string              `yaml:"id" json:"id"`
	Title       string              `yaml:"title" json:"title"`
	Description string              `yaml:"description" json:"description"`
	BasePoints  int64               `yaml:"base_points" json:"basePoints"`
	Pseudo      bool                `yaml:"pseudo" json:"pseudo,omitempty"`
	CompleteOn  CompletionMode      `yaml:"complete_on" json:"completeOn"`
	Steps       []StepTemplate      `yaml:"steps" json:"steps"`
	Milestones  []MilestoneTemplate `yaml:"milestones" json:"milestones,omitempty"`
}

// Points returns the base points of the demo.
func (d *Definition) Points() int64 {
	if d.BasePoints <= 0 {
		return DefaultBasePoints
	}
	return d.BasePoints
}

// HasBoard reports whether the demo embeds a dispute board.
func (d *Definition) HasBoard() bool {
	return len(d.Milestones) > 0
}

// Validate checks the definition is internally consistent and fills defaults.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDemo)
	}
	if d.CompleteOn == "" {
		d.CompleteOn = CompleteOnLastStep
	}
	switch d.CompleteOn {
	case CompleteOnLastStep, CompleteOnRelease:
	default:
		return fmt.Errorf("%w: %s has unknown completion mode %q", ErrInvalidDemo, d.ID, d.CompleteOn)
	}
	if d.Pseudo {
		return nil
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidDemo, d.ID)
	}
	if d.CompleteOn == CompleteOnRelease && !d.HasBoard() {
		return fmt.Errorf("%w: %s completes on release but has no milestones", ErrInvalidDemo, d.ID)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for _, st := range d.Steps {
		if st.ID == "" {
			return fmt.Errorf("%w: %s has a step without id", ErrInvalidDemo, d.ID)
		}
		if _, ok := seen[st.ID]; ok {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateStep, d.ID, st.ID)
		}
		seen[st.ID] = struct{}{}
	}
	return nil
}
