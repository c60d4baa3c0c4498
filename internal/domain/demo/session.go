package demo

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
)

// StepStatus represents the status of one step in a session.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepCurrent   StepStatus = "CURRENT"
	StepCompleted StepStatus = "COMPLETED"
)

const (
	// MaxScore is the score of a run without failed attempts.
	MaxScore = 100
	// MinScore is the floor of the computed score.
	MinScore = 50
	// FailurePenalty is subtracted per failed attempt.
	FailurePenalty = 5
)

var (
	ErrUnknownStep       = errors.New("unknown step")
	ErrStaleTransaction  = errors.New("transaction does not belong to the step's pending attempt")
	ErrPseudoDemoSession = errors.New("pseudo demos cannot be started as sessions")
)

// Step is one ordered step of a session.
type Step struct {
	StepKey              uuid.UUID  `json:"stepKey"`
	ID                   string     `json:"id"`
	Order                int        `json:"order"`
	Title                string     `json:"title"`
	Operation            string     `json:"operation"`
	RequiresWallet       bool       `json:"requiresWallet"`
	Status               StepStatus `json:"status"`
	PendingTransactionID *uuid.UUID `json:"pendingTransactionId,omitempty"`
	LastTransactionID    *uuid.UUID `json:"lastTransactionId,omitempty"`
	LastError            string     `json:"lastError,omitempty"`
	Attempts             int        `json:"attempts"`
	Failures             int        `json:"failures"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
}

// Session is one wallet's run through a demo.
type Session struct {
	SessionID           uuid.UUID      `json:"sessionId"`
	DemoID              string         `json:"demoId"`
	WalletID            string         `json:"walletId"`
	Steps               []*Step        `json:"steps"`
	CurrentStepIndex    int            `json:"currentStepIndex"`
	CompletionTriggered bool           `json:"completionTriggered"`
	CompleteOn          CompletionMode `json:"completeOn"`
	Epoch               uint64         `json:"epoch"`
	FailedAttempts      int            `json:"failedAttempts"`
	CreatedAt           time.Time      `json:"createdAt"`
	StartedAt           *time.Time     `json:"startedAt,omitempty"`
	CompletedAt         *time.Time     `json:"completedAt,omitempty"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// CompletionEvent is emitted exactly once per completion of a session.
type CompletionEvent struct {
	SessionID uuid.UUID      `json:"sessionId"`
	WalletID  string         `json:"walletId"`
	DemoID    string         `json:"demoId"`
	Score     int            `json:"score"`
	Elapsed   time.Duration  `json:"elapsed"`
	Via       CompletionMode `json:"via"`
}

// NewSession builds a session with the first step current.
func NewSession(def *Definition, walletID string, now time.Time) (*Session, error) {
	if def.Pseudo {
		return nil, ErrPseudoDemoSession
	}
	if len(def.Steps) == 0 {
		return nil, ErrInvalidDemo
	}
	s := &Session{
		SessionID:  uuid.New(),
		DemoID:     def.ID,
		WalletID:   walletID,
		CompleteOn: def.CompleteOn,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	if s.CompleteOn == "" {
		s.CompleteOn = CompleteOnLastStep
	}
	for i, tpl := range def.Steps {
		s.Steps = append(s.Steps, &Step{
			StepKey:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.SessionID.String()+":"+tpl.ID)),
			ID:             tpl.ID,
			Order:          i,
			Title:          tpl.Title,
			Operation:      tpl.Operation,
			RequiresWallet: tpl.RequiresWallet,
			Status:         StepPending,
		})
	}
	s.Steps[0].Status = StepCurrent
	return s, nil
}

// IsFinished reports whether every step is completed.
func (s *Session) IsFinished() bool {
	return s.CurrentStepIndex >= len(s.Steps)
}

// CurrentStep returns the current step or nil once every step is completed.
func (s *Session) CurrentStep() *Step {
	if s.IsFinished() {
		return nil
	}
	return s.Steps[s.CurrentStepIndex]
}

// StepByID returns the index and step for id, or -1 and nil.
func (s *Session) StepByID(id string) (int, *Step) {
	for i, st := range s.Steps {
		if st.ID == id {
			return i, st
		}
	}
	return -1, nil
}

// CanInvoke checks that stepID may start a new transaction.
func (s *Session) CanInvoke(stepID string) error {
	idx, st := s.StepByID(stepID)
	if st == nil {
		return progress.Precondition("unknown step %q", stepID)
	}
	if s.IsFinished() {
		return progress.Precondition("demo %s already finished", s.DemoID)
	}
	if idx != s.CurrentStepIndex {
		return progress.Precondition("step %q is not the current step", stepID)
	}
	if idx > 0 && s.Steps[idx-1].Status != StepCompleted {
		return progress.Precondition("previous step %q has not succeeded", s.Steps[idx-1].ID)
	}
	if st.PendingTransactionID != nil {
		return progress.Conflict("step %q already has a pending transaction", stepID)
	}
	return nil
}

// BeginAttempt attaches a pending transaction to the current step.
func (s *Session) BeginAttempt(stepID string, txID uuid.UUID, now time.Time) error {
	if err := s.CanInvoke(stepID); err != nil {
		return err
	}
	_, st := s.StepByID(stepID)
	id := txID
	st.PendingTransactionID = &id
	st.Attempts++
	st.LastError = ""
	at := now.UTC()
	if s.StartedAt == nil {
		s.StartedAt = &at
	}
	s.UpdatedAt = at
	return nil
}

func (s *Session) pendingStep(stepID string, txID uuid.UUID) (int, *Step, error) {
	idx, st := s.StepByID(stepID)
	if st == nil {
		return -1, nil, ErrUnknownStep
	}
	if st.PendingTransactionID == nil || *st.PendingTransactionID != txID {
		return -1, nil, ErrStaleTransaction
	}
	return idx, st, nil
}

// CompleteStep applies a successful transaction. It returns true when this
// call fired the session's completion.
func (s *Session) CompleteStep(stepID string, txID uuid.UUID, now time.Time) (bool, error) {
	idx, st, err := s.pendingStep(stepID, txID)
	if err != nil {
		return false, err
	}
	at := now.UTC()
	id := txID
	st.Status = StepCompleted
	st.PendingTransactionID = nil
	st.LastTransactionID = &id
	st.CompletedAt = &at
	s.CurrentStepIndex = idx + 1
	if !s.IsFinished() {
		s.Steps[s.CurrentStepIndex].Status = StepCurrent
	}
	s.UpdatedAt = at
	if s.IsFinished() && s.CompleteOn == CompleteOnLastStep {
		return s.TriggerCompletion(now), nil
	}
	return false, nil
}

// FailStep applies a failed transaction. The step stays current.
func (s *Session) FailStep(stepID string, txID uuid.UUID, message string, now time.Time) error {
	_, st, err := s.pendingStep(stepID, txID)
	if err != nil {
		return err
	}
	id := txID
	st.PendingTransactionID = nil
	st.LastTransactionID = &id
	st.LastError = message
	st.Failures++
	s.FailedAttempts++
	s.UpdatedAt = now.UTC()
	return nil
}

// TriggerCompletion sets the completion guard. It returns false when the
// guard was already set.
func (s *Session) TriggerCompletion(now time.Time) bool {
	if s.CompletionTriggered {
		return false
	}
	at := now.UTC()
	s.CompletionTriggered = true
	s.CompletedAt = &at
	s.UpdatedAt = at
	return true
}

// Reset returns the session to its first step and invalidates in-flight work.
func (s *Session) Reset(now time.Time) {
	for i, st := range s.Steps {
		st.Status = StepPending
		if i == 0 {
			st.Status = StepCurrent
		}
		st.PendingTransactionID = nil
		st.LastTransactionID = nil
		st.LastError = ""
		st.Attempts = 0
		st.Failures = 0
		st.CompletedAt = nil
	}
	s.CurrentStepIndex = 0
	s.CompletionTriggered = false
	s.FailedAttempts = 0
	s.StartedAt = nil
	s.CompletedAt = nil
	s.Epoch++
	s.UpdatedAt = now.UTC()
}

// Score derives the run score from failed attempts.
func (s *Session) Score() int {
	score := MaxScore - FailurePenalty*s.FailedAttempts
	if score < MinScore {
		return MinScore
	}
	return score
}

// Elapsed measures from the first invoked action to completion or now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now.UTC()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt)
}

// CompletionEvent builds the event for a fired completion.
func (s *Session) CompletionEvent(now time.Time) CompletionEvent {
	return CompletionEvent{
		SessionID: s.SessionID,
		WalletID:  s.WalletID,
		DemoID:    s.DemoID,
		Score:     s.Score(),
		Elapsed:   s.Elapsed(now),
		Via:       s.CompleteOn,
	}
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (s *Session) Clone() *Session {
	out := *s
	out.Steps = make([]*Step, len(s.Steps))
	for i, st := range s.Steps {
		cp := *st
		out.Steps[i] = &cp
	}
	return &out
}
