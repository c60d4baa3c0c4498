package txn

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
)

// Status represents the lifecycle status of a tracked transaction.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Source records what drove a transaction to its terminal status.
type Source string

const (
	SourceConfirmation Source = "CONFIRMATION"
	SourceAuto         Source = "AUTO"
	SourceManual       Source = "MANUAL"
	SourceCancelled    Source = "CANCELLED"
)

var (
	ErrInvalidTransition = errors.New("invalid transaction transition")
	ErrAlreadyResolved   = errors.New("transaction already resolved")
	ErrNotFound          = errors.New("transaction not found")
)

// Record tracks one submitted operation from creation to its terminal outcome.
type Record struct {
	TransactionID       uuid.UUID  `json:"transactionId"`
	SessionID           uuid.UUID  `json:"sessionId"`
	StepID              string     `json:"stepId"`
	Epoch               uint64     `json:"epoch"`
	Status              Status     `json:"status"`
	Source              Source     `json:"source,omitempty"`
	Message             string     `json:"message,omitempty"`
	LedgerHash          string     `json:"ledgerHash,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	AutoResolveDeadline *time.Time `json:"autoResolveDeadline,omitempty"`
	ResolvedAt          *time.Time `json:"resolvedAt,omitempty"`
}

// NewRecord creates a pending record for a step attempt.
func NewRecord(sessionID uuid.UUID, stepID string, epoch uint64, now time.Time) *Record {
	return &Record{
		TransactionID: uuid.New(),
		SessionID:     sessionID,
		StepID:        stepID,
		Epoch:         epoch,
		Status:        StatusPending,
		CreatedAt:     now.UTC(),
	}
}

// CanTransitionTo checks if a transition to the target status is valid.
func (r *Record) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {StatusSuccess, StatusFailed},
		StatusSuccess: {},
		StatusFailed:  {},
	}
	for _, s := range transitions[r.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the record has an outcome.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailed
}

// Err returns a TransactionError for a failed record and nil otherwise.
func (r *Record) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	return &progress.TransactionError{TransactionID: r.TransactionID.String(), Message: r.Message}
}

// Resolve moves a pending record to its terminal status.
func (r *Record) Resolve(status Status, source Source, message string, now time.Time) error {
	if r.IsTerminal() {
		return ErrAlreadyResolved
	}
	if !r.CanTransitionTo(status) {
		return ErrInvalidTransition
	}
	at := now.UTC()
	r.Status = status
	r.Source = source
	r.Message = message
	r.ResolvedAt = &at
	return nil
}

// Operation is the payload handed to the ledger client for one step attempt.
type Operation struct {
	TransactionID uuid.UUID `json:"transactionId"`
	SessionID     uuid.UUID `json:"sessionId"`
	WalletID      string    `json:"walletId"`
	DemoID        string    `json:"demoId"`
	StepID        string    `json:"stepId"`
	Kind          string    `json:"kind"`
}

// Confirmation is the ledger client's answer for a submitted operation.
type Confirmation struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Hash    string `json:"hash,omitempty"`
}
