package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// EventType categorizes history entries.
type EventType string

const (
	EventDemoCompleted       EventType = "DEMO_COMPLETED"
	EventDemoReplayed        EventType = "DEMO_REPLAYED"
	EventBadgeAwarded        EventType = "BADGE_AWARDED"
	EventExperienceAdded     EventType = "EXPERIENCE_ADDED"
	EventDemoClapped         EventType = "DEMO_CLAPPED"
	EventTransactionResolved EventType = "TRANSACTION_RESOLVED"
	EventDisputeRaised       EventType = "DISPUTE_RAISED"
	EventDisputeResolved     EventType = "DISPUTE_RESOLVED"
	EventFundsReleased       EventType = "FUNDS_RELEASED"
)

// CompletionEvents are the entry types that count as a finished demo run.
var CompletionEvents = []EventType{EventDemoCompleted, EventDemoReplayed}

// Entry is one append-only history record.
type Entry struct {
	ID            int64           `json:"id"`
	EntryID       uuid.UUID       `json:"entryId"`
	WalletID      string          `json:"walletId"`
	Type          EventType       `json:"type"`
	DemoID        string          `json:"demoId,omitempty"`
	BadgeID       string          `json:"badgeId,omitempty"`
	SessionID     *uuid.UUID      `json:"sessionId,omitempty"`
	TransactionID *uuid.UUID      `json:"transactionId,omitempty"`
	Points        int64           `json:"points"`
	Experience    int64           `json:"experience"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	Signature     []byte          `json:"signature,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewEntry creates an entry stamped now.
func NewEntry(walletID string, eventType EventType) *Entry {
	return &Entry{
		EntryID:   uuid.New(),
		WalletID:  walletID,
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
}

// WithDetail marshals v into the entry detail. Marshal failures leave it empty.
func (e *Entry) WithDetail(v interface{}) *Entry {
	if data, err := json.Marshal(v); err == nil {
		e.Detail = data
	}
	return e
}

// Filter controls history listing and counting.
type Filter struct {
	WalletID *string
	DemoID   *string
	Types    []EventType
}

// Repository defines persistence for history entries.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Entry, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// Matches reports whether e satisfies the filter.
func (f Filter) Matches(e *Entry) bool {
	if f.WalletID != nil && e.WalletID != *f.WalletID {
		return false
	}
	if f.DemoID != nil && e.DemoID != *f.DemoID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}
