package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/telemetry"
)

// LedgerClient submits an operation to the (simulated) ledger.
type LedgerClient interface {
	Submit(ctx context.Context, op txn.Operation) (txn.Confirmation, error)
}

// Listener receives a record once it reaches its terminal status.
type Listener func(ctx context.Context, rec txn.Record)

type entry struct {
	rec        *txn.Record
	disarm     func() bool
	onResolved Listener
}

// Tracker owns every in-flight transaction. Listeners are always invoked
// after the tracker lock is released.
type Tracker struct {
	mu        sync.Mutex
	policy    CompletionPolicy
	records   map[uuid.UUID]*entry
	bySession map[uuid.UUID]map[uuid.UUID]struct{}
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a tracker with the given completion policy.
func New(policy CompletionPolicy, logger zerolog.Logger) *Tracker {
	if policy == nil {
		policy = OptimisticPolicy{}
	}
	return &Tracker{
		policy:    policy,
		records:   make(map[uuid.UUID]*entry),
		bySession: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		now:       time.Now,
		logger:    logger.With().Str("service", "tracker").Str("policy", policy.Name()).Logger(),
	}
}

// Create registers a pending transaction for a step attempt and arms the
// completion policy.
func (t *Tracker) Create(sessionID uuid.UUID, stepID string, epoch uint64, onResolved Listener) txn.Record {
	t.mu.Lock()
	rec := txn.NewRecord(sessionID, stepID, epoch, t.now())
	id := rec.TransactionID
	e := &entry{rec: rec, onResolved: onResolved}
	t.records[id] = e
	if t.bySession[sessionID] == nil {
		t.bySession[sessionID] = make(map[uuid.UUID]struct{})
	}
	t.bySession[sessionID][id] = struct{}{}
	deadline, disarm := t.policy.Arm(*rec, func(status txn.Status, message string) {
		_, _ = t.Resolve(context.Background(), id, status, txn.SourceAuto, message)
	})
	rec.AutoResolveDeadline = deadline
	e.disarm = disarm
	out := *rec
	t.mu.Unlock()

	t.logger.Debug().
		Str("transactionId", id.String()).
		Str("sessionId", sessionID.String()).
		Str("stepId", stepID).
		Msg("transaction created")
	return out
}

// Resolve moves a pending transaction to its outcome and notifies its
// listener. Resolving an already terminal transaction is a no-op that
// returns a ConflictError.
func (t *Tracker) Resolve(ctx context.Context, id uuid.UUID, status txn.Status, source txn.Source, message string) (txn.Record, error) {
	return t.resolve(ctx, id, status, source, message, "")
}

// Confirm resolves a transaction from a ledger confirmation and keeps the
// ledger hash on the record.
func (t *Tracker) Confirm(ctx context.Context, id uuid.UUID, conf txn.Confirmation) (txn.Record, error) {
	return t.resolve(ctx, id, conf.Status, txn.SourceConfirmation, conf.Message, conf.Hash)
}

func (t *Tracker) resolve(ctx context.Context, id uuid.UUID, status txn.Status, source txn.Source, message, hash string) (txn.Record, error) {
	t.mu.Lock()
	e, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return txn.Record{}, txn.ErrNotFound
	}
	if e.rec.IsTerminal() {
		out := *e.rec
		t.mu.Unlock()
		t.logger.Debug().
			Str("transactionId", id.String()).
			Str("source", string(source)).
			Msg("transaction already resolved")
		return out, progress.Conflict("transaction %s already resolved as %s", id, out.Status)
	}
	if err := e.rec.Resolve(status, source, message, t.now()); err != nil {
		t.mu.Unlock()
		return txn.Record{}, err
	}
	e.rec.LedgerHash = hash
	if e.disarm != nil {
		e.disarm()
	}
	out := *e.rec
	listener := e.onResolved
	t.mu.Unlock()

	var latency float64
	if out.ResolvedAt != nil {
		latency = out.ResolvedAt.Sub(out.CreatedAt).Seconds()
	}
	telemetry.RecordTransaction(ctx, string(out.Status), string(out.Source), latency)
	evt := t.logger.Info()
	if out.Source == txn.SourceAuto {
		evt = t.logger.Warn()
	}
	evt.Str("transactionId", id.String()).
		Str("stepId", out.StepID).
		Str("status", string(out.Status)).
		Str("source", string(out.Source)).
		Msg("transaction resolved")

	if listener != nil {
		listener(ctx, out)
	}
	return out, nil
}

// CancelSession disarms every timer of the session, retires its pending
// records without notifying listeners and forgets the session's records.
func (t *Tracker) CancelSession(sessionID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancelled := 0
	for id := range t.bySession[sessionID] {
		e := t.records[id]
		if e == nil {
			continue
		}
		if e.disarm != nil {
			e.disarm()
		}
		if !e.rec.IsTerminal() {
			_ = e.rec.Resolve(txn.StatusFailed, txn.SourceCancelled, "session reset", t.now())
			cancelled++
		}
		delete(t.records, id)
	}
	delete(t.bySession, sessionID)
	if cancelled > 0 {
		t.logger.Info().
			Str("sessionId", sessionID.String()).
			Int("cancelled", cancelled).
			Msg("pending transactions retired")
	}
	return cancelled
}

// Get returns a copy of the record.
func (t *Tracker) Get(id uuid.UUID) (txn.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.records[id]
	if !ok {
		return txn.Record{}, false
	}
	return *e.rec, true
}

// List returns the session's records ordered by creation.
func (t *Tracker) List(sessionID uuid.UUID) []txn.Record {
	t.mu.Lock()
	out := make([]txn.Record, 0, len(t.bySession[sessionID]))
	for id := range t.bySession[sessionID] {
		if e := t.records[id]; e != nil {
			out = append(out, *e.rec)
		}
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Pending returns the session's pending records.
func (t *Tracker) Pending(sessionID uuid.UUID) []txn.Record {
	var out []txn.Record
	for _, rec := range t.List(sessionID) {
		if !rec.IsTerminal() {
			out = append(out, rec)
		}
	}
	return out
}
