package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	historysvc "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/dispute"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoBoard         = errors.New("demo has no dispute board")
)

// DemoCatalog resolves demo definitions.
type DemoCatalog interface {
	Demo(id string) (*demo.Definition, bool)
}

// CompletionHandler receives each session completion exactly once.
type CompletionHandler interface {
	WorkflowCompleted(ctx context.Context, evt demo.CompletionEvent) error
}

type entry struct {
	sess  *demo.Session
	def   *demo.Definition
	board *dispute.Board

	// inflight ends when the session is reset or evicted.
	inflight context.Context
	cancel   context.CancelFunc
}

func newEntry(sess *demo.Session, def *demo.Definition) *entry {
	e := &entry{sess: sess, def: def}
	e.inflight, e.cancel = context.WithCancel(context.Background())
	return e
}

// submissionContext outlives the request that started the submission and
// is cancelled with the session's current epoch.
func (e *entry) submissionContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(e.inflight, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Service drives demo sessions through their steps. One mutex guards every
// session; tracker listeners take it only after the tracker released its own.
type Service struct {
	mu         sync.Mutex
	catalog    DemoCatalog
	tracker    *tracker.Tracker
	ledger     tracker.LedgerClient
	completion CompletionHandler
	notifier   notification.Sink
	history    *historysvc.Service
	sessions   map[uuid.UUID]*entry
	byOwner    map[string]uuid.UUID
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a new session service. ledger, completion and history
// are optional.
func NewService(
	catalog DemoCatalog,
	tr *tracker.Tracker,
	ledger tracker.LedgerClient,
	completion CompletionHandler,
	notifier notification.Sink,
	hist *historysvc.Service,
	logger zerolog.Logger,
) *Service {
	if notifier == nil {
		notifier = notification.NopSink{}
	}
	return &Service{
		catalog:    catalog,
		tracker:    tr,
		ledger:     ledger,
		completion: completion,
		notifier:   notifier,
		history:    hist,
		sessions:   make(map[uuid.UUID]*entry),
		byOwner:    make(map[string]uuid.UUID),
		now:        time.Now,
		logger:     logger.With().Str("service", "session").Logger(),
	}
}

func ownerKey(walletID, demoID string) string {
	return walletID + "/" + demoID
}

// StartSession opens the wallet's session for a demo. A wallet holds at most
// one session per demo; starting again returns the existing one.
func (s *Service) StartSession(ctx context.Context, wallet identity.Wallet, demoID string) (*demo.Session, error) {
	if wallet == nil || !wallet.IsConnected() {
		return nil, progress.Precondition("wallet not connected")
	}
	def, ok := s.catalog.Demo(demoID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", demo.ErrUnknownDemo, demoID)
	}
	if def.Pseudo {
		return nil, progress.Precondition("demo %s cannot be started directly", demoID)
	}

	s.mu.Lock()
	key := ownerKey(wallet.WalletID(), demoID)
	if id, ok := s.byOwner[key]; ok {
		if e := s.sessions[id]; e != nil {
			out := e.sess.Clone()
			s.mu.Unlock()
			return out, nil
		}
	}
	now := s.now()
	sess, err := demo.NewSession(def, wallet.WalletID(), now)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	e := newEntry(sess, def)
	if def.HasBoard() {
		e.board = dispute.NewBoard(def.Milestones, now)
	}
	s.sessions[sess.SessionID] = e
	s.byOwner[key] = sess.SessionID
	out := sess.Clone()
	s.mu.Unlock()

	s.logger.Info().
		Str("sessionId", out.SessionID.String()).
		Str("demoId", demoID).
		Str("walletId", out.WalletID).
		Msg("session started")
	return out, nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*demo.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.sess.Clone(), nil
}

// ListSessions returns the wallet's sessions ordered by creation.
func (s *Service) ListSessions(ctx context.Context, walletID string) []*demo.Session {
	s.mu.Lock()
	var out []*demo.Session
	for _, e := range s.sessions {
		if e.sess.WalletID == walletID {
			out = append(out, e.sess.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// InvokeStepAction starts the current step's transaction. The returned record
// is pending; its outcome arrives through the tracker.
func (s *Service) InvokeStepAction(ctx context.Context, wallet identity.Wallet, sessionID uuid.UUID, stepID string) (txn.Record, error) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return txn.Record{}, ErrSessionNotFound
	}
	sess := e.sess
	if err := sess.CanInvoke(stepID); err != nil {
		s.mu.Unlock()
		return txn.Record{}, err
	}
	_, step := sess.StepByID(stepID)
	if wallet == nil || !wallet.IsConnected() {
		s.mu.Unlock()
		return txn.Record{}, progress.Precondition("wallet not connected")
	}
	if wallet.WalletID() != sess.WalletID {
		s.mu.Unlock()
		return txn.Record{}, progress.Precondition("session belongs to another wallet")
	}

	rec := s.tracker.Create(sessionID, stepID, sess.Epoch, s.onResolved)
	if err := sess.BeginAttempt(stepID, rec.TransactionID, s.now()); err != nil {
		s.mu.Unlock()
		_, _ = s.tracker.Resolve(ctx, rec.TransactionID, txn.StatusFailed, txn.SourceCancelled, err.Error())
		return txn.Record{}, err
	}
	op := txn.Operation{
		TransactionID: rec.TransactionID,
		SessionID:     sessionID,
		WalletID:      sess.WalletID,
		DemoID:        sess.DemoID,
		StepID:        stepID,
		Kind:          step.Operation,
	}
	var (
		subCtx context.Context
		done   context.CancelFunc
	)
	if s.ledger != nil {
		subCtx, done = e.submissionContext(ctx)
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Str("stepId", stepID).
		Str("transactionId", rec.TransactionID.String()).
		Msg("step action invoked")
	s.notifier.Notify(ctx, notification.NewMessage(op.WalletID, notification.TopicTransaction, notification.LevelInfo,
		"Transaction submitted", fmt.Sprintf("%s is waiting for confirmation", step.Title)).WithPayload(rec))

	if subCtx != nil {
		go func() {
			defer done()
			s.submit(subCtx, op)
		}()
	}
	return rec, nil
}

func (s *Service) submit(ctx context.Context, op txn.Operation) {
	conf, err := s.ledger.Submit(ctx, op)
	if ctx.Err() != nil {
		s.logger.Debug().Str("transactionId", op.TransactionID.String()).Msg("ledger submission cancelled")
		return
	}
	if err != nil {
		_, err = s.tracker.Resolve(ctx, op.TransactionID, txn.StatusFailed, txn.SourceConfirmation, err.Error())
	} else {
		_, err = s.tracker.Confirm(ctx, op.TransactionID, conf)
	}
	switch {
	case err == nil:
	case progress.IsConflict(err), errors.Is(err, txn.ErrNotFound):
		s.logger.Debug().Err(err).Str("transactionId", op.TransactionID.String()).Msg("late ledger confirmation ignored")
	default:
		s.logger.Warn().Err(err).Str("transactionId", op.TransactionID.String()).Msg("ledger confirmation rejected")
	}
}

// ConfirmTransaction resolves a pending transaction from an external
// confirmation.
func (s *Service) ConfirmTransaction(ctx context.Context, txID uuid.UUID, status txn.Status, message string) (txn.Record, error) {
	if status != txn.StatusSuccess && status != txn.StatusFailed {
		return txn.Record{}, progress.Precondition("invalid confirmation status %q", status)
	}
	return s.tracker.Resolve(ctx, txID, status, txn.SourceManual, message)
}

// onResolved applies a terminal transaction to its step.
func (s *Service) onResolved(ctx context.Context, rec txn.Record) {
	s.mu.Lock()
	e, ok := s.sessions[rec.SessionID]
	if !ok || e.sess.Epoch != rec.Epoch {
		s.mu.Unlock()
		s.logger.Debug().
			Str("transactionId", rec.TransactionID.String()).
			Msg("stale transaction outcome discarded")
		return
	}
	sess := e.sess
	now := s.now()
	var (
		fired bool
		err   error
	)
	if rec.Status == txn.StatusSuccess {
		fired, err = sess.CompleteStep(rec.StepID, rec.TransactionID, now)
	} else {
		err = sess.FailStep(rec.StepID, rec.TransactionID, rec.Message, now)
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).
			Str("transactionId", rec.TransactionID.String()).
			Str("stepId", rec.StepID).
			Msg("transaction outcome not applied")
		return
	}
	var evt *demo.CompletionEvent
	if fired {
		ev := sess.CompletionEvent(now)
		evt = &ev
	}
	walletID, demoID := sess.WalletID, sess.DemoID
	_, step := sess.StepByID(rec.StepID)
	title := step.Title
	s.mu.Unlock()

	s.recordResolution(ctx, walletID, demoID, rec)
	if err := rec.Err(); err != nil {
		s.logger.Warn().Err(err).
			Str("sessionId", rec.SessionID.String()).
			Str("stepId", rec.StepID).
			Msg("step transaction failed")
		s.notifier.Notify(ctx, notification.NewMessage(walletID, notification.TopicStep, notification.LevelFailure,
			"Transaction failed", fmt.Sprintf("%s failed: %s", title, rec.Message)).WithPayload(rec))
	} else {
		body := fmt.Sprintf("%s confirmed", title)
		if rec.Source == txn.SourceAuto {
			body = fmt.Sprintf("%s confirmed optimistically", title)
		}
		s.notifier.Notify(ctx, notification.NewMessage(walletID, notification.TopicStep, notification.LevelSuccess,
			"Step completed", body).WithPayload(rec))
	}
	if evt != nil {
		s.emitCompletion(ctx, *evt)
	}
}

func (s *Service) recordResolution(ctx context.Context, walletID, demoID string, rec txn.Record) {
	if s.history == nil {
		return
	}
	entry := history.NewEntry(walletID, history.EventTransactionResolved)
	entry.DemoID = demoID
	sessionID, txID := rec.SessionID, rec.TransactionID
	entry.SessionID = &sessionID
	entry.TransactionID = &txID
	detail := map[string]interface{}{
		"stepId": rec.StepID,
		"status": rec.Status,
		"source": rec.Source,
	}
	if rec.LedgerHash != "" {
		detail["ledgerHash"] = rec.LedgerHash
	}
	entry.WithDetail(detail)
	s.history.Log(ctx, entry)
}

func (s *Service) emitCompletion(ctx context.Context, evt demo.CompletionEvent) {
	s.logger.Info().
		Str("sessionId", evt.SessionID.String()).
		Str("demoId", evt.DemoID).
		Int("score", evt.Score).
		Dur("elapsed", evt.Elapsed).
		Str("via", string(evt.Via)).
		Msg("workflow completed")
	s.notifier.Notify(ctx, notification.NewMessage(evt.WalletID, notification.TopicDemo, notification.LevelSuccess,
		"Demo completed", fmt.Sprintf("%s finished with score %d", evt.DemoID, evt.Score)).WithPayload(evt))

	if s.completion == nil {
		return
	}
	if err := s.completion.WorkflowCompleted(ctx, evt); err != nil {
		s.logger.Error().Err(err).
			Str("sessionId", evt.SessionID.String()).
			Str("demoId", evt.DemoID).
			Msg("completion handler failed")
	}
}

// ResetSession returns the session to its first step. Outstanding
// transactions are cancelled and their late outcomes discarded.
func (s *Service) ResetSession(ctx context.Context, sessionID uuid.UUID) (*demo.Session, error) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	cancelled := s.tracker.CancelSession(sessionID)
	e.cancel()
	e.inflight, e.cancel = context.WithCancel(context.Background())
	now := s.now()
	e.sess.Reset(now)
	if e.def.HasBoard() {
		e.board = dispute.NewBoard(e.def.Milestones, now)
	}
	out := e.sess.Clone()
	s.mu.Unlock()

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Uint64("epoch", out.Epoch).
		Int("cancelled", cancelled).
		Msg("session reset")
	s.notifier.Notify(ctx, notification.NewMessage(out.WalletID, notification.TopicDemo, notification.LevelInfo,
		"Demo reset", fmt.Sprintf("%s restarted from the first step", out.DemoID)))
	return out, nil
}

// WithBoard runs fn against the session's dispute board under the session
// lock. A completion fired by fn is emitted after the lock is released.
func (s *Service) WithBoard(ctx context.Context, sessionID uuid.UUID, fn func(sess *demo.Session, board *dispute.Board) error) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if e.board == nil {
		s.mu.Unlock()
		return ErrNoBoard
	}
	triggered := e.sess.CompletionTriggered
	err := fn(e.sess, e.board)
	var evt *demo.CompletionEvent
	if !triggered && e.sess.CompletionTriggered {
		ev := e.sess.CompletionEvent(s.now())
		evt = &ev
	}
	s.mu.Unlock()

	if evt != nil {
		s.emitCompletion(ctx, *evt)
	}
	return err
}

// EvictIdle forgets sessions untouched for longer than ttl that have no
// pending transaction.
func (s *Service) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.sessions {
		if e.sess.UpdatedAt.After(cutoff) || len(s.tracker.Pending(id)) > 0 {
			continue
		}
		s.tracker.CancelSession(id)
		e.cancel()
		delete(s.sessions, id)
		delete(s.byOwner, ownerKey(e.sess.WalletID, e.sess.DemoID))
		evicted++
	}
	if evicted > 0 {
		s.logger.Info().Int("evicted", evicted).Msg("idle sessions evicted")
	}
	return evicted
}
