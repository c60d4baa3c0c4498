// Package experience assembles the progression engine and exposes the
// operations available to the outer surfaces.
package experience

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/dispute"
	historysvc "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/ledger"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/session"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/badge"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	disputedomain "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/dispute"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/gating"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

// Deps are the collaborators the engine runs on. LedgerClient and Notifier
// are optional.
type Deps struct {
	Catalog       *catalog.Catalog
	Accounts      account.Repository
	History       history.Repository
	Notifier      notification.Sink
	LedgerClient  tracker.LedgerClient
	Policy        tracker.CompletionPolicy
	SigningKey    []byte
	LedgerOptions ledger.Options
	Logger        zerolog.Logger
}

// Engine wires the tracker, sessions, dispute board and reward ledger.
type Engine struct {
	Catalog  *catalog.Catalog
	Tracker  *tracker.Tracker
	History  *historysvc.Service
	Ledger   *ledger.Service
	Sessions *session.Service
	Disputes *dispute.Service
}

// New builds an engine. Session completions are credited by the ledger.
func New(d Deps) *Engine {
	tr := tracker.New(d.Policy, d.Logger)
	hist := historysvc.NewService(d.History, d.Logger, d.SigningKey)
	led := ledger.NewService(d.Accounts, d.Catalog, hist, d.Notifier, d.LedgerOptions, d.Logger)
	sessions := session.NewService(d.Catalog, tr, d.LedgerClient, led, d.Notifier, hist, d.Logger)
	return &Engine{
		Catalog:  d.Catalog,
		Tracker:  tr,
		History:  hist,
		Ledger:   led,
		Sessions: sessions,
		Disputes: dispute.NewService(sessions, d.Notifier, hist, d.Logger),
	}
}

func walletID(w identity.Wallet) (string, error) {
	if w == nil || !w.IsConnected() {
		return "", progress.Precondition("wallet not connected")
	}
	return w.WalletID(), nil
}

// StartSession opens the wallet's session for a demo and loads its account.
func (e *Engine) StartSession(ctx context.Context, w identity.Wallet, demoID string) (*demo.Session, error) {
	id, err := walletID(w)
	if err != nil {
		return nil, err
	}
	if _, err := e.Ledger.Connect(ctx, id); err != nil {
		return nil, err
	}
	return e.Sessions.StartSession(ctx, w, demoID)
}

func (e *Engine) GetSession(ctx context.Context, sessionID uuid.UUID) (*demo.Session, error) {
	return e.Sessions.GetSession(ctx, sessionID)
}

func (e *Engine) InvokeStepAction(ctx context.Context, w identity.Wallet, sessionID uuid.UUID, stepID string) (txn.Record, error) {
	return e.Sessions.InvokeStepAction(ctx, w, sessionID, stepID)
}

func (e *Engine) ConfirmTransaction(ctx context.Context, txID uuid.UUID, status txn.Status, message string) (txn.Record, error) {
	return e.Sessions.ConfirmTransaction(ctx, txID, status, message)
}

func (e *Engine) ResetSession(ctx context.Context, sessionID uuid.UUID) (*demo.Session, error) {
	return e.Sessions.ResetSession(ctx, sessionID)
}

func (e *Engine) Board(ctx context.Context, sessionID uuid.UUID) (*disputedomain.Board, error) {
	return e.Disputes.Board(ctx, sessionID)
}

func (e *Engine) MarkMilestoneComplete(ctx context.Context, sessionID uuid.UUID, role, milestoneID string) (*disputedomain.Milestone, error) {
	return e.Disputes.MarkComplete(ctx, sessionID, role, milestoneID)
}

func (e *Engine) ApproveMilestone(ctx context.Context, sessionID uuid.UUID, role, milestoneID string) (*disputedomain.Milestone, error) {
	return e.Disputes.Approve(ctx, sessionID, role, milestoneID)
}

func (e *Engine) RaiseDispute(ctx context.Context, sessionID uuid.UUID, role, milestoneID, reason string) (*disputedomain.Dispute, error) {
	return e.Disputes.RaiseDispute(ctx, sessionID, role, milestoneID, reason)
}

func (e *Engine) ResolveDispute(ctx context.Context, sessionID uuid.UUID, role string, disputeID uuid.UUID, resolution, note string) (*disputedomain.Dispute, error) {
	return e.Disputes.ResolveDispute(ctx, sessionID, role, disputeID, resolution, note)
}

func (e *Engine) ReleaseAll(ctx context.Context, sessionID uuid.UUID) (*disputedomain.Board, error) {
	return e.Disputes.ReleaseAll(ctx, sessionID)
}

// CompleteDemo credits a demo directly. A nil score means the default score.
func (e *Engine) CompleteDemo(ctx context.Context, w identity.Wallet, demoID string, score *int, elapsed time.Duration) (*ledger.CompletionResult, error) {
	id, err := walletID(w)
	if err != nil {
		return nil, err
	}
	return e.Ledger.CompleteDemo(ctx, id, demoID, score, elapsed)
}

func (e *Engine) ClaimCompositeBadge(ctx context.Context, w identity.Wallet) (*ledger.CompletionResult, error) {
	id, err := walletID(w)
	if err != nil {
		return nil, err
	}
	return e.Ledger.ClaimCompositeBadge(ctx, id)
}

func (e *Engine) ClapDemo(ctx context.Context, w identity.Wallet, demoID string) (*ledger.ClapResult, error) {
	id, err := walletID(w)
	if err != nil {
		return nil, err
	}
	return e.Ledger.ClapDemo(ctx, id, demoID)
}

func (e *Engine) HasBadge(ctx context.Context, w identity.Wallet, badgeID string) (bool, error) {
	id, err := walletID(w)
	if err != nil {
		return false, err
	}
	return e.Ledger.HasBadge(ctx, id, badgeID)
}

func (e *Engine) HasCompletedDemo(ctx context.Context, w identity.Wallet, demoID string) (bool, error) {
	id, err := walletID(w)
	if err != nil {
		return false, err
	}
	return e.Ledger.HasCompletedDemo(ctx, id, demoID)
}

func (e *Engine) GetAccount(ctx context.Context, w identity.Wallet) (*account.Account, error) {
	id, err := walletID(w)
	if err != nil {
		return nil, err
	}
	return e.Ledger.Account(ctx, id)
}

func (e *Engine) ListHistory(ctx context.Context, w identity.Wallet, limit, offset int) ([]historysvc.VerifiedEntry, error) {
	id, err := walletID(w)
	if err != nil {
		return nil, err
	}
	return e.History.List(ctx, historysvc.ListParams{WalletID: id, Limit: limit, Offset: offset})
}

// Unlocks evaluates every gating rule for the wallet's account.
func (e *Engine) Unlocks(ctx context.Context, w identity.Wallet) ([]gating.Unlock, error) {
	acc, err := e.GetAccount(ctx, w)
	if err != nil {
		return nil, err
	}
	return gating.EvaluateAll(acc, e.Catalog.Rules), nil
}

// DemoProgress is one demo as seen by a wallet.
type DemoProgress struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Points    int64  `json:"basePoints"`
	Completed bool   `json:"completed"`
	Clapped   bool   `json:"clapped"`
}

// BadgeProgress is one badge as seen by a wallet.
type BadgeProgress struct {
	*badge.Badge
	Earned  bool     `json:"earned"`
	Missing []string `json:"missing,omitempty"`
}

// Summary is the full progression view of one account.
type Summary struct {
	Account *account.Account `json:"account"`
	Demos   []DemoProgress   `json:"demos"`
	Badges  []BadgeProgress  `json:"badges"`
	Unlocks []gating.Unlock  `json:"unlocks"`
}

// Summarize builds the progression view of an account.
func Summarize(cat *catalog.Catalog, acc *account.Account) *Summary {
	out := &Summary{Account: acc, Unlocks: gating.EvaluateAll(acc, cat.Rules)}
	for _, d := range cat.Demos() {
		if d.Pseudo {
			continue
		}
		out.Demos = append(out.Demos, DemoProgress{
			ID:        d.ID,
			Title:     d.Title,
			Points:    d.Points(),
			Completed: acc.CompletedDemos.Has(d.ID),
			Clapped:   acc.ClappedDemos.Has(d.ID),
		})
	}
	for _, b := range cat.Badges.All() {
		bp := BadgeProgress{Badge: b, Earned: acc.EarnedBadges.Has(b.ID)}
		if !bp.Earned && b.Kind == badge.KindComposite {
			bp.Missing = b.Missing(acc.EarnedBadges)
		}
		out.Badges = append(out.Badges, bp)
	}
	return out
}

// Summary returns the wallet's progression view.
func (e *Engine) Summary(ctx context.Context, w identity.Wallet) (*Summary, error) {
	acc, err := e.GetAccount(ctx, w)
	if err != nil {
		return nil, err
	}
	return Summarize(e.Catalog, acc), nil
}
