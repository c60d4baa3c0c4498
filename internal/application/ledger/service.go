// Package ledger credits experience, points and badges to accounts.
//
// The in-memory account of a wallet is authoritative. Every mutation is
// written back to the account store as a partial patch; failed writes are
// retried with backoff and then logged, never surfaced to the caller.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	historysvc "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/badge"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/telemetry"
)

const (
	// DefaultScore is credited when the caller supplies no score.
	DefaultScore = 85
	// MinMultiplier floors the score multiplier.
	MinMultiplier = 0.5
	// ReplayFactor scales the points of a replayed demo.
	ReplayFactor = 0.25
	// ExperiencePerPoint converts points to experience.
	ExperiencePerPoint = 2
)

// Points computes the points earned for a demo run.
func Points(base int64, score int, replay bool) int64 {
	mult := math.Max(MinMultiplier, float64(score)/100)
	p := math.Round(float64(base) * mult)
	if replay {
		p = math.Round(p * ReplayFactor)
	}
	return int64(p)
}

// CompletionResult reports what a demo completion credited.
type CompletionResult struct {
	DemoID           string           `json:"demoId"`
	Noop             bool             `json:"noop"`
	Replay           bool             `json:"replay"`
	Score            int              `json:"score"`
	PointsEarned     int64            `json:"pointsEarned"`
	ExperienceGained int64            `json:"experienceGained"`
	Badge            *BadgeResult     `json:"badge,omitempty"`
	LeveledUp        bool             `json:"leveledUp"`
	Account          *account.Account `json:"account"`
}

// BadgeResult reports what a badge award credited.
type BadgeResult struct {
	BadgeID          string           `json:"badgeId"`
	Noop             bool             `json:"noop"`
	PointsEarned     int64            `json:"pointsEarned"`
	ExperienceGained int64            `json:"experienceGained"`
	Account          *account.Account `json:"account,omitempty"`
}

// ClapResult reports a clap.
type ClapResult struct {
	DemoID  string           `json:"demoId"`
	Noop    bool             `json:"noop"`
	Account *account.Account `json:"account"`
}

// Options tunes the ledger.
type Options struct {
	// NewBackOff builds the retry policy for one store write.
	NewBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	return bo
}

type walletState struct {
	mu  sync.Mutex
	acc *account.Account
}

// Service is the reward ledger.
type Service struct {
	mu         sync.Mutex
	wallets    map[string]*walletState
	repo       account.Repository
	catalog    *catalog.Catalog
	history    *historysvc.Service
	notifier   notification.Sink
	newBackOff func() backoff.BackOff
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates a new ledger service. history is optional.
func NewService(
	repo account.Repository,
	cat *catalog.Catalog,
	hist *historysvc.Service,
	notifier notification.Sink,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if notifier == nil {
		notifier = notification.NopSink{}
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	return &Service{
		wallets:    make(map[string]*walletState),
		repo:       repo,
		catalog:    cat,
		history:    hist,
		notifier:   notifier,
		newBackOff: opts.NewBackOff,
		now:        time.Now,
		logger:     logger.With().Str("service", "ledger").Logger(),
	}
}

// load returns the wallet's state with its lock held.
func (s *Service) load(ctx context.Context, walletID string) (*walletState, error) {
	if walletID == "" {
		return nil, progress.Precondition("wallet not connected")
	}
	s.mu.Lock()
	w, ok := s.wallets[walletID]
	if !ok {
		w = &walletState{}
		s.wallets[walletID] = w
	}
	s.mu.Unlock()

	w.mu.Lock()
	if w.acc != nil {
		return w, nil
	}
	acc, err := s.repo.Read(ctx, walletID)
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	if acc == nil {
		acc, err = account.New(walletID, s.now())
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		create := func() error { return s.repo.Create(ctx, acc) }
		if err := backoff.Retry(create, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
			w.mu.Unlock()
			return nil, fmt.Errorf("failed to initialize account: %w", err)
		}
		s.logger.Info().Str("walletId", walletID).Msg("account initialized")
	}
	acc.Normalize()
	w.acc = acc
	return w, nil
}

// Connect loads or initializes the wallet's account.
func (s *Service) Connect(ctx context.Context, walletID string) (*account.Account, error) {
	w, err := s.load(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.acc.Clone(), nil
}

// Account returns a snapshot of the wallet's account.
func (s *Service) Account(ctx context.Context, walletID string) (*account.Account, error) {
	return s.Connect(ctx, walletID)
}

// Refresh reconciles the in-memory account with the stored record.
func (s *Service) Refresh(ctx context.Context, walletID string) (*account.Account, error) {
	w, err := s.load(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	stored, err := s.repo.Read(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	if stored != nil {
		stored.Normalize()
		w.acc = stored
	}
	return w.acc.Clone(), nil
}

// HasBadge reports whether the wallet holds badgeID.
func (s *Service) HasBadge(ctx context.Context, walletID, badgeID string) (bool, error) {
	acc, err := s.Account(ctx, walletID)
	if err != nil {
		return false, err
	}
	return acc.EarnedBadges.Has(badgeID), nil
}

// HasCompletedDemo reports whether the wallet completed demoID.
func (s *Service) HasCompletedDemo(ctx context.Context, walletID, demoID string) (bool, error) {
	acc, err := s.Account(ctx, walletID)
	if err != nil {
		return false, err
	}
	return acc.CompletedDemos.Has(demoID), nil
}

// WorkflowCompleted credits a finished session.
func (s *Service) WorkflowCompleted(ctx context.Context, evt demo.CompletionEvent) error {
	score := evt.Score
	_, err := s.CompleteDemo(ctx, evt.WalletID, evt.DemoID, &score, evt.Elapsed)
	return err
}

// CompleteDemo credits the first completion of a demo. Completing a demo the
// account already holds is a no-op. A nil score means DefaultScore.
func (s *Service) CompleteDemo(ctx context.Context, walletID, demoID string, score *int, elapsed time.Duration) (*CompletionResult, error) {
	def, ok := s.catalog.Demo(demoID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", demo.ErrUnknownDemo, demoID)
	}
	credited := DefaultScore
	if score != nil {
		if *score < 0 {
			return nil, progress.Precondition("score must be non-negative, got %d", *score)
		}
		credited = *score
	}
	if def.Pseudo {
		return nil, progress.Precondition("demo %s is completed by claiming its badge", demoID)
	}
	ctx, span := telemetry.Tracer("").Start(ctx, "ledger.CompleteDemo",
		trace.WithAttributes(attribute.String("demo", demoID), attribute.String("wallet", walletID)))
	defer span.End()

	w, err := s.load(ctx, walletID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer w.mu.Unlock()
	return s.completeLocked(ctx, w, def, credited, elapsed), nil
}

func (s *Service) completeLocked(ctx context.Context, w *walletState, def *demo.Definition, score int, elapsed time.Duration) *CompletionResult {
	acc := w.acc
	res := &CompletionResult{DemoID: def.ID, Score: score}
	if acc.CompletedDemos.Has(def.ID) {
		s.logger.Debug().Str("walletId", acc.WalletID).Str("demoId", def.ID).Msg("demo already completed")
		res.Noop = true
		res.Account = acc.Clone()
		return res
	}

	if s.history != nil {
		n, err := s.history.CountCompletions(ctx, acc.WalletID, def.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("walletId", acc.WalletID).Str("demoId", def.ID).
				Msg("completion history unavailable, treating run as first completion")
		}
		res.Replay = n > 0
	}

	before := acc.Clone()
	now := s.now()
	res.PointsEarned = Points(def.Points(), score, res.Replay)
	res.ExperienceGained = res.PointsEarned * ExperiencePerPoint
	if !def.Pseudo {
		acc.CompletedDemos.Add(def.ID)
	}
	_ = acc.AddExperienceAndPoints(res.ExperienceGained, res.PointsEarned, now)

	var awarded *badge.Badge
	if b, ok := s.catalog.Badges.ForDemo(def.ID); ok && !acc.EarnedBadges.Has(b.ID) {
		res.Badge = s.awardLocked(acc, b, now)
		awarded = b
	}
	s.persist(ctx, before, acc)
	res.LeveledUp = acc.Level > before.Level
	res.Account = acc.Clone()

	typ := history.EventDemoCompleted
	if res.Replay {
		typ = history.EventDemoReplayed
	}
	entry := history.NewEntry(acc.WalletID, typ)
	entry.DemoID = def.ID
	entry.Points = res.PointsEarned
	entry.Experience = res.ExperienceGained
	entry.WithDetail(map[string]interface{}{"score": score, "elapsedMs": elapsed.Milliseconds()})
	s.record(ctx, entry)
	if awarded != nil {
		s.recordBadge(ctx, acc.WalletID, res.Badge)
	}

	telemetry.RecordCompletion(ctx, def.ID, res.Replay, res.PointsEarned)
	s.logger.Info().
		Str("walletId", acc.WalletID).
		Str("demoId", def.ID).
		Int("score", score).
		Bool("replay", res.Replay).
		Int64("points", res.PointsEarned).
		Int("level", acc.Level).
		Msg("demo completion credited")

	s.notifier.Notify(ctx, notification.NewMessage(acc.WalletID, notification.TopicDemo, notification.LevelSuccess,
		"Points earned", fmt.Sprintf("+%d points, +%d XP for %s", res.PointsEarned, res.ExperienceGained, def.Title)).WithPayload(res))
	if awarded != nil {
		s.notifyBadge(ctx, acc.WalletID, awarded)
	}
	if res.LeveledUp {
		s.notifyLevel(ctx, acc)
	}
	return res
}

// awardLocked inserts the badge and credits its value. The caller has checked
// the badge is not held.
func (s *Service) awardLocked(acc *account.Account, b *badge.Badge, now time.Time) *BadgeResult {
	acc.EarnedBadges.Add(b.ID)
	xp := b.PointValue * ExperiencePerPoint
	_ = acc.AddExperienceAndPoints(xp, b.PointValue, now)
	return &BadgeResult{BadgeID: b.ID, PointsEarned: b.PointValue, ExperienceGained: xp}
}

// AwardBadge awards a demo badge. Awarding a held badge is a no-op. Composite
// badges are only awarded through ClaimCompositeBadge.
func (s *Service) AwardBadge(ctx context.Context, walletID, badgeID string) (*BadgeResult, error) {
	b, ok := s.catalog.Badges.Get(badgeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", badge.ErrUnknownBadge, badgeID)
	}
	if b.Kind == badge.KindComposite {
		return nil, progress.Precondition("badge %s is claimed, not awarded", badgeID)
	}
	w, err := s.load(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	acc := w.acc
	if acc.EarnedBadges.Has(b.ID) {
		s.logger.Debug().Str("walletId", walletID).Str("badgeId", b.ID).Msg("badge already held")
		return &BadgeResult{BadgeID: b.ID, Noop: true, Account: acc.Clone()}, nil
	}
	before := acc.Clone()
	res := s.awardLocked(acc, b, s.now())
	s.persist(ctx, before, acc)
	res.Account = acc.Clone()
	s.recordBadge(ctx, walletID, res)
	s.notifyBadge(ctx, walletID, b)
	if acc.Level > before.Level {
		s.notifyLevel(ctx, acc)
	}
	return res, nil
}

// ClaimCompositeBadge completes the capstone pseudo demo once every required
// badge is held; its badge mapping awards the composite badge.
func (s *Service) ClaimCompositeBadge(ctx context.Context, walletID string) (*CompletionResult, error) {
	comp, ok := s.catalog.Badges.Composite()
	if !ok {
		return nil, fmt.Errorf("%w: no composite badge defined", badge.ErrUnknownBadge)
	}
	capstone, ok := s.catalog.CapstoneDemo()
	if !ok {
		return nil, fmt.Errorf("%w: no capstone demo for %s", demo.ErrUnknownDemo, comp.ID)
	}
	ctx, span := telemetry.Tracer("").Start(ctx, "ledger.ClaimCompositeBadge",
		trace.WithAttributes(attribute.String("badge", comp.ID), attribute.String("wallet", walletID)))
	defer span.End()

	w, err := s.load(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	acc := w.acc
	if acc.EarnedBadges.Has(comp.ID) {
		return &CompletionResult{DemoID: capstone.ID, Noop: true, Account: acc.Clone()}, nil
	}
	if missing := comp.Missing(acc.EarnedBadges); len(missing) > 0 {
		err := progress.Blocked(fmt.Sprintf("%s requires every walkthrough badge", comp.Name), missing)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s.completeLocked(ctx, w, capstone, demo.MaxScore, 0), nil
}

// AddExperienceAndPoints credits experience and points directly.
func (s *Service) AddExperienceAndPoints(ctx context.Context, walletID string, experience, points int64) (*account.Account, error) {
	if experience < 0 || points < 0 {
		return nil, &progress.PreconditionError{Reason: account.ErrNegativeAward.Error()}
	}
	w, err := s.load(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	acc := w.acc
	before := acc.Clone()
	if err := acc.AddExperienceAndPoints(experience, points, s.now()); err != nil {
		return nil, err
	}
	s.persist(ctx, before, acc)

	entry := history.NewEntry(walletID, history.EventExperienceAdded)
	entry.Points = points
	entry.Experience = experience
	s.record(ctx, entry)
	if acc.Level > before.Level {
		s.notifyLevel(ctx, acc)
	}
	return acc.Clone(), nil
}

// ClapDemo records one clap per account per demo.
func (s *Service) ClapDemo(ctx context.Context, walletID, demoID string) (*ClapResult, error) {
	if _, ok := s.catalog.Demo(demoID); !ok {
		return nil, fmt.Errorf("%w: %s", demo.ErrUnknownDemo, demoID)
	}
	w, err := s.load(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	acc := w.acc
	if acc.ClappedDemos.Has(demoID) {
		return &ClapResult{DemoID: demoID, Noop: true, Account: acc.Clone()}, nil
	}
	before := acc.Clone()
	acc.ClappedDemos.Add(demoID)
	acc.UpdatedAt = s.now().UTC()
	s.persist(ctx, before, acc)

	entry := history.NewEntry(walletID, history.EventDemoClapped)
	entry.DemoID = demoID
	s.record(ctx, entry)
	telemetry.RecordClap(ctx, demoID)
	return &ClapResult{DemoID: demoID, Account: acc.Clone()}, nil
}

// persist writes the difference between before and after. Failures are
// logged; the in-memory account stays authoritative.
func (s *Service) persist(ctx context.Context, before, after *account.Account) {
	patch := account.Diff(before, after)
	if patch.IsEmpty() {
		return
	}
	attempts := 0
	write := func() error {
		attempts++
		err := s.repo.Write(ctx, after.WalletID, patch)
		if errors.Is(err, account.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(write, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		telemetry.RecordStoreFailure(ctx)
		s.logger.Warn().Err(err).
			Str("walletId", after.WalletID).
			Int("attempts", attempts).
			Msg("account write failed, keeping in-memory state")
		return
	}
	if attempts > 1 {
		s.logger.Info().Str("walletId", after.WalletID).Int("attempts", attempts).Msg("account write succeeded after retry")
	}
}

func (s *Service) record(ctx context.Context, entry *history.Entry) {
	if s.history == nil {
		return
	}
	if err := s.history.LogSync(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("walletId", entry.WalletID).
			Str("type", string(entry.Type)).
			Msg("history append failed")
	}
}

func (s *Service) recordBadge(ctx context.Context, walletID string, res *BadgeResult) {
	entry := history.NewEntry(walletID, history.EventBadgeAwarded)
	entry.BadgeID = res.BadgeID
	entry.Points = res.PointsEarned
	entry.Experience = res.ExperienceGained
	s.record(ctx, entry)
	telemetry.RecordBadge(ctx, res.BadgeID)
}

func (s *Service) notifyBadge(ctx context.Context, walletID string, b *badge.Badge) {
	s.logger.Info().Str("walletId", walletID).Str("badgeId", b.ID).Msg("badge awarded")
	s.notifier.Notify(ctx, notification.NewMessage(walletID, notification.TopicBadge, notification.LevelSuccess,
		"Badge earned", fmt.Sprintf("%s (+%d points)", b.Name, b.PointValue)).WithPayload(b))
}

func (s *Service) notifyLevel(ctx context.Context, acc *account.Account) {
	s.notifier.Notify(ctx, notification.NewMessage(acc.WalletID, notification.TopicLevel, notification.LevelSuccess,
		"Level up", fmt.Sprintf("You reached level %d", acc.Level)).WithPayload(map[string]interface{}{
		"level":      acc.Level,
		"experience": acc.Experience,
	}))
}
