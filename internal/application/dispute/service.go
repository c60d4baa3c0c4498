package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	historysvc "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/dispute"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
)

// BoardHost runs fn against a session's board under the session lock.
type BoardHost interface {
	WithBoard(ctx context.Context, sessionID uuid.UUID, fn func(sess *demo.Session, board *dispute.Board) error) error
}

// Service handles the milestone and dispute board of dispute demos
type Service struct {
	host     BoardHost
	notifier notification.Sink
	history  *historysvc.Service
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new dispute service. history is optional.
func NewService(host BoardHost, notifier notification.Sink, hist *historysvc.Service, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.NopSink{}
	}
	return &Service{
		host:     host,
		notifier: notifier,
		history:  hist,
		now:      time.Now,
		logger:   logger.With().Str("service", "dispute").Logger(),
	}
}

func requireFunded(sess *demo.Session) error {
	if !sess.IsFinished() {
		return progress.Precondition("finish the demo steps before working the milestones")
	}
	return nil
}

// Board returns a snapshot of the session's board.
func (s *Service) Board(ctx context.Context, sessionID uuid.UUID) (*dispute.Board, error) {
	var out *dispute.Board
	err := s.host.WithBoard(ctx, sessionID, func(_ *demo.Session, b *dispute.Board) error {
		out = b.Clone()
		return nil
	})
	return out, err
}

// MarkComplete moves a milestone from pending to completed for the worker.
func (s *Service) MarkComplete(ctx context.Context, sessionID uuid.UUID, role, milestoneID string) (*dispute.Milestone, error) {
	return s.moveMilestone(ctx, sessionID, role, milestoneID, (*dispute.Board).MarkComplete)
}

// Approve moves a completed milestone to approved for the client.
func (s *Service) Approve(ctx context.Context, sessionID uuid.UUID, role, milestoneID string) (*dispute.Milestone, error) {
	return s.moveMilestone(ctx, sessionID, role, milestoneID, (*dispute.Board).Approve)
}

func (s *Service) moveMilestone(
	ctx context.Context,
	sessionID uuid.UUID,
	roleName, milestoneID string,
	move func(*dispute.Board, dispute.Role, string, time.Time) (*dispute.Milestone, error),
) (*dispute.Milestone, error) {
	role, err := dispute.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	var (
		out   dispute.Milestone
		owner ref
	)
	err = s.host.WithBoard(ctx, sessionID, func(sess *demo.Session, b *dispute.Board) error {
		if err := requireFunded(sess); err != nil {
			return err
		}
		m, err := move(b, role, milestoneID, s.now())
		if err != nil {
			return err
		}
		out = *m
		owner = refOf(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Str("milestoneId", out.ID).
		Str("role", string(role)).
		Str("status", string(out.Status)).
		Msg("milestone moved")
	s.notifier.Notify(ctx, notification.NewMessage(owner.walletID, notification.TopicDispute, notification.LevelInfo,
		"Milestone updated", fmt.Sprintf("%s is now %s", out.Title, out.Status)).WithPayload(out))
	return &out, nil
}

// RaiseDispute objects to a completed milestone. A second open dispute on the
// same milestone is rejected with a ConflictError.
func (s *Service) RaiseDispute(ctx context.Context, sessionID uuid.UUID, roleName, milestoneID, reason string) (*dispute.Dispute, error) {
	role, err := dispute.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	var (
		out   dispute.Dispute
		owner ref
	)
	err = s.host.WithBoard(ctx, sessionID, func(sess *demo.Session, b *dispute.Board) error {
		if err := requireFunded(sess); err != nil {
			return err
		}
		d, err := b.RaiseDispute(role, milestoneID, reason, s.now())
		if err != nil {
			return err
		}
		out = *d
		owner = refOf(sess)
		return nil
	})
	if err != nil {
		if progress.IsConflict(err) {
			s.logger.Debug().Err(err).Str("milestoneId", milestoneID).Msg("duplicate dispute ignored")
		}
		return nil, err
	}

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Str("disputeId", out.DisputeID.String()).
		Str("milestoneId", milestoneID).
		Msg("dispute raised")
	s.record(ctx, owner, history.EventDisputeRaised, out)
	s.notifier.Notify(ctx, notification.NewMessage(owner.walletID, notification.TopicDispute, notification.LevelWarning,
		"Dispute raised", fmt.Sprintf("Milestone %s disputed: %s", milestoneID, out.Reason)).WithPayload(out))
	return &out, nil
}

// ResolveDispute closes an open dispute with the arbitrator's decision.
func (s *Service) ResolveDispute(ctx context.Context, sessionID uuid.UUID, roleName string, disputeID uuid.UUID, resolutionName, note string) (*dispute.Dispute, error) {
	role, err := dispute.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	resolution, err := dispute.ParseResolution(resolutionName)
	if err != nil {
		return nil, err
	}
	var (
		out   dispute.Dispute
		owner ref
	)
	err = s.host.WithBoard(ctx, sessionID, func(sess *demo.Session, b *dispute.Board) error {
		if err := requireFunded(sess); err != nil {
			return err
		}
		d, err := b.ResolveDispute(role, disputeID, resolution, note, s.now())
		if err != nil {
			return err
		}
		out = *d
		owner = refOf(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Str("disputeId", disputeID.String()).
		Str("resolution", string(resolution)).
		Msg("dispute resolved")
	s.record(ctx, owner, history.EventDisputeResolved, out)
	s.notifier.Notify(ctx, notification.NewMessage(owner.walletID, notification.TopicDispute, notification.LevelSuccess,
		"Dispute resolved", fmt.Sprintf("Milestone %s resolved with %s", out.MilestoneID, resolution)).WithPayload(out))
	return &out, nil
}

// ReleaseAll releases every milestone. It is rejected without mutation while
// any milestone is not approved or any dispute is open. A successful release
// fires the completion of sessions that complete on release.
func (s *Service) ReleaseAll(ctx context.Context, sessionID uuid.UUID) (*dispute.Board, error) {
	var (
		out   *dispute.Board
		owner ref
	)
	err := s.host.WithBoard(ctx, sessionID, func(sess *demo.Session, b *dispute.Board) error {
		owner = refOf(sess)
		if err := requireFunded(sess); err != nil {
			return err
		}
		now := s.now()
		if err := b.ReleaseAll(now); err != nil {
			return err
		}
		if sess.CompleteOn == demo.CompleteOnRelease {
			sess.TriggerCompletion(now)
		}
		out = b.Clone()
		return nil
	})
	if err != nil {
		var pe *progress.PreconditionError
		if errors.As(err, &pe) && len(pe.Blockers) > 0 {
			s.logger.Info().Strs("blockers", pe.Blockers).Str("sessionId", sessionID.String()).Msg("release blocked")
			s.notifier.Notify(ctx, notification.NewMessage(owner.walletID, notification.TopicRelease, notification.LevelWarning,
				"Release blocked", strings.Join(pe.Blockers, "; ")))
		}
		return nil, err
	}

	var total int64
	for _, m := range out.Milestones {
		total += m.Amount
	}
	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Int64("amount", total).
		Msg("funds released")
	s.record(ctx, owner, history.EventFundsReleased, map[string]interface{}{"amount": total})
	s.notifier.Notify(ctx, notification.NewMessage(owner.walletID, notification.TopicRelease, notification.LevelSuccess,
		"Funds released", fmt.Sprintf("%d released across %d milestones", total, len(out.Milestones))).WithPayload(out))
	return out, nil
}

type ref struct {
	walletID  string
	demoID    string
	sessionID uuid.UUID
}

func refOf(sess *demo.Session) ref {
	return ref{walletID: sess.WalletID, demoID: sess.DemoID, sessionID: sess.SessionID}
}

func (s *Service) record(ctx context.Context, owner ref, typ history.EventType, detail interface{}) {
	if s.history == nil {
		return
	}
	entry := history.NewEntry(owner.walletID, typ)
	entry.DemoID = owner.demoID
	id := owner.sessionID
	entry.SessionID = &id
	entry.WithDetail(detail)
	s.history.Log(ctx, entry)
}
