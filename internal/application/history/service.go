package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
)

// Service appends and queries the signed progression history.
type Service struct {
	repo    history.Repository
	logger  zerolog.Logger
	signKey []byte
}

// NewService creates a new history service
func NewService(repo history.Repository, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "history").Logger(),
	}
}

// Log appends an entry asynchronously
func (s *Service) Log(ctx context.Context, entry *history.Entry) {
	go func() {
		if err := s.LogSync(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Error().Err(err).
				Str("walletId", entry.WalletID).
				Str("type", string(entry.Type)).
				Msg("failed to append history entry")
		}
	}()
}

// LogSync signs and appends an entry synchronously
func (s *Service) LogSync(ctx context.Context, entry *history.Entry) error {
	if len(s.signKey) > 0 {
		sig, err := history.Sign(entry, s.signKey)
		if err != nil {
			return fmt.Errorf("failed to sign history entry: %w", err)
		}
		entry.Signature = sig
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	s.logger.Debug().
		Str("entryId", entry.EntryID.String()).
		Str("walletId", entry.WalletID).
		Str("type", string(entry.Type)).
		Str("demoId", entry.DemoID).
		Str("badgeId", entry.BadgeID).
		Int64("points", entry.Points).
		Msg("history entry appended")
	return nil
}

// ListParams represents query parameters for history listing
type ListParams struct {
	WalletID string
	DemoID   *string
	Types    []history.EventType
	Limit    int
	Offset   int
}

// VerifiedEntry is an entry with its signature check result.
type VerifiedEntry struct {
	*history.Entry
	Verified bool `json:"verified"`
}

// List returns a wallet's history, newest first.
func (s *Service) List(ctx context.Context, params ListParams) ([]VerifiedEntry, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Limit > 200 {
		params.Limit = 200
	}
	wallet := params.WalletID
	filter := history.Filter{WalletID: &wallet, DemoID: params.DemoID, Types: params.Types}

	entries, err := s.repo.List(ctx, filter, params.Limit, params.Offset)
	if err != nil {
		s.logger.Error().Err(err).Str("walletId", wallet).Msg("failed to list history")
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	out := make([]VerifiedEntry, 0, len(entries))
	for _, e := range entries {
		ve := VerifiedEntry{Entry: e}
		if len(s.signKey) > 0 {
			ok, err := history.Verify(e, s.signKey)
			if err != nil {
				s.logger.Warn().Err(err).Str("entryId", e.EntryID.String()).Msg("failed to verify history entry")
			}
			ve.Verified = ok
			if !ok {
				s.logger.Warn().
					Str("entryId", e.EntryID.String()).
					Msg("history signature mismatch - possible tampering detected")
			}
		}
		out = append(out, ve)
	}
	return out, nil
}

// CountCompletions reports how many finished runs of demoID the wallet has
// on record.
func (s *Service) CountCompletions(ctx context.Context, walletID, demoID string) (int, error) {
	filter := history.Filter{WalletID: &walletID, DemoID: &demoID, Types: history.CompletionEvents}
	n, err := s.repo.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return n, nil
}
