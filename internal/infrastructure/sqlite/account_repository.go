package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
)

// AccountRepository implements account.Repository.
type AccountRepository struct {
	db *sql.DB
}

func (r *AccountRepository) Read(ctx context.Context, walletID string) (*account.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT wallet_id, level, experience, total_points, completed_demos, earned_badges, clapped_demos, created_at, updated_at
		FROM accounts WHERE wallet_id = ?
	`, walletID)

	var a account.Account
	var completed, earned, clapped, createdAt, updatedAt string
	if err := row.Scan(&a.WalletID, &a.Level, &a.Experience, &a.TotalPoints, &completed, &earned, &clapped, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	for _, col := range []struct {
		raw string
		dst *account.Set
	}{
		{completed, &a.CompletedDemos},
		{earned, &a.EarnedBadges},
		{clapped, &a.ClappedDemos},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("failed to decode account %s: %w", walletID, err)
		}
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	a.Normalize()
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	sets := make([]string, 0, 3)
	for _, s := range []account.Set{a.CompletedDemos, a.EarnedBadges, a.ClappedDemos} {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode account set: %w", err)
		}
		sets = append(sets, string(data))
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts
		(wallet_id, level, experience, total_points, completed_demos, earned_badges, clapped_demos, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.WalletID, a.Level, a.Experience, a.TotalPoints, sets[0], sets[1], sets[2], formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return err
}

func (r *AccountRepository) Write(ctx context.Context, walletID string, patch account.Patch) error {
	var cols []string
	var values []interface{}
	if patch.Level != nil {
		cols = append(cols, "level = ?")
		values = append(values, *patch.Level)
	}
	if patch.Experience != nil {
		cols = append(cols, "experience = ?")
		values = append(values, *patch.Experience)
	}
	if patch.TotalPoints != nil {
		cols = append(cols, "total_points = ?")
		values = append(values, *patch.TotalPoints)
	}
	for _, col := range []struct {
		name string
		set  *account.Set
	}{
		{"completed_demos", patch.CompletedDemos},
		{"earned_badges", patch.EarnedBadges},
		{"clapped_demos", patch.ClappedDemos},
	} {
		if col.set == nil {
			continue
		}
		data, err := json.Marshal(col.set)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", col.name, err)
		}
		cols = append(cols, col.name+" = ?")
		values = append(values, string(data))
	}
	if !patch.UpdatedAt.IsZero() {
		cols = append(cols, "updated_at = ?")
		values = append(values, formatTime(patch.UpdatedAt))
	}
	if len(cols) == 0 {
		return nil
	}
	values = append(values, walletID)

	res, err := r.db.ExecContext(ctx, "UPDATE accounts SET "+strings.Join(cols, ", ")+" WHERE wallet_id = ?", values...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

// SeedRaw stores an account row with collections given as raw JSON, legacy
// keyed-map shapes included.
func (r *AccountRepository) SeedRaw(ctx context.Context, walletID string, completed, earned, clapped string, experience int64) error {
	now := formatTime(timeNow())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts
		(wallet_id, level, experience, total_points, completed_demos, earned_badges, clapped_demos, created_at, updated_at)
		VALUES (?, 0, ?, 0, ?, ?, ?, ?, ?)
	`, walletID, experience, completed, earned, clapped, now, now)
	return err
}
