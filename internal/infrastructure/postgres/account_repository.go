package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
)

// AccountRepository implements account.Repository. Collections are stored
// as JSONB so rows written by older clients in keyed-map form still decode.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Read(ctx context.Context, walletID string) (*account.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT wallet_id, level, experience, total_points, completed_demos, earned_badges, clapped_demos, created_at, updated_at
		FROM accounts WHERE wallet_id=$1
	`, walletID)
	return scanAccount(row)
}

func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	completed, earned, clapped, err := encodeSets(a.CompletedDemos, a.EarnedBadges, a.ClappedDemos)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO accounts
		(wallet_id, level, experience, total_points, completed_demos, earned_badges, clapped_demos, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.WalletID, a.Level, a.Experience, a.TotalPoints, completed, earned, clapped, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *AccountRepository) Write(ctx context.Context, walletID string, patch account.Patch) error {
	query, values, err := buildAccountUpdate(walletID, patch)
	if err != nil {
		return err
	}
	if query == "" {
		return nil
	}
	tag, err := r.pool.Exec(ctx, query, values...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// buildAccountUpdate renders the UPDATE for the fields the patch carries.
// An empty query means there is nothing to write.
func buildAccountUpdate(walletID string, patch account.Patch) (string, []interface{}, error) {
	var sets []string
	a := &args{}
	if patch.Level != nil {
		sets = append(sets, "level="+a.next(*patch.Level))
	}
	if patch.Experience != nil {
		sets = append(sets, "experience="+a.next(*patch.Experience))
	}
	if patch.TotalPoints != nil {
		sets = append(sets, "total_points="+a.next(*patch.TotalPoints))
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
			return "", nil, fmt.Errorf("failed to encode %s: %w", col.name, err)
		}
		sets = append(sets, col.name+"="+a.next(data))
	}
	if len(sets) == 0 && patch.UpdatedAt.IsZero() {
		return "", nil, nil
	}
	if !patch.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at="+a.next(patch.UpdatedAt))
	}
	query := "UPDATE accounts SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE wallet_id=" + a.next(walletID)
	return query, a.values, nil
}

func encodeSets(sets ...account.Set) (completed, earned, clapped []byte, err error) {
	out := make([][]byte, len(sets))
	for i, s := range sets {
		if out[i], err = json.Marshal(s); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode account set: %w", err)
		}
	}
	return out[0], out[1], out[2], nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	var completed, earned, clapped []byte
	if err := row.Scan(&a.WalletID, &a.Level, &a.Experience, &a.TotalPoints, &completed, &earned, &clapped, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := decodeSets(&a, completed, earned, clapped); err != nil {
		return nil, err
	}
	a.Normalize()
	return &a, nil
}

// decodeSets fills the account collections from their stored JSON. Empty
// columns decode as empty sets.
func decodeSets(a *account.Account, completed, earned, clapped []byte) error {
	for _, col := range []struct {
		raw []byte
		dst *account.Set
	}{
		{completed, &a.CompletedDemos},
		{earned, &a.EarnedBadges},
		{clapped, &a.ClappedDemos},
	} {
		if len(col.raw) == 0 {
			*col.dst = account.NewSet()
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return fmt.Errorf("failed to decode account %s: %w", a.WalletID, err)
		}
	}
	return nil
}
