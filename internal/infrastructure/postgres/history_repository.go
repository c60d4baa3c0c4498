package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
)

const historyColumns = `id, entry_id, wallet_id, type, demo_id, badge_id, session_id, transaction_id, points, experience, detail, signature, created_at`

// HistoryRepository implements history.Repository.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Append(ctx context.Context, e *history.Entry) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO history_entries
		(entry_id, wallet_id, type, demo_id, badge_id, session_id, transaction_id, points, experience, detail, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, e.EntryID, e.WalletID, e.Type, e.DemoID, e.BadgeID, e.SessionID, e.TransactionID, e.Points, e.Experience, nullJSON(e.Detail), e.Signature, e.CreatedAt)
	return row.Scan(&e.ID)
}

func (r *HistoryRepository) List(ctx context.Context, filter history.Filter, limit, offset int) ([]*history.Entry, error) {
	query, a := historyWhere(`SELECT `+historyColumns+` FROM history_entries`, filter)
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT " + a.next(limit)
	}
	if offset > 0 {
		query += " OFFSET " + a.next(offset)
	}
	rows, err := r.pool.Query(ctx, query, a.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*history.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *HistoryRepository) Count(ctx context.Context, filter history.Filter) (int, error) {
	query, a := historyWhere(`SELECT COUNT(1) FROM history_entries`, filter)
	var count int
	if err := r.pool.QueryRow(ctx, query, a.values...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func historyWhere(query string, filter history.Filter) (string, *args) {
	a := &args{}
	if filter.WalletID != nil {
		query += addWhere(query) + " wallet_id=" + a.next(*filter.WalletID)
	}
	if filter.DemoID != nil {
		query += addWhere(query) + " demo_id=" + a.next(*filter.DemoID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query += addWhere(query) + " type = ANY(" + a.next(types) + ")"
	}
	return query, a
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func scanEntry(row pgx.Row) (*history.Entry, error) {
	var e history.Entry
	var detail []byte
	if err := row.Scan(&e.ID, &e.EntryID, &e.WalletID, &e.Type, &e.DemoID, &e.BadgeID, &e.SessionID, &e.TransactionID, &e.Points, &e.Experience, &detail, &e.Signature, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Detail = detail
	return &e, nil
}
