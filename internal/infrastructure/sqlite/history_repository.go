package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
)

// HistoryRepository implements history.Repository.
type HistoryRepository struct {
	db *sql.DB
}

func (r *HistoryRepository) Append(ctx context.Context, e *history.Entry) error {
	var detail interface{}
	if len(e.Detail) > 0 {
		detail = string(e.Detail)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO history_entries
		(entry_id, wallet_id, type, demo_id, badge_id, session_id, transaction_id, points, experience, detail, signature, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntryID.String(), e.WalletID, string(e.Type), e.DemoID, e.BadgeID, uuidArg(e.SessionID), uuidArg(e.TransactionID),
		e.Points, e.Experience, detail, e.Signature, formatTime(e.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (r *HistoryRepository) List(ctx context.Context, filter history.Filter, limit, offset int) ([]*history.Entry, error) {
	where, values := historyWhere(filter)
	query := `SELECT id, entry_id, wallet_id, type, demo_id, badge_id, session_id, transaction_id, points, experience, detail, signature, created_at
		FROM history_entries` + where + " ORDER BY id DESC"
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		values = append(values, limit, offset)
	}
	rows, err := r.db.QueryContext(ctx, query, values...)
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
	where, values := historyWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM history_entries"+where, values...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func historyWhere(filter history.Filter) (string, []interface{}) {
	var conds []string
	var values []interface{}
	if filter.WalletID != nil {
		conds = append(conds, "wallet_id = ?")
		values = append(values, *filter.WalletID)
	}
	if filter.DemoID != nil {
		conds = append(conds, "demo_id = ?")
		values = append(values, *filter.DemoID)
	}
	if len(filter.Types) > 0 {
		marks := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			marks[i] = "?"
			values = append(values, string(t))
		}
		conds = append(conds, "type IN ("+strings.Join(marks, ", ")+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), values
}

func uuidArg(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", ns.String, err)
	}
	return &id, nil
}

func scanEntry(rows *sql.Rows) (*history.Entry, error) {
	var e history.Entry
	var entryID, eventType, createdAt string
	var sessionID, transactionID, detail sql.NullString
	if err := rows.Scan(&e.ID, &entryID, &e.WalletID, &eventType, &e.DemoID, &e.BadgeID, &sessionID, &transactionID,
		&e.Points, &e.Experience, &detail, &e.Signature, &createdAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(entryID)
	if err != nil {
		return nil, fmt.Errorf("invalid entry id %q: %w", entryID, err)
	}
	e.EntryID = id
	e.Type = history.EventType(eventType)
	if e.SessionID, err = parseUUID(sessionID); err != nil {
		return nil, err
	}
	if e.TransactionID, err = parseUUID(transactionID); err != nil {
		return nil, err
	}
	if detail.Valid {
		e.Detail = []byte(detail.String)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}
