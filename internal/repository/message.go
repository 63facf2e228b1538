package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convopulse/convopulse/internal/model"
	"github.com/convopulse/convopulse/internal/store"
)

// MessageRepository is the Postgres-backed event store. Appends are
// commutative between concurrent writers; only the committed timestamp
// matters for ordering.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository returns a MessageRepository using the given pool.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

var _ store.EventStore = (*MessageRepository)(nil)

// Append validates ev, fills server-assigned fields and inserts it.
func (r *MessageRepository) Append(ctx context.Context, ev *model.MessageEvent) error {
	if err := store.Prepare(ev, time.Now()); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, user_id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID,
		ev.UserID,
		ev.SessionID,
		ev.Role,
		ev.Content,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message event: %w", err)
	}
	return nil
}

// Query returns events matching f ordered by timestamp ascending. The WHERE
// clause is built from parameterized predicates only; filter values never
// reach the query string.
func (r *MessageRepository) Query(ctx context.Context, f store.Filter) ([]model.MessageEvent, error) {
	query := `SELECT id, user_id, session_id, role, content, created_at FROM messages`

	var conds []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		conds = append(conds, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query message events: %w", err)
	}
	defer rows.Close()

	var list []model.MessageEvent
	for rows.Next() {
		var ev model.MessageEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.UserID,
			&ev.SessionID,
			&ev.Role,
			&ev.Content,
			&ev.Timestamp,
		); err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}
