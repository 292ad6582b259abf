package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"

	"github.com/rs/zerolog"
)

// QueueRepository stores waiting and matched queue entries. Expiry is lazy:
// every query treats entries past expires_at as absent, and DeleteExpired is
// only a physical cleanup sweep.
type QueueRepository struct {
	db     *sql.DB
	q      database.Querier
	logger zerolog.Logger
}

func NewQueueRepository(sqlDB *sql.DB, logger zerolog.Logger) *QueueRepository {
	return &QueueRepository{
		db:     sqlDB,
		q:      sqlDB,
		logger: logger,
	}
}

func (r *QueueRepository) WithTx(tx *sql.Tx) *QueueRepository {
	return &QueueRepository{db: r.db, q: tx, logger: r.logger}
}

// Insert writes a fresh entry. Replace semantics cover the row a lazy
// expiry left behind; callers guard against replacing a live entry.
func (r *QueueRepository) Insert(ctx context.Context, entry *domain.QueueEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO queue_entries (player_id, mmr, status, match_id, created_at, expires_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)`,
		entry.PlayerID, entry.MMR, entry.Status, entry.MatchID,
		entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return nil
}

// GetActive returns the player's non-expired WAITING or MATCHED entry, or
// nil when the player is not queued.
func (r *QueueRepository) GetActive(ctx context.Context, playerID string, now time.Time) (*domain.QueueEntry, error) {
	entry, err := scanEntry(r.q.QueryRowContext(ctx, `
		SELECT player_id, mmr, status, COALESCE(match_id, ''), created_at, expires_at
		FROM queue_entries
		WHERE player_id = ? AND expires_at > ?`,
		playerID, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return entry, nil
}

// ListWaiting returns non-expired WAITING entries oldest-first.
func (r *QueueRepository) ListWaiting(ctx context.Context, now time.Time) ([]domain.QueueEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT player_id, mmr, status, COALESCE(match_id, ''), created_at, expires_at
		FROM queue_entries
		WHERE status = ? AND expires_at > ?
		ORDER BY created_at ASC`,
		domain.QueueWaiting, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.Scan(&e.PlayerID, &e.MMR, &e.Status, &e.MatchID, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}
	return entries, nil
}

func (r *QueueRepository) CountWaiting(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE status = ? AND expires_at > ?`,
		domain.QueueWaiting, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	return count, nil
}

// DeleteWaiting removes the player's entry only if it is still WAITING; a
// MATCHED entry cannot be left voluntarily. Reports whether a row went away.
func (r *QueueRepository) DeleteWaiting(ctx context.Context, playerID string) (bool, error) {
	result, err := r.q.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE player_id = ? AND status = ?`,
		playerID, domain.QueueWaiting,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete queue entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *QueueRepository) Delete(ctx context.Context, playerID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE player_id = ?`, playerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// MarkMatched flips a set of WAITING entries to MATCHED in one statement and
// verifies every one of them was still claimable.
func (r *QueueRepository) MarkMatched(ctx context.Context, playerIDs []string, matchID string, now time.Time) error {
	if len(playerIDs) == 0 {
		return nil
	}

	args := []any{domain.QueueMatched, matchID}
	placeholders := ""
	for i, id := range playerIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, domain.QueueWaiting, now)

	result, err := r.q.ExecContext(ctx, `
		UPDATE queue_entries SET status = ?, match_id = ?
		WHERE player_id IN (`+placeholders+`) AND status = ? AND expires_at > ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to mark entries matched: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if int(affected) != len(playerIDs) {
		return fmt.Errorf("claimed %d of %d queue entries", affected, len(playerIDs))
	}
	return nil
}

func (r *QueueRepository) DeleteByMatch(ctx context.Context, matchID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE match_id = ?`, matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete match queue entries: %w", err)
	}
	return nil
}

func (r *QueueRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE status = ? AND expires_at <= ?`,
		domain.QueueWaiting, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected, nil
}

func scanEntry(row *sql.Row) (*domain.QueueEntry, error) {
	e := &domain.QueueEntry{}
	err := row.Scan(&e.PlayerID, &e.MMR, &e.Status, &e.MatchID, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}
