package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type BanRepository struct {
	db     *sql.DB
	q      database.Querier
	logger zerolog.Logger
}

func NewBanRepository(sqlDB *sql.DB, logger zerolog.Logger) *BanRepository {
	return &BanRepository{
		db:     sqlDB,
		q:      sqlDB,
		logger: logger,
	}
}

func (r *BanRepository) WithTx(tx *sql.Tx) *BanRepository {
	return &BanRepository{db: r.db, q: tx, logger: r.logger}
}

// Create inserts a ban. duration 0 means permanent and leaves expires_at
// NULL.
func (r *BanRepository) Create(ctx context.Context, ban *domain.Ban) error {
	if ban.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate ban id: %w", err)
		}
		ban.ID = id
	}
	ban.CreatedAt = time.Now().UTC()
	if ban.DurationMinutes > 0 && ban.ExpiresAt == nil {
		expires := ban.CreatedAt.Add(time.Duration(ban.DurationMinutes) * time.Minute)
		ban.ExpiresAt = &expires
	}
	ban.Active = true

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO bans (id, player_id, reason, duration_minutes, match_id, active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		ban.ID, ban.PlayerID, ban.Reason, ban.DurationMinutes, ban.MatchID,
		ban.ExpiresAt, ban.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

// GetActive returns the player's longest-outstanding ban still in effect at
// now, or nil. Both the active flag and expires_at are evaluated, so bans
// the deactivation sweep has not reached yet are still treated as expired.
func (r *BanRepository) GetActive(ctx context.Context, playerID string, now time.Time) (*domain.Ban, error) {
	ban := &domain.Ban{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, player_id, reason, duration_minutes, match_id, active, expires_at, created_at
		FROM bans
		WHERE player_id = ? AND active = 1
		  AND (duration_minutes = 0 OR expires_at > ?)
		ORDER BY duration_minutes = 0 DESC, expires_at DESC
		LIMIT 1`,
		playerID, now,
	).Scan(
		&ban.ID, &ban.PlayerID, &ban.Reason, &ban.DurationMinutes,
		&ban.MatchID, &ban.Active, &ban.ExpiresAt, &ban.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active ban: %w", err)
	}
	return ban, nil
}

func (r *BanRepository) HasActiveBan(ctx context.Context, playerID string, now time.Time) (bool, error) {
	ban, err := r.GetActive(ctx, playerID, now)
	if err != nil {
		return false, err
	}
	return ban != nil, nil
}

func (r *BanRepository) ListByPlayer(ctx context.Context, playerID string) ([]domain.Ban, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, player_id, reason, duration_minutes, match_id, active, expires_at, created_at
		FROM bans WHERE player_id = ? ORDER BY created_at DESC`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	defer rows.Close()

	var bans []domain.Ban
	for rows.Next() {
		var b domain.Ban
		if err := rows.Scan(
			&b.ID, &b.PlayerID, &b.Reason, &b.DurationMinutes,
			&b.MatchID, &b.Active, &b.ExpiresAt, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ban row: %w", err)
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ban rows: %w", err)
	}
	return bans, nil
}

// DeactivateExpired flips the active flag off on bans already past their
// expiry. Correctness never depends on this sweep; it keeps the ledger tidy.
func (r *BanRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE bans SET active = 0
		WHERE active = 1 AND duration_minutes > 0 AND expires_at <= ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired bans: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected, nil
}
