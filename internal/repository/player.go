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

type PlayerRepository struct {
	db     *sql.DB
	q      database.Querier
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		q:      sqlDB,
		logger: logger,
	}
}

// WithTx returns a copy of the repository that runs its queries inside tx.
func (r *PlayerRepository) WithTx(tx *sql.Tx) *PlayerRepository {
	return &PlayerRepository{db: r.db, q: tx, logger: r.logger}
}

func (r *PlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	now := time.Now().UTC()
	player.CreatedAt = now
	player.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO players (id, name, steam_id, rating, ban_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		player.ID, player.Name, player.SteamID, player.Rating, player.BanCount,
		player.CreatedAt, player.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (r *PlayerRepository) Get(ctx context.Context, playerID string) (*domain.Player, error) {
	player := &domain.Player{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, steam_id, rating, ban_count, created_at, updated_at
		FROM players WHERE id = ?`, playerID,
	).Scan(
		&player.ID, &player.Name, &player.SteamID, &player.Rating,
		&player.BanCount, &player.CreatedAt, &player.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

func (r *PlayerRepository) GetRating(ctx context.Context, playerID string) (int, error) {
	var rating int
	err := r.q.QueryRowContext(ctx,
		`SELECT rating FROM players WHERE id = ?`, playerID,
	).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rating: %w", err)
	}
	return rating, nil
}

func (r *PlayerRepository) UpdateRating(ctx context.Context, playerID string, rating int) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE players SET rating = ?, updated_at = ? WHERE id = ?`,
		rating, time.Now().UTC(), playerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

func (r *PlayerRepository) IncrementBanCount(ctx context.Context, playerID string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE players SET ban_count = ban_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), playerID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment ban count: %w", err)
	}
	return nil
}
