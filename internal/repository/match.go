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

type MatchRepository struct {
	db     *sql.DB
	q      database.Querier
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		q:      sqlDB,
		logger: logger,
	}
}

func (r *MatchRepository) WithTx(tx *sql.Tx) *MatchRepository {
	return &MatchRepository{db: r.db, q: tx, logger: r.logger}
}

// Create persists the match row and its full roster. Run inside the same
// transaction as the queue-entry claim so the two can never diverge.
func (r *MatchRepository) Create(ctx context.Context, match *domain.Match) error {
	now := time.Now().UTC()
	match.CreatedAt = now
	match.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO matches (id, status, accept_deadline, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		match.ID, match.Status, match.AcceptDeadline, match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	for _, p := range match.Players {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO match_players (match_id, player_id, team, mmr, accepted, connected)
			VALUES (?, ?, ?, ?, ?, ?)`,
			match.ID, p.PlayerID, p.Team, p.MMR, p.Accepted, p.Connected,
		)
		if err != nil {
			return fmt.Errorf("failed to insert match player: %w", err)
		}
	}
	return nil
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	match := &domain.Match{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, status, selected_map, server_ip, server_port, server_password,
		       team_a_score, team_b_score, winner_team, accept_deadline,
		       pause_deadline, created_at, updated_at
		FROM matches WHERE id = ?`, matchID,
	).Scan(
		&match.ID, &match.Status, &match.SelectedMap, &match.ServerIP,
		&match.ServerPort, &match.ServerPassword, &match.TeamAScore,
		&match.TeamBScore, &match.WinnerTeam, &match.AcceptDeadline,
		&match.PauseDeadline, &match.CreatedAt, &match.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	if err := r.loadPlayers(ctx, match); err != nil {
		return nil, err
	}
	if err := r.loadVotes(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

func (r *MatchRepository) loadPlayers(ctx context.Context, match *domain.Match) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT match_id, player_id, team, mmr, accepted, connected
		FROM match_players WHERE match_id = ? ORDER BY team, mmr`,
		match.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load match players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.MatchPlayer
		if err := rows.Scan(&p.MatchID, &p.PlayerID, &p.Team, &p.MMR, &p.Accepted, &p.Connected); err != nil {
			return fmt.Errorf("failed to scan match player: %w", err)
		}
		match.Players = append(match.Players, p)
	}
	return rows.Err()
}

func (r *MatchRepository) loadVotes(ctx context.Context, match *domain.Match) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT match_id, player_id, map_id, cast_at
		FROM map_votes WHERE match_id = ? ORDER BY cast_at ASC`,
		match.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load map votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.MapVote
		if err := rows.Scan(&v.MatchID, &v.PlayerID, &v.MapID, &v.CastAt); err != nil {
			return fmt.Errorf("failed to scan map vote: %w", err)
		}
		match.Votes = append(match.Votes, v)
	}
	return rows.Err()
}

// GetActiveByPlayer resolves the playerId → active matchId roster index: the
// match the player belongs to with a status in {VETO, READY, IN_PROGRESS,
// PAUSED}, or nil when there is none.
func (r *MatchRepository) GetActiveByPlayer(ctx context.Context, playerID string) (*domain.Match, error) {
	var matchID string
	err := r.q.QueryRowContext(ctx, `
		SELECT m.id
		FROM matches m
		JOIN match_players mp ON mp.match_id = m.id
		WHERE mp.player_id = ? AND m.status IN (?, ?, ?, ?)
		LIMIT 1`,
		playerID, domain.MatchVeto, domain.MatchReady, domain.MatchInProgress, domain.MatchPaused,
	).Scan(&matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active match: %w", err)
	}
	return r.Get(ctx, matchID)
}

func (r *MatchRepository) ListByStatus(ctx context.Context, status domain.MatchStatus) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM matches WHERE status = ?`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MatchRepository) UpdateStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE matches SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	return nil
}

func (r *MatchRepository) SetAccepted(ctx context.Context, matchID, playerID string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE match_players SET accepted = 1 WHERE match_id = ? AND player_id = ?`,
		matchID, playerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set accepted: %w", err)
	}
	return nil
}

func (r *MatchRepository) SetConnected(ctx context.Context, matchID, playerID string, connected bool) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE match_players SET connected = ? WHERE match_id = ? AND player_id = ?`,
		connected, matchID, playerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set connected: %w", err)
	}
	return nil
}

func (r *MatchRepository) InsertVote(ctx context.Context, vote *domain.MapVote) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO map_votes (match_id, player_id, map_id, cast_at)
		VALUES (?, ?, ?, ?)`,
		vote.MatchID, vote.PlayerID, vote.MapID, vote.CastAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert map vote: %w", err)
	}
	return nil
}

func (r *MatchRepository) SetSelectedMap(ctx context.Context, matchID, mapID string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE matches SET selected_map = ?, updated_at = ? WHERE id = ?`,
		mapID, time.Now().UTC(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set selected map: %w", err)
	}
	return nil
}

func (r *MatchRepository) SetServer(ctx context.Context, matchID, ip string, port int, password string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE matches SET server_ip = ?, server_port = ?, server_password = ?, updated_at = ?
		WHERE id = ?`,
		ip, port, password, time.Now().UTC(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set server: %w", err)
	}
	return nil
}

func (r *MatchRepository) SetResult(ctx context.Context, matchID string, teamAScore, teamBScore, winnerTeam int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE matches
		SET status = ?, team_a_score = ?, team_b_score = ?, winner_team = ?, updated_at = ?
		WHERE id = ?`,
		domain.MatchCompleted, teamAScore, teamBScore, winnerTeam, time.Now().UTC(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set match result: %w", err)
	}
	return nil
}

func (r *MatchRepository) SetPauseDeadline(ctx context.Context, matchID string, deadline *time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE matches SET pause_deadline = ?, updated_at = ? WHERE id = ?`,
		deadline, time.Now().UTC(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set pause deadline: %w", err)
	}
	return nil
}
