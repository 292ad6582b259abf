package service

import (
	"context"
	"database/sql"
	"math"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"

	"github.com/rs/zerolog"
)

const eloK = 32

// EloRater is the default rating collaborator: standard team Elo. Each
// team is treated as one player at its average roster MMR and every member
// moves by the same delta.
type EloRater struct {
	db      *sql.DB
	players *repository.PlayerRepository
	logger  zerolog.Logger
}

func NewEloRater(db *sql.DB, players *repository.PlayerRepository, logger zerolog.Logger) *EloRater {
	return &EloRater{db: db, players: players, logger: logger}
}

func (r *EloRater) ApplyResult(ctx context.Context, match *domain.Match) error {
	var sumA, sumB, nA, nB int
	for _, p := range match.Players {
		if p.Team == domain.TeamA {
			sumA += p.MMR
			nA++
		} else {
			sumB += p.MMR
			nB++
		}
	}
	if nA == 0 || nB == 0 {
		return nil
	}

	avgA := float64(sumA) / float64(nA)
	avgB := float64(sumB) / float64(nB)
	expectedA := 1.0 / (1.0 + math.Pow(10, (avgB-avgA)/400))

	var scoreA float64
	switch match.WinnerTeam {
	case domain.TeamA:
		scoreA = 1
	case domain.TeamB:
		scoreA = 0
	default:
		scoreA = 0.5
	}

	delta := int(math.Round(eloK * (scoreA - expectedA)))

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		txPlayers := r.players.WithTx(tx)
		for _, p := range match.Players {
			rating, err := txPlayers.GetRating(ctx, p.PlayerID)
			if err != nil {
				return err
			}
			if p.Team == domain.TeamA {
				rating += delta
			} else {
				rating -= delta
			}
			if err := txPlayers.UpdateRating(ctx, p.PlayerID, rating); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("match_id", match.ID).
		Int("delta", delta).
		Int("winner", match.WinnerTeam).
		Msg("ratings updated")
	return nil
}
