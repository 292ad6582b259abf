package service

import (
	"context"
	"testing"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEloRaterEvenTeams(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000)

	match := &domain.Match{ID: "m1", WinnerTeam: domain.TeamA}
	for i, id := range ids {
		team := domain.TeamA
		if i >= 4 {
			team = domain.TeamB
		}
		match.Players = append(match.Players, domain.MatchPlayer{PlayerID: id, Team: team, MMR: 1000})
	}

	rater := NewEloRater(env.db, env.players, zerolog.Nop())
	require.NoError(t, rater.ApplyResult(context.Background(), match))

	// Even teams: expected score 0.5, K=32, so the winners gain 16 each
	// and the losers lose 16.
	for i, id := range ids {
		rating, err := env.players.GetRating(context.Background(), id)
		require.NoError(t, err)
		if i < 4 {
			assert.Equal(t, 1016, rating)
		} else {
			assert.Equal(t, 984, rating)
		}
	}
}

func TestEloRaterUnderdogWinPaysMore(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 900, 900, 900, 900, 1100, 1100, 1100, 1100)

	match := &domain.Match{ID: "m2", WinnerTeam: domain.TeamA}
	for i, id := range ids {
		team := domain.TeamA
		mmr := 900
		if i >= 4 {
			team = domain.TeamB
			mmr = 1100
		}
		match.Players = append(match.Players, domain.MatchPlayer{PlayerID: id, Team: team, MMR: mmr})
	}

	rater := NewEloRater(env.db, env.players, zerolog.Nop())
	require.NoError(t, rater.ApplyResult(context.Background(), match))

	underdog, err := env.players.GetRating(context.Background(), ids[0])
	require.NoError(t, err)
	favorite, err := env.players.GetRating(context.Background(), ids[4])
	require.NoError(t, err)

	gain := underdog - 900
	loss := 1100 - favorite
	assert.Equal(t, gain, loss)
	assert.Greater(t, gain, 16, "an upset moves ratings more than an even result")
}

func TestEloRaterDrawFavorsUnderdog(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 900, 900, 900, 900, 1100, 1100, 1100, 1100)

	match := &domain.Match{ID: "m3", WinnerTeam: 0}
	for i, id := range ids {
		team := domain.TeamA
		mmr := 900
		if i >= 4 {
			team = domain.TeamB
			mmr = 1100
		}
		match.Players = append(match.Players, domain.MatchPlayer{PlayerID: id, Team: team, MMR: mmr})
	}

	rater := NewEloRater(env.db, env.players, zerolog.Nop())
	require.NoError(t, rater.ApplyResult(context.Background(), match))

	underdog, err := env.players.GetRating(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Greater(t, underdog, 900)
}
