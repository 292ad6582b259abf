package service

import (
	"context"
	"testing"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryMatchGroupsEightPlayers(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 950, 980, 1000, 1010, 1020, 1030, 1040, 1060)
	env.enqueueAll(t, ids)

	match, err := env.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, domain.MatchVeto, match.Status)
	require.Len(t, match.Players, 8)

	// Lower MMR half on team A, upper half on team B.
	teamA := map[int]bool{950: true, 980: true, 1000: true, 1010: true}
	for _, p := range match.Players {
		if teamA[p.MMR] {
			assert.Equal(t, domain.TeamA, p.Team, "mmr %d", p.MMR)
		} else {
			assert.Equal(t, domain.TeamB, p.Team, "mmr %d", p.MMR)
		}
		assert.False(t, p.Accepted)
	}

	// All eight entries are now MATCHED and point at the match.
	for _, id := range ids {
		entry, err := env.queue.GetActive(context.Background(), id, match.CreatedAt)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, domain.QueueMatched, entry.Status)
		assert.Equal(t, match.ID, entry.MatchID)
	}
}

func TestTryMatchInsufficientPlayers(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 1000, 1000, 1000, 1000, 1000, 1000, 1000)
	env.enqueueAll(t, ids)

	match, err := env.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, match)

	entries, err := env.queue.ListWaiting(context.Background(), timeNow())
	require.NoError(t, err)
	assert.Len(t, entries, 7)
}

func TestTryMatchSpreadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 500, 520, 540, 560, 1800, 1820, 1840, 1860)
	env.enqueueAll(t, ids)

	match, err := env.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, match)

	// No entries consumed: all eight still WAITING.
	entries, err := env.queue.ListWaiting(context.Background(), timeNow())
	require.NoError(t, err)
	require.Len(t, entries, 8)
	for _, e := range entries {
		assert.Equal(t, domain.QueueWaiting, e.Status)
	}
}

func TestTryMatchPicksLowestSpreadWindow(t *testing.T) {
	env := newTestEnv(t)
	// Nine waiting players; the eight lowest by MMR form the match.
	ids := env.seedPlayers(t, 950, 980, 1000, 1010, 1020, 1030, 1040, 1060, 2000)
	env.enqueueAll(t, ids)

	match, err := env.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, match)

	for _, p := range match.Players {
		assert.NotEqual(t, "p9", p.PlayerID)
	}

	entry, err := env.queue.GetActive(context.Background(), "p9", match.CreatedAt)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.QueueWaiting, entry.Status)
}

func TestTryMatchLeftoverPlayersStayQueued(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedPlayers(t, 950, 980, 1000, 1010, 1020, 1030, 1040, 1060)
	env.enqueueAll(t, ids)

	first, err := env.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	// A second pass has nobody to work with.
	second, err := env.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestMatchedPlayerCannotLeaveQueue(t *testing.T) {
	env := newTestEnv(t)
	match := env.makeMatch(t)

	playerID := match.Players[0].PlayerID
	require.NoError(t, env.queueSvc.Dequeue(context.Background(), playerID))

	entry, err := env.queue.GetActive(context.Background(), playerID, timeNow())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.QueueMatched, entry.Status)
}
