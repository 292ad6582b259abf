package service

import (
	"context"
	"testing"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs a match through acceptance, voting and server assignment, returning
// it in READY.
func readyMatch(t *testing.T, env *testEnv) *domain.Match {
	t.Helper()
	match := env.makeMatch(t)
	env.acceptAll(t, match)
	for _, p := range match.Players {
		_, err := env.matchSvc.Vote(context.Background(), match.ID, p.PlayerID, "c5_parish")
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		got, err := env.matches.Get(context.Background(), match.ID)
		return err == nil && got.Status == domain.MatchReady
	}, 2*time.Second, 10*time.Millisecond)

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	return got
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	match := readyMatch(t, env)

	require.NoError(t, env.matchSvc.ReportMatchStarted(context.Background(), match.ID))

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchInProgress, got.Status)

	require.NoError(t, env.matchSvc.ReportMatchCompleted(context.Background(), match.ID, 3, 1, domain.TeamA))

	got, err = env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchCompleted, got.Status)
	assert.Equal(t, 3, got.TeamAScore)
	assert.Equal(t, 1, got.TeamBScore)
	assert.Equal(t, domain.TeamA, got.WinnerTeam)
	assert.Equal(t, 1, env.rater.callCount())

	// Roster queue entries are released: players can queue again.
	for _, p := range match.Players {
		_, err := env.queueSvc.Enqueue(context.Background(), p.PlayerID)
		require.NoError(t, err)
	}
}

func TestCompletedReportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	match := readyMatch(t, env)
	require.NoError(t, env.matchSvc.ReportMatchStarted(context.Background(), match.ID))
	require.NoError(t, env.matchSvc.ReportMatchCompleted(context.Background(), match.ID, 2, 4, domain.TeamB))

	// Same payload again: no error, no score change, no rating re-apply.
	require.NoError(t, env.matchSvc.ReportMatchCompleted(context.Background(), match.ID, 2, 4, domain.TeamB))

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchCompleted, got.Status)
	assert.Equal(t, 2, got.TeamAScore)
	assert.Equal(t, 4, got.TeamBScore)
	assert.Equal(t, 1, env.rater.callCount())
}

func TestReportsRejectIncompatibleStates(t *testing.T) {
	env := newTestEnv(t)
	match := env.makeMatch(t)

	// Start report for a match still in VETO.
	err := env.matchSvc.ReportMatchStarted(context.Background(), match.ID)
	assert.ErrorIs(t, err, domain.ErrBadTransition)

	// Completion report for a match that never started.
	err = env.matchSvc.ReportMatchCompleted(context.Background(), match.ID, 1, 0, domain.TeamA)
	assert.ErrorIs(t, err, domain.ErrBadTransition)

	// Server assignment before the map vote resolved.
	err = env.matchSvc.ReportServerAssigned(context.Background(), match.ID, "10.0.0.9", 27016, "pw")
	assert.ErrorIs(t, err, domain.ErrBadTransition)
}

func TestDisconnectPausesAndReconnectResumes(t *testing.T) {
	env := newTestEnv(t)
	match := readyMatch(t, env)
	require.NoError(t, env.matchSvc.ReportMatchStarted(context.Background(), match.ID))

	dropped := match.Players[2].PlayerID
	require.NoError(t, env.matchSvc.ReportPlayerDisconnected(context.Background(), match.ID, dropped))

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchPaused, got.Status)
	assert.False(t, got.Player(dropped).Connected)
	require.NotNil(t, got.PauseDeadline)

	require.NoError(t, env.matchSvc.ReportPlayerReconnected(context.Background(), match.ID, dropped))

	got, err = env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchInProgress, got.Status)
	assert.True(t, got.Player(dropped).Connected)
	assert.Nil(t, got.PauseDeadline)
}

func TestPauseTimeoutCancelsMatch(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.PauseTimeout = 20 * time.Millisecond
	match := readyMatch(t, env)
	require.NoError(t, env.matchSvc.ReportMatchStarted(context.Background(), match.ID))
	require.NoError(t, env.matchSvc.ReportPlayerDisconnected(context.Background(), match.ID, match.Players[0].PlayerID))

	require.Eventually(t, func() bool {
		got, err := env.matches.Get(context.Background(), match.ID)
		return err == nil && got.Status == domain.MatchCancelled
	}, 2*time.Second, 10*time.Millisecond)

	// Entries referencing the cancelled match are gone.
	for _, p := range match.Players {
		entry, err := env.queue.GetActive(context.Background(), p.PlayerID, timeNow())
		require.NoError(t, err)
		assert.Nil(t, entry)
	}
}

func TestCompletedWhilePausedStillApplies(t *testing.T) {
	env := newTestEnv(t)
	match := readyMatch(t, env)
	require.NoError(t, env.matchSvc.ReportMatchStarted(context.Background(), match.ID))
	require.NoError(t, env.matchSvc.ReportPlayerDisconnected(context.Background(), match.ID, match.Players[0].PlayerID))

	require.NoError(t, env.matchSvc.ReportMatchCompleted(context.Background(), match.ID, 4, 4, 0))

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchCompleted, got.Status)
	assert.Equal(t, 0, got.WinnerTeam)
}
