package service

import (
	"context"
	"testing"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteRequiresAcceptanceGate(t *testing.T) {
	env := newTestEnv(t)
	match := env.makeMatch(t)

	_, err := env.matchSvc.Vote(context.Background(), match.ID, match.Players[0].PlayerID, "c5_parish")
	assert.ErrorIs(t, err, domain.ErrNotAllAccepted)
}

func TestVoteValidation(t *testing.T) {
	env := newTestEnv(t)
	match := env.makeMatch(t)
	env.acceptAll(t, match)

	voter := match.Players[0].PlayerID

	_, err := env.matchSvc.Vote(context.Background(), match.ID, "stranger", "c5_parish")
	assert.ErrorIs(t, err, domain.ErrNotAPlayer)

	_, err = env.matchSvc.Vote(context.Background(), match.ID, voter, "de_dust2")
	assert.ErrorIs(t, err, domain.ErrUnknownMap)

	_, err = env.matchSvc.Vote(context.Background(), match.ID, voter, "c5_parish")
	require.NoError(t, err)

	// Re-voting is rejected, not overwritten.
	_, err = env.matchSvc.Vote(context.Background(), match.ID, voter, "c8_nomercy")
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
}

func TestUnanimousVoteResolvesAndAssignsServer(t *testing.T) {
	env := newTestEnv(t)
	match := env.makeMatch(t)
	env.acceptAll(t, match)

	var last *VoteResult
	for _, p := range match.Players {
		result, err := env.matchSvc.Vote(context.Background(), match.ID, p.PlayerID, "c2_darkcarnival")
		require.NoError(t, err)
		last = result
	}

	require.NotNil(t, last)
	assert.Equal(t, "c2_darkcarnival", last.Resolved)
	assert.Equal(t, "c2_darkcarnival", last.Match.SelectedMap)

	// The allocation hand-off runs after resolution and moves the match
	// to READY once the collaborator confirms a server.
	require.Eventually(t, func() bool {
		got, err := env.matches.Get(context.Background(), match.ID)
		return err == nil && got.Status == domain.MatchReady
	}, 2*time.Second, 10*time.Millisecond)

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.ServerIP)
	assert.Equal(t, 27015, got.ServerPort)
	assert.Equal(t, "zv", got.ServerPassword)

	// The vote window is closed.
	_, err = env.matchSvc.Vote(context.Background(), match.ID, match.Players[0].PlayerID, "c5_parish")
	assert.ErrorIs(t, err, domain.ErrNotInVeto)
}

func TestNoServerAvailableKeepsMatchInVeto(t *testing.T) {
	env := newTestEnv(t)
	env.allocator.fail = true
	match := env.makeMatch(t)
	env.acceptAll(t, match)

	for _, p := range match.Players {
		_, err := env.matchSvc.Vote(context.Background(), match.ID, p.PlayerID, "c4_hardrain")
		require.NoError(t, err)
	}

	got, err := env.matches.Get(context.Background(), match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchVeto, got.Status)
	assert.Equal(t, "c4_hardrain", got.SelectedMap)
}

func TestTallyWinnerMajority(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var votes []domain.MapVote
	for i := 0; i < 5; i++ {
		votes = append(votes, domain.MapVote{MapID: "c1_deadcenter", CastAt: base.Add(time.Duration(i) * time.Second)})
	}
	for i := 0; i < 3; i++ {
		votes = append(votes, domain.MapVote{MapID: "c8_nomercy", CastAt: base.Add(time.Duration(i) * time.Second)})
	}

	assert.Equal(t, "c1_deadcenter", tallyWinner(votes))
}

// Four votes each: map A's deciding vote lands at t=4s, map B's at t=5s,
// so A wins the tie.
func TestTallyWinnerTieBreaksOnDecidingVote(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var votes []domain.MapVote
	for i := 1; i <= 4; i++ {
		votes = append(votes, domain.MapVote{MapID: "c1_deadcenter", CastAt: base.Add(time.Duration(i) * time.Second)})
	}
	for i := 2; i <= 5; i++ {
		votes = append(votes, domain.MapVote{MapID: "c8_nomercy", CastAt: base.Add(time.Duration(i) * time.Second)})
	}

	assert.Equal(t, "c1_deadcenter", tallyWinner(votes))

	// Flip the timing and the other map takes it.
	for i := range votes {
		if votes[i].MapID == "c8_nomercy" {
			votes[i].CastAt = votes[i].CastAt.Add(-2 * time.Second)
		}
	}
	assert.Equal(t, "c8_nomercy", tallyWinner(votes))
}
