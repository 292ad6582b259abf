package service

import (
	"context"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
)

// VoteResult is the outcome of one Vote call. Resolved is the winning map
// when this vote was the deciding one, otherwise empty.
type VoteResult struct {
	Match    *domain.Match
	Resolved string
}

// Vote records one player's map choice. Voting is a sub-phase of VETO: it
// opens once every player has accepted and closes when the map resolves.
// A second vote from the same player is rejected, not overwritten.
func (s *MatchService) Vote(ctx context.Context, matchID, playerID, mapID string) (*VoteResult, error) {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != domain.MatchVeto || match.SelectedMap != "" {
		return nil, domain.ErrNotInVeto
	}
	if match.Player(playerID) == nil {
		return nil, domain.ErrNotAPlayer
	}
	if !match.AllAccepted() {
		return nil, domain.ErrNotAllAccepted
	}
	if !domain.ValidMap(mapID) {
		return nil, domain.ErrUnknownMap
	}
	if match.HasVoted(playerID) {
		return nil, domain.ErrAlreadyVoted
	}

	vote := &domain.MapVote{
		MatchID:  matchID,
		PlayerID: playerID,
		MapID:    mapID,
		CastAt:   time.Now().UTC(),
	}
	if err := s.matches.InsertVote(ctx, vote); err != nil {
		return nil, err
	}
	match.Votes = append(match.Votes, *vote)

	s.logger.Debug().
		Str("match_id", matchID).
		Str("player_id", playerID).
		Str("map", mapID).
		Int("votes", len(match.Votes)).
		Msg("map vote cast")

	result := &VoteResult{Match: match}
	if len(match.Votes) < len(match.Players) {
		return result, nil
	}

	// Last voter resolves the vote; the per-match lock makes this the
	// single resolution point.
	winner := tallyWinner(match.Votes)
	if err := s.matches.SetSelectedMap(ctx, matchID, winner); err != nil {
		return nil, err
	}
	match.SelectedMap = winner
	result.Resolved = winner

	s.logger.Info().
		Str("match_id", matchID).
		Str("map", winner).
		Msg("map vote resolved")

	go s.requestServer(matchID, winner)
	return result, nil
}

// tallyWinner picks the map with the most votes. On a tie the map whose
// deciding (last) vote landed first wins, which keeps the outcome
// deterministic. Votes arrive ordered by cast time.
func tallyWinner(votes []domain.MapVote) string {
	counts := make(map[string]int)
	decidedAt := make(map[string]time.Time)
	for _, v := range votes {
		counts[v.MapID]++
		decidedAt[v.MapID] = v.CastAt
	}

	var winner string
	for mapID, n := range counts {
		if winner == "" {
			winner = mapID
			continue
		}
		best := counts[winner]
		switch {
		case n > best:
			winner = mapID
		case n == best && decidedAt[mapID].Before(decidedAt[winner]):
			winner = mapID
		}
	}
	return winner
}
