package service

import (
	"context"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"

	"github.com/rs/zerolog"
)

type QueueService struct {
	players    *repository.PlayerRepository
	queue      *repository.QueueRepository
	matches    *repository.MatchRepository
	bans       *repository.BanRepository
	matchmaker *Matchmaker
	cfg        *config.Config
	logger     zerolog.Logger
}

func NewQueueService(
	players *repository.PlayerRepository,
	queue *repository.QueueRepository,
	matches *repository.MatchRepository,
	bans *repository.BanRepository,
	matchmaker *Matchmaker,
	cfg *config.Config,
	logger zerolog.Logger,
) *QueueService {
	return &QueueService{
		players:    players,
		queue:      queue,
		matches:    matches,
		bans:       bans,
		matchmaker: matchmaker,
		cfg:        cfg,
		logger:     logger,
	}
}

// Enqueue runs the admission checks in order (ban, existing entry, active
// match), then inserts a WAITING entry with the player's current rating as
// its MMR snapshot and kicks the matchmaker.
func (s *QueueService) Enqueue(ctx context.Context, playerID string) (*domain.QueueEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	now := time.Now().UTC()

	ban, err := s.bans.GetActive(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	if ban != nil {
		s.logger.Info().
			Str("player_id", playerID).
			Str("reason", string(ban.Reason)).
			Msg("enqueue rejected, player is banned")
		return nil, &domain.BannedError{
			Reason:    ban.Reason,
			Remaining: ban.Remaining(now),
			Permanent: ban.DurationMinutes == 0,
		}
	}

	existing, err := s.queue.GetActive(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyQueued
	}

	active, err := s.matches.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		s.logger.Info().
			Str("player_id", playerID).
			Str("match_id", active.ID).
			Str("match_status", string(active.Status)).
			Msg("enqueue rejected, player is in an active match")
		return nil, domain.ErrAlreadyInMatch
	}

	rating, err := s.players.GetRating(ctx, playerID)
	if err != nil {
		return nil, err
	}

	entry := &domain.QueueEntry{
		PlayerID:  playerID,
		MMR:       rating,
		Status:    domain.QueueWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.QueueTTL),
	}
	if err := s.queue.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", playerID).
		Int("mmr", rating).
		Time("expires_at", entry.ExpiresAt).
		Msg("player enqueued")

	s.matchmaker.Kick()
	return entry, nil
}

// Dequeue removes the player's WAITING entry. A MATCHED entry stays put:
// the player either sees the match through or takes the penalty.
func (s *QueueService) Dequeue(ctx context.Context, playerID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	removed, err := s.queue.DeleteWaiting(ctx, playerID)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("player_id", playerID).
		Bool("removed", removed).
		Msg("player dequeued")
	return nil
}

type QueueState struct {
	Entry        *domain.QueueEntry
	TotalWaiting int
	Match        *domain.Match
}

func (s *QueueService) Status(ctx context.Context, playerID string) (*QueueState, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	now := time.Now().UTC()

	entry, err := s.queue.GetActive(ctx, playerID, now)
	if err != nil {
		return nil, err
	}
	total, err := s.queue.CountWaiting(ctx, now)
	if err != nil {
		return nil, err
	}
	match, err := s.matches.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return &QueueState{Entry: entry, TotalWaiting: total, Match: match}, nil
}

// RunSweeper physically deletes expired queue entries and flips expired
// bans inactive. Queries already ignore both, so timing here is not
// correctness-relevant.
func (s *QueueService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(constants.ExpirySweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if n, err := s.queue.DeleteExpired(ctx, now); err != nil {
				s.logger.Error().Err(err).Msg("queue expiry sweep failed")
			} else if n > 0 {
				s.logger.Debug().Int64("deleted", n).Msg("expired queue entries removed")
			}
			if n, err := s.bans.DeactivateExpired(ctx, now); err != nil {
				s.logger.Error().Err(err).Msg("ban expiry sweep failed")
			} else if n > 0 {
				s.logger.Debug().Int64("deactivated", n).Msg("expired bans deactivated")
			}
		}
	}
}
