package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// AcceptanceService enforces the acceptance deadline on matches in VETO.
// The deadline lives on the match row, so a restart re-arms every pending
// timer from the database instead of losing it with the process.
type AcceptanceService struct {
	db      *sql.DB
	matches *repository.MatchRepository
	queue   *repository.QueueRepository
	bans    *repository.BanRepository
	players *repository.PlayerRepository
	locks   *MatchLocks
	cfg     *config.Config
	logger  zerolog.Logger
}

func NewAcceptanceService(
	db *sql.DB,
	matches *repository.MatchRepository,
	queue *repository.QueueRepository,
	bans *repository.BanRepository,
	players *repository.PlayerRepository,
	locks *MatchLocks,
	cfg *config.Config,
	logger zerolog.Logger,
) *AcceptanceService {
	return &AcceptanceService{
		db:      db,
		matches: matches,
		queue:   queue,
		bans:    bans,
		players: players,
		locks:   locks,
		cfg:     cfg,
		logger:  logger,
	}
}

// Schedule arms a one-shot deadline check for the match. Re-arming an
// already-decided match is harmless: Finalize no-ops on anything not in
// VETO.
func (s *AcceptanceService) Schedule(matchID string, deadline time.Time) {
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
		defer cancel()
		if err := s.Finalize(ctx, matchID); err != nil {
			s.logger.Error().Err(err).Str("match_id", matchID).Msg("acceptance finalize failed")
		}
	})
}

// RecoverPending re-arms deadline checks for every match still in VETO,
// called once on startup.
func (s *AcceptanceService) RecoverPending(ctx context.Context) error {
	ids, err := s.matches.ListByStatus(ctx, domain.MatchVeto)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			match, err := s.matches.Get(gCtx, id)
			if err != nil {
				return err
			}
			s.Schedule(match.ID, match.AcceptDeadline)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(ids) > 0 {
		s.logger.Info().Int("count", len(ids)).Msg("pending acceptance deadlines re-armed")
	}
	return nil
}

// Accept records one player's readiness confirmation.
func (s *AcceptanceService) Accept(ctx context.Context, matchID, playerID string) (*domain.Match, error) {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != domain.MatchVeto {
		return nil, domain.ErrNotInVeto
	}

	player := match.Player(playerID)
	if player == nil {
		return nil, domain.ErrNotAPlayer
	}
	if player.Accepted {
		return nil, domain.ErrAlreadyAccepted
	}

	if err := s.matches.SetAccepted(ctx, matchID, playerID); err != nil {
		return nil, err
	}
	player.Accepted = true

	if match.AllAccepted() {
		s.logger.Info().Str("match_id", matchID).Msg("all players accepted, map vote open")
	} else {
		s.logger.Debug().
			Str("match_id", matchID).
			Str("player_id", playerID).
			Int("outstanding", len(match.Unaccepted())).
			Msg("player accepted")
	}
	return match, nil
}

// Finalize is the deadline sweep. It re-checks the match under the same
// per-match lock Accept uses, so the decision between "fully accepted" and
// "cancel and penalize" is made exactly once, whichever path gets there
// first.
func (s *AcceptanceService) Finalize(ctx context.Context, matchID string) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if errors.Is(err, domain.ErrMatchNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if match.Status != domain.MatchVeto {
		// Already decided by a faster path; the timer lost the race.
		return nil
	}
	if match.AllAccepted() {
		// Acceptance gate satisfied; map voting drives progression from
		// here, the timer has nothing to do.
		return nil
	}

	now := time.Now().UTC()
	if match.AcceptDeadline.After(now) {
		// Re-armed early (recovery path); push the check to the real
		// deadline.
		s.Schedule(matchID, match.AcceptDeadline)
		return nil
	}

	return s.penalize(ctx, match, now)
}

// penalize cancels the match, bans every non-acceptor and returns the
// acceptors to the back of the queue, all in one transaction so a partial
// failure is retryable from scratch.
func (s *AcceptanceService) penalize(ctx context.Context, match *domain.Match, now time.Time) error {
	nonAcceptors := match.Unaccepted()
	acceptors := match.AcceptedPlayers()

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		txMatches := s.matches.WithTx(tx)
		txQueue := s.queue.WithTx(tx)
		txBans := s.bans.WithTx(tx)
		txPlayers := s.players.WithTx(tx)

		for _, p := range nonAcceptors {
			ban := &domain.Ban{
				PlayerID:        p.PlayerID,
				Reason:          domain.BanAFKAccept,
				DurationMinutes: s.cfg.AFKBanMinutes,
				MatchID:         match.ID,
			}
			if err := txBans.Create(ctx, ban); err != nil {
				return err
			}
			if err := txPlayers.IncrementBanCount(ctx, p.PlayerID); err != nil {
				return err
			}
		}

		if err := txMatches.UpdateStatus(ctx, match.ID, domain.MatchCancelled); err != nil {
			return err
		}

		// Drop every entry still pointing at the cancelled match, then
		// give acceptors a fresh WAITING entry at the back of the queue.
		if err := txQueue.DeleteByMatch(ctx, match.ID); err != nil {
			return err
		}
		for _, p := range acceptors {
			rating, err := txPlayers.GetRating(ctx, p.PlayerID)
			if err != nil {
				return err
			}
			entry := &domain.QueueEntry{
				PlayerID:  p.PlayerID,
				MMR:       rating,
				Status:    domain.QueueWaiting,
				CreatedAt: now,
				ExpiresAt: now.Add(s.cfg.QueueTTL),
			}
			if err := txQueue.Insert(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("match_id", match.ID).
		Int("banned", len(nonAcceptors)).
		Int("requeued", len(acceptors)).
		Msg("acceptance deadline passed, match cancelled")
	return nil
}
