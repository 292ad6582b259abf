package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// MatchService owns the match state machine from map voting onward and
// accepts the state-change reports coming back from the game-server
// integration. Reports are idempotent: a repeat of an already-applied
// report is a no-op, a report for an incompatible state is rejected.
type MatchService struct {
	db        *sql.DB
	matches   *repository.MatchRepository
	queue     *repository.QueueRepository
	allocator ServerAllocator
	rater     RatingUpdater
	locks     *MatchLocks
	cfg       *config.Config
	logger    zerolog.Logger
}

func NewMatchService(
	db *sql.DB,
	matches *repository.MatchRepository,
	queue *repository.QueueRepository,
	allocator ServerAllocator,
	rater RatingUpdater,
	locks *MatchLocks,
	cfg *config.Config,
	logger zerolog.Logger,
) *MatchService {
	return &MatchService{
		db:        db,
		matches:   matches,
		queue:     queue,
		allocator: allocator,
		rater:     rater,
		locks:     locks,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *MatchService) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	return s.matches.Get(ctx, matchID)
}

// requestServer asks the allocation collaborator for a server, retrying
// with backoff while none is available, then feeds the result through the
// same report path the external integration uses.
func (s *MatchService) requestServer(matchID, mapID string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))

	var assignment *ServerAssignment
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		a, err := s.allocator.Allocate(ctx, matchID, mapID)
		if err != nil {
			return retry.RetryableError(err)
		}
		assignment = a
		return nil
	})
	if err != nil {
		// Not fatal to the match: it stays in VETO with the map resolved
		// and the next report or manual retry assigns a server.
		s.logger.Warn().Err(err).Str("match_id", matchID).Msg("server allocation failed, will need retry")
		return
	}

	if err := s.ReportServerAssigned(ctx, matchID, assignment.IP, assignment.Port, assignment.Password); err != nil {
		s.logger.Error().Err(err).Str("match_id", matchID).Msg("failed to apply server assignment")
	}
}

// ReportServerAssigned moves a map-resolved VETO match to READY.
func (s *MatchService) ReportServerAssigned(ctx context.Context, matchID, ip string, port int, password string) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}

	if match.Status == domain.MatchReady {
		return nil
	}
	if match.Status != domain.MatchVeto || match.SelectedMap == "" {
		return domain.ErrBadTransition
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		txMatches := s.matches.WithTx(tx)
		if err := txMatches.SetServer(ctx, matchID, ip, port, password); err != nil {
			return err
		}
		return txMatches.UpdateStatus(ctx, matchID, domain.MatchReady)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("match_id", matchID).
		Str("server_ip", ip).
		Int("server_port", port).
		Str("map", match.SelectedMap).
		Msg("server assigned, match ready")
	return nil
}

// ReportMatchStarted moves a READY match to IN_PROGRESS.
func (s *MatchService) ReportMatchStarted(ctx context.Context, matchID string) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}

	if match.Status == domain.MatchInProgress {
		return nil
	}
	if match.Status != domain.MatchReady {
		return domain.ErrBadTransition
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		txMatches := s.matches.WithTx(tx)
		for _, p := range match.Players {
			if err := txMatches.SetConnected(ctx, matchID, p.PlayerID, true); err != nil {
				return err
			}
		}
		return txMatches.UpdateStatus(ctx, matchID, domain.MatchInProgress)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("match_id", matchID).Msg("match started")
	return nil
}

// ReportMatchCompleted records the final score, releases the roster's queue
// entries and hands the result to the rating collaborator. A repeat report
// for an already-COMPLETED match is a no-op so ratings never double-apply.
func (s *MatchService) ReportMatchCompleted(ctx context.Context, matchID string, teamAScore, teamBScore, winnerTeam int) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}

	if match.Status == domain.MatchCompleted {
		return nil
	}
	if match.Status != domain.MatchInProgress && match.Status != domain.MatchPaused {
		return domain.ErrBadTransition
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.matches.WithTx(tx).SetResult(ctx, matchID, teamAScore, teamBScore, winnerTeam); err != nil {
			return err
		}
		return s.queue.WithTx(tx).DeleteByMatch(ctx, matchID)
	})
	if err != nil {
		return err
	}

	match.Status = domain.MatchCompleted
	match.TeamAScore = teamAScore
	match.TeamBScore = teamBScore
	match.WinnerTeam = winnerTeam

	if err := s.rater.ApplyResult(ctx, match); err != nil {
		// The match result is committed; a failed rating pass is logged
		// rather than unwinding the completion.
		s.logger.Error().Err(err).Str("match_id", matchID).Msg("rating update failed")
	}

	s.logger.Info().
		Str("match_id", matchID).
		Int("team_a", teamAScore).
		Int("team_b", teamBScore).
		Int("winner", winnerTeam).
		Msg("match completed")
	return nil
}

// ReportPlayerDisconnected pauses an in-progress match and arms the
// reconnect deadline.
func (s *MatchService) ReportPlayerDisconnected(ctx context.Context, matchID, playerID string) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Player(playerID) == nil {
		return domain.ErrNotAPlayer
	}

	if match.Status == domain.MatchPaused {
		return s.matches.SetConnected(ctx, matchID, playerID, false)
	}
	if match.Status != domain.MatchInProgress {
		return domain.ErrBadTransition
	}

	deadline := time.Now().UTC().Add(s.cfg.PauseTimeout)
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		txMatches := s.matches.WithTx(tx)
		if err := txMatches.SetConnected(ctx, matchID, playerID, false); err != nil {
			return err
		}
		if err := txMatches.SetPauseDeadline(ctx, matchID, &deadline); err != nil {
			return err
		}
		return txMatches.UpdateStatus(ctx, matchID, domain.MatchPaused)
	})
	if err != nil {
		return err
	}

	s.SchedulePauseCheck(matchID, deadline)

	s.logger.Info().
		Str("match_id", matchID).
		Str("player_id", playerID).
		Time("pause_deadline", deadline).
		Msg("player disconnected, match paused")
	return nil
}

// ReportPlayerReconnected resumes a paused match once the full roster is
// back.
func (s *MatchService) ReportPlayerReconnected(ctx context.Context, matchID, playerID string) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	player := match.Player(playerID)
	if player == nil {
		return domain.ErrNotAPlayer
	}

	if match.Status == domain.MatchInProgress {
		return s.matches.SetConnected(ctx, matchID, playerID, true)
	}
	if match.Status != domain.MatchPaused {
		return domain.ErrBadTransition
	}

	player.Connected = true
	allConnected := true
	for _, p := range match.Players {
		if !p.Connected {
			allConnected = false
			break
		}
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		txMatches := s.matches.WithTx(tx)
		if err := txMatches.SetConnected(ctx, matchID, playerID, true); err != nil {
			return err
		}
		if !allConnected {
			return nil
		}
		if err := txMatches.SetPauseDeadline(ctx, matchID, nil); err != nil {
			return err
		}
		return txMatches.UpdateStatus(ctx, matchID, domain.MatchInProgress)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("match_id", matchID).
		Str("player_id", playerID).
		Bool("resumed", allConnected).
		Msg("player reconnected")
	return nil
}

// SchedulePauseCheck arms a one-shot check that cancels the match if it is
// still PAUSED past its reconnect deadline.
func (s *MatchService) SchedulePauseCheck(matchID string, deadline time.Time) {
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
		defer cancel()
		if err := s.finalizePause(ctx, matchID); err != nil {
			s.logger.Error().Err(err).Str("match_id", matchID).Msg("pause finalize failed")
		}
	})
}

func (s *MatchService) finalizePause(ctx context.Context, matchID string) error {
	unlock := s.locks.Lock(matchID)
	defer unlock()

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != domain.MatchPaused {
		return nil
	}

	now := time.Now().UTC()
	if match.PauseDeadline != nil && match.PauseDeadline.After(now) {
		s.SchedulePauseCheck(matchID, *match.PauseDeadline)
		return nil
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.matches.WithTx(tx).UpdateStatus(ctx, matchID, domain.MatchCancelled); err != nil {
			return err
		}
		return s.queue.WithTx(tx).DeleteByMatch(ctx, matchID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("match_id", matchID).Msg("reconnect deadline passed, match cancelled")
	return nil
}

// RecoverPaused re-arms reconnect deadlines for matches paused at the time
// of a restart.
func (s *MatchService) RecoverPaused(ctx context.Context) error {
	ids, err := s.matches.ListByStatus(ctx, domain.MatchPaused)
	if err != nil {
		return err
	}
	for _, id := range ids {
		match, err := s.matches.Get(ctx, id)
		if err != nil {
			return err
		}
		deadline := time.Now().UTC()
		if match.PauseDeadline != nil {
			deadline = *match.PauseDeadline
		}
		s.SchedulePauseCheck(id, deadline)
	}
	return nil
}
