package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/constants"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Matchmaker scans the queue and groups compatible waiting players into a
// balanced match. Passes are serialized: enqueue kicks and the periodic
// tick both funnel into TryMatch, which holds a mutex for the whole pass.
type Matchmaker struct {
	db         *sql.DB
	queue      *repository.QueueRepository
	matches    *repository.MatchRepository
	acceptance *AcceptanceService
	cfg        *config.Config
	logger     zerolog.Logger

	mu   sync.Mutex
	kick chan struct{}
}

func NewMatchmaker(
	db *sql.DB,
	queue *repository.QueueRepository,
	matches *repository.MatchRepository,
	acceptance *AcceptanceService,
	cfg *config.Config,
	logger zerolog.Logger,
) *Matchmaker {
	return &Matchmaker{
		db:         db,
		queue:      queue,
		matches:    matches,
		acceptance: acceptance,
		cfg:        cfg,
		logger:     logger,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests a matchmaking pass without blocking the caller. A pass
// already pending absorbs the kick.
func (m *Matchmaker) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.MatchmakerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.kick:
		}
		if _, err := m.TryMatch(ctx); err != nil {
			m.logger.Error().Err(err).Msg("matchmaking pass failed")
		}
	}
}

// TryMatch runs one matchmaking pass. A nil, nil return means no match was
// formed this pass (not enough players or spread too wide) — the normal
// steady-state outcome, retried on the next tick.
func (m *Matchmaker) TryMatch(ctx context.Context) (*domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	entries, err := m.queue.ListWaiting(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(entries) < m.cfg.MatchSize {
		m.logger.Debug().
			Int("waiting", len(entries)).
			Int("needed", m.cfg.MatchSize).
			Msg("not enough players")
		return nil, nil
	}

	// Stable sort keeps arrival order among equal ratings; the pass
	// considers the lowest-rated window first.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].MMR < entries[j].MMR
	})
	group := entries[:m.cfg.MatchSize]

	spread := group[len(group)-1].MMR - group[0].MMR
	if spread > m.cfg.MaxMMRSpread {
		m.logger.Debug().
			Int("spread", spread).
			Int("max_spread", m.cfg.MaxMMRSpread).
			Msg("mmr spread too large, no match formed")
		return nil, nil
	}

	match := m.buildMatch(group, now)

	err = database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if err := m.matches.WithTx(tx).Create(ctx, match); err != nil {
			return err
		}
		ids := make([]string, len(group))
		for i, e := range group {
			ids[i] = e.PlayerID
		}
		// Re-validates the claim: every entry must still be WAITING and
		// unexpired, or the whole match rolls back.
		return m.queue.WithTx(tx).MarkMatched(ctx, ids, match.ID, now)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("match_id", match.ID).
		Int("spread", spread).
		Time("accept_deadline", match.AcceptDeadline).
		Msg("match created")

	m.acceptance.Schedule(match.ID, match.AcceptDeadline)
	return match, nil
}

// buildMatch splits the MMR-sorted group down the middle: lower half team
// A, upper half team B. The group is contiguous in MMR, so team averages
// stay close.
func (m *Matchmaker) buildMatch(group []domain.QueueEntry, now time.Time) *domain.Match {
	match := &domain.Match{
		ID:             uuid.NewString(),
		Status:         domain.MatchVeto,
		AcceptDeadline: now.Add(m.cfg.AcceptTimeout),
	}

	half := len(group) / 2
	for i, e := range group {
		team := domain.TeamA
		if i >= half {
			team = domain.TeamB
		}
		match.Players = append(match.Players, domain.MatchPlayer{
			MatchID:  match.ID,
			PlayerID: e.PlayerID,
			Team:     team,
			MMR:      e.MMR,
		})
	}
	return match
}
