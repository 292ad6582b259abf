package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/config"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/database"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
	"github.com/RevTvGG/l4d2-ranked-sub000/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db         *sql.DB
	cfg        *config.Config
	players    *repository.PlayerRepository
	queue      *repository.QueueRepository
	matches    *repository.MatchRepository
	bans       *repository.BanRepository
	locks      *MatchLocks
	acceptance *AcceptanceService
	matchmaker *Matchmaker
	queueSvc   *QueueService
	matchSvc   *MatchService
	allocator  *stubAllocator
	rater      *stubRater
}

type stubAllocator struct {
	mu         sync.Mutex
	fail       bool
	allocCalls int
}

func (a *stubAllocator) Allocate(ctx context.Context, matchID, mapID string) (*ServerAssignment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocCalls++
	if a.fail {
		return nil, domain.ErrNoServerAvailable
	}
	return &ServerAssignment{IP: "10.0.0.5", Port: 27015, Password: "zv"}, nil
}

type stubRater struct {
	mu    sync.Mutex
	calls int
}

func (r *stubRater) ApplyResult(ctx context.Context, match *domain.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *stubRater) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func timeNow() time.Time { return time.Now().UTC() }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	cfg := &config.Config{
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		MatchSize:     8,
		MaxMMRSpread:  500,
		QueueTTL:      30 * time.Minute,
		AcceptTimeout: 30 * time.Second,
		PauseTimeout:  5 * time.Minute,
		AFKBanMinutes: 5,
	}

	db, err := database.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		db:        db,
		cfg:       cfg,
		players:   repository.NewPlayerRepository(db, logger),
		queue:     repository.NewQueueRepository(db, logger),
		matches:   repository.NewMatchRepository(db, logger),
		bans:      repository.NewBanRepository(db, logger),
		locks:     NewMatchLocks(),
		allocator: &stubAllocator{},
		rater:     &stubRater{},
	}
	env.acceptance = NewAcceptanceService(db, env.matches, env.queue, env.bans, env.players, env.locks, cfg, logger)
	env.matchmaker = NewMatchmaker(db, env.queue, env.matches, env.acceptance, cfg, logger)
	env.matchSvc = NewMatchService(db, env.matches, env.queue, env.allocator, env.rater, env.locks, cfg, logger)
	env.queueSvc = NewQueueService(env.players, env.queue, env.matches, env.bans, env.matchmaker, cfg, logger)
	return env
}

// seedPlayers creates players p1..pN with the given ratings and returns
// their ids.
func (e *testEnv) seedPlayers(t *testing.T, ratings ...int) []string {
	t.Helper()
	ids := make([]string, len(ratings))
	for i, rating := range ratings {
		id := fmt.Sprintf("p%d", i+1)
		player := &domain.Player{
			ID:     id,
			Name:   fmt.Sprintf("player-%d", i+1),
			Rating: rating,
		}
		require.NoError(t, e.players.Create(context.Background(), player))
		ids[i] = id
	}
	return ids
}

func (e *testEnv) enqueueAll(t *testing.T, ids []string) {
	t.Helper()
	for _, id := range ids {
		_, err := e.queueSvc.Enqueue(context.Background(), id)
		require.NoError(t, err)
	}
}

// makeMatch seeds, enqueues and matches eight evenly rated players.
func (e *testEnv) makeMatch(t *testing.T) *domain.Match {
	t.Helper()
	ids := e.seedPlayers(t, 950, 980, 1000, 1010, 1020, 1030, 1040, 1060)
	e.enqueueAll(t, ids)
	match, err := e.matchmaker.TryMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, match)
	return match
}

func (e *testEnv) acceptAll(t *testing.T, match *domain.Match) {
	t.Helper()
	for _, p := range match.Players {
		_, err := e.acceptance.Accept(context.Background(), match.ID, p.PlayerID)
		require.NoError(t, err)
	}
}
