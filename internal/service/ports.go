package service

import (
	"context"

	"github.com/RevTvGG/l4d2-ranked-sub000/internal/domain"
)

// ServerAssignment is what the game-server collaborator hands back for a
// resolved match.
type ServerAssignment struct {
	IP       string
	Port     int
	Password string
}

// ServerAllocator reserves a game server for a match. A temporary shortage
// is reported as domain.ErrNoServerAvailable and is retryable.
type ServerAllocator interface {
	Allocate(ctx context.Context, matchID, mapID string) (*ServerAssignment, error)
}

// RatingUpdater is invoked exactly once when a match completes, with the
// final roster and score already persisted.
type RatingUpdater interface {
	ApplyResult(ctx context.Context, match *domain.Match) error
}
