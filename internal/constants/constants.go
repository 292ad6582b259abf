package constants

import "time"

// Matchmaking policy defaults. Overridable through config.
const (
	MatchSize     = 8
	TeamSize      = 4
	MaxMMRSpread  = 500
	DefaultRating = 1000

	QueueTTL          = 30 * time.Minute
	AcceptTimeout     = 30 * time.Second
	PauseTimeout      = 5 * time.Minute
	AFKAcceptBanMins  = 5
	MatchmakerTick    = 2 * time.Second
	ExpirySweepPeriod = 1 * time.Minute
)

const (
	ServerAssignTimeout = 10 * time.Second
	DatabaseTimeout     = 5 * time.Second
	RequestTimeout      = 30 * time.Second
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)
