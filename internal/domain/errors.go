package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Precondition violations: surfaced to the caller as-is, never retried.
var (
	ErrAlreadyQueued   = errors.New("already queued")
	ErrAlreadyInMatch  = errors.New("already in an active match")
	ErrMatchNotFound   = errors.New("match not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrNotInVeto       = errors.New("match is not awaiting acceptance")
	ErrNotAPlayer      = errors.New("not a player of this match")
	ErrAlreadyAccepted = errors.New("already accepted")
	ErrNotAllAccepted  = errors.New("not all players have accepted yet")
	ErrAlreadyVoted    = errors.New("already voted")
	ErrUnknownMap      = errors.New("unknown map")
	ErrBadTransition   = errors.New("report not valid for current match state")
)

// Transient outcomes: normal steady state, retried on the next pass.
var (
	ErrNoServerAvailable = errors.New("no server available")
)

// BannedError rejects an enqueue from a player with an active ban. The
// remaining time is part of the message so the player knows exactly why.
type BannedError struct {
	Reason    BanReason
	Remaining time.Duration
	Permanent bool
}

func (e *BannedError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanently banned, reason: %s", e.Reason)
	}
	mins := int(math.Ceil(e.Remaining.Minutes()))
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("banned for %d more minutes, reason: %s", mins, e.Reason)
}

// IsUserError reports whether err is a business-rule rejection rather than
// a system failure, so the transport layer can pick the right status class.
func IsUserError(err error) bool {
	var banned *BannedError
	if errors.As(err, &banned) {
		return true
	}
	switch {
	case errors.Is(err, ErrAlreadyQueued),
		errors.Is(err, ErrAlreadyInMatch),
		errors.Is(err, ErrMatchNotFound),
		errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrNotInVeto),
		errors.Is(err, ErrNotAPlayer),
		errors.Is(err, ErrAlreadyAccepted),
		errors.Is(err, ErrNotAllAccepted),
		errors.Is(err, ErrAlreadyVoted),
		errors.Is(err, ErrUnknownMap),
		errors.Is(err, ErrBadTransition):
		return true
	}
	return false
}
