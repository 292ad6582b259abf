package domain

import (
	"time"
)

type Player struct {
	ID        string
	Name      string
	SteamID   string
	Rating    int
	BanCount  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type QueueStatus string

const (
	QueueWaiting QueueStatus = "WAITING"
	QueueMatched QueueStatus = "MATCHED"
)

// QueueEntry is one waiting player. MMR is a snapshot of the player's
// rating taken at enqueue time, not a live value.
type QueueEntry struct {
	PlayerID  string
	MMR       int
	Status    QueueStatus
	MatchID   string // set once MATCHED
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e *QueueEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

type MatchStatus string

const (
	MatchVeto       MatchStatus = "VETO"
	MatchReady      MatchStatus = "READY"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchPaused     MatchStatus = "PAUSED"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchCancelled  MatchStatus = "CANCELLED"
)

// Active reports whether the status counts as an in-flight match for the
// one-active-match-per-player invariant.
func (s MatchStatus) Active() bool {
	switch s {
	case MatchVeto, MatchReady, MatchInProgress, MatchPaused:
		return true
	}
	return false
}

const (
	TeamA = 1
	TeamB = 2
)

type MatchPlayer struct {
	MatchID   string
	PlayerID  string
	Team      int
	MMR       int
	Accepted  bool
	Connected bool
}

type MapVote struct {
	MatchID  string
	PlayerID string
	MapID    string
	CastAt   time.Time
}

// Match is the aggregate root. Players is the fixed roster set at
// creation time; Votes is the map-vote sub-state of the VETO phase.
type Match struct {
	ID             string
	Status         MatchStatus
	SelectedMap    string
	ServerIP       string
	ServerPort     int
	ServerPassword string
	TeamAScore     int
	TeamBScore     int
	WinnerTeam     int
	AcceptDeadline time.Time
	PauseDeadline  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Players        []MatchPlayer
	Votes          []MapVote
}

func (m *Match) Player(playerID string) *MatchPlayer {
	for i := range m.Players {
		if m.Players[i].PlayerID == playerID {
			return &m.Players[i]
		}
	}
	return nil
}

func (m *Match) AllAccepted() bool {
	for i := range m.Players {
		if !m.Players[i].Accepted {
			return false
		}
	}
	return len(m.Players) > 0
}

func (m *Match) Unaccepted() []MatchPlayer {
	var out []MatchPlayer
	for _, p := range m.Players {
		if !p.Accepted {
			out = append(out, p)
		}
	}
	return out
}

func (m *Match) AcceptedPlayers() []MatchPlayer {
	var out []MatchPlayer
	for _, p := range m.Players {
		if p.Accepted {
			out = append(out, p)
		}
	}
	return out
}

func (m *Match) HasVoted(playerID string) bool {
	for _, v := range m.Votes {
		if v.PlayerID == playerID {
			return true
		}
	}
	return false
}

type BanReason string

const (
	BanAFKAccept BanReason = "AFK_ACCEPT"
	BanNoJoin    BanReason = "NO_JOIN"
	BanCrash     BanReason = "CRASH"
	BanManual    BanReason = "MANUAL"
	BanTrolling  BanReason = "TROLLING"
	BanCheating  BanReason = "CHEATING"
)

// Ban is one ledger row. DurationMinutes == 0 means permanent, in which
// case ExpiresAt is nil.
type Ban struct {
	ID              string
	PlayerID        string
	Reason          BanReason
	DurationMinutes int
	MatchID         string // optional link to the triggering match
	Active          bool
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}

// InEffect evaluates both the active flag and the expiry timestamp; a ban
// still flagged active but past its expiry is already over.
func (b *Ban) InEffect(now time.Time) bool {
	if !b.Active {
		return false
	}
	if b.DurationMinutes == 0 {
		return true
	}
	if b.ExpiresAt == nil {
		return false
	}
	return b.ExpiresAt.After(now)
}

func (b *Ban) Remaining(now time.Time) time.Duration {
	if b.DurationMinutes == 0 || b.ExpiresAt == nil {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}
