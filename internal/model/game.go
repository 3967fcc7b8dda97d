package model

import "time"

// GameDef is one entry of the host-supplied game list: a named game played
// over a fixed number of rounds. The core treats it as opaque apart from the
// round count, which feeds the flattened round index.
type GameDef struct {
	Name   string `json:"name"`
	Rounds int    `json:"rounds"`
}

// TeamMember is one roster entry of a team, in join order.
type TeamMember struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"playerName"`
	IsManager   bool   `json:"isManager"`
}

// Team holds a named team's roster and score book. RoundScores is sparse:
// a nil slot means no score was ever submitted for that flattened round
// position and counts as zero.
type Team struct {
	Name        string       `json:"name"`
	Members     []TeamMember `json:"members"`
	RoundScores []*int       `json:"roundScores"`
	TotalScore  int          `json:"totalScore"`
}

// ManagerID returns the id of the member with the manager flag, or "".
func (t *Team) ManagerID() string {
	for _, m := range t.Members {
		if m.IsManager {
			return m.PlayerID
		}
	}
	return ""
}

// Player is the session-side view of a joined player. Connected is transient
// presence state and is not persisted.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	TeamName    string `json:"teamName"`
	Connected   bool   `json:"-"`
}

// BuzzRecord is one entry of the buzz queue, in arrival order.
type BuzzRecord struct {
	PlayerID string    `json:"playerId"`
	TeamName string    `json:"teamName"`
	BuzzedAt time.Time `json:"buzzedAt"`
}

// TeamSummary is the GET_TEAMS response item: name plus member count.
type TeamSummary struct {
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

// Snapshot is the read-only projection of a session sent to a (re)joining
// client or a restored host. Teams are ordered by name so the payload is
// stable across serializations.
type Snapshot struct {
	GameCode       string       `json:"gameCode"`
	CurrentGame    int          `json:"currentGame"`
	CurrentRound   int          `json:"currentRound"`
	Games          []GameDef    `json:"games"`
	Started        bool         `json:"gameStarted"`
	Ended          bool         `json:"gameEnded"`
	ScoringEnabled bool         `json:"scoringEnabled"`
	Teams          []Team       `json:"teams"`
	BuzzQueue      []BuzzRecord `json:"buzzedPlayers"`
}

// GameDocument is the persistence record written to the backing store, one
// per game code. Players are stored as [id, player] pairs to keep the
// document shape stable regardless of map iteration order.
type GameDocument struct {
	GameCode       string        `json:"gameCode"`
	HostID         string        `json:"hostId"`
	CurrentGame    int           `json:"currentGame"`
	CurrentRound   int           `json:"currentRound"`
	Games          []GameDef     `json:"games"`
	Teams          []Team        `json:"teams"`
	Players        []PlayerEntry `json:"players"`
	BuzzedPlayers  []BuzzRecord  `json:"buzzedPlayers"`
	ScoringEnabled bool          `json:"scoringEnabled"`
	GameStarted    bool          `json:"gameStarted"`
	GameEnded      bool          `json:"gameEnded"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

// PlayerEntry is one [id, player] pair in a GameDocument.
type PlayerEntry struct {
	ID     string `json:"id"`
	Player Player `json:"data"`
}

// Expired reports whether the record is past its expiry at the given instant.
func (d *GameDocument) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}
