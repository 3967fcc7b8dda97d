package model

import "encoding/json"

// Inbound message discriminants. These are the wire-level `type` values
// clients send; the coordinator's dispatch table is keyed by them.
const (
	MsgCreateGame        = "CREATE_GAME"
	MsgJoinGame          = "JOIN_GAME"
	MsgRejoinGame        = "REJOIN_GAME"
	MsgGameStarted       = "GAME_STARTED"
	MsgRoundUpdate       = "ROUND_UPDATE"
	MsgPlayerBuzz        = "PLAYER_BUZZ"
	MsgClearBuzzers      = "CLEAR_BUZZERS"
	MsgClearPlayerBuzz   = "CLEAR_PLAYER_BUZZ"
	MsgClearLastBuzz     = "CLEAR_LAST_BUZZ"
	MsgEnableScoring     = "ENABLE_SCORING"
	MsgSubmitScore       = "SUBMIT_SCORE"
	MsgManagerChanged    = "MANAGER_CHANGED"
	MsgScoreUpdated      = "SCORE_UPDATED"
	MsgRevealFinalScores = "REVEAL_FINAL_SCORES"
	MsgLeaveGame         = "LEAVE_GAME"
	MsgPlayerDisconnect  = "PLAYER_DISCONNECT"
	MsgGetTeams          = "GET_TEAMS"
)

// Outbound event discriminants.
const (
	EvtGameCreated        = "GAME_CREATED"
	EvtGameRestored       = "GAME_RESTORED"
	EvtGameJoined         = "GAME_JOINED"
	EvtPlayerJoined       = "PLAYER_JOINED"
	EvtGameStarted        = "GAME_STARTED"
	EvtRoundUpdate        = "ROUND_UPDATE"
	EvtBuzzResult         = "BUZZ_RESULT"
	EvtPlayerBuzzed       = "PLAYER_BUZZED"
	EvtTeamLockedOut      = "TEAM_LOCKED_OUT"
	EvtBuzzersCleared     = "BUZZERS_CLEARED"
	EvtScoringEnabled     = "SCORING_ENABLED"
	EvtScoreSubmitted     = "SCORE_SUBMITTED"
	EvtScoreConfirmed     = "SCORE_CONFIRMED"
	EvtManagerChanged     = "MANAGER_CHANGED"
	EvtScoreUpdated       = "SCORE_UPDATED"
	EvtRevealFinalScores  = "REVEAL_FINAL_SCORES"
	EvtPlayerLeft         = "PLAYER_LEFT"
	EvtPlayerDisconnected = "PLAYER_DISCONNECTED"
	EvtTeamsList          = "TEAMS_LIST"
	EvtError              = "ERROR"
)

// Error codes carried by ERROR events.
const (
	ErrCodeInvalidFormat      = "INVALID_FORMAT"
	ErrCodeGameNotFound       = "GAME_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeTeamNotFound       = "TEAM_NOT_FOUND"
	ErrCodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
)

// Envelope is the single inbound message shape: a `type` discriminant plus
// the union of type-specific fields. Fields not named by a given message
// type are simply left at their zero value. Standings is passed through
// verbatim on REVEAL_FINAL_SCORES; the server never recomputes it.
type Envelope struct {
	Type        string          `json:"type"`
	GameCode    string          `json:"gameCode,omitempty"`
	PlayerID    string          `json:"playerId,omitempty"`
	PlayerName  string          `json:"playerName,omitempty"`
	TeamName    string          `json:"teamName,omitempty"`
	IsManager   bool            `json:"isManager,omitempty"`
	Games       []GameDef       `json:"games,omitempty"`
	Game        int             `json:"game,omitempty"`
	Round       int             `json:"round,omitempty"`
	Score       int             `json:"score,omitempty"`
	RoundScores []*int          `json:"roundScores,omitempty"`
	TotalScore  int             `json:"totalScore,omitempty"`
	Standings   json.RawMessage `json:"standings,omitempty"`
}

// Event is an outbound message: a discriminant plus free-form fields.
// Marshalled with `type` merged into the top-level object.
type Event struct {
	Type   string
	Fields map[string]any
}

// NewEvent builds an outbound event.
func NewEvent(typ string, fields map[string]any) Event {
	return Event{Type: typ, Fields: fields}
}

// ErrorEvent builds the typed error event sent back to an offending sender.
func ErrorEvent(code, message string) Event {
	return NewEvent(EvtError, map[string]any{
		"error":   code,
		"message": message,
	})
}

// MarshalJSON flattens Type into the field map.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	return json.Marshal(out)
}
