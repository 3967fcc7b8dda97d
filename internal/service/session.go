package service

import (
	"sort"
	"time"

	"github.com/mbendtzen/game-show-backend/internal/errs"
	"github.com/mbendtzen/game-show-backend/internal/model"
)

// Session is the state machine for a single game instance, keyed by game
// code. All mutations run under the coordinator lock; Session itself holds
// no synchronization.
type Session struct {
	Code           string
	HostID         string
	CurrentGame    int
	CurrentRound   int
	Games          []model.GameDef
	Started        bool
	Ended          bool
	ScoringEnabled bool
	Teams          map[string]*model.Team
	Players        map[string]*model.Player
	BuzzQueue      []model.BuzzRecord
	CreatedAt      time.Time
}

// NewSession creates an empty session for a fresh game code.
func NewSession(code, hostID string, now time.Time) *Session {
	return &Session{
		Code:         code,
		HostID:       hostID,
		CurrentGame:  1,
		CurrentRound: 1,
		Teams:        make(map[string]*model.Team),
		Players:      make(map[string]*model.Player),
		CreatedAt:    now,
	}
}

// AddPlayer upserts a player into the named team. Rejoining the same team
// never duplicates the roster entry, but the manager rules are reapplied on
// every call: an explicit isManager, or a team with no manager yet, makes
// this player the sole manager.
//
// Joining a different team without a prior RemovePlayer leaves the old
// roster entry behind; callers that need a clean switch must remove first.
func (s *Session) AddPlayer(playerID, name, teamName string, isManager bool) {
	team, ok := s.Teams[teamName]
	if !ok {
		team = &model.Team{Name: teamName}
		s.Teams[teamName] = team
	}

	member := false
	for _, m := range team.Members {
		if m.PlayerID == playerID {
			member = true
			break
		}
	}
	if !member {
		team.Members = append(team.Members, model.TeamMember{
			PlayerID:    playerID,
			DisplayName: name,
			IsManager:   false,
		})
	}

	if isManager || team.ManagerID() == "" {
		for i := range team.Members {
			team.Members[i].IsManager = team.Members[i].PlayerID == playerID
		}
	}

	s.Players[playerID] = &model.Player{
		ID:          playerID,
		DisplayName: name,
		TeamName:    teamName,
		Connected:   true,
	}
}

// RemovePlayer drops the player's roster membership and player record. If
// the player managed a team that still has members, the first remaining
// member is promoted; an emptied team is deleted. Any pending buzz by this
// player is removed. Returns the team name the player left, if any.
func (s *Session) RemovePlayer(playerID string) (teamName string, removed bool) {
	p, ok := s.Players[playerID]
	if !ok {
		return "", false
	}
	teamName = p.TeamName

	if team, ok := s.Teams[teamName]; ok {
		wasManager := false
		for i, m := range team.Members {
			if m.PlayerID == playerID {
				wasManager = m.IsManager
				team.Members = append(team.Members[:i], team.Members[i+1:]...)
				break
			}
		}
		if len(team.Members) == 0 {
			delete(s.Teams, teamName)
		} else if wasManager {
			for i := range team.Members {
				team.Members[i].IsManager = i == 0
			}
		}
	}

	s.ClearBuzzFor(playerID)
	delete(s.Players, playerID)
	return teamName, true
}

// Buzz appends a buzz record for the player. It fails when the player is
// unknown, the game has not started, or any teammate already holds a pending
// buzz: one live buzz per team until the queue is cleared for that team.
func (s *Session) Buzz(playerID string, now time.Time) (model.BuzzRecord, bool) {
	p, ok := s.Players[playerID]
	if !ok || !s.Started {
		return model.BuzzRecord{}, false
	}
	for _, b := range s.BuzzQueue {
		if b.TeamName == p.TeamName {
			return model.BuzzRecord{}, false
		}
	}
	rec := model.BuzzRecord{PlayerID: playerID, TeamName: p.TeamName, BuzzedAt: now}
	s.BuzzQueue = append(s.BuzzQueue, rec)
	return rec, true
}

// ClearAllBuzzes empties the buzz queue, re-arming every team.
func (s *Session) ClearAllBuzzes() {
	s.BuzzQueue = nil
}

// ClearBuzzFor removes only the pending buzz held by the given player,
// returning the team name that is re-armed by it.
func (s *Session) ClearBuzzFor(playerID string) (teamName string, ok bool) {
	for i, b := range s.BuzzQueue {
		if b.PlayerID == playerID {
			s.BuzzQueue = append(s.BuzzQueue[:i], s.BuzzQueue[i+1:]...)
			return b.TeamName, true
		}
	}
	return "", false
}

// PopLastBuzz removes and returns the most recent buzz record. This is the
// "undo last" variant of buzz clearing; ClearBuzzFor is the targeted one.
func (s *Session) PopLastBuzz() (model.BuzzRecord, bool) {
	if len(s.BuzzQueue) == 0 {
		return model.BuzzRecord{}, false
	}
	last := s.BuzzQueue[len(s.BuzzQueue)-1]
	s.BuzzQueue = s.BuzzQueue[:len(s.BuzzQueue)-1]
	return last, true
}

// FlatRoundIndex maps a 1-based (game, round) pair onto a single position in
// a team's score sequence: the round counts of all preceding games plus the
// zero-based round. Stable only while the game list is unchanged.
func (s *Session) FlatRoundIndex(game, round int) int {
	idx := round - 1
	for i := 0; i < game-1 && i < len(s.Games); i++ {
		idx += s.Games[i].Rounds
	}
	return idx
}

// SubmitScore records a score for the team at the flattened round position
// and recomputes the total. Only the team's current manager may submit.
func (s *Session) SubmitScore(playerID, teamName string, game, round, score int) (index, total int, err error) {
	team, ok := s.Teams[teamName]
	if !ok {
		return 0, 0, errs.ErrTeamNotFound
	}
	if team.ManagerID() != playerID {
		return 0, 0, errs.ErrUnauthorized
	}

	index = s.FlatRoundIndex(game, round)
	for len(team.RoundScores) <= index {
		team.RoundScores = append(team.RoundScores, nil)
	}
	v := score
	team.RoundScores[index] = &v

	total = 0
	for _, rs := range team.RoundScores {
		if rs != nil {
			total += *rs
		}
	}
	team.TotalScore = total
	return index, total, nil
}

// SetScores overwrites a team's score book without recomputation. This is
// the host's correction path; the caller is trusted.
func (s *Session) SetScores(teamName string, roundScores []*int, totalScore int) {
	team, ok := s.Teams[teamName]
	if !ok {
		return
	}
	team.RoundScores = roundScores
	team.TotalScore = totalScore
}

// SetManager makes the named member the team's sole manager. No-op if the
// team is absent.
func (s *Session) SetManager(teamName, managerID string) {
	team, ok := s.Teams[teamName]
	if !ok {
		return
	}
	for i := range team.Members {
		team.Members[i].IsManager = team.Members[i].PlayerID == managerID
	}
}

// TeamSummaries returns team names with member counts, ordered by name.
func (s *Session) TeamSummaries() []model.TeamSummary {
	out := make([]model.TeamSummary, 0, len(s.Teams))
	for _, t := range s.Teams {
		out = append(out, model.TeamSummary{Name: t.Name, MemberCount: len(t.Members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot produces the read-only projection sent to a (re)joining client.
func (s *Session) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		GameCode:       s.Code,
		CurrentGame:    s.CurrentGame,
		CurrentRound:   s.CurrentRound,
		Games:          append([]model.GameDef(nil), s.Games...),
		Started:        s.Started,
		Ended:          s.Ended,
		ScoringEnabled: s.ScoringEnabled,
		Teams:          s.sortedTeams(),
		BuzzQueue:      append([]model.BuzzRecord(nil), s.BuzzQueue...),
	}
	return snap
}

// ToDocument serializes the session into its persistence record.
func (s *Session) ToDocument(now time.Time, ttl time.Duration) *model.GameDocument {
	doc := &model.GameDocument{
		GameCode:       s.Code,
		HostID:         s.HostID,
		CurrentGame:    s.CurrentGame,
		CurrentRound:   s.CurrentRound,
		Games:          append([]model.GameDef(nil), s.Games...),
		Teams:          s.sortedTeams(),
		BuzzedPlayers:  append([]model.BuzzRecord(nil), s.BuzzQueue...),
		ScoringEnabled: s.ScoringEnabled,
		GameStarted:    s.Started,
		GameEnded:      s.Ended,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      now.Add(ttl),
	}
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc.Players = append(doc.Players, model.PlayerEntry{ID: id, Player: *s.Players[id]})
	}
	return doc
}

// SessionFromDocument rebuilds a session from its persistence record.
// Connection state is not persisted, so every player starts disconnected.
func SessionFromDocument(doc *model.GameDocument) *Session {
	s := &Session{
		Code:           doc.GameCode,
		HostID:         doc.HostID,
		CurrentGame:    doc.CurrentGame,
		CurrentRound:   doc.CurrentRound,
		Games:          doc.Games,
		Started:        doc.GameStarted,
		Ended:          doc.GameEnded,
		ScoringEnabled: doc.ScoringEnabled,
		Teams:          make(map[string]*model.Team, len(doc.Teams)),
		Players:        make(map[string]*model.Player, len(doc.Players)),
		BuzzQueue:      append([]model.BuzzRecord(nil), doc.BuzzedPlayers...),
		CreatedAt:      doc.CreatedAt,
	}
	for i := range doc.Teams {
		t := doc.Teams[i]
		s.Teams[t.Name] = &t
	}
	for _, e := range doc.Players {
		p := e.Player
		p.ID = e.ID
		p.Connected = false
		s.Players[p.ID] = &p
	}
	return s
}

// sortedTeams returns fully detached team copies. Documents are marshaled
// on persistence goroutines after the coordinator lock is released, so no
// slice here may alias live session state.
func (s *Session) sortedTeams() []model.Team {
	out := make([]model.Team, 0, len(s.Teams))
	for _, t := range s.Teams {
		c := *t
		c.Members = append([]model.TeamMember(nil), t.Members...)
		c.RoundScores = make([]*int, len(t.RoundScores))
		for i, rs := range t.RoundScores {
			if rs != nil {
				v := *rs
				c.RoundScores[i] = &v
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
