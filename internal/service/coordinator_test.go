package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/clock"
	"github.com/mbendtzen/game-show-backend/internal/config"
	"github.com/mbendtzen/game-show-backend/internal/errs"
	"github.com/mbendtzen/game-show-backend/internal/model"
)

// memStore is an in-memory Store for coordinator tests.
type memStore struct {
	mu   sync.Mutex
	docs map[string]*model.GameDocument
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*model.GameDocument)}
}

func (m *memStore) Save(_ context.Context, doc *model.GameDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.GameCode] = doc
	return nil
}

func (m *memStore) Load(_ context.Context, code string) (*model.GameDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[code]
	if !ok {
		return nil, errs.ErrGameNotFound
	}
	return doc, nil
}

func (m *memStore) Close() error { return nil }

var errStoreDown = errors.New("store down")

// failStore always fails, to prove persistence errors never reach clients.
type failStore struct{}

func (failStore) Save(context.Context, *model.GameDocument) error { return errStoreDown }
func (failStore) Load(context.Context, string) (*model.GameDocument, error) {
	return nil, errStoreDown
}
func (failStore) Close() error { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SessionMaxAge = time.Hour
	cfg.SweepInterval = time.Hour
	cfg.HostAbandonDelay = 20 * time.Millisecond
	cfg.RecordTTL = 4 * time.Hour
	cfg.StoreTimeout = time.Second
	return cfg
}

type harness struct {
	t     *testing.T
	coord *Coordinator
	store *memStore
	clk   *clock.Fixed
}

func newHarness(t *testing.T) *harness {
	st := newMemStore()
	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	coord := NewCoordinator(testConfig(), st, clk, zap.NewNop())
	return &harness{t: t, coord: coord, store: st, clk: clk}
}

func (h *harness) connect(id string) *Conn {
	conn := NewConn(id)
	h.coord.Register(conn)
	return conn
}

func (h *harness) sendJSON(connID string, msg map[string]any) {
	raw, err := json.Marshal(msg)
	require.NoError(h.t, err)
	h.coord.HandleMessage(connID, raw)
}

// recv pops the next queued event for a connection, decoded to a map.
func recv(t *testing.T, conn *Conn) map[string]any {
	select {
	case raw := <-conn.Send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	default:
		t.Fatalf("no event queued for conn %s", conn.ID)
		return nil
	}
}

func drain(conn *Conn) {
	for {
		select {
		case <-conn.Send:
		default:
			return
		}
	}
}

func (h *harness) createGame(host *Conn, code string) {
	h.sendJSON(host.ID, map[string]any{"type": "CREATE_GAME", "gameCode": code, "playerId": "host-1"})
	drain(host)
}

func (h *harness) joinGame(conn *Conn, code, playerID, name, team string) {
	h.sendJSON(conn.ID, map[string]any{
		"type": "JOIN_GAME", "gameCode": code,
		"playerId": playerID, "playerName": name, "teamName": team,
	})
	drain(conn)
}

func (h *harness) startGame(host *Conn, code string) {
	h.sendJSON(host.ID, map[string]any{
		"type": "GAME_STARTED", "gameCode": code,
		"games": []map[string]any{{"name": "Trivia", "rounds": 3}},
	})
}

func TestCreateGameFreshCode(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")

	h.sendJSON(host.ID, map[string]any{"type": "CREATE_GAME", "gameCode": "123456", "playerId": "host-1"})

	evt := recv(t, host)
	assert.Equal(t, "GAME_CREATED", evt["type"])
	assert.Equal(t, "123456", evt["gameCode"])
	assert.Equal(t, 1, h.coord.ActiveGames())
}

func TestCreateGameMissingCode(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")

	h.sendJSON(host.ID, map[string]any{"type": "CREATE_GAME"})

	evt := recv(t, host)
	assert.Equal(t, "ERROR", evt["type"])
	assert.Equal(t, "INVALID_FORMAT", evt["error"])
}

func TestInvalidJSONAnsweredWithInvalidFormat(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("c-1")

	h.coord.HandleMessage(conn.ID, []byte("{nope"))

	evt := recv(t, conn)
	assert.Equal(t, "ERROR", evt["type"])
	assert.Equal(t, "INVALID_FORMAT", evt["error"])
}

func TestUnknownMessageType(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("c-1")

	h.sendJSON(conn.ID, map[string]any{"type": "DO_A_FLIP"})

	evt := recv(t, conn)
	assert.Equal(t, "ERROR", evt["type"])
	assert.Equal(t, "UNKNOWN_MESSAGE_TYPE", evt["error"])
}

func TestJoinGameNotFound(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("c-1")

	h.sendJSON(conn.ID, map[string]any{
		"type": "JOIN_GAME", "gameCode": "999999",
		"playerId": "p1", "playerName": "Alice", "teamName": "Red",
	})

	evt := recv(t, conn)
	assert.Equal(t, "ERROR", evt["type"])
	assert.Equal(t, "GAME_NOT_FOUND", evt["error"])
}

func TestJoinGameNotifiesHostWithRoster(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")

	h.sendJSON(p1.ID, map[string]any{
		"type": "JOIN_GAME", "gameCode": "123456",
		"playerId": "p1", "playerName": "Alice", "teamName": "Red",
	})

	joined := recv(t, p1)
	assert.Equal(t, "GAME_JOINED", joined["type"])
	require.Contains(t, joined, "snapshot")

	hostEvt := recv(t, host)
	assert.Equal(t, "PLAYER_JOINED", hostEvt["type"])
	assert.Equal(t, "Alice", hostEvt["playerName"])
	assert.Equal(t, "Red", hostEvt["teamName"])
}

// Host-only operations from a non-host get an explicit UNAUTHORIZED error.
// The deployed predecessor silently dropped these; the explicit reply is a
// deliberate change so misbehaving clients are debuggable.
func TestHostOnlyOpRejectedForPlayer(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")

	h.sendJSON(p1.ID, map[string]any{"type": "CLEAR_BUZZERS", "gameCode": "123456"})

	evt := recv(t, p1)
	assert.Equal(t, "ERROR", evt["type"])
	assert.Equal(t, "UNAUTHORIZED", evt["error"])
}

func TestBuzzRaceWithinTeam(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	p2 := h.connect("c-p2")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.joinGame(p2, "123456", "p2", "Bob", "Red")
	h.startGame(host, "123456")
	drain(host)
	drain(p1)
	drain(p2)

	h.sendJSON(p1.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})

	res := recv(t, p1)
	assert.Equal(t, "BUZZ_RESULT", res["type"])
	assert.Equal(t, true, res["accepted"])

	hostEvt := recv(t, host)
	assert.Equal(t, "PLAYER_BUZZED", hostEvt["type"])
	assert.Equal(t, "p1", hostEvt["playerId"])

	locked := recv(t, p2)
	assert.Equal(t, "TEAM_LOCKED_OUT", locked["type"])

	h.sendJSON(p2.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p2"})
	res = recv(t, p2)
	assert.Equal(t, "BUZZ_RESULT", res["type"])
	assert.Equal(t, false, res["accepted"])
	assert.Equal(t, "teammate already buzzed", res["reason"])
}

func TestBuzzBeforeStart(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")

	h.sendJSON(p1.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})

	res := recv(t, p1)
	assert.Equal(t, false, res["accepted"])
	assert.Equal(t, "game not started", res["reason"])
}

func TestClearBuzzersBroadcast(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.startGame(host, "123456")
	drain(p1)
	h.sendJSON(p1.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})
	drain(p1)
	drain(host)

	h.sendJSON(host.ID, map[string]any{"type": "CLEAR_BUZZERS", "gameCode": "123456"})

	evt := recv(t, p1)
	assert.Equal(t, "BUZZERS_CLEARED", evt["type"])

	sess, ok := h.coord.registry.Get("123456")
	require.True(t, ok)
	assert.Empty(t, sess.BuzzQueue)
}

func TestRoundUpdateBroadcastSkipsHost(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	p2 := h.connect("c-p2")
	h.joinGame(p2, "123456", "p2", "Bob", "Blue")
	h.startGame(host, "123456")
	drain(p1)
	drain(p2)
	drain(host)

	h.sendJSON(host.ID, map[string]any{"type": "ROUND_UPDATE", "gameCode": "123456", "game": 1, "round": 2})

	for _, conn := range []*Conn{p1, p2} {
		evt := recv(t, conn)
		assert.Equal(t, "ROUND_UPDATE", evt["type"])
		assert.Equal(t, float64(2), evt["round"])
	}
	assert.Zero(t, len(host.Send), "sender gets no echo")
}

func TestEnableScoringBroadcastSkipsHost(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.startGame(host, "123456")
	drain(p1)
	drain(host)

	h.sendJSON(host.ID, map[string]any{"type": "ENABLE_SCORING", "gameCode": "123456"})

	evt := recv(t, p1)
	assert.Equal(t, "SCORING_ENABLED", evt["type"])
	assert.Zero(t, len(host.Send), "sender gets no echo")
}

func TestClearPlayerBuzzNotifiesOnlyThatTeam(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	p2 := h.connect("c-p2")
	h.joinGame(p2, "123456", "p2", "Bob", "Blue")
	h.startGame(host, "123456")
	h.sendJSON(p1.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})
	h.sendJSON(p2.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p2"})
	drain(p1)
	drain(p2)
	drain(host)

	h.sendJSON(host.ID, map[string]any{"type": "CLEAR_PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})

	evt := recv(t, p1)
	assert.Equal(t, "BUZZERS_CLEARED", evt["type"])
	assert.Equal(t, "Red", evt["teamName"])
	assert.Zero(t, len(p2.Send), "other team is not re-armed")
	assert.Zero(t, len(host.Send))

	sess, ok := h.coord.registry.Get("123456")
	require.True(t, ok)
	require.Len(t, sess.BuzzQueue, 1)
	assert.Equal(t, "p2", sess.BuzzQueue[0].PlayerID)
}

func TestClearLastBuzzNotifiesLastTeam(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	p2 := h.connect("c-p2")
	h.joinGame(p2, "123456", "p2", "Bob", "Blue")
	h.startGame(host, "123456")
	h.sendJSON(p1.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})
	h.sendJSON(p2.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p2"})
	drain(p1)
	drain(p2)
	drain(host)

	h.sendJSON(host.ID, map[string]any{"type": "CLEAR_LAST_BUZZ", "gameCode": "123456"})

	evt := recv(t, p2)
	assert.Equal(t, "BUZZERS_CLEARED", evt["type"])
	assert.Equal(t, "Blue", evt["teamName"])
	assert.Zero(t, len(p1.Send), "earlier buzz stays locked in")

	sess, ok := h.coord.registry.Get("123456")
	require.True(t, ok)
	require.Len(t, sess.BuzzQueue, 1)
	assert.Equal(t, "p1", sess.BuzzQueue[0].PlayerID)
}

func TestSubmitScoreFlow(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.startGame(host, "123456")
	drain(host)
	drain(p1)

	h.sendJSON(p1.ID, map[string]any{
		"type": "SUBMIT_SCORE", "gameCode": "123456",
		"playerId": "p1", "teamName": "Red", "game": 1, "round": 1, "score": 50,
	})

	confirmed := recv(t, p1)
	assert.Equal(t, "SCORE_CONFIRMED", confirmed["type"])
	assert.Equal(t, float64(0), confirmed["roundIndex"])
	assert.Equal(t, float64(50), confirmed["totalScore"])

	hostEvt := recv(t, host)
	assert.Equal(t, "SCORE_SUBMITTED", hostEvt["type"])
	assert.Equal(t, float64(50), hostEvt["totalScore"])
}

func TestSubmitScoreNonManagerRejected(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	p2 := h.connect("c-p2")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.joinGame(p2, "123456", "p2", "Bob", "Red")
	h.startGame(host, "123456")
	drain(host)
	drain(p1)
	drain(p2)

	h.sendJSON(p2.ID, map[string]any{
		"type": "SUBMIT_SCORE", "gameCode": "123456",
		"playerId": "p2", "teamName": "Red", "game": 1, "round": 1, "score": 99,
	})

	evt := recv(t, p2)
	assert.Equal(t, "ERROR", evt["type"])
	assert.Equal(t, "UNAUTHORIZED", evt["error"])
}

func TestGetTeams(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	p2 := h.connect("c-p2")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.joinGame(p2, "123456", "p2", "Bob", "Red")
	drain(host)

	h.sendJSON(p1.ID, map[string]any{"type": "GET_TEAMS", "gameCode": "123456"})

	evt := recv(t, p1)
	assert.Equal(t, "TEAMS_LIST", evt["type"])
	teams := evt["teams"].([]any)
	require.Len(t, teams, 1)
	team := teams[0].(map[string]any)
	assert.Equal(t, "Red", team["name"])
	assert.Equal(t, float64(2), team["memberCount"])
}

// Disconnect keeps the roster; only LEAVE_GAME removes membership.
func TestDisconnectPreservesRoster(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	p2 := h.connect("c-p2")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.joinGame(p2, "123456", "p2", "Bob", "Red")
	h.startGame(host, "123456")
	drain(host)
	drain(p1)
	drain(p2)
	h.sendJSON(p1.ID, map[string]any{"type": "PLAYER_BUZZ", "gameCode": "123456", "playerId": "p1"})
	drain(p1)
	drain(p2)
	drain(host)

	h.coord.HandleDisconnect(p1.ID)

	sess, ok := h.coord.registry.Get("123456")
	require.True(t, ok)
	require.Len(t, sess.Teams["Red"].Members, 2, "disconnect must not touch the roster")
	assert.Equal(t, "p1", sess.Teams["Red"].ManagerID())
	assert.Empty(t, sess.BuzzQueue, "pending buzz is cleared on disconnect")
	assert.False(t, sess.Players["p1"].Connected)

	evt := recv(t, host)
	assert.Equal(t, "PLAYER_DISCONNECTED", evt["type"])
}

func TestLeaveGameRemovesRoster(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	p2 := h.connect("c-p2")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")
	h.joinGame(p2, "123456", "p2", "Bob", "Red")
	drain(host)

	h.sendJSON(p1.ID, map[string]any{"type": "LEAVE_GAME"})

	sess, ok := h.coord.registry.Get("123456")
	require.True(t, ok)
	require.Len(t, sess.Teams["Red"].Members, 1)
	assert.Equal(t, "p2", sess.Teams["Red"].ManagerID(), "first remaining member is promoted")

	evt := recv(t, host)
	assert.Equal(t, "PLAYER_LEFT", evt["type"])
}

func TestRevealFinalScoresForwardsStandings(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")

	h.sendJSON(host.ID, map[string]any{
		"type": "REVEAL_FINAL_SCORES", "gameCode": "123456",
		"standings": []map[string]any{{"teamName": "Red", "rank": 1}},
	})

	evt := recv(t, p1)
	assert.Equal(t, "REVEAL_FINAL_SCORES", evt["type"])
	standings := evt["standings"].([]any)
	require.Len(t, standings, 1)
	assert.Equal(t, float64(1), standings[0].(map[string]any)["rank"])

	sess, _ := h.coord.registry.Get("123456")
	assert.True(t, sess.Ended)
}

func TestCreateGameRestoresFromStore(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	p1 := h.connect("c-p1")
	h.joinGame(p1, "123456", "p1", "Alice", "Red")

	// Wait for the fire-and-forget save of the joined roster, then simulate
	// a full restart.
	require.Eventually(t, func() bool {
		doc, err := h.store.Load(context.Background(), "123456")
		return err == nil && len(doc.Teams) == 1
	}, time.Second, 5*time.Millisecond)
	h.coord.Teardown()

	host2 := h.connect("c-host2")
	h.sendJSON(host2.ID, map[string]any{"type": "CREATE_GAME", "gameCode": "123456", "playerId": "host-1"})

	evt := recv(t, host2)
	assert.Equal(t, "GAME_RESTORED", evt["type"])
	snapshot := evt["snapshot"].(map[string]any)
	teams := snapshot["teams"].([]any)
	require.Len(t, teams, 1)
}

func TestCreateGameExpiredRecordIsFresh(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")
	require.Eventually(t, func() bool {
		_, err := h.store.Load(context.Background(), "123456")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	h.coord.Teardown()

	// Past the record's 4h expiry: the code is treated as brand new.
	h.clk.Advance(5 * time.Hour)
	host2 := h.connect("c-host2")
	h.sendJSON(host2.ID, map[string]any{"type": "CREATE_GAME", "gameCode": "123456", "playerId": "host-1"})

	evt := recv(t, host2)
	assert.Equal(t, "GAME_CREATED", evt["type"])
}

// A host reconnect (CREATE_GAME for the same code) seizes the host binding
// and disarms the abandonment timer before it can fire.
func TestHostRebindCancelsAbandonmentEviction(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")

	h.coord.HandleDisconnect(host.ID)

	host2 := h.connect("c-host2")
	h.sendJSON(host2.ID, map[string]any{"type": "CREATE_GAME", "gameCode": "123456", "playerId": "host-1"})
	drain(host2)

	time.Sleep(60 * time.Millisecond) // well past HostAbandonDelay
	assert.Equal(t, 1, h.coord.ActiveGames(), "rebound session must survive the stale timer window")
}

func TestHostAbandonmentEvictsSession(t *testing.T) {
	h := newHarness(t)
	host := h.connect("c-host")
	h.createGame(host, "123456")

	h.coord.HandleDisconnect(host.ID)

	require.Eventually(t, func() bool {
		return h.coord.ActiveGames() == 0
	}, time.Second, 5*time.Millisecond)
}

// Persistence failures are logged and swallowed; gameplay never sees them.
func TestStoreFailureDoesNotSurface(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	coord := NewCoordinator(testConfig(), failStore{}, clk, zap.NewNop())
	host := NewConn("c-host")
	coord.Register(host)

	raw, _ := json.Marshal(map[string]any{"type": "CREATE_GAME", "gameCode": "123456", "playerId": "host-1"})
	coord.HandleMessage(host.ID, raw)

	evt := recv(t, host)
	assert.Equal(t, "GAME_CREATED", evt["type"])
	select {
	case extra := <-host.Send:
		t.Fatalf("unexpected extra event: %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
