package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/clock"
	"github.com/mbendtzen/game-show-backend/internal/config"
	"github.com/mbendtzen/game-show-backend/internal/errs"
	"github.com/mbendtzen/game-show-backend/internal/model"
	"github.com/mbendtzen/game-show-backend/internal/store"
)

// Conn is one connected party. Outbound messages are pushed onto Send
// without blocking; the transport's write pump drains it. A slow or closed
// connection just drops messages until its own close event cleans it up.
type Conn struct {
	ID   string
	Send chan []byte
}

// NewConn creates a connection with the given id and a buffered send queue.
func NewConn(id string) *Conn {
	return &Conn{ID: id, Send: make(chan []byte, 64)}
}

// Coordinator owns all mutable game state: the session registry, the
// connection directory, and the live connections. Every inbound message is
// processed atomically under one mutex: mutation, event fan-out, and the
// persistence snapshot all happen before the lock is released, so session
// state never interleaves between messages. Persistence writes themselves
// are fire-and-forget and never block or roll back gameplay.
type Coordinator struct {
	cfg      *config.Config
	store    store.Store
	clk      clock.Clock
	log      *zap.Logger
	ctx      context.Context
	mu       sync.Mutex
	registry *Registry
	dir      *Directory
	conns    map[string]*Conn
	started  time.Time
}

// NewCoordinator creates the coordinator. ctx bounds fire-and-forget
// persistence writes and is also used for shutdown propagation.
func NewCoordinator(cfg *config.Config, st store.Store, clk clock.Clock, log *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		store:    st,
		clk:      clk,
		log:      log,
		ctx:      context.Background(),
		registry: NewRegistry(clk, log),
		dir:      NewDirectory(),
		conns:    make(map[string]*Conn),
		started:  clk.Now(),
	}
}

// SetContext sets the app context for persistence writes (shutdown propagation).
func (c *Coordinator) SetContext(ctx context.Context) { c.ctx = ctx }

// Register adds a live connection. The id must be allocated at accept time;
// all routing is by that id, never by pointer identity.
func (c *Coordinator) Register(conn *Conn) {
	c.mu.Lock()
	c.conns[conn.ID] = conn
	c.mu.Unlock()
	c.log.Info("connection registered", zap.String("conn_id", conn.ID))
}

// HandleMessage decodes one inbound envelope and dispatches it. Undecodable
// payloads are answered with INVALID_FORMAT and never reach the table.
func (c *Coordinator) HandleMessage(connID string, raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.mu.Lock()
		c.send(connID, model.ErrorEvent(model.ErrCodeInvalidFormat, "unparseable message"))
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(connID, &env)
}

// HandleDisconnect runs the channel-close cleanup path: unbind the
// connection, drop it from the live set, and apply role-specific cleanup.
// Disconnects are not errors and never remove roster membership.
func (c *Coordinator) HandleDisconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect(connID)
}

// ActiveGames returns the number of resident sessions.
func (c *Coordinator) ActiveGames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Len()
}

// ActiveConnections returns the number of live connections.
func (c *Coordinator) ActiveConnections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Uptime returns how long the coordinator has been running.
func (c *Coordinator) Uptime() time.Duration {
	return c.clk.Now().Sub(c.started)
}

// RunSweeper evicts over-age sessions on a fixed interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.registry.Sweep(c.cfg.SessionMaxAge)
			c.mu.Unlock()
		}
	}
}

// Teardown drops all sessions, stops timers, and closes every connection.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.StopAllTimers()
	for code := range c.registry.sessions {
		delete(c.registry.sessions, code)
	}
	for id, conn := range c.conns {
		close(conn.Send)
		delete(c.conns, id)
		c.dir.Unbind(id)
	}
	c.log.Info("coordinator teardown complete")
}

// dispatch is the message table. Host-only operations are answered with an
// explicit UNAUTHORIZED error when the sender does not hold the host role
// for the target code. Caller holds c.mu.
func (c *Coordinator) dispatch(connID string, env *model.Envelope) {
	switch env.Type {
	case model.MsgCreateGame:
		c.handleCreateGame(connID, env)
	case model.MsgJoinGame, model.MsgRejoinGame:
		c.handleJoinGame(connID, env)
	case model.MsgGameStarted:
		c.handleGameStarted(connID, env)
	case model.MsgRoundUpdate:
		c.handleRoundUpdate(connID, env)
	case model.MsgPlayerBuzz:
		c.handlePlayerBuzz(connID, env)
	case model.MsgClearBuzzers:
		c.handleClearBuzzers(connID, env)
	case model.MsgClearPlayerBuzz:
		c.handleClearPlayerBuzz(connID, env)
	case model.MsgClearLastBuzz:
		c.handleClearLastBuzz(connID, env)
	case model.MsgEnableScoring:
		c.handleEnableScoring(connID, env)
	case model.MsgSubmitScore:
		c.handleSubmitScore(connID, env)
	case model.MsgManagerChanged:
		c.handleManagerChanged(connID, env)
	case model.MsgScoreUpdated:
		c.handleScoreUpdated(connID, env)
	case model.MsgRevealFinalScores:
		c.handleRevealFinalScores(connID, env)
	case model.MsgLeaveGame:
		c.handleLeaveGame(connID)
	case model.MsgPlayerDisconnect:
		c.disconnect(connID)
	case model.MsgGetTeams:
		c.handleGetTeams(connID, env)
	default:
		c.send(connID, model.ErrorEvent(model.ErrCodeUnknownMessageType, "unknown message type: "+env.Type))
	}
}

func (c *Coordinator) handleCreateGame(connID string, env *model.Envelope) {
	code := env.GameCode
	if code == "" {
		c.send(connID, model.ErrorEvent(model.ErrCodeInvalidFormat, "gameCode required"))
		return
	}

	sess, resident := c.registry.Get(code)
	restored := resident
	if !resident {
		if doc := c.loadDocument(code); doc != nil {
			sess = SessionFromDocument(doc)
			c.registry.Put(sess)
			restored = true
		}
	}
	if sess == nil {
		sess = NewSession(code, env.PlayerID, c.clk.Now())
		c.registry.Put(sess)
	}

	// Whichever channel runs CREATE_GAME for a code becomes the host; a
	// fresh host binding also disarms any pending abandonment eviction.
	c.registry.CancelEviction(code)
	if oldHost, ok := c.dir.FindHost(code); ok && oldHost != connID {
		c.dir.Unbind(oldHost)
	}
	c.dir.Bind(Binding{ConnID: connID, Role: RoleHost, GameCode: code})

	if restored {
		c.send(connID, model.NewEvent(model.EvtGameRestored, map[string]any{
			"gameCode": code,
			"snapshot": sess.Snapshot(),
		}))
	} else {
		c.send(connID, model.NewEvent(model.EvtGameCreated, map[string]any{
			"gameCode": code,
		}))
	}
	c.persist(sess)
}

func (c *Coordinator) handleJoinGame(connID string, env *model.Envelope) {
	sess := c.resolveSession(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.AddPlayer(env.PlayerID, env.PlayerName, env.TeamName, env.IsManager)
	c.dir.Bind(Binding{
		ConnID:   connID,
		Role:     RolePlayer,
		GameCode: sess.Code,
		PlayerID: env.PlayerID,
		TeamName: env.TeamName,
	})

	c.send(connID, model.NewEvent(model.EvtGameJoined, map[string]any{
		"gameCode": sess.Code,
		"playerId": env.PlayerID,
		"snapshot": sess.Snapshot(),
	}))
	if host, ok := c.dir.FindHost(sess.Code); ok {
		c.send(host, model.NewEvent(model.EvtPlayerJoined, map[string]any{
			"playerId":   env.PlayerID,
			"playerName": env.PlayerName,
			"teamName":   env.TeamName,
			"team":       sess.Teams[env.TeamName],
		}))
	}
	c.persist(sess)
}

func (c *Coordinator) handleGameStarted(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.Started = true
	if len(env.Games) > 0 {
		sess.Games = env.Games
	}
	if env.Game > 0 {
		sess.CurrentGame = env.Game
	}
	if env.Round > 0 {
		sess.CurrentRound = env.Round
	}
	c.broadcast(sess.Code, connID, model.NewEvent(model.EvtGameStarted, map[string]any{
		"games": sess.Games,
		"game":  sess.CurrentGame,
		"round": sess.CurrentRound,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleRoundUpdate(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	if env.Game > 0 {
		sess.CurrentGame = env.Game
	}
	if env.Round > 0 {
		sess.CurrentRound = env.Round
	}
	sess.ScoringEnabled = false
	c.broadcast(sess.Code, connID, model.NewEvent(model.EvtRoundUpdate, map[string]any{
		"game":  sess.CurrentGame,
		"round": sess.CurrentRound,
	}))
	c.persist(sess)
}

func (c *Coordinator) handlePlayerBuzz(connID string, env *model.Envelope) {
	sess := c.resolveBoundSession(connID, env.GameCode)
	if sess == nil {
		return
	}
	rec, ok := sess.Buzz(env.PlayerID, c.clk.Now())
	if !ok {
		reason := "teammate already buzzed"
		if _, known := sess.Players[env.PlayerID]; !known {
			reason = "unknown player"
		} else if !sess.Started {
			reason = "game not started"
		}
		c.send(connID, model.NewEvent(model.EvtBuzzResult, map[string]any{
			"accepted": false,
			"reason":   reason,
		}))
		return
	}

	c.send(connID, model.NewEvent(model.EvtBuzzResult, map[string]any{
		"accepted": true,
		"buzzedAt": rec.BuzzedAt,
	}))
	if host, found := c.dir.FindHost(sess.Code); found {
		c.send(host, model.NewEvent(model.EvtPlayerBuzzed, map[string]any{
			"playerId": rec.PlayerID,
			"teamName": rec.TeamName,
			"buzzedAt": rec.BuzzedAt,
		}))
	}
	for _, id := range c.dir.ConnsInGame(sess.Code, func(b Binding) bool {
		return b.Role == RolePlayer && b.TeamName == rec.TeamName && b.ConnID != connID
	}) {
		c.send(id, model.NewEvent(model.EvtTeamLockedOut, map[string]any{
			"teamName": rec.TeamName,
			"playerId": rec.PlayerID,
		}))
	}
	c.persist(sess)
}

func (c *Coordinator) handleClearBuzzers(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.ClearAllBuzzes()
	c.broadcast(sess.Code, connID, model.NewEvent(model.EvtBuzzersCleared, map[string]any{
		"all": true,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleClearPlayerBuzz(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	teamName, ok := sess.ClearBuzzFor(env.PlayerID)
	if !ok {
		return
	}
	c.notifyTeam(sess.Code, teamName, model.NewEvent(model.EvtBuzzersCleared, map[string]any{
		"teamName": teamName,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleClearLastBuzz(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	rec, ok := sess.PopLastBuzz()
	if !ok {
		return
	}
	c.notifyTeam(sess.Code, rec.TeamName, model.NewEvent(model.EvtBuzzersCleared, map[string]any{
		"teamName": rec.TeamName,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleEnableScoring(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.ScoringEnabled = true
	c.broadcast(sess.Code, connID, model.NewEvent(model.EvtScoringEnabled, nil))
	c.persist(sess)
}

// handleSubmitScore has no host gate: authorization is the manager check
// inside the session, keyed on the claimed playerId.
func (c *Coordinator) handleSubmitScore(connID string, env *model.Envelope) {
	sess := c.resolveBoundSession(connID, env.GameCode)
	if sess == nil {
		return
	}
	index, total, err := sess.SubmitScore(env.PlayerID, env.TeamName, env.Game, env.Round, env.Score)
	if err != nil {
		c.sendDomainError(connID, err)
		return
	}
	if host, ok := c.dir.FindHost(sess.Code); ok {
		c.send(host, model.NewEvent(model.EvtScoreSubmitted, map[string]any{
			"teamName":   env.TeamName,
			"game":       env.Game,
			"round":      env.Round,
			"score":      env.Score,
			"roundIndex": index,
			"totalScore": total,
		}))
	}
	c.send(connID, model.NewEvent(model.EvtScoreConfirmed, map[string]any{
		"teamName":   env.TeamName,
		"roundIndex": index,
		"totalScore": total,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleManagerChanged(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.SetManager(env.TeamName, env.PlayerID)
	c.broadcast(sess.Code, connID, model.NewEvent(model.EvtManagerChanged, map[string]any{
		"teamName": env.TeamName,
		"playerId": env.PlayerID,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleScoreUpdated(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.SetScores(env.TeamName, env.RoundScores, env.TotalScore)
	c.notifyTeam(sess.Code, env.TeamName, model.NewEvent(model.EvtScoreUpdated, map[string]any{
		"teamName":    env.TeamName,
		"roundScores": env.RoundScores,
		"totalScore":  env.TotalScore,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleRevealFinalScores(connID string, env *model.Envelope) {
	sess := c.requireHost(connID, env.GameCode)
	if sess == nil {
		return
	}
	sess.Ended = true
	// Standings are host-supplied and forwarded verbatim, never recomputed.
	c.broadcast(sess.Code, connID, model.NewEvent(model.EvtRevealFinalScores, map[string]any{
		"standings": env.Standings,
	}))
	c.persist(sess)
}

func (c *Coordinator) handleLeaveGame(connID string) {
	b, ok := c.dir.Get(connID)
	if !ok || b.GameCode == "" {
		return
	}
	sess, ok := c.registry.Get(b.GameCode)
	if !ok {
		c.dir.Unbind(connID)
		return
	}
	sess.RemovePlayer(b.PlayerID)
	c.dir.Unbind(connID)
	if host, found := c.dir.FindHost(sess.Code); found {
		c.send(host, model.NewEvent(model.EvtPlayerLeft, map[string]any{
			"playerId": b.PlayerID,
			"teamName": b.TeamName,
			"teams":    sess.TeamSummaries(),
		}))
	}
	c.persist(sess)
}

func (c *Coordinator) handleGetTeams(connID string, env *model.Envelope) {
	sess := c.resolveSession(connID, env.GameCode)
	if sess == nil {
		return
	}
	c.send(connID, model.NewEvent(model.EvtTeamsList, map[string]any{
		"gameCode": sess.Code,
		"teams":    sess.TeamSummaries(),
	}))
}

// disconnect is the shared channel-close path. A disconnecting player keeps
// their roster membership; only their pending buzz and presence are cleared.
// A disconnecting host arms the abandonment timer for its game.
func (c *Coordinator) disconnect(connID string) {
	if conn, ok := c.conns[connID]; ok {
		close(conn.Send)
		delete(c.conns, connID)
	}
	b, ok := c.dir.Unbind(connID)
	if !ok {
		return
	}
	c.log.Info("connection closed",
		zap.String("conn_id", connID),
		zap.String("game_code", b.GameCode),
		zap.String("role", string(b.Role)))

	sess, resident := c.registry.Get(b.GameCode)
	if !resident {
		return
	}

	if b.Role == RoleHost {
		c.registry.ScheduleEviction(b.GameCode, c.cfg.HostAbandonDelay, c.evictAbandoned)
		return
	}

	sess.ClearBuzzFor(b.PlayerID)
	if p, known := sess.Players[b.PlayerID]; known {
		p.Connected = false
	}
	if host, found := c.dir.FindHost(sess.Code); found {
		c.send(host, model.NewEvent(model.EvtPlayerDisconnected, map[string]any{
			"playerId": b.PlayerID,
			"teamName": b.TeamName,
		}))
	}
	c.persist(sess)
}

// evictAbandoned fires from an abandonment timer. A host that rebound in the
// interim cancels the timer via CREATE_GAME, but the binding is re-checked
// here anyway so a stale fire cannot destroy a reclaimed session.
func (c *Coordinator) evictAbandoned(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dir.FindHost(code); ok {
		return
	}
	if _, ok := c.registry.Get(code); !ok {
		return
	}
	c.registry.Delete(code)
	c.log.Info("evicted abandoned session", zap.String("game_code", code))
}

// requireHost resolves the session for a host-only operation. Non-host
// senders get an explicit UNAUTHORIZED error rather than a silent drop.
func (c *Coordinator) requireHost(connID, code string) *Session {
	b, bound := c.dir.Get(connID)
	if code == "" && bound {
		code = b.GameCode
	}
	if !bound || b.Role != RoleHost || b.GameCode != code {
		c.send(connID, model.ErrorEvent(model.ErrCodeUnauthorized, "host role required"))
		return nil
	}
	sess, ok := c.registry.Get(code)
	if !ok {
		c.send(connID, model.ErrorEvent(model.ErrCodeGameNotFound, "game not found: "+code))
		return nil
	}
	return sess
}

// resolveBoundSession resolves a resident session for player operations,
// falling back to the sender's binding when no code is supplied.
func (c *Coordinator) resolveBoundSession(connID, code string) *Session {
	if code == "" {
		if b, ok := c.dir.Get(connID); ok {
			code = b.GameCode
		}
	}
	sess, ok := c.registry.Get(code)
	if !ok {
		c.send(connID, model.ErrorEvent(model.ErrCodeGameNotFound, "game not found: "+code))
		return nil
	}
	return sess
}

// resolveSession returns the session for a code, restoring it from the
// store when it is not resident. Sends GAME_NOT_FOUND on failure.
func (c *Coordinator) resolveSession(connID, code string) *Session {
	if sess, ok := c.registry.Get(code); ok {
		return sess
	}
	if doc := c.loadDocument(code); doc != nil {
		sess := SessionFromDocument(doc)
		c.registry.Put(sess)
		return sess
	}
	c.send(connID, model.ErrorEvent(model.ErrCodeGameNotFound, "game not found: "+code))
	return nil
}

// loadDocument reads a persisted game, treating expired records as absent.
func (c *Coordinator) loadDocument(code string) *model.GameDocument {
	if code == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.StoreTimeout)
	defer cancel()
	doc, err := c.store.Load(ctx, code)
	if err != nil {
		if !errors.Is(err, errs.ErrGameNotFound) {
			c.log.Warn("store load failed", zap.String("game_code", code), zap.Error(err))
		}
		return nil
	}
	if doc.Expired(c.clk.Now()) {
		return nil
	}
	return doc
}

// persist writes the session document in the background. The in-memory
// mutation and fan-out are already complete; a failed write is logged and
// swallowed, never surfaced to clients.
func (c *Coordinator) persist(sess *Session) {
	doc := sess.ToDocument(c.clk.Now(), c.cfg.RecordTTL)
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.StoreTimeout)
		defer cancel()
		if err := c.store.Save(ctx, doc); err != nil {
			c.log.Warn("store save failed", zap.String("game_code", doc.GameCode), zap.Error(err))
		}
	}()
}

// broadcast sends an event to every connection in the game but the sender.
func (c *Coordinator) broadcast(code, exceptConnID string, evt model.Event) {
	for _, id := range c.dir.ConnsInGame(code, func(b Binding) bool {
		return b.ConnID != exceptConnID
	}) {
		c.send(id, evt)
	}
}

// notifyTeam sends an event to every player bound to the named team.
func (c *Coordinator) notifyTeam(code, teamName string, evt model.Event) {
	for _, id := range c.dir.ConnsInGame(code, func(b Binding) bool {
		return b.Role == RolePlayer && b.TeamName == teamName
	}) {
		c.send(id, evt)
	}
}

// send marshals and queues an event for one connection. The push never
// blocks; a full buffer drops the message and logs.
func (c *Coordinator) send(connID string, evt model.Event) {
	conn, ok := c.conns[connID]
	if !ok {
		return
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		c.log.Error("event marshal failed", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	select {
	case conn.Send <- raw:
	default:
		c.log.Warn("send buffer full, dropping event",
			zap.String("conn_id", connID),
			zap.String("type", evt.Type))
	}
}

func (c *Coordinator) sendDomainError(connID string, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		c.send(connID, model.ErrorEvent(model.ErrCodeUnauthorized, err.Error()))
	case errors.Is(err, errs.ErrTeamNotFound):
		c.send(connID, model.ErrorEvent(model.ErrCodeTeamNotFound, err.Error()))
	case errors.Is(err, errs.ErrGameNotFound):
		c.send(connID, model.ErrorEvent(model.ErrCodeGameNotFound, err.Error()))
	default:
		c.send(connID, model.ErrorEvent(model.ErrCodeInvalidFormat, err.Error()))
	}
}
