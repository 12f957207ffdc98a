// Each room runs a buzz-in trivia session: players join with a stable user
// id, a moderator stages a playlist of question/answer pairs, and rounds
// resolve buzzes in arrival order with halving penalties for wrong answers.
//
// Implementation details:
// - One goroutine per room consumes every event (connect, message,
//   disconnect) strictly in arrival order; no two mutations interleave.
// - Room state is persisted to Storage after every mutation and rehydrated
//   lazily when a room is first touched after a restart.
// - A logical player may hold several physical connections (reconnects,
//   extra tabs); join/leave notifications fire only on the first join and
//   the last disconnect.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

const (
	keyGame         = "game"
	keyUpcoming     = "upcoming-questions"
	keyBank         = "bank-questions"
	playerKeyPrefix = "player:"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// wireMessage is the envelope used for every outbound websocket frame.
type wireMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// inboundMessage defers payload decoding until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type questionsPayload struct {
	Questions []Question `json:"questions"`
}

type repeatPayload struct {
	Question Question `json:"question"`
}

type answerPayload struct {
	Text string `json:"text"`
}

type roomInfoData struct {
	RoomID  string   `json:"roomId"`
	Players []Player `json:"players"`
}

type playerEventData struct {
	Player Player `json:"player"`
	RoomID string `json:"roomId"`
}

type chatData struct {
	Message   string    `json:"message"`
	Player    Player    `json:"player"`
	Timestamp time.Time `json:"timestamp"`
}

type adminStateData struct {
	Upcoming []Question     `json:"upcoming"`
	Bank     []Question     `json:"bank"`
	History  []historyEntry `json:"history"`
}

type client struct {
	conn    *websocket.Conn
	send    chan wireMessage
	id      string
	limiter *rate.Limiter
}

type envelope struct {
	from *client
	raw  []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:    conn,
		send:    make(chan wireMessage, 32),
		id:      randomHex(8),
		limiter: rate.NewLimiter(5, 10),
	}
}

func (c *client) readPump(inbox chan<- envelope, unreg chan<- *client) {
	defer func() {
		unreg <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		// Over-limit frames are dropped; the connection stays open.
		if !c.limiter.Allow() {
			continue
		}

		inbox <- envelope{from: c, raw: raw}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// roomHub owns one room's full state and serializes every event for it.
type roomHub struct {
	id    string
	cfg   *Config
	store Storage

	clients map[*client]bool
	roster  *roster
	game    *gameState
	list    *playlist

	register chan *client
	unreg    chan *client
	inbox    chan envelope
	evict    chan struct{}

	hydrated   bool
	lastActive atomic.Int64
}

func newRoomHub(cfg *Config, id string, store Storage) *roomHub {
	h := &roomHub{
		id:       id,
		cfg:      cfg,
		store:    scopeStorage(store, "room/"+id),
		clients:  make(map[*client]bool),
		roster:   newRoster(),
		game:     newGameState(),
		list:     &playlist{},
		register: make(chan *client),
		unreg:    make(chan *client),
		inbox:    make(chan envelope, 256),
		evict:    make(chan struct{}, 1),
	}
	h.touch()

	return h
}

func (h *roomHub) run(ctx context.Context) {
	h.hydrate(ctx)

	for {
		select {
		case <-ctx.Done():
			h.closeClients()
			return

		case <-h.evict:
			h.handleEvict()

		case c := <-h.register:
			h.touch()
			h.handleRegister(ctx, c)

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.handleLeave(ctx, c)

		case env := <-h.inbox:
			h.touch()
			h.dispatch(ctx, env)
		}
	}
}

func (h *roomHub) dispatch(ctx context.Context, env envelope) {
	var msg inboundMessage
	if err := json.Unmarshal(env.raw, &msg); err != nil {
		logf(h.cfg, "ROOMS: Dropping unparseable message in %s: %v", h.id, err)
		return
	}

	switch msg.Type {
	case "join":
		var d joinPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			logf(h.cfg, "ROOMS: Dropping malformed join in %s: %v", h.id, err)
			return
		}
		h.handleJoin(ctx, env.from, d)

	case "leave":
		h.handleLeave(ctx, env.from)

	case "chat":
		var d chatPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		h.handleChat(env.from, d)

	case "admin-set-upcoming":
		var d questionsPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		h.list.setUpcoming(d.Questions)
		h.persist(ctx)
		h.broadcastState()

	case "admin-set-bank":
		var d questionsPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		h.list.setBank(d.Questions)
		h.persist(ctx)
		h.broadcastState()

	case "admin-repeat-question":
		var d repeatPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		h.list.repeat(d.Question)
		h.persist(ctx)
		h.broadcastState()

	case "start-game":
		h.handleStartGame(ctx)

	case "buzz":
		h.handleBuzz(ctx, env.from)

	case "submit-answer":
		var d answerPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		h.handleSubmitAnswer(ctx, env.from, d)

	case "next-question":
		h.handleNextQuestion(ctx)

	case "finish-game":
		if h.game.finish() {
			h.persist(ctx)
			h.broadcastState()
		}

	case "reset-game":
		h.handleResetGame(ctx)

	default:
		// Unknown types are ignored.
	}
}

func (h *roomHub) handleJoin(ctx context.Context, c *client, d joinPayload) {
	userID := d.UserID
	if userID == "" {
		userID = c.id
	}

	p, rejoined, prevConn := h.roster.join(userID, d.Name, c.id, time.Now())

	if prevConn != "" {
		h.deleteKey(ctx, playerKeyPrefix+prevConn)
	}
	h.putJSON(ctx, playerKeyPrefix+c.id, p)

	joined := wireMessage{Type: "player-joined", Data: playerEventData{Player: p, RoomID: h.id}}
	h.sendTo(c, joined)
	if !rejoined {
		h.broadcastExcept(c, joined)
		logf(h.cfg, "ROOMS: Player %q joined %s", p.Name, h.id)
	}

	h.broadcastState()
}

func (h *roomHub) handleLeave(ctx context.Context, c *client) {
	p, ok, final := h.roster.leave(c.id)
	if !ok {
		return
	}

	h.deleteKey(ctx, playerKeyPrefix+c.id)

	if final {
		h.broadcast(wireMessage{Type: "player-left", Data: playerEventData{Player: p, RoomID: h.id}})
		logf(h.cfg, "ROOMS: Player %q left %s", p.Name, h.id)
	}

	h.broadcastState()
}

func (h *roomHub) handleChat(c *client, d chatPayload) {
	p, ok := h.roster.get(c.id)
	if !ok {
		return
	}

	h.broadcast(wireMessage{Type: "chat", Data: chatData{
		Message:   d.Message,
		Player:    p,
		Timestamp: time.Now(),
	}})
}

func (h *roomHub) handleStartGame(ctx context.Context) {
	if !h.game.start(h.list.Upcoming) {
		return
	}

	if q, ok := h.game.currentQuestion(); ok {
		h.list.consume(q.ID)
	}

	logf(h.cfg, "ROOMS: Game started in %s with %d questions", h.id, len(h.game.Questions))

	h.persist(ctx)
	h.broadcastState()
}

func (h *roomHub) handleBuzz(ctx context.Context, c *client) {
	p, ok := h.roster.get(c.id)
	if !ok {
		return
	}
	if !h.game.buzz(p.UserID) {
		return
	}

	h.persist(ctx)
	h.broadcastState()
}

func (h *roomHub) handleSubmitAnswer(ctx context.Context, c *client, d answerPayload) {
	p, ok := h.roster.get(c.id)
	if !ok {
		return
	}
	if !h.game.submit(p.UserID, d.Text) {
		return
	}

	// A finished round leaves the completed question behind; removing it
	// from the playlist again is an idempotent no-op after start already
	// consumed it.
	if h.game.Status == statusAwaitNext {
		if q, ok := h.game.currentQuestion(); ok {
			h.list.consume(q.ID)
		}
	}

	h.persist(ctx)
	h.broadcastState()
}

func (h *roomHub) handleNextQuestion(ctx context.Context) {
	if !h.game.next() {
		return
	}

	if h.game.Status == statusRunning {
		if q, ok := h.game.currentQuestion(); ok {
			h.list.consume(q.ID)
		}
	}

	h.persist(ctx)
	h.broadcastState()
}

// handleResetGame returns the room to idle. Resetting an idle game is a
// no-op: re-seeding from an empty frozen list would wipe a playlist staged
// before the first start.
func (h *roomHub) handleResetGame(ctx context.Context) {
	if h.game.Status == statusIdle {
		return
	}

	h.list.reseed(h.game.reset())

	h.persist(ctx)
	h.broadcastState()
}

// sendSnapshot gives a brand-new connection the full current state without
// waiting for the next mutation.
func (h *roomHub) sendSnapshot(c *client) {
	for _, msg := range h.stateMessages() {
		h.sendTo(c, msg)
	}
}

// broadcastState fans the three room views out to every connection, in the
// same order the mutation was applied.
func (h *roomHub) broadcastState() {
	for _, msg := range h.stateMessages() {
		h.broadcast(msg)
	}
}

// stateMessages snapshots the three views. Payloads are marshaled here, on
// the actor goroutine, because writer goroutines must never read live hub
// state.
func (h *roomHub) stateMessages() [3]wireMessage {
	return [3]wireMessage{
		{Type: "room-info", Data: rawJSON(roomInfoData{RoomID: h.id, Players: h.roster.list()})},
		{Type: "game-update", Data: rawJSON(h.game)},
		{Type: "admin-state", Data: rawJSON(adminStateData{
			Upcoming: h.list.Upcoming,
			Bank:     h.list.Bank,
			History:  h.list.history(h.game),
		})},
	}
}

func rawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func (h *roomHub) sendTo(c *client, msg wireMessage) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *roomHub) broadcast(msg wireMessage) {
	for c := range h.clients {
		h.sendTo(c, msg)
	}
}

func (h *roomHub) broadcastExcept(skip *client, msg wireMessage) {
	for c := range h.clients {
		if c == skip {
			continue
		}
		h.sendTo(c, msg)
	}
}

func (h *roomHub) closeClients() {
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// handleEvict closes every connection and drops the in-memory state so a
// reaped room releases its memory. The goroutine itself keeps running so a
// connection racing the reaper never blocks on the channels; its register
// re-hydrates from storage instead.
func (h *roomHub) handleEvict() {
	h.closeClients()
	h.roster = newRoster()
	h.game = newGameState()
	h.list = &playlist{}
	h.hydrated = false
}

func (h *roomHub) handleRegister(ctx context.Context, c *client) {
	if !h.hydrated {
		h.hydrate(ctx)
	}
	h.clients[c] = true
	h.sendSnapshot(c)
}

// hydrate loads the persisted game and playlist snapshots; absence means a
// fresh idle room. Player records belong to connections of a previous
// process and are cleared.
func (h *roomHub) hydrate(ctx context.Context) {
	h.hydrated = true

	var g gameState
	if h.getJSON(ctx, keyGame, &g) {
		g.normalize()
		h.game = &g
	}

	h.getJSON(ctx, keyUpcoming, &h.list.Upcoming)
	h.getJSON(ctx, keyBank, &h.list.Bank)

	entries, err := h.store.List(ctx, playerKeyPrefix)
	if err != nil {
		logf(h.cfg, "ROOMS: Listing stale players in %s failed: %v", h.id, err)
		return
	}
	for key := range entries {
		h.deleteKey(ctx, key)
	}
}

func (h *roomHub) persist(ctx context.Context) {
	h.putJSON(ctx, keyGame, h.game)
	h.putJSON(ctx, keyUpcoming, h.list.Upcoming)
	h.putJSON(ctx, keyBank, h.list.Bank)
}

func (h *roomHub) getJSON(ctx context.Context, key string, v any) bool {
	data, found, err := h.store.Get(ctx, key)
	if err != nil {
		logf(h.cfg, "ROOMS: Reading %q in %s failed: %v", key, h.id, err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logf(h.cfg, "ROOMS: Decoding %q in %s failed: %v", key, h.id, err)
		return false
	}

	return true
}

func (h *roomHub) putJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = h.store.Put(ctx, key, data)
	}
	if err != nil {
		logf(h.cfg, "ROOMS: Persisting %q in %s failed: %v", key, h.id, err)
	}
}

func (h *roomHub) deleteKey(ctx context.Context, key string) {
	if err := h.store.Delete(ctx, key); err != nil {
		logf(h.cfg, "ROOMS: Deleting %q in %s failed: %v", key, h.id, err)
	}
}

func (h *roomHub) touch() {
	h.lastActive.Store(time.Now().UnixNano())
}

func (h *roomHub) idleSince() time.Time {
	return time.Unix(0, h.lastActive.Load())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Websocket handler that picks the room hub based on :roomid.
func serveRoomWS(cfg *Config, mgr *roomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		hub := mgr.getHub(roomID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ROOMS: Websocket upgrade failed for %s: %v", realIP(r), err)
			return
		}

		c := newClient(conn)
		hub.register <- c

		go c.writePump()
		c.readPump(hub.inbox, hub.unreg)
	}
}
