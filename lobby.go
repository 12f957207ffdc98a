// The lobby is its own singleton actor, independent of any game room: it
// allocates room codes, stores the room directory, and answers listing
// requests. Room state itself lives with each room's hub.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	roomKeyPrefix = "room:"
	roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLen   = 6
)

// RoomInfo is a directory entry for one created room.
type RoomInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type lobbyHub struct {
	cfg   *Config
	store Storage

	clients map[*client]bool

	register chan *client
	unreg    chan *client
	inbox    chan envelope
}

func newLobbyHub(cfg *Config, store Storage) *lobbyHub {
	return &lobbyHub{
		cfg:      cfg,
		store:    scopeStorage(store, "lobby"),
		clients:  make(map[*client]bool),
		register: make(chan *client),
		unreg:    make(chan *client),
		inbox:    make(chan envelope, 256),
	}
}

func (l *lobbyHub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range l.clients {
				close(c.send)
				if c.conn != nil {
					_ = c.conn.Close()
				}
				delete(l.clients, c)
			}
			return

		case c := <-l.register:
			l.clients[c] = true
			l.sendTo(c, l.roomsListMessage(ctx))

		case c := <-l.unreg:
			if _, ok := l.clients[c]; ok {
				delete(l.clients, c)
				close(c.send)
			}

		case env := <-l.inbox:
			l.dispatch(ctx, env)
		}
	}
}

func (l *lobbyHub) dispatch(ctx context.Context, env envelope) {
	var msg inboundMessage
	if err := json.Unmarshal(env.raw, &msg); err != nil {
		logf(l.cfg, "LOBBY: Dropping unparseable message: %v", err)
		return
	}

	switch msg.Type {
	case "create-room":
		l.handleCreateRoom(ctx, env.from)

	case "join-room":
		var d joinRoomPayload
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		l.handleJoinRoom(ctx, env.from, d)

	case "list-rooms":
		l.sendTo(env.from, l.roomsListMessage(ctx))

	case "clear-storage":
		l.handleClearStorage(ctx, env.from)
	}
}

func (l *lobbyHub) handleCreateRoom(ctx context.Context, c *client) {
	id, err := l.newRoomID(ctx)
	if err != nil {
		logf(l.cfg, "LOBBY: Allocating a room id failed: %v", err)
		return
	}

	info := RoomInfo{ID: id, CreatedAt: time.Now()}

	data, err := json.Marshal(info)
	if err == nil {
		err = l.store.Put(ctx, roomKeyPrefix+id, data)
	}
	if err != nil {
		logf(l.cfg, "LOBBY: Storing room %s failed: %v", id, err)
		return
	}

	logf(l.cfg, "LOBBY: Created room %s", id)

	l.sendTo(c, wireMessage{Type: "room-created", Data: info})
	l.broadcast(l.roomsListMessage(ctx))
}

func (l *lobbyHub) handleJoinRoom(ctx context.Context, c *client, d joinRoomPayload) {
	data, found, err := l.store.Get(ctx, roomKeyPrefix+d.RoomID)
	if err != nil {
		logf(l.cfg, "LOBBY: Reading room %s failed: %v", d.RoomID, err)
		return
	}

	var info RoomInfo
	if !found || json.Unmarshal(data, &info) != nil {
		l.sendTo(c, wireMessage{Type: "error", Data: "Room not found"})
		return
	}

	l.sendTo(c, wireMessage{Type: "room-joined", Data: info})
}

// handleClearStorage deletes every directory entry. Destructive and
// irreversible; only ever triggered by an explicit request.
func (l *lobbyHub) handleClearStorage(ctx context.Context, c *client) {
	entries, err := l.store.List(ctx, roomKeyPrefix)
	if err != nil {
		logf(l.cfg, "LOBBY: Listing rooms failed: %v", err)
		return
	}

	for key := range entries {
		if err := l.store.Delete(ctx, key); err != nil {
			logf(l.cfg, "LOBBY: Deleting %q failed: %v", key, err)
		}
	}

	logf(l.cfg, "LOBBY: Storage cleared, %d rooms removed", len(entries))

	l.sendTo(c, wireMessage{Type: "storage-cleared", Data: "Storage cleared successfully"})
	l.broadcast(l.roomsListMessage(ctx))
}

// newRoomID generates a room code and retries until it does not collide
// with a stored room.
func (l *lobbyHub) newRoomID(ctx context.Context) (string, error) {
	for {
		id := randomCode(roomCodeLen, roomCodeChars)

		_, exists, err := l.store.Get(ctx, roomKeyPrefix+id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

func (l *lobbyHub) listRooms(ctx context.Context) []RoomInfo {
	entries, err := l.store.List(ctx, roomKeyPrefix)
	if err != nil {
		logf(l.cfg, "LOBBY: Listing rooms failed: %v", err)
		return nil
	}

	rooms := make([]RoomInfo, 0, len(entries))
	for _, data := range entries {
		var info RoomInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		rooms = append(rooms, info)
	}

	// Newest first, ids as a deterministic tie-break.
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})

	return rooms
}

func (l *lobbyHub) roomsListMessage(ctx context.Context) wireMessage {
	return wireMessage{Type: "rooms-list", Data: rawJSON(l.listRooms(ctx))}
}

func (l *lobbyHub) sendTo(c *client, msg wireMessage) {
	select {
	case c.send <- msg:
	default:
		delete(l.clients, c)
		close(c.send)
	}
}

func (l *lobbyHub) broadcast(msg wireMessage) {
	for c := range l.clients {
		l.sendTo(c, msg)
	}
}

func serveLobbyWS(cfg *Config, hub *lobbyHub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "LOBBY: Websocket upgrade failed for %s: %v", realIP(r), err)
			return
		}

		c := newClient(conn)
		hub.register <- c

		go c.writePump()
		c.readPump(hub.inbox, hub.unreg)
	}
}

// roomManager holds one hub per room id so each room is its own isolated
// session, and evicts idle hubs from memory. Durable state stays in
// Storage, so an evicted room hydrates again on its next visitor.
type roomManager struct {
	mu    sync.Mutex
	hubs  map[string]*roomHub
	cfg   *Config
	store Storage
	ctx   context.Context
}

func newRoomManager(ctx context.Context, cfg *Config, store Storage) *roomManager {
	mgr := &roomManager{
		hubs:  make(map[string]*roomHub),
		cfg:   cfg,
		store: store,
		ctx:   ctx,
	}
	if cfg.sessionTimeout > 0 {
		go mgr.reaperLoop(ctx)
	}

	return mgr
}

func (m *roomManager) getHub(roomID string) *roomHub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomID]; ok {
		return hub
	}

	hub := newRoomHub(m.cfg, roomID, m.store)
	m.hubs[roomID] = hub
	go hub.run(m.ctx)

	return hub
}

func (m *roomManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.cfg.sessionTimeout)

			m.mu.Lock()
			for id, hub := range m.hubs {
				if hub.idleSince().Before(cutoff) {
					delete(m.hubs, id)
					select {
					case hub.evict <- struct{}{}:
					default:
					}
					logf(m.cfg, "ROOMS: Evicted idle room %s", id)
				}
			}
			m.mu.Unlock()
		}
	}
}
