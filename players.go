package main

import (
	"sort"
	"time"
)

// Player holds the data we store server-side for one physical connection.
// ID is the ephemeral connection id; UserID is the opaque, client-held
// token that survives reconnects.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// roster reconciles connection identity with stable user identity. It keeps
// two lookup structures: one keyed by connection id, one grouping records
// by user id, and never conflates the two.
type roster struct {
	byConn map[string]Player
	byUser map[string]map[string]struct{}
}

func newRoster() *roster {
	return &roster{
		byConn: make(map[string]Player),
		byUser: make(map[string]map[string]struct{}),
	}
}

// join registers connID for userID. If the user already has a record, that
// record is rebound to the new connection (keeping its original joinedAt)
// and rejoined is true; prevConn names the connection id that was replaced.
func (r *roster) join(userID, name, connID string, now time.Time) (p Player, rejoined bool, prevConn string) {
	if conns, ok := r.byUser[userID]; ok && len(conns) > 0 {
		for old := range conns {
			prevConn = old
			break
		}
		p = r.byConn[prevConn]
		r.remove(prevConn)

		p.ID = connID
		if name != "" {
			p.Name = name
		}
		r.insert(p)

		return p, true, prevConn
	}

	p = Player{
		ID:       connID,
		Name:     name,
		UserID:   userID,
		JoinedAt: now,
	}
	r.insert(p)

	return p, false, ""
}

// leave removes the record for connID. ok reports whether a record existed;
// final reports whether it was the user's last remaining connection.
func (r *roster) leave(connID string) (p Player, ok bool, final bool) {
	p, ok = r.byConn[connID]
	if !ok {
		return Player{}, false, false
	}

	r.remove(connID)

	return p, true, len(r.byUser[p.UserID]) == 0
}

func (r *roster) get(connID string) (Player, bool) {
	p, ok := r.byConn[connID]
	return p, ok
}

// list returns all records ordered by joinedAt ascending, ties broken by
// connection id so the ordering is deterministic.
func (r *roster) list() []Player {
	out := make([]Player, 0, len(r.byConn))
	for _, p := range r.byConn {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func (r *roster) insert(p Player) {
	r.byConn[p.ID] = p
	conns, ok := r.byUser[p.UserID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[p.UserID] = conns
	}
	conns[p.ID] = struct{}{}
}

func (r *roster) remove(connID string) {
	p, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	delete(r.byUser[p.UserID], connID)
	if len(r.byUser[p.UserID]) == 0 {
		delete(r.byUser, p.UserID)
	}
}
