// Package room tracks collaboration rooms and their participants and
// owns the ordering guarantee for room events: every room has exactly
// one worker goroutine, and all document mutations for that room run on
// it in arrival order. Distinct rooms proceed in parallel.
package room

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"codesync/internal/collab"
)

// Presence events emitted by the registry itself.
const (
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
)

// taskBuffer bounds how many undispatched events a room can hold before
// enqueueing blocks the reader that produced them.
const taskBuffer = 256

// Participant identifies one member of a room.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PresencePayload accompanies user-joined and user-left events.
type PresencePayload struct {
	Participant Participant   `json:"participant"`
	Roster      []Participant `json:"roster"`
}

type member struct {
	participant Participant
	conn        collab.Conn
}

type room struct {
	id      string
	members map[string]*member // keyed by connection ID
	tasks   chan func()
	quit    chan struct{}
	closed  bool
}

// run executes queued tasks in arrival order until the room is torn
// down. Tasks still queued at teardown are discarded with the room.
func (r *room) run() {
	for {
		select {
		case task := <-r.tasks:
			task()
		case <-r.quit:
			return
		}
	}
}

// Registry is the room-lifecycle collaborator: it resolves connections
// to rooms and identities for the coordinators (collab.Directory) and
// tears rooms down when the last participant leaves.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	byConn map[string]*room

	// onTeardown runs after a room's last participant leaves, before
	// its entry disappears. Wired to store and snapshot cleanup.
	onTeardown func(roomID string)
}

func NewRegistry(onTeardown func(roomID string)) *Registry {
	if onTeardown == nil {
		onTeardown = func(string) {}
	}
	return &Registry{
		rooms:      make(map[string]*room),
		byConn:     make(map[string]*room),
		onTeardown: onTeardown,
	}
}

// Join adds conn to roomID under username, creating the room and its
// worker on first join. The new participant's arrival is broadcast to
// everyone already in the room.
func (reg *Registry) Join(conn collab.Conn, roomID, username string) Participant {
	reg.mu.Lock()

	// Rejoining from another room is a leave in disguise; an emptied
	// previous room still gets torn down.
	var vacated string
	if prev, ok := reg.byConn[conn.ID()]; ok && prev.id != roomID {
		reg.detachLocked(conn)
		if len(prev.members) == 0 {
			reg.closeRoomLocked(prev)
			vacated = prev.id
		}
	} else {
		reg.detachLocked(conn)
	}

	r, ok := reg.rooms[roomID]
	if !ok {
		r = &room{
			id:      roomID,
			members: make(map[string]*member),
			tasks:   make(chan func(), taskBuffer),
			quit:    make(chan struct{}),
		}
		reg.rooms[roomID] = r
		go r.run()
		slog.Info("room created", "room", roomID)
	}

	p := Participant{ID: uuid.NewString(), Username: username}
	r.members[conn.ID()] = &member{participant: p, conn: conn}
	reg.byConn[conn.ID()] = r

	peers, roster := reg.peersAndRosterLocked(r, conn.ID())
	reg.mu.Unlock()

	if vacated != "" {
		reg.onTeardown(vacated)
		slog.Info("room deleted", "room", vacated)
	}
	slog.Info("participant joined", "room", roomID, "username", username, "conn", conn.ID())
	payload := PresencePayload{Participant: p, Roster: roster}
	for _, peer := range peers {
		peer.Send(EventUserJoined, payload)
	}
	return p
}

// Leave removes conn from its room, if any. The last participant out
// tears the room down. Safe to call for connections that never joined.
func (reg *Registry) Leave(conn collab.Conn) {
	reg.mu.Lock()
	r, ok := reg.byConn[conn.ID()]
	if !ok {
		reg.mu.Unlock()
		return
	}
	m := r.members[conn.ID()]
	reg.detachLocked(conn)

	var peers []collab.Conn
	var roster []Participant
	torndown := false
	if len(r.members) == 0 {
		reg.closeRoomLocked(r)
		torndown = true
	} else {
		peers, roster = reg.peersAndRosterLocked(r, conn.ID())
	}
	reg.mu.Unlock()

	slog.Info("participant left", "room", r.id, "conn", conn.ID())
	if torndown {
		reg.onTeardown(r.id)
		slog.Info("room deleted", "room", r.id)
		return
	}
	payload := PresencePayload{Participant: m.participant, Roster: roster}
	for _, peer := range peers {
		peer.Send(EventUserLeft, payload)
	}
}

// Dispatch queues task on the worker of conn's room, preserving arrival
// order relative to every other event for that room. Events from
// connections that are not in a room are dropped. A full queue blocks
// the caller, pushing backpressure onto that connection's read loop.
func (reg *Registry) Dispatch(conn collab.Conn, task func()) bool {
	reg.mu.RLock()
	r, ok := reg.byConn[conn.ID()]
	closed := ok && r.closed
	reg.mu.RUnlock()
	if !ok || closed {
		return false
	}
	select {
	case r.tasks <- task:
		return true
	case <-r.quit:
		return false
	}
}

// Room reports which room conn belongs to.
func (reg *Registry) Room(conn collab.Conn) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	return r.id, true
}

// Identity reports the username registered for a connection.
func (reg *Registry) Identity(connID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byConn[connID]
	if !ok {
		return "", false
	}
	m, ok := r.members[connID]
	if !ok {
		return "", false
	}
	return m.participant.Username, true
}

// Participant reports the participant registered for a connection.
func (reg *Registry) Participant(connID string) (Participant, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byConn[connID]
	if !ok {
		return Participant{}, false
	}
	m, ok := r.members[connID]
	if !ok {
		return Participant{}, false
	}
	return m.participant, true
}

// Peers lists the connections in roomID other than except.
func (reg *Registry) Peers(roomID string, except collab.Conn) []collab.Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	peers := make([]collab.Conn, 0, len(r.members))
	for connID, m := range r.members {
		if connID != except.ID() {
			peers = append(peers, m.conn)
		}
	}
	return peers
}

// Conn looks up a specific participant's connection within a room, for
// targeted relays such as signaling.
func (reg *Registry) Conn(roomID, participantID string) (collab.Conn, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[roomID]
	if !ok {
		return nil, false
	}
	for _, m := range r.members {
		if m.participant.ID == participantID {
			return m.conn, true
		}
	}
	return nil, false
}

// Roster lists the participants of roomID.
func (reg *Registry) Roster(roomID string) []Participant {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	roster := make([]Participant, 0, len(r.members))
	for _, m := range r.members {
		roster = append(roster, m.participant)
	}
	return roster
}

// Exists reports whether roomID currently has participants.
func (reg *Registry) Exists(roomID string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.rooms[roomID]
	return ok
}

func (reg *Registry) detachLocked(conn collab.Conn) {
	if r, ok := reg.byConn[conn.ID()]; ok {
		delete(r.members, conn.ID())
		delete(reg.byConn, conn.ID())
	}
}

func (reg *Registry) closeRoomLocked(r *room) {
	r.closed = true
	close(r.quit)
	delete(reg.rooms, r.id)
}

func (reg *Registry) peersAndRosterLocked(r *room, exceptConnID string) ([]collab.Conn, []Participant) {
	peers := make([]collab.Conn, 0, len(r.members))
	roster := make([]Participant, 0, len(r.members)+1)
	for connID, m := range r.members {
		roster = append(roster, m.participant)
		if connID != exceptConnID {
			peers = append(peers, m.conn)
		}
	}
	return peers, roster
}
