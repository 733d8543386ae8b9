// Package collab coordinates document synchronization between the
// participants of a room: unicast snapshots for joiners and sync
// requests, and relay of incoming edits to peers before the
// authoritative copy is updated.
package collab

import (
	"log/slog"

	"codesync/internal/edit"
	"codesync/internal/store"
)

// Events carried in the websocket envelope.
const (
	EventRequestSyncText     = "request-sync-text"
	EventSyncText            = "sync-text"
	EventEditOperation       = "edit-operation"
	EventRequestSyncLanguage = "request-sync-language"
	EventSyncLanguage        = "sync-language"
	EventUpdateLanguage      = "update-language"
	EventRequestSyncNotepad  = "request-sync-notepad"
	EventSyncNotepad         = "sync-notepad"
	EventUpdateNotepad       = "update-notepad"
)

// Conn is one participant's connection, as the coordinators see it.
type Conn interface {
	ID() string
	Send(event string, payload any)
}

// Directory resolves a connection to its room and identity and lists
// the peers an event should fan out to. Unresolved connections are a
// normal condition during connect and disconnect races, not an error.
type Directory interface {
	Room(conn Conn) (string, bool)
	Identity(connID string) (string, bool)
	Peers(roomID string, except Conn) []Conn
}

// TextPayload carries a full document snapshot.
type TextPayload struct {
	Text string `json:"text"`
}

// ValuePayload carries a scalar room value such as the language tag.
type ValuePayload struct {
	Value string `json:"value"`
}

// DocumentCoordinator handles the room document: snapshot unicasts and
// edit relay plus application.
type DocumentCoordinator struct {
	store *store.DocumentStore
	dir   Directory
}

func NewDocumentCoordinator(s *store.DocumentStore, dir Directory) *DocumentCoordinator {
	return &DocumentCoordinator{store: s, dir: dir}
}

// HandleSyncRequest unicasts the room's current text to conn. Nothing
// is mutated and no other connection hears about it.
func (c *DocumentCoordinator) HandleSyncRequest(conn Conn) {
	roomID, ok := c.resolve(conn)
	if !ok {
		return
	}
	conn.Send(EventSyncText, TextPayload{Text: c.store.Text(roomID)})
}

// HandleEdit relays op to every other participant of conn's room, then
// applies it to the stored text. The relay goes out first: peers should
// not wait on the authoritative re-splice. If conn's room or identity
// cannot be resolved the operation is dropped whole; it is never
// partially applied.
func (c *DocumentCoordinator) HandleEdit(conn Conn, op edit.Operation) {
	roomID, ok := c.resolve(conn)
	if !ok {
		return
	}
	for _, peer := range c.dir.Peers(roomID, conn) {
		peer.Send(EventEditOperation, op)
	}
	c.store.SetText(roomID, edit.Apply(c.store.Text(roomID), op))
}

func (c *DocumentCoordinator) resolve(conn Conn) (string, bool) {
	return resolve(c.dir, conn)
}

// ScalarCoordinator mirrors DocumentCoordinator for a single per-room
// string value. The language tag and the shared notepad are both synced
// this way: updates carry the whole value, so broadcast/store ordering
// is immaterial.
type ScalarCoordinator struct {
	syncEvent   string
	updateEvent string
	get         func(roomID string) string
	set         func(roomID, value string)
	dir         Directory
}

func NewLanguageCoordinator(s *store.DocumentStore, dir Directory) *ScalarCoordinator {
	return &ScalarCoordinator{
		syncEvent:   EventSyncLanguage,
		updateEvent: EventUpdateLanguage,
		get:         s.Language,
		set:         s.SetLanguage,
		dir:         dir,
	}
}

func NewNotepadCoordinator(s *store.DocumentStore, dir Directory) *ScalarCoordinator {
	return &ScalarCoordinator{
		syncEvent:   EventSyncNotepad,
		updateEvent: EventUpdateNotepad,
		get:         s.Notepad,
		set:         s.SetNotepad,
		dir:         dir,
	}
}

// HandleSyncRequest unicasts the current value to conn.
func (c *ScalarCoordinator) HandleSyncRequest(conn Conn) {
	roomID, ok := resolve(c.dir, conn)
	if !ok {
		return
	}
	conn.Send(c.syncEvent, ValuePayload{Value: c.get(roomID)})
}

// HandleUpdate broadcasts the new value to the rest of the room and
// overwrites the stored one.
func (c *ScalarCoordinator) HandleUpdate(conn Conn, value string) {
	roomID, ok := resolve(c.dir, conn)
	if !ok {
		return
	}
	for _, peer := range c.dir.Peers(roomID, conn) {
		peer.Send(c.updateEvent, ValuePayload{Value: value})
	}
	c.set(roomID, value)
}

// resolve requires both a room and an identity before any event is
// acted on. Failures are silent: they indicate a connect/disconnect
// race, not a client defect.
func resolve(dir Directory, conn Conn) (string, bool) {
	roomID, ok := dir.Room(conn)
	if !ok {
		slog.Debug("dropping event from connection without a room", "conn", conn.ID())
		return "", false
	}
	if _, ok := dir.Identity(conn.ID()); !ok {
		slog.Debug("dropping event from connection without an identity", "conn", conn.ID())
		return "", false
	}
	return roomID, true
}
