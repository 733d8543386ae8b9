// Package ws is the websocket boundary: it owns connection lifecycle,
// envelope decoding, and dispatch of room events onto each room's
// worker. Payload shape problems stop here; the coordinators behind it
// only ever see well-formed values.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codesync/internal/collab"
	"codesync/internal/edit"
	"codesync/internal/room"
)

// Events handled directly by the transport layer.
const (
	EventJoinRoom       = "join-room"
	EventRoomJoined     = "room-joined"
	EventLeaveRoom      = "leave-room"
	EventCursorMove     = "cursor-move"
	EventTerminalOutput = "terminal-output"
	EventWebRTCSignal   = "webrtc-signal"
)

// JoinPayload is sent by a client entering a room.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// JoinedPayload answers a successful join.
type JoinedPayload struct {
	RoomID      string             `json:"roomId"`
	Participant room.Participant   `json:"participant"`
	Roster      []room.Participant `json:"roster"`
}

// SignalPayload relays a WebRTC signaling blob to one target
// participant. The server never inspects the blob.
type SignalPayload struct {
	Target string          `json:"target"`
	From   string          `json:"from,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// RelayPayload forwards an opaque blob to room peers, tagged with the
// sending participant.
type RelayPayload struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// Server upgrades HTTP requests and routes decoded envelopes to the
// registry and coordinators.
type Server struct {
	registry *room.Registry
	document *collab.DocumentCoordinator
	language *collab.ScalarCoordinator
	notepad  *collab.ScalarCoordinator
	upgrader websocket.Upgrader
}

func NewServer(reg *room.Registry, doc *collab.DocumentCoordinator, language, notepad *collab.ScalarCoordinator) *Server {
	return &Server{
		registry: reg,
		document: doc,
		language: language,
		notepad:  notepad,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and pumps the connection until the client
// goes away.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	client := newClient(uuid.NewString(), conn)
	slog.Info("client connected", "conn", client.ID())

	go client.writePump()
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.registry.Leave(client)
		client.close()
		client.conn.Close()
		slog.Info("client disconnected", "conn", client.ID())
	}()

	for {
		_, buf, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			slog.Warn("dropping undecodable frame", "conn", client.ID(), "error", err)
			continue
		}
		s.dispatch(client, env)
	}
}

func (s *Server) dispatch(client *Client, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		var p JoinPayload
		if !decode(client, env, &p) {
			return
		}
		if p.RoomID == "" {
			slog.Warn("join without room id", "conn", client.ID())
			return
		}
		participant := s.registry.Join(client, p.RoomID, p.Username)
		client.Send(EventRoomJoined, JoinedPayload{
			RoomID:      p.RoomID,
			Participant: participant,
			Roster:      s.registry.Roster(p.RoomID),
		})

	case EventLeaveRoom:
		s.registry.Leave(client)

	case collab.EventRequestSyncText:
		s.registry.Dispatch(client, func() { s.document.HandleSyncRequest(client) })

	case collab.EventEditOperation:
		var op edit.Operation
		if !decode(client, env, &op) {
			return
		}
		s.registry.Dispatch(client, func() { s.document.HandleEdit(client, op) })

	case collab.EventRequestSyncLanguage:
		s.registry.Dispatch(client, func() { s.language.HandleSyncRequest(client) })

	case collab.EventUpdateLanguage:
		var p collab.ValuePayload
		if !decode(client, env, &p) {
			return
		}
		s.registry.Dispatch(client, func() { s.language.HandleUpdate(client, p.Value) })

	case collab.EventRequestSyncNotepad:
		s.registry.Dispatch(client, func() { s.notepad.HandleSyncRequest(client) })

	case collab.EventUpdateNotepad:
		var p collab.ValuePayload
		if !decode(client, env, &p) {
			return
		}
		s.registry.Dispatch(client, func() { s.notepad.HandleUpdate(client, p.Value) })

	case EventCursorMove, EventTerminalOutput:
		// Relay-only events: peers get the blob untouched, no state kept.
		s.relayToPeers(client, env.Event, env.Data)

	case EventWebRTCSignal:
		var p SignalPayload
		if !decode(client, env, &p) {
			return
		}
		s.relaySignal(client, p)

	default:
		slog.Debug("unknown event", "conn", client.ID(), "event", env.Event)
	}
}

func (s *Server) relayToPeers(client *Client, event string, data json.RawMessage) {
	roomID, ok := s.registry.Room(client)
	if !ok {
		return
	}
	sender, ok := s.registry.Participant(client.ID())
	if !ok {
		return
	}
	payload := RelayPayload{From: sender.ID, Data: data}
	s.registry.Dispatch(client, func() {
		for _, peer := range s.registry.Peers(roomID, client) {
			peer.Send(event, payload)
		}
	})
}

func (s *Server) relaySignal(client *Client, p SignalPayload) {
	roomID, ok := s.registry.Room(client)
	if !ok {
		return
	}
	sender, ok := s.registry.Participant(client.ID())
	if !ok {
		return
	}
	target, ok := s.registry.Conn(roomID, p.Target)
	if !ok {
		slog.Debug("signal for unknown participant", "room", roomID, "target", p.Target)
		return
	}
	target.Send(EventWebRTCSignal, SignalPayload{Target: p.Target, From: sender.ID, Data: p.Data})
}

func decode(client *Client, env Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		slog.Warn("dropping malformed payload", "conn", client.ID(), "event", env.Event, "error", err)
		return false
	}
	return true
}
