// Package api exposes the small HTTP surface around the websocket
// endpoint: health, room minting and room inspection.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"codesync/internal/room"
	"codesync/internal/store"
)

type Handler struct {
	registry *room.Registry
	docs     *store.DocumentStore
}

// NewRouter builds the full route table. ws is the websocket upgrade
// handler.
func NewRouter(ws http.HandlerFunc, reg *room.Registry, docs *store.DocumentStore) *mux.Router {
	h := &Handler{registry: reg, docs: docs}
	r := mux.NewRouter()
	r.HandleFunc("/ws", ws)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", h.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{id}", h.getRoom).Methods(http.MethodGet)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createRoom mints a fresh room ID. The room itself materializes when
// the first participant joins over the websocket.
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"roomId": uuid.NewString()})
}

type roomInfo struct {
	RoomID   string             `json:"roomId"`
	Language string             `json:"language"`
	Roster   []room.Participant `json:"roster"`
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	if !h.registry.Exists(roomID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, roomInfo{
		RoomID:   roomID,
		Language: h.docs.Language(roomID),
		Roster:   h.registry.Roster(roomID),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
