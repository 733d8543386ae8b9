// Package store holds the authoritative per-room state: the document
// text, the editor language tag, and the shared markdown notepad.
package store

import "sync"

// DefaultLanguage is reported for rooms that never had their language
// set, matching the editor's initial mode.
const DefaultLanguage = "javascript"

// Document is the state held for one room.
type Document struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Notepad  string `json:"notepad"`
}

// DocumentStore maps room IDs to their documents. Entries are created
// lazily on first write; reads of unknown rooms return zero values
// without materializing anything.
//
// The mutex only makes the map itself safe to touch from any goroutine.
// Ordering of writes to a single room's entry is the caller's problem:
// all mutations for a given room must be funneled through that room's
// single owning goroutine (see the room package), so two writers never
// interleave on one key.
type DocumentStore struct {
	mu       sync.RWMutex
	rooms    map[string]*Document
	onChange func(roomID string, doc Document)
}

func New() *DocumentStore {
	return &DocumentStore{rooms: make(map[string]*Document)}
}

// OnChange registers a hook invoked with a copy of the document after
// every mutation. Used to mirror live rooms into a snapshot backend.
// Must be set before the store is shared; Restore does not trigger it.
func (s *DocumentStore) OnChange(fn func(roomID string, doc Document)) {
	s.onChange = fn
}

// Text returns the room's document text, or "" for an unknown room.
func (s *DocumentStore) Text(roomID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.rooms[roomID]; ok {
		return doc.Text
	}
	return ""
}

// Language returns the room's language tag, or DefaultLanguage for an
// unknown room.
func (s *DocumentStore) Language(roomID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.rooms[roomID]; ok {
		return doc.Language
	}
	return DefaultLanguage
}

// Notepad returns the room's markdown notepad, or "" for an unknown room.
func (s *DocumentStore) Notepad(roomID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.rooms[roomID]; ok {
		return doc.Notepad
	}
	return ""
}

// SetText overwrites the room's document text, materializing the entry
// if needed.
func (s *DocumentStore) SetText(roomID, text string) {
	s.mutate(roomID, func(doc *Document) { doc.Text = text })
}

// SetLanguage overwrites the room's language tag, materializing the
// entry if needed.
func (s *DocumentStore) SetLanguage(roomID, language string) {
	s.mutate(roomID, func(doc *Document) { doc.Language = language })
}

// SetNotepad overwrites the room's notepad, materializing the entry if
// needed.
func (s *DocumentStore) SetNotepad(roomID, notepad string) {
	s.mutate(roomID, func(doc *Document) { doc.Notepad = notepad })
}

func (s *DocumentStore) mutate(roomID string, fn func(*Document)) {
	s.mu.Lock()
	doc := s.getOrCreate(roomID)
	fn(doc)
	snapshot := *doc
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(roomID, snapshot)
	}
}

// Restore installs a previously snapshotted document wholesale.
func (s *DocumentStore) Restore(roomID string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := doc
	s.rooms[roomID] = &d
}

// Snapshot returns a copy of the room's document and whether the room
// had materialized state.
func (s *DocumentStore) Snapshot(roomID string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.rooms[roomID]; ok {
		return *doc, true
	}
	return Document{}, false
}

// Delete removes the room's entry. Deleting an unknown room is a no-op.
func (s *DocumentStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Rooms lists the room IDs with materialized state.
func (s *DocumentStore) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// getOrCreate must be called with the write lock held.
func (s *DocumentStore) getOrCreate(roomID string) *Document {
	doc, ok := s.rooms[roomID]
	if !ok {
		doc = &Document{Language: DefaultLanguage}
		s.rooms[roomID] = doc
	}
	return doc
}
