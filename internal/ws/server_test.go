package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/collab"
	"codesync/internal/edit"
	"codesync/internal/room"
	"codesync/internal/store"
)

type testServer struct {
	httpSrv  *httptest.Server
	store    *store.DocumentStore
	torndown chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	docs := store.New()
	torndown := make(chan string, 8)
	reg := room.NewRegistry(func(roomID string) {
		docs.Delete(roomID)
		torndown <- roomID
	})
	srv := NewServer(reg,
		collab.NewDocumentCoordinator(docs, reg),
		collab.NewLanguageCoordinator(docs, reg),
		collab.NewNotepadCoordinator(docs, reg),
	)
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.Handle))
	t.Cleanup(httpSrv.Close)
	return &testServer{httpSrv: httpSrv, store: docs, torndown: torndown}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: data}))
}

// recv reads frames until one matches event, skipping unrelated traffic
// such as presence notifications.
func recv(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %q", event)
		if env.Event == event {
			return env.Data
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, roomID, username string) JoinedPayload {
	t.Helper()
	send(t, conn, EventJoinRoom, JoinPayload{RoomID: roomID, Username: username})
	var joined JoinedPayload
	require.NoError(t, json.Unmarshal(recv(t, conn, EventRoomJoined), &joined))
	return joined
}

func TestEditIsRelayedAndApplied(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)
	join(t, alice, "room-1", "alice")
	join(t, bob, "room-1", "bob")

	op := edit.Operation{Text: "hello", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 1}
	send(t, alice, collab.EventEditOperation, op)

	var relayed edit.Operation
	require.NoError(t, json.Unmarshal(recv(t, bob, collab.EventEditOperation), &relayed))
	assert.Equal(t, op, relayed)

	// The sender's own sync request is ordered after its edit on the
	// room worker, so the snapshot must include it.
	send(t, alice, collab.EventRequestSyncText, struct{}{})
	var snapshot collab.TextPayload
	require.NoError(t, json.Unmarshal(recv(t, alice, collab.EventSyncText), &snapshot))
	assert.Equal(t, "hello", snapshot.Text)
}

func TestJoinerSeesPresenceAndSyncsState(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	join(t, alice, "room-1", "alice")

	send(t, alice, collab.EventUpdateLanguage, collab.ValuePayload{Value: "python"})
	send(t, alice, collab.EventEditOperation, edit.Operation{
		Text: "print(1)", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 1,
	})

	// Alice's own sync confirms her edits were applied before Bob joins.
	send(t, alice, collab.EventRequestSyncText, struct{}{})
	recv(t, alice, collab.EventSyncText)

	bob := ts.dial(t)
	joined := join(t, bob, "room-1", "bob")
	assert.Len(t, joined.Roster, 2)

	var presence room.PresencePayload
	require.NoError(t, json.Unmarshal(recv(t, alice, room.EventUserJoined), &presence))
	assert.Equal(t, "bob", presence.Participant.Username)

	send(t, bob, collab.EventRequestSyncText, struct{}{})
	var text collab.TextPayload
	require.NoError(t, json.Unmarshal(recv(t, bob, collab.EventSyncText), &text))
	assert.Equal(t, "print(1)", text.Text)

	send(t, bob, collab.EventRequestSyncLanguage, struct{}{})
	var lang collab.ValuePayload
	require.NoError(t, json.Unmarshal(recv(t, bob, collab.EventSyncLanguage), &lang))
	assert.Equal(t, "python", lang.Value)
}

func TestEventsBeforeJoinAreDropped(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, collab.EventEditOperation, edit.Operation{
		Text: "sneaky", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 1,
	})

	join(t, conn, "room-1", "alice")
	send(t, conn, collab.EventRequestSyncText, struct{}{})
	var text collab.TextPayload
	require.NoError(t, json.Unmarshal(recv(t, conn, collab.EventSyncText), &text))
	assert.Equal(t, "", text.Text)
}

func TestMalformedFramesDoNotKillTheConnection(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	join(t, conn, "room-1", "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(Envelope{Event: collab.EventEditOperation, Data: json.RawMessage(`"wrong shape"`)}))

	send(t, conn, collab.EventRequestSyncText, struct{}{})
	var text collab.TextPayload
	require.NoError(t, json.Unmarshal(recv(t, conn, collab.EventSyncText), &text))
	assert.Equal(t, "", text.Text)
}

func TestCursorRelayIsOpaque(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)
	aliceJoined := join(t, alice, "room-1", "alice")
	join(t, bob, "room-1", "bob")

	blob := json.RawMessage(`{"line":3,"column":7}`)
	send(t, alice, EventCursorMove, blob)

	var relayed RelayPayload
	require.NoError(t, json.Unmarshal(recv(t, bob, EventCursorMove), &relayed))
	assert.Equal(t, aliceJoined.Participant.ID, relayed.From)
	assert.JSONEq(t, string(blob), string(relayed.Data))
}

func TestSignalIsUnicastToTarget(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)
	carol := ts.dial(t)
	aliceJoined := join(t, alice, "room-1", "alice")
	bobJoined := join(t, bob, "room-1", "bob")
	join(t, carol, "room-1", "carol")

	offer := json.RawMessage(`{"type":"offer","sdp":"..."}`)
	send(t, alice, EventWebRTCSignal, SignalPayload{Target: bobJoined.Participant.ID, Data: offer})

	var got SignalPayload
	require.NoError(t, json.Unmarshal(recv(t, bob, EventWebRTCSignal), &got))
	assert.Equal(t, aliceJoined.Participant.ID, got.From)
	assert.JSONEq(t, string(offer), string(got.Data))

	// Carol must not see the offer; her next frame is something else or
	// nothing at all.
	require.NoError(t, carol.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var env Envelope
	for carol.ReadJSON(&env) == nil {
		assert.NotEqual(t, EventWebRTCSignal, env.Event)
	}
}

func TestDisconnectTearsDownEmptyRoom(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	join(t, conn, "room-1", "alice")

	send(t, conn, collab.EventEditOperation, edit.Operation{
		Text: "x", StartLine: 1, StartColumn: 1, EndLine: 1, EndColumn: 1,
	})
	send(t, conn, collab.EventRequestSyncText, struct{}{})
	recv(t, conn, collab.EventSyncText)

	conn.Close()
	select {
	case roomID := <-ts.torndown:
		assert.Equal(t, "room-1", roomID)
	case <-time.After(2 * time.Second):
		t.Fatal("room was never torn down")
	}
	assert.Equal(t, "", ts.store.Text("room-1"))
}
