package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/services/status"
)

func wsTestServer(t *testing.T, ch *status.MemoryChannel, jobID string) *httptest.Server {
	t.Helper()
	h := NewJobSocketHandler(ch, &common.WebSocketConfig{PingInterval: "30s", WriteTimeout: "5s"}, arbor.NewLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleJobSocket(w, r, jobID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsDial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func framePayload(t *testing.T, msg WSMessage) *models.StatusSnapshot {
	t.Helper()
	data, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var snapshot models.StatusSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	return &snapshot
}

func TestJobSocketSnapshotThenDeltas(t *testing.T) {
	ch := status.NewMemoryChannel()
	ctx := context.Background()
	require.NoError(t, ch.Put(ctx, "j1", models.StatusPatch{
		Status:   models.StatusPtr(models.JobStatusProcessing),
		Progress: models.IntPtr(25),
	}))

	conn := wsDial(t, wsTestServer(t, ch, "j1"))

	hello := readFrame(t, conn)
	assert.Equal(t, "connection_established", hello.Type)

	snapshotFrame := readFrame(t, conn)
	require.Equal(t, "status_update", snapshotFrame.Type)
	assert.Equal(t, 25, framePayload(t, snapshotFrame).Progress)

	require.NoError(t, ch.Put(ctx, "j1", models.StatusPatch{Progress: models.IntPtr(60)}))

	delta := readFrame(t, conn)
	require.Equal(t, "status_update", delta.Type)
	assert.Equal(t, 60, framePayload(t, delta).Progress)
}

func TestJobSocketUnknownJobGetsNoSnapshotFrame(t *testing.T) {
	ch := status.NewMemoryChannel()
	conn := wsDial(t, wsTestServer(t, ch, "ghost"))

	hello := readFrame(t, conn)
	assert.Equal(t, "connection_established", hello.Type)

	// The subscription is live before the hello frame is sent, so the
	// very next frame is this delta, not a snapshot.
	require.NoError(t, ch.Put(context.Background(), "ghost", models.StatusPatch{Progress: models.IntPtr(55)}))

	next := readFrame(t, conn)
	require.Equal(t, "status_update", next.Type)
	assert.Equal(t, 55, framePayload(t, next).Progress)
}

func TestJobSocketAnswersPingWithPong(t *testing.T) {
	ch := status.NewMemoryChannel()
	conn := wsDial(t, wsTestServer(t, ch, "j1"))

	assert.Equal(t, "connection_established", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestJobSocketFansOutToAllClients(t *testing.T) {
	ch := status.NewMemoryChannel()
	srv := wsTestServer(t, ch, "j1")

	first := wsDial(t, srv)
	second := wsDial(t, srv)

	assert.Equal(t, "connection_established", readFrame(t, first).Type)
	assert.Equal(t, "connection_established", readFrame(t, second).Type)

	require.NoError(t, ch.Put(context.Background(), "j1", models.StatusPatch{
		Status:   models.StatusPtr(models.JobStatusCompleted),
		Progress: models.IntPtr(100),
	}))

	for _, conn := range []*websocket.Conn{first, second} {
		frame := readFrame(t, conn)
		require.Equal(t, "status_update", frame.Type)
		assert.Equal(t, 100, framePayload(t, frame).Progress)
	}
}
