package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
	chatservice "github.com/zhouzirui/synesthesia/backend/internal/service/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/view"
)

func setup(t *testing.T) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	rt := analysis.NewRuntime(analysis.NewKeywordEngine(), nil)
	require.NoError(t, rt.Initialize(context.Background()))
	chatSvc := chatservice.NewService(chatservice.Dependencies{Analyzer: rt}, "", nil)

	r := chi.NewRouter()
	New(chatSvc, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	for {
		var event map[string]any
		require.NoError(t, conn.ReadJSON(&event))
		if event["type"] == eventType {
			return event
		}
	}
}

func TestWebSocketSubmitsMessages(t *testing.T) {
	srv, chatSvc := setup(t)
	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	conn := dial(t, srv, session.ID)
	readUntil(t, conn, TypeSnapshot)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "message",
		"data": map[string]string{"text": "I feel anxious"},
	}))

	markup := readUntil(t, conn, view.EventMarkup)
	assert.Contains(t, markup["data"], "markup")

	turn := readUntil(t, conn, TypeTurn)
	data, ok := turn["data"].(map[string]any)
	require.True(t, ok)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "I feel anxious", user["text"])
	assert.Equal(t, "user", user["sender"])
}

func TestWebSocketRejectsBadInput(t *testing.T) {
	srv, chatSvc := setup(t)
	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	conn := dial(t, srv, session.ID)
	readUntil(t, conn, TypeSnapshot)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	event := readUntil(t, conn, TypeError)
	assert.Equal(t, map[string]any{"message": "unsupported message type: dance"}, event["data"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "message", "data": map[string]string{"text": " "}}))
	event = readUntil(t, conn, TypeError)
	assert.Equal(t, map[string]any{"message": "message text is required"}, event["data"])
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _ := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, chatservice.ErrSessionNotFound.Error(), body["error"])
}
