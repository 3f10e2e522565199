package handler

import (
	"bufio"
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
)

type streamPayload struct {
	Summary struct {
		TotalRequests int64 `json:"totalRequests"`
	} `json:"summary"`
	Recent []json.RawMessage `json:"recent"`
}

// Reads SSE frames until the next data line
func nextEvent(t *testing.T, reader *bufio.Reader) (string, streamPayload) {
	t.Helper()

	var event string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			var payload streamPayload
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload))
			return event, payload
		}
	}
}

func TestStreamHandler_SSE(t *testing.T) {
	e := newEnv(t, false)
	e.do(http.MethodGet, "/api/autocomplete/asp", nil, false)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/analytics/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	event, payload := nextEvent(t, reader)
	assert.Equal(t, "analytics", event)
	assert.Equal(t, int64(1), payload.Summary.TotalRequests)
	assert.Len(t, payload.Recent, 1)
	require.Eventually(t, func() bool { return e.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	// a new event is pushed to the open stream
	e.do(http.MethodGet, "/api/autocomplete/caff", nil, false)
	e.hub.Publish()

	_, payload = nextEvent(t, reader)
	assert.Equal(t, int64(2), payload.Summary.TotalRequests)

	cancel()
	assert.Eventually(t, func() bool { return e.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamHandler_WebSocket(t *testing.T) {
	e := newEnv(t, false)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/analytics/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var payload streamPayload
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Zero(t, payload.Summary.TotalRequests)

	e.do(http.MethodGet, "/api/pubchem/compound/name/aspirin/JSON", nil, false)
	e.hub.Publish()

	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, int64(1), payload.Summary.TotalRequests)

	conn.Close()
	assert.Eventually(t, func() bool { return e.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
