package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, source SceneSource) (*httptest.Server, *Service) {
	t.Helper()

	config := DefaultConfig()
	config.RelayOptions.CloseDelay = 10 * time.Millisecond
	config.RelayOptions.OpenDelay = 10 * time.Millisecond

	service, err := NewService(config, source)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, service.Start(ctx))
	}()

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, service
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	return dialWith(t, srv, path, websocket.Dialer{EnableCompression: true, HandshakeTimeout: eventTimeout})
}

func dialWith(t *testing.T, srv *httptest.Server, path string, dialer websocket.Dialer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path

	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(eventTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev received
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func writeCommand(t *testing.T, conn *websocket.Conn, cmd string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(cmd)))
}

func TestWebSocket_SnapshotAndBroadcast(t *testing.T) {
	srv, _ := newTestServer(t, newFakeSceneSource("Intro"))

	controller := dial(t, srv, "/ws")
	status := decodeStatus(t, readEvent(t, controller))
	assert.False(t, status.ServerState.IsShutterOpened)

	display := dial(t, srv, "/")
	decodeStatus(t, readEvent(t, display))

	writeCommand(t, controller, `{"event":"setShutter","data":{"opened":true}}`)
	assert.Equal(t, EventOpen, readEvent(t, controller).Event)
	assert.Equal(t, EventOpen, readEvent(t, display).Event)

	writeCommand(t, controller, `{"event":"setCocktail","data":{"cocktail":"suikerwater"}}`)
	assert.Equal(t, EventCocktail, readEvent(t, display).Event)

	late := dial(t, srv, "/ws")
	status = decodeStatus(t, readEvent(t, late))
	assert.True(t, status.ServerState.IsShutterOpened)
	require.NotNil(t, status.ServerState.CurrentCocktailRecipe)
	assert.Equal(t, "suikerwater", *status.ServerState.CurrentCocktailRecipe)
}

func TestWebSocket_MalformedKeepsConnectionOpen(t *testing.T) {
	srv, _ := newTestServer(t, newFakeSceneSource())

	conn := dial(t, srv, "/ws")
	decodeStatus(t, readEvent(t, conn))

	writeCommand(t, conn, `garbage`)
	writeCommand(t, conn, `{"event":"unknown"}`)
	writeCommand(t, conn, `{"event":"status"}`)

	decodeStatus(t, readEvent(t, conn))
}

func TestWebSocket_LargeCommandKeepsConnectionOpen(t *testing.T) {
	srv, _ := newTestServer(t, newFakeSceneSource())

	// uncompressed, so the frame on the wire is as large as the command
	conn := dialWith(t, srv, "/ws", websocket.Dialer{HandshakeTimeout: eventTimeout})
	decodeStatus(t, readEvent(t, conn))

	pad := strings.Repeat("x", 64<<10)
	writeCommand(t, conn, `{"event":"status","data":{"pad":"`+pad+`"}}`)
	decodeStatus(t, readEvent(t, conn))

	writeCommand(t, conn, `{"event":"setShutter","data":{"opened":true,"pad":"`+pad+`"}}`)
	assert.Equal(t, EventOpen, readEvent(t, conn).Event)
}

func TestWebSocket_ChangeScene(t *testing.T) {
	source := newFakeSceneSource("Bar")
	srv, _ := newTestServer(t, source)

	conn := dial(t, srv, "/ws")
	decodeStatus(t, readEvent(t, conn))

	writeCommand(t, conn, `{"event":"changeScene","data":{"scene":"Bar","withShutter":true}}`)
	assert.Equal(t, EventClose, readEvent(t, conn).Event)
	expectSwitch(t, source, "Bar")
	assert.Equal(t, EventOpen, readEvent(t, conn).Event)
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	srv, service := newTestServer(t, newFakeSceneSource())

	conn := dial(t, srv, "/ws")
	decodeStatus(t, readEvent(t, conn))
	require.Equal(t, 1, service.hub.Count())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return service.hub.Count() == 0
	}, eventTimeout, 10*time.Millisecond)
}

func TestHTTPRoutes(t *testing.T) {
	srv, _ := newTestServer(t, newFakeSceneSource())

	conn := dial(t, srv, "/ws")
	decodeStatus(t, readEvent(t, conn))
	writeCommand(t, conn, `{"event":"setShutter","data":{"opened":true}}`)
	assert.Equal(t, EventOpen, readEvent(t, conn).Event)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		check      func(t *testing.T, body []byte)
	}{
		{
			name:       "state",
			method:     http.MethodGet,
			path:       "/api/state",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var status StatusPayload
				require.NoError(t, json.Unmarshal(body, &status))
				assert.True(t, status.ServerState.IsShutterOpened)
			},
		},
		{
			name:       "state rejects writes",
			method:     http.MethodPost,
			path:       "/api/state",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "stats",
			method:     http.MethodGet,
			path:       "/ws/stats",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.JSONEq(t, `{"total_connections":1}`, string(body))
			},
		},
		{
			name:       "health",
			method:     http.MethodGet,
			path:       "/health",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, "OK", string(body))
			},
		},
		{
			name:       "root without upgrade",
			method:     http.MethodGet,
			path:       "/",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown path",
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}
