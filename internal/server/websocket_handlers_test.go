package server

import (
	"encoding/base64"
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

func dialWebSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/extract/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) WebSocketExtractResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var resp WebSocketExtractResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestWebSocketExtractStreamsProgressAndResult(t *testing.T) {
	srv := newTestServer(&fakeExtractor{result: okResult()})
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	defer func() { _ = conn.Close() }()

	req := WebSocketExtractRequest{
		PDFBase64: base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test")),
		Language:  "en",
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	accepted := readResponse(t, conn)
	assert.Equal(t, "accepted", accepted.Type)
	assert.NotEmpty(t, accepted.RequestID)

	// okResult reports two chunks, so two progress events precede the result.
	var types []string
	for i := 0; i < 3; i++ {
		resp := readResponse(t, conn)
		assert.Equal(t, accepted.RequestID, resp.RequestID)
		types = append(types, resp.Type)
	}
	assert.Equal(t, []string{"progress", "progress", "result"}, types)
}

func TestWebSocketExtractRejectsBadJSON(t *testing.T) {
	srv := newTestServer(&fakeExtractor{result: okResult()})
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	resp := readResponse(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "failed to parse request")
}

func TestWebSocketExtractRejectsBadBase64(t *testing.T) {
	srv := newTestServer(&fakeExtractor{result: okResult()})
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	defer func() { _ = conn.Close() }()

	payload, err := json.Marshal(WebSocketExtractRequest{PDFBase64: "!!! not base64 !!!"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	resp := readResponse(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "base64")
}

func TestWebSocketExtractReportsPipelineError(t *testing.T) {
	srv := newTestServer(&fakeExtractor{err: assert.AnError})
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	defer func() { _ = conn.Close() }()

	payload, err := json.Marshal(WebSocketExtractRequest{
		PDFBase64: base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test")),
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	accepted := readResponse(t, conn)
	require.Equal(t, "accepted", accepted.Type)

	resp := readResponse(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.NotEmpty(t, resp.Error)
}

func TestWebSocketUpgradeRequired(t *testing.T) {
	srv := newTestServer(&fakeExtractor{result: okResult()})
	defer srv.Close()

	// A plain GET without upgrade headers is not a WebSocket handshake.
	resp, err := http.Get(srv.URL + "/extract/ws")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
