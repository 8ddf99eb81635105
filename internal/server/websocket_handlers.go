package server

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/pipeline"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		return true
	},
}

// WebSocketExtractRequest is one extraction request sent over the socket.
// The document travels base64-encoded inside the JSON message.
type WebSocketExtractRequest struct {
	PDFBase64 string `json:"pdf_base64"`
	Language  string `json:"language"`
}

// WebSocketExtractResponse is a server-to-client message. Type is one of
// "accepted", "progress", "result", "error".
type WebSocketExtractResponse struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Progress  interface{} `json:"progress,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// extractWebSocketHandler streams per-chunk progress events during an
// extraction, then the final result, over one WebSocket connection.
func (s *Server) extractWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleWebSocketExtract(r, conn, data)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

func (s *Server) handleWebSocketExtract(r *http.Request, conn *websocket.Conn, data []byte) {
	var req WebSocketExtractRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocket(conn, WebSocketExtractResponse{Type: "error", Error: "failed to parse request: " + err.Error()})
		return
	}

	pdfBytes, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		s.sendWebSocket(conn, WebSocketExtractResponse{Type: "error", Error: "pdf_base64 is not valid base64"})
		return
	}

	requestID := uuid.NewString()
	s.sendWebSocket(conn, WebSocketExtractResponse{Type: "accepted", RequestID: requestID})

	language := req.Language
	if language == "" {
		language = string(mapper.LanguageEnglish)
	}

	progress := func(ev pipeline.ProgressEvent) {
		s.sendWebSocket(conn, WebSocketExtractResponse{
			Type:      "progress",
			RequestID: requestID,
			Progress:  ev,
		})
	}

	result, err := s.extractor.ExtractWithProgress(r.Context(), pipeline.Request{
		PDF:           pdfBytes,
		Language:      mapper.Language(language),
		CorrelationID: requestID,
	}, progress)
	if err != nil {
		s.sendWebSocket(conn, WebSocketExtractResponse{Type: "error", RequestID: requestID, Error: err.Error()})
		return
	}

	s.recordResultMetrics(language, result)
	s.sendWebSocket(conn, WebSocketExtractResponse{Type: "result", RequestID: requestID, Result: result})
}

func (s *Server) sendWebSocket(conn *websocket.Conn, resp WebSocketExtractResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal websocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Error("failed to write websocket message", "error", err)
	}
}
