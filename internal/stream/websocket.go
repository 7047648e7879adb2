package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/sentinel/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var wsHello = []byte(`{"type":"hello","ok":true}`)

// WebSocketHandler streams newly tailed records as WebSocket text frames.
// GET /ws
type WebSocketHandler struct {
	publisher    *Publisher
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewWebSocketHandler creates a WebSocketHandler. Cross-origin upgrades are
// accepted only from allowedOrigins ("*" allows any); with none configured
// only same-origin upgrades are accepted.
func NewWebSocketHandler(publisher *Publisher, pingInterval time.Duration, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultKeepalive
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &WebSocketHandler{
		publisher:    publisher,
		pingInterval: pingInterval,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}
	defer conn.Close()

	sub := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(sub)

	requestID := middleware.GetRequestID(ctx)
	h.logger.InfoContext(ctx, "stream client connected", "transport", "websocket", "request_id", requestID)
	defer h.logger.InfoContext(ctx, "stream client disconnected", "transport", "websocket", "request_id", requestID)

	// Clients are not expected to send anything; reading detects disconnects
	// and processes pong and close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					h.logger.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	if err := h.write(conn, wsHello); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case batch, ok := <-sub.C():
			if !ok {
				return
			}
			for _, rec := range batch {
				data, err := json.Marshal(rec)
				if err != nil {
					h.logger.WarnContext(ctx, "failed to encode record", "error", err)
					continue
				}
				if err := h.write(conn, data); err != nil {
					return
				}
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
