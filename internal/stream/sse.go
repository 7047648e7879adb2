package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/sentinel/internal/middleware"
	"github.com/onnwee/sentinel/internal/tail"
)

// DefaultKeepalive is the interval between liveness pulses.
const DefaultKeepalive = 15 * time.Second

const (
	sseHello = "event: hello\ndata: {\"ok\":true}\n\n"
	ssePulse = ":\n\n"
)

// SSEHandler streams newly tailed records as Server-Sent Events.
// GET /stream
type SSEHandler struct {
	publisher *Publisher
	keepalive time.Duration
	logger    *slog.Logger
}

// NewSSEHandler creates an SSEHandler. A non-positive keepalive uses DefaultKeepalive.
func NewSSEHandler(publisher *Publisher, keepalive time.Duration, logger *slog.Logger) *SSEHandler {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandler{publisher: publisher, keepalive: keepalive, logger: logger}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WarnContext(ctx, "failed to clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(sub)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	requestID := middleware.GetRequestID(ctx)
	h.logger.InfoContext(ctx, "stream client connected", "transport", "sse", "request_id", requestID)
	defer h.logger.InfoContext(ctx, "stream client disconnected", "transport", "sse", "request_id", requestID)

	if err := h.send(w, rc, sseHello); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-sub.C():
			if !ok {
				return
			}
			if err := h.writeBatch(w, rc, batch); err != nil {
				h.logger.DebugContext(ctx, "stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := h.send(w, rc, ssePulse); err != nil {
				return
			}
		}
	}
}

func (h *SSEHandler) writeBatch(w io.Writer, rc *http.ResponseController, batch []tail.Record) error {
	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			h.logger.Warn("failed to encode record", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
	}
	return rc.Flush()
}

func (h *SSEHandler) send(w io.Writer, rc *http.ResponseController, frame string) error {
	if _, err := io.WriteString(w, frame); err != nil {
		return err
	}
	return rc.Flush()
}
