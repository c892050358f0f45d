package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/HerbHall/creditdesk/internal/auth"
	"github.com/HerbHall/creditdesk/internal/monitor"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler streams monitor reports and alerts to WebSocket clients.
type Handler struct {
	hub    *Hub
	auth   *auth.Service
	logger *zap.Logger

	unsubscribe []func()
}

var _ platform.RouteRegistrar = (*Handler)(nil)

// NewHandler creates the stream handler and subscribes it to monitor events
// on bus. A nil bus yields a stream that never sends anything.
func NewHandler(svc *auth.Service, bus platform.Subscriber, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		auth:   svc,
		logger: logger,
	}
	if bus != nil {
		h.subscribe(bus)
	}
	return h
}

// Hub exposes the client registry.
func (h *Handler) Hub() *Hub { return h.hub }

// RegisterRoutes registers the WebSocket routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/monitor", h.handleMonitorStream)
}

// Close detaches the handler from the event bus.
func (h *Handler) Close() {
	for _, fn := range h.unsubscribe {
		fn()
	}
	h.unsubscribe = nil
}

// handleMonitorStream upgrades the connection and streams monitor events.
// Browsers cannot set headers on WebSocket requests, so the access token
// arrives in the query string.
func (h *Handler) handleMonitorStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := newClient(conn, claims.UserID, h.logger)
	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

func (h *Handler) subscribe(bus platform.Subscriber) {
	h.unsubscribe = append(h.unsubscribe,
		bus.Subscribe(monitor.TopicReportCompleted, func(_ context.Context, event platform.Event) {
			report, ok := event.Payload.(*monitor.HealthReport)
			if !ok {
				return
			}
			h.hub.Broadcast(Message{
				Type:      MessageReport,
				Timestamp: event.Timestamp,
				Data:      reportData(report),
			})
		}),
		bus.Subscribe(monitor.TopicAlertTriggered, func(_ context.Context, event platform.Event) {
			alert, ok := event.Payload.(*monitor.Alert)
			if !ok {
				return
			}
			h.hub.Broadcast(Message{
				Type:      MessageAlert,
				Timestamp: event.Timestamp,
				Data:      alert,
			})
		}),
	)
	h.logger.Info("subscribed to monitor events for websocket broadcasting")
}

// BroadcastError sends an error message to all connected clients.
func (h *Handler) BroadcastError(errMsg string) {
	h.hub.Broadcast(Message{
		Type:      MessageError,
		Timestamp: time.Now().UTC(),
		Data:      ErrorData{Error: errMsg},
	})
}
