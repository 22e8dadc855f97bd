package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/viewer"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware governs origins
	},
}

// Message is an inbound command
type Message struct {
	Type  string  `json:"type"`
	Page  int     `json:"page,omitempty"`
	Value int     `json:"value,omitempty"`
	DPR   float64 `json:"dpr,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	viewers *viewer.Manager
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(viewers *viewer.Manager, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		viewers: viewers,
		metrics: metrics,
		log:     logger.Component("ws").Logger,
	}
}

// HandleConnection upgrades the request and streams the :id viewer's
// events until either side goes away or the viewer closes
func (h *Handler) HandleConnection(c *gin.Context) {
	v, ok := h.viewers.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": viewer.ErrNotFound.Error(), "viewer_id": c.Param("id")})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	events, unsubscribe := v.Subscribe(32)
	defer unsubscribe()

	if err := h.send(conn, "connected", gin.H{"type": "connected", "viewer_id": v.ID().String(), "state": v.State()}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan any, 16)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(ctx, conn, v, out)
	}()

	h.writeLoop(conn, events, out, readDone)

	cancel()
	conn.Close()
	<-readDone
	h.log.Debug("websocket closed", zap.String("viewer", v.ID().String()))
}

func (h *Handler) writeLoop(conn *websocket.Conn, events <-chan viewer.Event, out <-chan any, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				h.writeClose(conn, "viewer closed")
				return
			}
			if err := h.send(conn, string(ev.Type), ev); err != nil {
				return
			}
		case msg := <-out:
			if err := h.send(conn, typeOf(msg), msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, v *viewer.Viewer, out chan<- any) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		var reply any
		if err := sonic.Unmarshal(data, &msg); err != nil {
			reply = errorMessage("malformed message")
		} else {
			label := msg.Type
			if !commands[label] {
				label = "unknown"
			}
			h.metrics.RecordWSMessage("in", label)
			reply = h.handle(v, msg)
		}
		if reply == nil {
			continue
		}
		select {
		case out <- reply:
		case <-ctx.Done():
			return
		}
	}
}

var commands = map[string]bool{
	"ping": true, "state": true,
	"zoom_in": true, "zoom_out": true, "zoom_reset": true, "set_zoom": true,
	"rotate_left": true, "rotate_right": true,
	"next_page": true, "prev_page": true, "goto_page": true,
	"toggle_mode": true, "resize": true, "retry": true,
}

// handle applies one command. Commands that change the viewer reply
// through its events, so they return nil.
func (h *Handler) handle(v *viewer.Viewer, msg Message) any {
	switch msg.Type {
	case "ping":
		return gin.H{"type": "pong"}
	case "state":
		return gin.H{"type": "state", "state": v.State()}
	case "zoom_in":
		v.ZoomIn()
	case "zoom_out":
		v.ZoomOut()
	case "zoom_reset":
		v.ResetZoom()
	case "set_zoom":
		v.SetZoom(msg.Value)
	case "rotate_left":
		v.RotateLeft()
	case "rotate_right":
		v.RotateRight()
	case "next_page":
		v.NextPage()
	case "prev_page":
		v.PrevPage()
	case "goto_page":
		v.GoToPage(msg.Page)
	case "toggle_mode":
		v.ToggleViewMode()
	case "resize":
		if msg.DPR <= 0 {
			return errorMessage("dpr must be positive")
		}
		v.Resize(msg.DPR)
	case "retry":
		if v.Request().URL == "" {
			return errorMessage(viewer.ErrNoSource.Error())
		}
		go func() {
			_ = v.Retry(context.Background())
		}()
	default:
		return errorMessage("unknown message type")
	}
	return nil
}

func (h *Handler) send(conn *websocket.Conn, msgType string, data any) error {
	payload, err := sonic.Marshal(data)
	if err != nil {
		h.log.Warn("websocket encode failed", zap.String("type", msgType), zap.Error(err))
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	h.metrics.RecordWSMessage("out", msgType)
	return nil
}

func (h *Handler) writeClose(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

func errorMessage(msg string) gin.H {
	return gin.H{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	}
}

func typeOf(msg any) string {
	if m, ok := msg.(gin.H); ok {
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return "unknown"
}
