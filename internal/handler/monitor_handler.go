package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/proctorly/proctor-backend/internal/middleware"
	"github.com/proctorly/proctor-backend/internal/service"
	ws "github.com/proctorly/proctor-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams the per-exam live proctoring feed to admin watchers.
type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// MonitorExamStream godoc
// WS /ws/v1/admin/exams/:id/monitor?token=...
// Upgrades to WebSocket, sends the active-session snapshot, then forwards
// every live event published on the exam's channel.
func (h *MonitorHandler) MonitorExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("admin_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Monitor connected")

	ctx := c.Request.Context()

	sessions, err := h.monitorService.Snapshot(ctx, examID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Snapshot failed")
		ws.WriteError(conn, "snapshot failed")
		return
	}
	if err := ws.WriteTyped(conn, ws.SnapshotResponse{Event: ws.EventSnapshot, Sessions: sessions}); err != nil {
		return
	}

	sub := h.monitorService.Subscribe(ctx, examID)
	defer sub.Close()

	// Reader drains client frames (pings) and unblocks the writer on close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	feed := sub.Channel()
	for {
		select {
		case <-done:
			wsLog.Debug().Msg("Monitor disconnected")
			return
		case <-ctx.Done():
			return
		case msg, open := <-feed:
			if !open {
				return
			}
			resp := ws.FeedResponse{Event: ws.EventFeed, Data: []byte(msg.Payload)}
			if err := ws.WriteTyped(conn, resp); err != nil {
				return
			}
		}
	}
}
