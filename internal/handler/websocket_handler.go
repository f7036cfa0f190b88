package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/pipeline"
)

const wsWriteWait = 10 * time.Second

// upgrader allows every origin; auth happens before the upgrade.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsError is sent when the first message cannot start a run.
type wsError struct {
	Type    pipeline.EventType `json:"type"`
	Message string             `json:"message"`
}

// WebSocket runs one analysis per connection. The client sends the input
// as its first JSON message and receives every event as a JSON message.
// The server closes the connection after the terminal event.
// GET /api/v1/analyses/ws
func (h *AnalysisHandler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	var in models.SubstationInput
	if err := conn.ReadJSON(&in); err != nil {
		h.writeClose(conn, websocket.CloseUnsupportedData, "expected a JSON analysis input")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// a read error means the client went away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket reader stopped", logging.Err(err))
				}
				cancel()
				return
			}
		}
	}()

	if _, err := h.service.Validate(in); err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(wsError{Type: pipeline.EventError, Message: err.Error()})
		h.writeClose(conn, websocket.ClosePolicyViolation, "invalid input")
		return
	}

	h.service.Stream(ctx, in, func(e pipeline.Event) {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			h.logger.Warn("websocket write failed", logging.Err(err))
			cancel()
		}
	})
	h.writeClose(conn, websocket.CloseNormalClosure, "done")
}

func (h *AnalysisHandler) writeClose(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
