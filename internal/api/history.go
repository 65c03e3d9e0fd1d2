package api

import (
	stdcontext "context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	historyWriteWait  = 10 * time.Second
	historyPongWait   = 60 * time.Second
	historyPingPeriod = 30 * time.Second
)

var historyUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origins are enforced by the CORS middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (handlers *Handlers) historyLimit(context *gin.Context) (int, bool) {
	var query historyQuery
	if err := context.ShouldBindQuery(&query); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid limit", err.Error())
		return 0, false
	}
	if query.Limit == 0 {
		return handlers.recentLimit, true
	}
	return query.Limit, true
}

// GetHistory returns the most recent conversions, newest first
func (handlers *Handlers) GetHistory(context *gin.Context) {
	limit, ok := handlers.historyLimit(context)
	if !ok {
		return
	}

	records, err := handlers.history.Recent(context.Request.Context(), limit)
	if err != nil {
		handlers.logger.WithError(err).Error("Failed to read conversion history")
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "failed to read history", err.Error())
		return
	}

	context.JSON(http.StatusOK, gin.H{"conversions": records, "count": len(records)})
}

// ClearHistory deletes every conversion
func (handlers *Handlers) ClearHistory(context *gin.Context) {
	deleted, err := handlers.history.Clear(context.Request.Context())
	if err != nil {
		handlers.logger.WithError(err).Error("Failed to clear conversion history")
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "failed to clear history", err.Error())
		return
	}

	context.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// StreamHistory pushes the recent list over a websocket after every change
func (handlers *Handlers) StreamHistory(context *gin.Context) {
	limit, ok := handlers.historyLimit(context)
	if !ok {
		return
	}

	connection, err := historyUpgrader.Upgrade(context.Writer, context.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		handlers.logger.WithError(err).Debug("History stream upgrade failed")
		return
	}
	defer connection.Close()

	streamContext, cancel := stdcontext.WithCancel(context.Request.Context())
	defer cancel()

	updates, unsubscribe, err := handlers.history.Subscribe(streamContext, limit)
	if err != nil {
		handlers.logger.WithError(err).Error("Failed to subscribe to conversion history")
		_ = connection.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "history unavailable"))
		return
	}
	defer unsubscribe()

	go handlers.readHistoryClient(connection, cancel)

	ticker := time.NewTicker(historyPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-streamContext.Done():
			_ = connection.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(historyWriteWait))
			return
		case records, open := <-updates:
			if !open {
				return
			}
			_ = connection.SetWriteDeadline(time.Now().Add(historyWriteWait))
			if err := connection.WriteJSON(gin.H{"conversions": records, "count": len(records)}); err != nil {
				handlers.logger.WithError(err).Debug("History stream write failed")
				return
			}
		case <-ticker.C:
			_ = connection.SetWriteDeadline(time.Now().Add(historyWriteWait))
			if err := connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readHistoryClient drains client frames so control messages are processed and cancels on disconnect
func (handlers *Handlers) readHistoryClient(connection *websocket.Conn, cancel stdcontext.CancelFunc) {
	defer cancel()

	connection.SetReadLimit(512)
	_ = connection.SetReadDeadline(time.Now().Add(historyPongWait))
	connection.SetPongHandler(func(string) error {
		return connection.SetReadDeadline(time.Now().Add(historyPongWait))
	})

	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				handlers.logger.WithError(err).Debug("History stream closed unexpectedly")
			}
			return
		}
	}
}
