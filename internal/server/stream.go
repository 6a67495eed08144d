package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"image-harvester/internal/collector"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// stream pushes new log entries for one job until it finishes or the client leaves.
func (s *Server) stream(c *gin.Context) {
	id := c.Param("id")
	since, err := parseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := s.svc.Status(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The read loop only handles control frames; any error means the client is gone.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		waitCtx, stop := context.WithTimeout(ctx, pingPeriod)
		entries, job, err := s.svc.WaitEvents(waitCtx, id, since)
		stop()

		switch {
		case errors.Is(err, collector.ErrNotFound):
			return
		case errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return
			}
		case err != nil:
			return
		}

		if len(entries) > 0 || job.State.IsTerminal() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(newEventsResponse(entries, job, since)); err != nil {
				return
			}
			if n := len(entries); n > 0 {
				since = entries[n-1].Seq
			}
		}

		if job.State.IsTerminal() {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.State)),
				time.Now().Add(writeWait),
			)
			return
		}

		select {
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		default:
		}
	}
}
