package api

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/store"
)

const writeWait = 10 * time.Second

// HandleSubscribe handles GET /api/v1/collections/{path}/subscribe. It
// upgrades to a websocket and sends a full snapshot after every change
// until the client goes away.
func (s *Server) HandleSubscribe(c *gin.Context) {
	coll := collectionFrom(c)
	orderBy := c.DefaultQuery("orderBy", store.OrderByDate)
	role := roleFrom(c)
	logger := s.logger.With(
		zap.String("request_id", c.GetString(ctxRequestID)),
		zap.String("collection", coll.Path))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	var writeMu sync.Mutex
	send := func(msg store.SnapshotMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("Subscriber write failed", zap.Error(err))
			cancel()
		}
	}

	stop, err := s.store.Subscribe(ctx, coll.Path, orderBy, func(items []content.Item, err error) {
		if err != nil {
			send(store.SnapshotMessage{Items: []content.Item{}, Error: err.Error()})
			return
		}
		send(store.SnapshotMessage{Items: visibleTo(role, items)})
	})
	if err != nil {
		logger.Error("Failed to subscribe", zap.Error(err))
		send(store.SnapshotMessage{Items: []content.Item{}, Error: err.Error()})
		return
	}
	defer stop()

	// The client never sends anything; reading only detects that it left.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logger.Debug("Subscriber connected")
	<-ctx.Done()
	stop()
	conn.Close()
	<-readDone
	logger.Debug("Subscriber disconnected")
}
