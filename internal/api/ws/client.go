package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/id"
)

// frame is an encoded envelope with the event name kept for metrics.
type frame struct {
	event string
	data  []byte
}

// client is one connected session. Replies to the session's own requests go
// through a FIFO queue; forest broadcasts go through a single slot that
// always holds the newest pending forest.
type client struct {
	id     id.SessionID
	conn   *websocket.Conn
	logger *logging.Logger

	replies chan frame
	wake    chan struct{}
	closed  chan struct{}
	once    sync.Once

	mu           sync.Mutex
	pending      frame
	pendingRev   uint64
	hasPending   bool
	deliveredRev uint64
	offeredRev   uint64
}

func newClient(conn *websocket.Conn, sid id.SessionID, buffer int, logger *logging.Logger) *client {
	return &client{
		id:      sid,
		conn:    conn,
		logger:  logger.With(zap.String("session", sid.String())),
		replies: make(chan frame, buffer),
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// reply queues a frame for this session only. It reports false when the
// session is gone or its queue is full.
func (c *client) reply(f frame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.replies <- f:
		return true
	default:
		c.logger.Warn("reply queue full, dropping session")
		c.close()
		return false
	}
}

// offerForest keeps f if it is newer than anything pending or delivered.
// It reports whether an older pending forest was replaced.
func (c *client) offerForest(rev uint64, f frame) (replaced bool) {
	c.mu.Lock()
	if (c.hasPending && rev <= c.pendingRev) || (c.deliveredRev != 0 && rev <= c.deliveredRev) {
		c.mu.Unlock()
		return false
	}
	replaced = c.hasPending
	if rev > c.offeredRev {
		c.offeredRev = rev
	}
	c.pending = f
	c.pendingRev = rev
	c.hasPending = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return replaced
}

// skipOwn reports whether the session can derive rev from its own
// acknowledgement instead of receiving the forest. That holds only when
// rev-1 was the last forest offered to it.
func (c *client) skipOwn(rev uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offeredRev+1 != rev {
		return false
	}
	c.offeredRev = rev
	return true
}

func (c *client) takeForest() (frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPending {
		return frame{}, false
	}
	f := c.pending
	c.deliveredRev = c.pendingRev
	c.pending = frame{}
	c.hasPending = false
	return f, true
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// writePump owns every write to the connection.
func (c *client) writePump(cfg Config, onWrite func(event string)) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	write := func(f frame) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			return false
		}
		onWrite(f.event)
		return true
	}

	for {
		select {
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(cfg.WriteTimeout))
			return

		case f := <-c.replies:
			if !write(f) {
				c.close()
				return
			}

		case <-c.wake:
			if f, ok := c.takeForest(); ok {
				if !write(f) {
					c.close()
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
