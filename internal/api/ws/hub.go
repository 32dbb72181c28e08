package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/monitoring"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/storage"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/id"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

// Config tunes the websocket transport.
type Config struct {
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	ReplyBuffer     int
	ApplyTimeout    time.Duration
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    5 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    25 * time.Second,
		MaxMessageBytes: 50 << 20,
		ReplyBuffer:     32,
		ApplyTimeout:    30 * time.Second,
	}
}

// Hub owns every connected session, feeds their updates to the coordinator
// and fans adopted forests out to them.
type Hub struct {
	coord    *coordinator.Coordinator
	cfg      Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[id.SessionID]*client
}

// NewHub creates a hub in front of coord. metrics may be nil.
func NewHub(coord *coordinator.Coordinator, cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.ReplyBuffer <= 0 {
		cfg.ReplyBuffer = def.ReplyBuffer
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = def.ApplyTimeout
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Hub{
		coord:   coord,
		cfg:     cfg,
		logger:  logger.Named("ws"),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[id.SessionID]*client),
	}
}

// Run broadcasts every adopted forest until ctx ends, then disconnects all
// sessions.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.coord.Subscribe(16)
	defer sub.Close()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub.C():
			if !ok {
				return nil
			}
			h.broadcast(u)
		}
	}
}

// ClientCount returns the current number of connected sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and serves one session until it
// disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(conn, id.NewSessionID(), h.cfg.ReplyBuffer, h.logger)
	h.addClient(cl)
	defer h.removeClient(cl)

	go cl.writePump(h.cfg, func(event string) { h.recordMessage(monitoring.DirectionOut, event) })

	// Registered before the snapshot so no adopted forest falls in between.
	forest, rev := h.coord.Snapshot()
	if f, err := encodeUpdated(rev, forest); err == nil {
		cl.offerForest(rev, f)
	} else {
		h.logger.Error("encode snapshot", zap.Error(err))
	}

	h.readPump(c.Request.Context(), cl)
}

func (h *Hub) readPump(ctx context.Context, cl *client) {
	cl.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = cl.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				cl.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = cl.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var env types.Envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			h.replyError(cl, "", types.CodeBadRequest, "malformed envelope")
			continue
		}
		h.recordMessage(monitoring.DirectionIn, env.Event)

		switch env.Event {
		case types.EventUpdate:
			h.handleUpdate(ctx, cl, env)
		case types.EventPing:
			if f, err := encode(types.EventPong, env.RequestID, nil); err == nil {
				cl.reply(f)
			}
		case types.EventPong:
		default:
			h.replyError(cl, env.RequestID, types.CodeBadRequest, "unknown event "+env.Event)
		}
	}
}

func (h *Hub) handleUpdate(ctx context.Context, cl *client, env types.Envelope) {
	intent, err := coordinator.DecodeIntent(env.Data)
	if err != nil {
		h.replyError(cl, env.RequestID, coordinator.CodeOf(err), err.Error())
		return
	}

	applyCtx, cancel := context.WithTimeout(ctx, h.cfg.ApplyTimeout)
	defer cancel()

	res, err := h.coord.Apply(applyCtx, cl.id.String(), intent)
	if err != nil {
		code := coordinator.CodeOf(err)
		if errors.Is(err, storage.ErrIO) {
			cl.logger.Error("update rejected by storage", zap.String("op", intent.Label()), zap.Error(err))
		}
		h.replyError(cl, env.RequestID, code, err.Error())
		return
	}

	f, err := encode(types.EventSaved, env.RequestID, types.Saved{Success: true, Revision: res.Revision, ID: res.ID})
	if err != nil {
		h.logger.Error("encode ack", zap.Error(err))
		return
	}
	cl.reply(f)
}

func (h *Hub) replyError(cl *client, requestID string, code types.Code, msg string) {
	f, err := encode(types.EventError, requestID, types.Failure{Success: false, Error: msg, Code: code})
	if err != nil {
		return
	}
	cl.reply(f)
}

// broadcast encodes the forest once and hands it to every session except
// the one whose request produced it; that session gets its acknowledgement
// instead. The originator still receives the forest when it missed the
// previous revision and so cannot rebuild this one.
func (h *Hub) broadcast(u coordinator.Update) {
	f, err := encodeUpdated(u.Revision, u.Forest)
	if err != nil {
		h.logger.Error("encode broadcast", zap.Uint64("revision", u.Revision), zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for sid, cl := range h.clients {
		if sid.String() == u.Origin && cl.skipOwn(u.Revision) {
			continue
		}
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if cl.offerForest(u.Revision, f) && h.metrics != nil {
			h.metrics.IncWSCoalesced()
		}
	}
	h.logger.Debug("forest broadcast",
		zap.Uint64("revision", u.Revision),
		zap.Int("sessions", len(clients)),
		zap.String("origin", u.Origin))
}

func (h *Hub) addClient(cl *client) {
	h.mu.Lock()
	h.clients[cl.id] = cl
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	cl.logger.Info("session connected", zap.Int("clients", count))
}

func (h *Hub) removeClient(cl *client) {
	h.mu.Lock()
	_, exists := h.clients[cl.id]
	delete(h.clients, cl.id)
	count := len(h.clients)
	h.mu.Unlock()

	cl.close()
	if !exists {
		return
	}
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
	cl.logger.Info("session disconnected", zap.Int("clients", count))
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		cl.close()
	}
}

func (h *Hub) recordMessage(direction, event string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, event)
	}
}

func encodeUpdated(rev uint64, f tree.Forest) (frame, error) {
	data, err := sonic.Marshal(f)
	if err != nil {
		return frame{}, err
	}
	return encode(types.EventUpdated, "", types.Updated{Revision: rev, Data: data})
}

func encode(event, requestID string, payload any) (frame, error) {
	env := types.Envelope{Event: event, RequestID: requestID}
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return frame{}, err
		}
		env.Data = data
	}
	data, err := sonic.Marshal(env)
	if err != nil {
		return frame{}, err
	}
	return frame{event: event, data: data}, nil
}
