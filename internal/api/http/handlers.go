package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/api/middleware"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
)

// ClientCounter reports connected websocket sessions.
type ClientCounter interface {
	ClientCount() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	coord   *coordinator.Coordinator
	clients ClientCounter
	logger  *logging.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewHandlers creates a new handler set. clients may be nil.
func NewHandlers(coord *coordinator.Coordinator, clients ClientCounter, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		coord:   coord,
		clients: clients,
		logger:  logger.Named("http"),
		now:     time.Now,
		timeout: 30 * time.Second,
	}
}

// Register mounts the bookmark routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/bookmarks", h.GetBookmarks)
	r.POST("/bookmarks", h.SaveBookmarks)
	r.PUT("/bookmarks", h.SaveBookmarks)
	r.DELETE("/bookmarks", h.ClearBookmarks)
	r.POST("/bookmarks/ops", h.ApplyOp)
	r.GET("/bookmarks/stats", h.Stats)
	r.GET("/bookmarks/tags", h.Tags)
	r.GET("/bookmarks/search", h.Search)
}

// GetBookmarks returns the forest as a bare array.
func (h *Handlers) GetBookmarks(c *gin.Context) {
	f, rev := h.coord.Snapshot()
	c.Header("X-Revision", formatRevision(rev))
	writeJSON(c, http.StatusOK, f)
}

// SaveBookmarks replaces the whole forest (POST and PUT).
func (h *Handlers) SaveBookmarks(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	intent, err := coordinator.DecodeIntent(body)
	if err != nil || intent.Op != coordinator.OpReplace {
		writeError(c, http.StatusBadRequest, "body must be a bookmark array", "bad_request")
		return
	}
	h.apply(c, intent)
}

// ClearBookmarks empties the forest.
func (h *Handlers) ClearBookmarks(c *gin.Context) {
	h.apply(c, coordinator.Intent{Op: coordinator.OpClear})
}

// ApplyOp runs one structured intent.
func (h *Handlers) ApplyOp(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	intent, err := coordinator.DecodeIntent(body)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, intent)
}

func (h *Handlers) apply(c *gin.Context, intent coordinator.Intent) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.coord.Apply(ctx, "http:"+middleware.GetRequestID(c), intent)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Revision", formatRevision(res.Revision))
	writeJSON(c, http.StatusOK, mutationResponse{
		Success:  true,
		Data:     res.Forest,
		Revision: res.Revision,
		ID:       res.ID,
	})
}

// Stats summarizes the forest.
func (h *Handlers) Stats(c *gin.Context) {
	f, _ := h.coord.Snapshot()
	writeJSON(c, http.StatusOK, tree.ComputeStats(f, h.now()))
}

// Tags lists every distinct tag.
func (h *Handlers) Tags(c *gin.Context) {
	f, _ := h.coord.Snapshot()
	writeJSON(c, http.StatusOK, tree.Tags(f))
}

// Search filters nodes by ?q= (name, url, tags), ?glob= (url pattern) and
// ?tag=.
func (h *Handlers) Search(c *gin.Context) {
	f, _ := h.coord.Snapshot()
	matches, err := tree.Search(f, tree.Query{
		Term:    c.Query("q"),
		URLGlob: c.Query("glob"),
		Tag:     c.Query("tag"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matches)
}

// Health reports liveness, connected sessions and the current revision.
func (h *Handlers) Health(c *gin.Context) {
	clients := 0
	if h.clients != nil {
		clients = h.clients.ClientCount()
	}
	status := "ok"
	code := http.StatusOK
	if h.coord.State() != coordinator.StateReady {
		status = h.coord.State().String()
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, healthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Clients:   clients,
		Revision:  h.coord.Revision(),
	})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
	}
	_ = c.Error(err)
	writeError(c, status, err.Error(), string(coordinator.CodeOf(err)))
}

// readBody reads the whole request body, answering 413 when it exceeds the
// configured limit.
func readBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		writeError(c, http.StatusBadRequest, "empty body", "bad_request")
		return nil, false
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "body too large", "bad_request")
			return nil, false
		}
		writeError(c, http.StatusBadRequest, "could not read body", "bad_request")
		return nil, false
	}
	return body, true
}
