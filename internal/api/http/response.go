package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
)

type mutationResponse struct {
	Success  bool        `json:"success"`
	Data     tree.Forest `json:"data"`
	Revision uint64      `json:"revision"`
	ID       string      `json:"id,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Clients   int    `json:"clients"`
	Revision  uint64 `json:"revision"`
}

// statusOf maps domain errors to HTTP status codes. Storage failures and
// anything unexpected are 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrInvalidTarget),
		errors.Is(err, tree.ErrInvalidForest),
		errors.Is(err, coordinator.ErrBadIntent):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrNotReady),
		errors.Is(err, coordinator.ErrShuttingDown),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes with sonic; forests can be several megabytes.
func writeJSON(c *gin.Context, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "encode response"})
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func writeError(c *gin.Context, status int, msg, code string) {
	writeJSON(c, status, errorResponse{Success: false, Error: msg, Code: code})
	c.Abort()
}

func formatRevision(rev uint64) string {
	return strconv.FormatUint(rev, 10)
}
