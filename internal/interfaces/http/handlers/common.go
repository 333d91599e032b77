// Package handlers implements the HTTP API over the monitoring service:
// run triggering and retrieval, on-demand region analysis and scoring, and
// health probes.
package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/common"
)

// requestID reuses the caller's X-Request-ID or mints one.
func requestID(c *gin.Context) string {
	if id := c.Request.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// limitParam parses ?limit= with a default and an upper bound.
func limitParam(c *gin.Context, def, max int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, common.APIResponse[interface{}]{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// respondError maps the error code to an HTTP status. Server-side failures
// are masked with the code's default message so internals never leak.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	message := err.Error()
	if status >= 500 {
		message = errors.DefaultMessageForCode(code)
	}

	c.JSON(status, common.APIResponse[interface{}]{
		Success: false,
		Error: &common.ErrorDetail{
			Code:    code.String(),
			Message: message,
		},
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}
