package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/common"
)

// Recovery converts a handler panic into a 500 response instead of tearing
// down the connection.
func Recovery(log logging.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic recovered",
					logging.Any("panic", r),
					logging.String("method", c.Request.Method),
					logging.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, common.APIResponse[any]{
					Success: false,
					Error: &common.ErrorDetail{
						Code:    errors.ErrCodeInternal.String(),
						Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
					},
					RequestID: c.Request.Header.Get("X-Request-ID"),
					Timestamp: time.Now().UTC(),
				})
			}
		}()
		c.Next()
	}
}
