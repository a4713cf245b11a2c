package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key holding the per-request ID.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an ID for response metadata
// and log correlation. A client-supplied X-Request-ID is kept so a caller
// can trace its own retries; otherwise a fresh UUID is issued. The ID is
// echoed back in the response header either way.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
