package middleware

import (
	"net/http"

	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize limits the request body to maxBytes. A declared length over
// the limit is rejected up front; otherwise the reader fails once the limit
// is crossed and binding reports the error.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.ErrPayloadTooLarge(maxBytes))
			c.Abort()
			return
		}
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
