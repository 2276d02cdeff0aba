// Package respond maps application errors to HTTP responses. All handlers go
// through Error so status-code mapping lives in one place.
package respond

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thirtyx30/thirtyx30/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindAuthentication: http.StatusUnauthorized,
	apperr.KindAuthorization:  http.StatusForbidden,
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindConflict:       http.StatusConflict,
	apperr.KindProvider:       http.StatusBadGateway,
	apperr.KindRateLimited:    http.StatusTooManyRequests,
}

// Error writes the JSON error response for err and aborts the request.
// Uncategorized errors become 500 with a generic message; the cause is logged,
// never echoed to the client.
func Error(c *gin.Context, err error) {
	status, ok := statusByKind[apperr.KindOf(err)]
	if !ok {
		status = http.StatusInternalServerError
		slog.Error("unhandled error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": apperr.MessageOf(err)})
}
