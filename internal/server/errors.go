package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"clipforge/internal/core/domain"
)

// statusClientClosedRequest is nginx's code for a client that went away.
const statusClientClosedRequest = 499

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindRetrieval:
		return http.StatusNotFound
	case domain.KindMetadata:
		return http.StatusBadGateway
	case domain.KindProvisioning:
		return http.StatusServiceUnavailable
	case domain.KindCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "code"} plus any extra fields. Only the
// public message reaches the client; the full chain goes to the log.
func respondError(c *gin.Context, logger hclog.Logger, err error, extra gin.H) {
	status := statusFor(err)
	kind := domain.KindOf(err)
	if kind == "" {
		kind = "internal"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "path", c.Request.URL.Path, "status", status, "error", err)
	}

	body := gin.H{
		"error": domain.PublicMessage(err),
		"code":  string(kind),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
