package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

const (
	requestIDHeader   = "X-Request-Id"
	adminSecretHeader = "X-Admin-Secret"

	ctxIdentityID = "identityID"
	ctxAddress    = "address"
	ctxRequestID  = "requestID"
)

// requestID echoes the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString(ctxRequestID),
		}
		if id := c.GetString(ctxIdentityID); id != "" {
			args = append(args, "identity", id)
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error(c.Request.Context(), "request failed", append(args, "errors", c.Errors.String())...)
		case status >= http.StatusBadRequest:
			log.Info(c.Request.Context(), "request rejected", args...)
		default:
			log.Debug(c.Request.Context(), "request served", args...)
		}
	}
}

// authRequired verifies the bearer access token and stores the identity in
// the gin context.
func authRequired(identities IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeader)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || token == "" {
			c.Header("WWW-Authenticate", `Bearer`)
			abortWithError(c, common.ErrorUnauthorized)
			return
		}
		claims, err := identities.Authenticate(token)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			abortWithError(c, err)
			return
		}
		c.Set(ctxIdentityID, claims.IdentityID)
		c.Set(ctxAddress, claims.Address)
		c.Next()
	}
}

func adminRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(adminSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abortWithError(c, common.ErrorUnauthorized)
			return
		}
		c.Next()
	}
}
