package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/logging"
)

// RequestLogger logs HTTP requests. The credential, when present, is masked.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		extras := log.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
		}
		if tok := CredentialFromRequest(c); tok != "" {
			extras["token"] = logging.MaskToken(tok)
		}
		if slot, ok := c.Get("credential_slot"); ok {
			extras["slot"] = slot
		}
		logging.WithReq(c, extras).Info("http_request")
	}
}

// CredentialFromRequest returns the credential header value, if any.
// Both header spellings canonicalize to the same key.
func CredentialFromRequest(c *gin.Context) string {
	return c.GetHeader("Token")
}
