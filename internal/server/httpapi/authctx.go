package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/and161185/retail-desk/internal/model"
)

const (
	claimsKey    = "rms.claims"
	requestIDKey = "rms.requestID"
)

// WithClaims stores the authenticated caller in the gin context.
func WithClaims(c *gin.Context, cl model.Claims) { c.Set(claimsKey, cl) }

// ClaimsFrom fetches the authenticated caller.
func ClaimsFrom(c *gin.Context) (model.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return model.Claims{}, false
	}
	cl, ok := v.(model.Claims)
	return cl, ok
}

// RequestIDFrom returns the request id assigned by RequestID.
func RequestIDFrom(c *gin.Context) string { return c.GetString(requestIDKey) }
