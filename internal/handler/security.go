package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

const identityKey = "identity"

// authenticate verifies the bearer token and stores the caller identity on
// both the gin context and the request context.
func (h *Handler) authenticate(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		abort(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := h.verifier.Verify(strings.TrimSpace(raw))
	if err != nil {
		zctx.From(c.Request.Context()).Debug("Token rejected", zap.Error(err))
		abort(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := auth.WithIdentity(c.Request.Context(), id)
	ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
	c.Request = c.Request.WithContext(ctx)
	c.Set(identityKey, id)
	c.Next()
}

// requireRole rejects callers holding none of roles with 403.
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identity(c).HasRole(roles...) {
			abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) auth.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(auth.Identity)
	return v
}
