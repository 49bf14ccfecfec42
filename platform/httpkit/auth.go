package httpkit

import (
	"net/http"
	"slices"
	"strings"

	"nurture_backend/platform/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by AuthRequired.
const (
	ContextUserIDKey   = "userID"
	ContextRolesKey    = "roles"
	ContextTenantIDKey = "tenantID"
)

const tokenTypeAccess = "access"

// accessClaims is the access token issued by the auth service.
type accessClaims struct {
	Type     string   `json:"type"`
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var tokenParser = jwt.NewParser(
	jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	jwt.WithExpirationRequired(),
)

// AuthRequired accepts HMAC signed access tokens and stores the caller's
// user, tenant and roles on the context.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		raw = strings.TrimSpace(raw)
		if !found || raw == "" {
			Error(c, http.StatusUnauthorized, "missing token", nil)
			c.Abort()
			return
		}

		claims, ok := verifyAccessToken(raw, cfg.GetJWTAccessSecret())
		if !ok {
			Error(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			Error(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		if tenant := strings.TrimSpace(claims.TenantID); tenant != "" {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				Error(c, http.StatusUnauthorized, "invalid token", nil)
				c.Abort()
				return
			}
			c.Set(ContextTenantIDKey, tenantID)
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRolesKey, claims.Roles)
		c.Next()
	}
}

func verifyAccessToken(raw, secret string) (*accessClaims, bool) {
	claims := &accessClaims{}
	token, err := tokenParser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.Type != tokenTypeAccess {
		return nil, false
	}
	return claims, true
}

// RequireRole lets the request through only when the token carried role.
// It must run after AuthRequired.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, _ := c.Get(ContextRolesKey)
		if list, ok := roles.([]string); ok && slices.Contains(list, role) {
			c.Next()
			return
		}
		Error(c, http.StatusForbidden, "forbidden", nil)
		c.Abort()
	}
}
