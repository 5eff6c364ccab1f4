package middleware

import (
	"net/http"
	"strings"

	"trackmyteam/internal/model"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// TokenParser 将令牌还原为调用方身份。
type TokenParser interface {
	Parse(token string) (model.Identity, error)
}

// AuthMiddleware 校验 Bearer 令牌，并将解析出的 model.Identity 写入上下文。
func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := parser.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

// RequireRole 拒绝角色不匹配的调用方，须挂在 AuthMiddleware 之后。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if identity.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// SetIdentity 写入调用方身份。
func SetIdentity(c *gin.Context, identity model.Identity) {
	c.Set(identityKey, identity)
}

// IdentityFrom 读取 AuthMiddleware 写入的身份。
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	identity, ok := v.(model.Identity)
	return identity, ok
}
