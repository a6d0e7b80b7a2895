package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const ContextAccount = "account"

// Authenticator resolves a session token to the live account behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Account, error)
}

type AuthMiddleware struct {
	auth       Authenticator
	cookieName string
}

func NewAuthMiddleware(auth Authenticator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, cookieName: cookieName}
}

// Authenticate requires a valid session from the Authorization header or,
// failing that, the session cookie.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := m.auth.Authenticate(c.Request.Context(), m.token(c))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(ContextAccount, account)
		c.Next()
	}
}

// Optional attaches the account when a valid session is present and lets
// anonymous requests through.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := m.token(c); token != "" {
			if account, err := m.auth.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(ContextAccount, account)
			}
		}
		c.Next()
	}
}

// RequireRole must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := CurrentAccount(c)
		if account == nil {
			_ = c.Error(apperrors.Unauthenticated(nil))
			c.Abort()
			return
		}
		for _, role := range roles {
			if account.Role == role {
				c.Next()
				return
			}
		}
		_ = c.Error(apperrors.Forbidden(""))
		c.Abort()
	}
}

func (m *AuthMiddleware) token(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie(m.cookieName); err == nil {
		return cookie
	}
	return ""
}

// CurrentAccount returns the authenticated account or nil.
func CurrentAccount(c *gin.Context) *model.Account {
	v, ok := c.Get(ContextAccount)
	if !ok {
		return nil
	}
	account, _ := v.(*model.Account)
	return account
}
