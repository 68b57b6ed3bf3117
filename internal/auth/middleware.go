package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"subzone/internal/model"
)

const accountKey = "account"

type AccountLookup interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// RequireAuth resolves the bearer token to an account and stores it in the
// request context.
func RequireAuth(tokens *Tokens, accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abort(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := tokens.Verify(token)
		if errors.Is(err, ErrExpired) {
			abort(c, http.StatusUnauthorized, "Token expired")
			return
		}
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		acct, err := accounts.GetAccount(c.Request.Context(), claims.UserID)
		if err != nil {
			abort(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		if acct == nil {
			abort(c, http.StatusUnauthorized, "User not found")
			return
		}

		c.Set(accountKey, acct)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentAccount(c).IsAdmin() {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// CurrentAccount returns the account set by RequireAuth, or nil.
func CurrentAccount(c *gin.Context) *model.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	acct, _ := v.(*model.Account)
	return acct
}
