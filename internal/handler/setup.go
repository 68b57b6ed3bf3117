package handler

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type SetupHandler struct {
	accounts AccountService
}

func NewSetupHandler(accounts AccountService) *SetupHandler {
	return &SetupHandler{accounts: accounts}
}

type setupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// Status reports whether the first admin still has to be created.
func (h *SetupHandler) Status(c *gin.Context) (any, error) {
	required, err := h.accounts.SetupRequired(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"setup_required": required}, nil
}

func (h *SetupHandler) Setup(c *gin.Context) (any, error) {
	var req setupRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	sess, err := h.accounts.Setup(requestContext(c), req.Email, req.Password, req.Name)
	if err != nil {
		return nil, err
	}
	return created{sess}, nil
}

// RequireSetupComplete rejects API calls until the first admin exists.
func RequireSetupComplete(accounts AccountService) gin.HandlerFunc {
	var done atomic.Bool
	return func(c *gin.Context) {
		if !done.Load() {
			required, err := accounts.SetupRequired(c.Request.Context())
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
				return
			}
			if required {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"detail": "Setup required"})
				return
			}
			done.Store(true)
		}
		c.Next()
	}
}
