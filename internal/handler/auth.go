package handler

import (
	"github.com/gin-gonic/gin"

	"subzone/internal/auth"
	"subzone/internal/service"
)

type AuthHandler struct {
	accounts AccountService
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type registerRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	Name         string `json:"name" binding:"required"`
	ReferralCode string `json:"referral_code"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) (any, error) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.accounts.Register(requestContext(c), service.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		ReferralCode: req.ReferralCode,
	})
}

func (h *AuthHandler) Login(c *gin.Context) (any, error) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.accounts.Login(requestContext(c), req.Email, req.Password)
}

func (h *AuthHandler) Me(c *gin.Context) (any, error) {
	return auth.CurrentAccount(c), nil
}

func (h *AuthHandler) Referral(c *gin.Context) (any, error) {
	return h.accounts.Referral(c.Request.Context(), auth.CurrentAccount(c))
}
