package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storehub-api/internal/dto"
	"github.com/flicky/storehub-api/internal/middleware"
	"github.com/flicky/storehub-api/internal/service"
)

type AuthHandler struct {
	authService  *service.AuthService
	cookieSecure bool
	log          *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, cookieSecure bool, log *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cookieSecure: cookieSecure, log: log}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	middleware.SetSessionCookie(c, resp.Token, h.authService.TokenTTL(), h.cookieSecure)
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	middleware.SetSessionCookie(c, resp.Token, h.authService.TokenTTL(), h.cookieSecure)
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	middleware.ClearSessionCookie(c, h.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": dto.ToUserResponse(middleware.GetUser(c))})
}
