package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"trackmyteam/internal/model"
	"trackmyteam/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Handler 提供注册与登录接口。两个接口成功时都以纯文本返回令牌。
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 创建新用户。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrBlankUsername) {
			metrics.AuthEventsTotal.WithLabelValues("register", "invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, model.ErrDuplicateUsername) {
			metrics.AuthEventsTotal.WithLabelValues("register", "duplicate").Inc()
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		metrics.AuthEventsTotal.WithLabelValues("register", "error").Inc()
		h.logger.Error("register failed", slog.String("username", req.Username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}

	metrics.AuthEventsTotal.WithLabelValues("register", "ok").Inc()
	c.String(http.StatusOK, "User Registered Successfully! \nYour JWT token is : %s", token)
}

// Login 校验用户并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			metrics.AuthEventsTotal.WithLabelValues("login", "invalid").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		metrics.AuthEventsTotal.WithLabelValues("login", "error").Inc()
		h.logger.Error("login failed", slog.String("username", req.Username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	metrics.AuthEventsTotal.WithLabelValues("login", "ok").Inc()
	c.String(http.StatusOK, "%s", token)
}
