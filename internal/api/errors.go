package api

import (
	"errors"
	"log/slog"
	"net/http"

	"trackmyteam/internal/model"
	"trackmyteam/internal/pkg/notify"
	"trackmyteam/internal/reminder"

	"github.com/gin-gonic/gin"
)

// statusFromError 将领域错误映射为 HTTP 状态码。
func statusFromError(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, reminder.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, notify.ErrDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFromError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
