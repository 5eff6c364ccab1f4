package api

import (
	"context"
	"errors"
	"log/slog"

	"trackmyteam/internal/api/auth"
	"trackmyteam/internal/model"
	"trackmyteam/internal/store"
)

// SeedAdmin 确保配置中的管理员账号存在且角色为 ADMIN。
//
// 未配置用户名或密码时跳过。已有同名用户时只提升角色，不修改密码。
func (s *Server) SeedAdmin(ctx context.Context) error {
	return seedAdmin(ctx, s.users, s.cfg.Security.AdminUsername, s.cfg.Security.AdminEmail, s.cfg.Security.AdminPassword, s.logger)
}

func seedAdmin(ctx context.Context, users *store.UserStore, username, email, password string, logger *slog.Logger) error {
	if username == "" || password == "" {
		return nil
	}

	user, err := users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	if errors.Is(err, model.ErrNotFound) {
		hash, hashErr := auth.HashPassword(password)
		if hashErr != nil {
			return hashErr
		}
		user = &model.User{
			Username: username,
			Email:    email,
			Password: hash,
			Role:     model.RoleAdmin,
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}
		logger.Info("admin user created", slog.String("username", username))
		return nil
	}

	if user.Role != model.RoleAdmin {
		if err := users.UpdateRole(ctx, user.ID, model.RoleAdmin); err != nil {
			return err
		}
		logger.Info("user promoted to admin", slog.String("username", username))
	}
	return nil
}
