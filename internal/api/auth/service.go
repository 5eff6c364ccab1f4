package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"trackmyteam/internal/model"

	"golang.org/x/crypto/bcrypt"
)

// ErrBlankUsername 表示去除首尾空白后用户名为空。
var ErrBlankUsername = errors.New("username must not be blank")

// UserRepository 是认证服务依赖的用户存储。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// Service 负责注册、登录与令牌签发。
type Service struct {
	users  UserRepository
	tokens *TokenManager
	logger *slog.Logger
}

func NewService(users UserRepository, tokens *TokenManager, logger *slog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register 创建角色为 USER 的新用户并返回令牌。
//
// 用户名已存在时返回 model.ErrDuplicateUsername，用户名为空白时返回 ErrBlankUsername，
// 两种情况都不会写入任何数据。
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return "", ErrBlankUsername
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return "", model.ErrDuplicateUsername
	} else if !errors.Is(err, model.ErrNotFound) {
		return "", fmt.Errorf("query user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	user := &model.User{
		Username: username,
		Email:    email,
		Password: hash,
		Role:     model.RoleUser,
	}
	// 并发注册同名用户时由唯一索引兜底
	if err := s.users.Create(ctx, user); err != nil {
		return "", err
	}

	s.logger.Info("user registered", slog.String("username", username), slog.Uint64("user_id", uint64(user.ID)))
	return s.tokens.Issue(user)
}

// Login 校验用户名与密码并返回令牌。
//
// 用户不存在与密码错误都返回 model.ErrInvalidCredentials。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", model.ErrInvalidCredentials
		}
		return "", fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", model.ErrInvalidCredentials
	}
	return s.tokens.Issue(user)
}

// HashPassword 使用 bcrypt 默认强度生成密码哈希。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
