package auth

import (
	"errors"
	"fmt"
	"time"

	"trackmyteam/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示令牌缺失、签名错误、已过期或内容不完整。
var ErrInvalidToken = errors.New("invalid token")

type customClaims struct {
	jwt.RegisteredClaims
	UID  uint   `json:"uid"`
	Role string `json:"role"`
}

// TokenManager 签发与校验 HS256 令牌。
//
// Subject 为用户名，uid 与 role 随令牌携带，校验时无需查询数据库。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue 为用户签发令牌。
func (m *TokenManager) Issue(user *model.User) (string, error) {
	now := m.now()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UID:  user.ID,
		Role: user.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse 校验令牌并还原调用方身份。
func (m *TokenManager) Parse(tokenStr string) (model.Identity, error) {
	claims := &customClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.UID == 0 {
		return model.Identity{}, ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = model.RoleUser
	}
	return model.Identity{
		UserID:   claims.UID,
		Username: claims.Subject,
		Role:     role,
	}, nil
}
