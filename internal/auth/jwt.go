package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/sailchat/internal/config"
)

// TokenTTL 签发的 token 有效期
const TokenTTL = 2 * time.Hour

var ErrMissingToken = errors.New("auth: missing token")

type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken 生成 JWT
func GenerateToken(cfg *config.JWTConfig, userID int64, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken 解析 JWT，只接受 HS256 且 user_id 非零
func ParseToken(cfg *config.JWTConfig, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != 0 {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// Authenticator 校验请求头中的 token，解析结果可选地走 Redis 缓存
type Authenticator struct {
	cfg   *config.JWTConfig
	cache *TokenCache
}

func NewAuthenticator(cfg *config.JWTConfig, cache *TokenCache) *Authenticator {
	return &Authenticator{cfg: cfg, cache: cache}
}

// Authenticate 接受 "Bearer <token>" 或裸 token
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Claims, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	if token == "" {
		return nil, ErrMissingToken
	}

	if a.cache != nil {
		claims, ok, err := a.cache.Get(ctx, token)
		if err != nil {
			zap.L().Warn("token cache get failed", zap.Error(err))
		}
		if ok {
			return claims, nil
		}
	}

	claims, err := ParseToken(a.cfg, token)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.Set(ctx, token, claims); err != nil {
			zap.L().Warn("token cache set failed", zap.Error(err))
		}
	}
	return claims, nil
}
