// Package auth 调试接口的令牌与口令校验
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrWrongScope   = errors.New("token scope not allowed")
)

// ScopeDebug 调试接口权限
const ScopeDebug = "debug"

const issuer = "lifesim"

// Claims 调试令牌声明
type Claims struct {
	Operator string `json:"operator"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenManager 签发与校验调试令牌
type TokenManager struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secretKey string, expiry time.Duration) *TokenManager {
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &TokenManager{secretKey: []byte(secretKey), expiry: expiry, now: time.Now}
}

// Issue 为操作员签发调试令牌
func (m *TokenManager) Issue(operator string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	claims := &Claims{
		Operator: operator,
		Scope:    ScopeDebug,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	return signed, expiresAt, err
}

// Validate 校验令牌并要求调试权限
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != ScopeDebug {
		return nil, ErrWrongScope
	}
	return claims, nil
}

// Expiry 令牌有效期
func (m *TokenManager) Expiry() time.Duration {
	return m.expiry
}
