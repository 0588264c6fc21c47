package service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 访问令牌作用域
const (
	TokenScopeAdmin     = "admin"
	TokenScopeConnector = "connector"
)

// AccessTokenClaims 管理端与连接器回调共用的 JWT 声明
type AccessTokenClaims struct {
	Scope    string `json:"scope"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// IssueAccessToken 签发访问令牌，ttl <= 0 表示不过期
func IssueAccessToken(secret string, claims AccessTokenClaims, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, ErrAccessTokenInvalid
	}
	claims.Scope = strings.TrimSpace(claims.Scope)
	claims.Provider = strings.ToLower(strings.TrimSpace(claims.Provider))
	if claims.Scope != TokenScopeAdmin && claims.Scope != TokenScopeConnector {
		return "", time.Time{}, ErrAccessTokenInvalid
	}
	if claims.Scope == TokenScopeConnector && claims.Provider == "" {
		return "", time.Time{}, ErrAccessTokenInvalid
	}

	now := time.Now()
	var expiresAt time.Time
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	if ttl > 0 {
		expiresAt = now.Add(ttl)
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccessToken 校验签名并要求作用域匹配
func ParseAccessToken(secret, tokenString, scope string) (*AccessTokenClaims, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(tokenString) == "" {
		return nil, ErrAccessTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &AccessTokenClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrAccessTokenInvalid
	}
	if claims.Scope != scope {
		return nil, ErrAccessTokenInvalid
	}
	return claims, nil
}
