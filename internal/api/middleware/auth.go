package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/village/pkg/response"
)

const (
	// ContextUserID 认证通过后写入 gin.Context 的用户 ID
	ContextUserID = "user_id"
	// ContextOrigin 请求来源地址
	ContextOrigin = "origin"
)

// Claims 访问令牌声明
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var errNoToken = errors.New("missing bearer token")

// ParseToken 校验 HS256 令牌并返回用户 ID
func ParseToken(secret []byte, tokenString string) (string, error) {
	if tokenString == "" {
		return "", errNoToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", errors.New("token has no user_id claim")
	}
	return claims.UserID, nil
}

// SignToken 签发令牌（基准工具与测试使用；生产令牌由认证服务签发）
func SignToken(secret []byte, userID string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: userID}).SignedString(secret)
}

// Auth JWT 认证
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		userID, err := ParseToken(key, raw)
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}
