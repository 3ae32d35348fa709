package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/user/cinelist/internal/utils"
)

// TokenCookie 身份令牌 Cookie 名称
const TokenCookie = "token"

// Claims JWT 声明
type Claims struct {
	Anonymous bool `json:"anon"`
	jwt.RegisteredClaims
}

// Identity 身份中间件：
// 优先使用 Cookie 或 Authorization 头中的令牌（自定义令牌登录），
// 都没有或已失效时签发一个匿名身份（匿名登录）。
func Identity(secret string, expiry time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractClaims(c, secret)
		if err != nil {
			token, anon, err := GenerateToken(uuid.NewString(), true, secret, expiry)
			if err != nil {
				c.Next()
				return
			}
			c.SetCookie(TokenCookie, token, int(expiry.Seconds()), "/", "", false, true)
			claims = anon
		} else if shouldRefresh(claims) {
			// 滑动续期：已消耗一半以上有效期时刷新
			if token, _, err := GenerateToken(claims.Subject, claims.Anonymous, secret, expiry); err == nil {
				c.SetCookie(TokenCookie, token, int(expiry.Seconds()), "/", "", false, true)
			}
		}

		c.Set("user_id", claims.Subject)
		c.Set("anonymous", claims.Anonymous)
		c.Next()
	}
}

// RequireIdentity 订阅数据前必须已有身份
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == "" {
			utils.Unauthorized(c, "")
			return
		}
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID（无身份返回空字符串）
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// extractClaims 从 Cookie 或 Header 中提取 JWT Claims
func extractClaims(c *gin.Context, secret string) (*Claims, error) {
	var tokenString string

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	} else if cookie, err := c.Cookie(TokenCookie); err == nil {
		tokenString = cookie
	}

	if tokenString == "" {
		return nil, jwt.ErrTokenMalformed
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

// GenerateToken 生成身份令牌
func GenerateToken(subject string, anonymous bool, secret string, expiry time.Duration) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		Anonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// shouldRefresh 已经消耗了总有效期的 50% 以上
func shouldRefresh(claims *Claims) bool {
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}

	totalDuration := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	elapsedDuration := time.Since(claims.IssuedAt.Time)

	return elapsedDuration > totalDuration/2
}
