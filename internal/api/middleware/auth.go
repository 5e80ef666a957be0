// Package middleware 射频接口的 gin 中间件
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey   = "X-API-Key"
	QueryAPIKey    = "api_key"
	ctxAPIKeyLabel = "api_key_label"
)

// AuthConfig 对应配置 api.auth
type AuthConfig struct {
	APIKeys []string `json:"api_keys"`
	Enabled bool     `json:"enabled"`
}

// keyring 逐个常量时间比较，避免按前缀猜测
type keyring [][]byte

func newKeyring(keys []string) keyring {
	var kr keyring
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			kr = append(kr, []byte(k))
		}
	}
	return kr
}

func (kr keyring) contains(key string) bool {
	found := 0
	for _, k := range kr {
		found |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return found == 1
}

// APIKeyAuth /api/radio 的 API Key 校验。
// Key 依次从 X-API-Key、Authorization: Bearer、?api_key= 读取；
// 缺少返回 401，不匹配返回 403，响应体与处理器的 {code,message,request_id} 一致。
func APIKeyAuth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	kr := newKeyring(cfg.APIKeys)
	if len(kr) == 0 {
		logger.Warn("api auth enabled without keys, every request will be rejected")
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		switch {
		case key == "":
			reject(c, logger, http.StatusUnauthorized, "missing api key", "")
		case !kr.contains(key):
			reject(c, logger, http.StatusForbidden, "invalid api key", maskAPIKey(key))
		default:
			c.Set(ctxAPIKeyLabel, maskAPIKey(key))
			c.Next()
		}
	}
}

func reject(c *gin.Context, logger *zap.Logger, status int, msg, label string) {
	logger.Warn("api auth rejected",
		zap.String("reason", msg),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("remote_addr", c.ClientIP()),
		zap.String("api_key", label))
	c.AbortWithStatusJSON(status, gin.H{
		"code":       status,
		"message":    msg,
		"request_id": c.GetString("request_id"),
		"timestamp":  time.Now().Unix(),
	})
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader(HeaderAPIKey); key != "" {
		return key
	}
	if key, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(key)
	}
	return c.Query(QueryAPIKey)
}

// APIKeyLabel 通过认证的 Key 的脱敏标识，未认证时为空
func APIKeyLabel(c *gin.Context) string { return c.GetString(ctxAPIKeyLabel) }

// maskAPIKey 只保留前后各 4 位
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
