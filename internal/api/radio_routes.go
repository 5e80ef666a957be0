package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/api/middleware"
)

// RegisterRadioRoutes 注册射频链路管理路由
func RegisterRadioRoutes(r *gin.Engine, handler *RadioHandler, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || handler == nil {
		return
	}

	api := r.Group("/api/radio")
	api.Use(middleware.RequestTracing())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 状态与目录
	api.GET("/status", handler.GetStatus)
	api.GET("/commands", handler.ListCommands)

	// 下发
	api.POST("/commands", handler.SendCommand)
	api.POST("/requests", handler.SendRequest)

	// 运行期重配
	api.PUT("/settings", handler.UpdateSettings)
	api.PUT("/pipes", handler.UpdatePipes)

	// 流水与死信
	api.GET("/frames", handler.ListFrames)
	api.GET("/dead-letters", handler.ListDeadLetters)

	logger.Info("radio routes registered", zap.Int("endpoints", 8))
}
