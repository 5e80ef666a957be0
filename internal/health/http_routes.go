package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册 /health、/health/ready、/health/live
func RegisterHTTPRoutes(r *gin.Engine, aggregator *Aggregator) {
	r.GET("/health", func(c *gin.Context) {
		rep := aggregator.Run(c.Request.Context())
		code := http.StatusOK
		if rep.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, rep)
	})

	r.GET("/health/ready", func(c *gin.Context) {
		rep := aggregator.Run(c.Request.Context())
		if rep.Status == StatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "status": rep.Status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true, "status": rep.Status})
	})

	// 进程能响应即存活；收发器离线不触发重启
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})
}
