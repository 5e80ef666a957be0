package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/rf24-gateway/internal/health"
	pgstorage "github.com/taoyao-code/rf24-gateway/internal/storage/pg"
)

// NewHealthAggregator 必需检查项：启动标记 + 链路状态
func NewHealthAggregator(ready *health.Readiness, radio health.StatusSource) *health.Aggregator {
	return health.NewAggregator(ready, health.NewRadioChecker(radio))
}

// AddDatabaseChecker 启用数据库时添加帧流水库检查（可选项）
func AddDatabaseChecker(aggregator *health.Aggregator, dbpool *pgxpool.Pool, frames *pgstorage.FrameLog) {
	if dbpool == nil {
		return
	}
	var recent health.RecentFrames
	if frames != nil {
		recent = frames
	}
	aggregator.AddOptional(health.NewDatabaseChecker(dbpool, recent))
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
