package app

import (
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器，未启用指标时不暴露指标路由
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, readyFn func() bool, log *zap.Logger) *httpserver.Server {
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, readyFn, log)
}
