package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/rf24-gateway/internal/metrics"
)

// NewMetrics 初始化注册表与链路指标
func NewMetrics() (*prometheus.Registry, *metrics.RadioMetrics) {
	reg := metrics.NewRegistry()
	m := metrics.NewRadioMetrics(reg)
	return reg, m
}
