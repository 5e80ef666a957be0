package health

import (
	"context"
	"sync/atomic"
)

// Readiness 启动阶段就绪标记：依赖初始化与调度器启动完成前保持不就绪，
// 进入关停流程后重新置为不就绪
type Readiness struct {
	started atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetStarted(v bool) { r.started.Store(v) }

func (r *Readiness) Ready() bool { return r.started.Load() }

func (r *Readiness) Name() string { return "startup" }

func (r *Readiness) Check(ctx context.Context) CheckResult {
	if !r.Ready() {
		return CheckResult{Status: StatusUnhealthy, Message: "starting or shutting down"}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}
