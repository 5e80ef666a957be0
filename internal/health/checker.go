package health

import (
	"context"
	"time"
)

// Status 检查结论
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 可收发，但存储或队列存在问题
	StatusUnhealthy Status = "unhealthy" // 收发器离线或未运行
)

// CheckResult 单项检查结果；Details 由各检查器给出具体类型（链路为 link.Status）
type CheckResult struct {
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Details any           `json:"details,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Checker 检查器
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// worse 返回两者中更差的状态
func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
