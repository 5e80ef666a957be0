package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/rf24-gateway/internal/link"
)

// queueDegradedRatio 队列积压超过上限的该比例时降级
const queueDegradedRatio = 0.8

// StatusSource 链路状态来源（*link.Scheduler）
type StatusSource interface {
	Status() link.Status
}

// RadioChecker 收发器链路检查，Details 为完整的 link.Status
type RadioChecker struct {
	source StatusSource
}

func NewRadioChecker(source StatusSource) *RadioChecker {
	return &RadioChecker{source: source}
}

func (c *RadioChecker) Name() string { return "radio" }

func (c *RadioChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.source.Status()
	res := CheckResult{Status: StatusHealthy, Message: "ok", Details: st}

	switch {
	case !st.Online:
		res.Status = StatusUnhealthy
		res.Message = fmt.Sprintf("radio offline: %s", st.Message)
	case !st.Running:
		res.Status = StatusUnhealthy
		res.Message = "link not running"
	case st.QueueLimit > 0 && float64(st.QueueDepth) > queueDegradedRatio*float64(st.QueueLimit):
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("outbound queue backlog %d/%d", st.QueueDepth, st.QueueLimit)
	}
	res.Latency = time.Since(start)
	return res
}
