package health

import (
	"context"
	"fmt"
	"time"
)

// deadLetterDegradedRatio 死信列表接近上限时降级（更早的死信即将被裁剪）
const deadLetterDegradedRatio = 0.9

// RedisPinger 死信 Redis 连接（*redis.Client）
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
}

// DeadLetterDepth 死信数量（*redis.DeadLetterQueue）
type DeadLetterDepth interface {
	Count(ctx context.Context) (int64, error)
}

// DeadLetterDetails 死信检查详情
type DeadLetterDetails struct {
	Depth int64 `json:"depth"`
	Max   int64 `json:"max,omitempty"`
}

// RedisChecker 死信 Redis 检查：连接可用与死信积压
type RedisChecker struct {
	client RedisPinger
	dead   DeadLetterDepth
	max    int64
}

// NewRedisChecker max <= 0 表示死信不设上限，不做积压判断
func NewRedisChecker(client RedisPinger, dead DeadLetterDepth, max int64) *RedisChecker {
	return &RedisChecker{client: client, dead: dead, max: max}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}
	res := CheckResult{Status: StatusHealthy, Message: "ok"}
	if c.dead != nil {
		depth, err := c.dead.Count(ctx)
		if err != nil {
			res.Status = StatusDegraded
			res.Message = fmt.Sprintf("dead letter count failed: %v", err)
		} else {
			res.Details = DeadLetterDetails{Depth: depth, Max: c.max}
			if c.max > 0 && float64(depth) >= deadLetterDegradedRatio*float64(c.max) {
				res.Status = StatusDegraded
				res.Message = fmt.Sprintf("dead letters near cap %d/%d", depth, c.max)
			}
		}
	}
	res.Latency = time.Since(start)
	return res
}
