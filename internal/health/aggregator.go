package health

import (
	"context"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Aggregator 汇总网关各项检查。
// 必需项（启动标记、收发器）不健康时整体不健康；
// 可选项（帧流水库、死信 Redis）不健康时只把整体降级，收发不受影响。
type Aggregator struct {
	mu       sync.RWMutex
	required []Checker
	optional []Checker
	timeout  time.Duration
	now      func() time.Time
}

// Report 一次检查的汇总
type Report struct {
	Status    Status                 `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Checks    map[string]CheckResult `json:"checks"`
}

// NewAggregator required 为必需检查项
func NewAggregator(required ...Checker) *Aggregator {
	return &Aggregator{
		required: required,
		timeout:  defaultCheckTimeout,
		now:      time.Now,
	}
}

// AddOptional 添加可选存储检查项
func (a *Aggregator) AddOptional(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.optional = append(a.optional, c)
}

// Run 并发执行全部检查，单项超时为 2s
func (a *Aggregator) Run(ctx context.Context) Report {
	a.mu.RLock()
	required := append([]Checker(nil), a.required...)
	optional := append([]Checker(nil), a.optional...)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		name     string
		optional bool
		result   CheckResult
	}
	out := make(chan outcome, len(required)+len(optional))
	run := func(c Checker, opt bool) {
		out <- outcome{name: c.Name(), optional: opt, result: c.Check(ctx)}
	}
	for _, c := range required {
		go run(c, false)
	}
	for _, c := range optional {
		go run(c, true)
	}

	rep := Report{
		Status:    StatusHealthy,
		CheckedAt: a.now(),
		Checks:    make(map[string]CheckResult, len(required)+len(optional)),
	}
	for i := 0; i < len(required)+len(optional); i++ {
		o := <-out
		rep.Checks[o.name] = o.result
		st := o.result.Status
		if o.optional && st == StatusUnhealthy {
			st = StatusDegraded
		}
		rep.Status = worse(rep.Status, st)
	}
	return rep
}

// Ready 整体非 unhealthy 即就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.Run(ctx).Status != StatusUnhealthy
}
