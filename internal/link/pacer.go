package link

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// pacer 批内相邻帧之间的令牌桶限速，给低功耗节点留出处理时间。
// ratePerSec <= 0 表示不限速。
type pacer struct {
	limiter *rate.Limiter
	waited  atomic.Int64
}

func newPacer(ratePerSec float64, burst int) *pacer {
	if ratePerSec <= 0 {
		return &pacer{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &pacer{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// wait 阻塞到允许发送下一帧；ctx 取消时返回错误
func (p *pacer) wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	p.waited.Add(1)
	return nil
}
