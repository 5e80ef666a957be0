package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/rf24-gateway/internal/storage/pg"
)

// FramePinger 帧流水库连接（*pgxpool.Pool）
type FramePinger interface {
	Ping(ctx context.Context) error
}

// RecentFrames 最近帧流水（*pg.FrameLog）
type RecentFrames interface {
	Recent(ctx context.Context, limit int) ([]pg.FrameLogEntry, error)
}

// FrameLogDetails 帧流水库检查详情
type FrameLogDetails struct {
	LastFrameAt   *time.Time `json:"last_frame_at,omitempty"`
	AcquiredConns int32      `json:"acquired_conns,omitempty"`
	MaxConns      int32      `json:"max_conns,omitempty"`
}

// DatabaseChecker 帧流水库检查：连接可用、最近一条流水时间、连接池占用
type DatabaseChecker struct {
	db     FramePinger
	frames RecentFrames
}

// NewDatabaseChecker frames 可为 nil
func NewDatabaseChecker(db FramePinger, frames RecentFrames) *DatabaseChecker {
	return &DatabaseChecker{db: db, frames: frames}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	res := CheckResult{Status: StatusHealthy, Message: "ok"}
	var details FrameLogDetails
	if pool, ok := c.db.(*pgxpool.Pool); ok {
		stat := pool.Stat()
		details.AcquiredConns = stat.AcquiredConns()
		details.MaxConns = stat.MaxConns()
		if details.MaxConns > 0 && details.AcquiredConns >= details.MaxConns {
			res.Status = StatusDegraded
			res.Message = "connection pool exhausted"
		}
	}
	if c.frames != nil {
		rows, err := c.frames.Recent(ctx, 1)
		if err != nil {
			res.Status = StatusDegraded
			res.Message = fmt.Sprintf("frame log query failed: %v", err)
		} else if len(rows) > 0 {
			at := rows[0].CreatedAt
			details.LastFrameAt = &at
		}
	}
	res.Details = details
	res.Latency = time.Since(start)
	return res
}
