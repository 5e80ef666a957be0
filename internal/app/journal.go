package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/journal"
	"github.com/taoyao-code/rf24-gateway/internal/metrics"
	pgstorage "github.com/taoyao-code/rf24-gateway/internal/storage/pg"
	redisstorage "github.com/taoyao-code/rf24-gateway/internal/storage/redis"
)

// NewJournal 帧流水与死信写入器；数据库与 Redis 均未启用时返回 nil
func NewJournal(cfg *cfgpkg.Config, frames *pgstorage.FrameLog, dead *redisstorage.DeadLetterQueue, m *metrics.RadioMetrics, log *zap.Logger) *journal.Writer {
	// 显式判 nil，避免把 nil 指针装进接口
	var (
		frameSink journal.FrameSink
		deadSink  journal.DeadLetterSink
	)
	if frames != nil {
		frameSink = frames
	}
	if dead != nil {
		deadSink = dead
	}
	if frameSink == nil && deadSink == nil {
		log.Info("journal disabled (no database or redis)")
		return nil
	}
	return journal.NewWriter(frameSink, deadSink,
		log.With(zap.String("component", "journal")),
		journal.WithBuffer(cfg.Link.JournalBuffer),
		journal.WithRetention(cfg.Database.Retention, 0),
		journal.WithDropCounter(m),
	)
}
