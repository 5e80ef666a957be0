package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/link"
	"github.com/taoyao-code/rf24-gateway/internal/storage/pg"
	"github.com/taoyao-code/rf24-gateway/internal/storage/redis"
)

const (
	SinkFrameLog   = "frame_log"
	SinkDeadLetter = "dead_letter"

	defaultBuffer        = 256
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
	defaultPurgeInterval = time.Hour
	sinkTimeout          = 5 * time.Second
)

// FrameSink 帧流水落库（*pg.FrameLog）
type FrameSink interface {
	InsertBatch(ctx context.Context, entries []*pg.FrameLogEntry) error
}

// Purger 按保留期清理流水（*pg.FrameLog）
type Purger interface {
	PurgeBefore(ctx context.Context, t time.Time) (int64, error)
}

// DeadLetterSink 死信写入（*redis.DeadLetterQueue）
type DeadLetterSink interface {
	Push(ctx context.Context, dl *redis.DeadLetter) error
}

// DropCounter 缓冲满丢弃计数
type DropCounter interface {
	JournalDrop(sink string)
}

// Writer 异步帧流水写入器，实现 link.Journal 与 link.DeadLetters。
// Record/DeadLetter 永不阻塞调度器：缓冲满时直接丢弃并计数。
type Writer struct {
	frames chan link.FrameEvent
	dead   chan link.FrameEvent

	frameSink FrameSink
	deadSink  DeadLetterSink
	drops     DropCounter
	logger    *zap.Logger

	batchSize     int
	flushInterval time.Duration
	purgeInterval time.Duration
	retention     time.Duration
	now           func() time.Time

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

type Option func(*Writer)

func WithBuffer(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.frames = make(chan link.FrameEvent, n)
			w.dead = make(chan link.FrameEvent, n)
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithRetention frameSink 同时实现 Purger 时按 interval 清理早于 retention 的流水
func WithRetention(retention, interval time.Duration) Option {
	return func(w *Writer) {
		w.retention = retention
		if interval > 0 {
			w.purgeInterval = interval
		}
	}
}

func WithDropCounter(c DropCounter) Option {
	return func(w *Writer) { w.drops = c }
}

func WithNow(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWriter frameSink/deadSink 任一可为 nil，对应事件被忽略
func NewWriter(frameSink FrameSink, deadSink DeadLetterSink, logger *zap.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		frames:        make(chan link.FrameEvent, defaultBuffer),
		dead:          make(chan link.FrameEvent, defaultBuffer),
		frameSink:     frameSink,
		deadSink:      deadSink,
		logger:        logger,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		purgeInterval: defaultPurgeInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record link.Journal
func (w *Writer) Record(ev link.FrameEvent) {
	if w.frameSink == nil {
		return
	}
	select {
	case w.frames <- ev:
	default:
		w.dropped(SinkFrameLog)
	}
}

// DeadLetter link.DeadLetters
func (w *Writer) DeadLetter(ev link.FrameEvent) {
	if w.deadSink == nil {
		return
	}
	select {
	case w.dead <- ev:
	default:
		w.dropped(SinkDeadLetter)
	}
}

func (w *Writer) dropped(sink string) {
	if w.drops != nil {
		w.drops.JournalDrop(sink)
	}
	w.logger.Debug("journal buffer full, event dropped", zap.String("sink", sink))
}

// Start 启动后台写入协程，ctx 取消或 Close 时退出并刷出剩余事件
func (w *Writer) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(2)
		go w.frameLoop(ctx)
		go w.deadLoop(ctx)
		if p, ok := w.frameSink.(Purger); ok && w.retention > 0 {
			w.wg.Add(1)
			go w.purgeLoop(ctx, p)
		}
		w.logger.Info("journal writer started",
			zap.Bool("frame_log", w.frameSink != nil),
			zap.Bool("dead_letter", w.deadSink != nil),
			zap.Duration("retention", w.retention))
	})
}

// Close 停止并等待后台协程刷盘完成
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
}

func (w *Writer) frameLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]*pg.FrameLogEntry, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := w.frameSink.InsertBatch(fctx, batch); err != nil {
			w.logger.Warn("frame log insert failed", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-w.frames:
			batch = append(batch, toEntry(ev))
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			w.drainFrames(&batch)
			flush()
			return
		case <-w.stop:
			w.drainFrames(&batch)
			flush()
			return
		}
	}
}

func (w *Writer) drainFrames(batch *[]*pg.FrameLogEntry) {
	for {
		select {
		case ev := <-w.frames:
			*batch = append(*batch, toEntry(ev))
		default:
			return
		}
	}
}

func (w *Writer) deadLoop(ctx context.Context) {
	defer w.wg.Done()
	push := func(ev link.FrameEvent) {
		pctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := w.deadSink.Push(pctx, toDeadLetter(ev)); err != nil {
			w.logger.Warn("dead letter push failed",
				zap.Uint8("msg_id", ev.MessageID),
				zap.Uint16("target", ev.Target),
				zap.Error(err))
		}
	}
	for {
		select {
		case ev := <-w.dead:
			push(ev)
		case <-ctx.Done():
			w.drainDead(push)
			return
		case <-w.stop:
			w.drainDead(push)
			return
		}
	}
}

func (w *Writer) drainDead(push func(link.FrameEvent)) {
	for {
		select {
		case ev := <-w.dead:
			push(ev)
		default:
			return
		}
	}
}

func (w *Writer) purgeLoop(ctx context.Context, p Purger) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.purge(ctx, p)
		}
	}
}

func (w *Writer) purge(ctx context.Context, p Purger) {
	cutoff := w.now().Add(-w.retention)
	n, err := p.PurgeBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("frame log purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("frame log purged", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
	}
}

func toEntry(ev link.FrameEvent) *pg.FrameLogEntry {
	e := &pg.FrameLogEntry{
		Direction: string(ev.Direction),
		MessageID: int16(ev.MessageID),
		Target:    int32(ev.Target),
		CommandID: int16(ev.CommandID),
		Payload:   ev.Payload,
		Result:    ev.Result,
		Error:     ev.Err,
		CreatedAt: ev.At,
	}
	if ev.Pipe != 0 {
		e.Pipe = ev.Pipe.String()
	}
	return e
}

func toDeadLetter(ev link.FrameEvent) *redis.DeadLetter {
	return &redis.DeadLetter{
		MessageID: ev.MessageID,
		Target:    ev.Target,
		CommandID: ev.CommandID,
		Payload:   ev.Payload,
		Pipe:      ev.Pipe.String(),
		Error:     ev.Err,
		FailedAt:  ev.At,
	}
}
