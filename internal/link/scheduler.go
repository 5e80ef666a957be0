package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/command"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
	"github.com/taoyao-code/rf24-gateway/internal/subscription"
)

var (
	ErrOffline          = errors.New("radio offline")
	ErrStopped          = errors.New("link stopped")
	ErrAlreadyStarted   = errors.New("link already started")
	ErrQueueFull        = errors.New("outbound queue full")
	ErrResponseTimeout  = errors.New("response timeout")
	ErrNotTransmittable = errors.New("send-error sentinel is not transmittable")
)

const (
	defaultPollInterval    = 5 * time.Millisecond
	defaultResponseTimeout = 500 * time.Millisecond
)

// Options 调度器参数
type Options struct {
	ReadPipes       []driverapi.Pipe
	WritePipe       driverapi.Pipe
	PollInterval    time.Duration
	ResponseTimeout time.Duration
	QueueLimit      int
	TxRate          float64
	TxBurst         int
	// ReplyWithHandlers 收到带处理函数的指令时执行处理函数并回发结果
	ReplyWithHandlers bool

	Observer    Observer
	Journal     Journal
	DeadLetters DeadLetters
	Now         func() time.Time
}

// Scheduler 半双工收发调度：读循环轮询接收，写循环成批发送。
// 两个循环通过同一把锁 + 条件变量交接收发器：写循环置 PausedForWrite 后
// 等待读循环确认暂停，再进入 Draining 独占驱动，发送完毕恢复读管道并回到 Listening。
type Scheduler struct {
	radio    *radio.Radio
	drv      driverapi.Driver
	pipes    *radio.PipeManager
	commands *command.Registry
	subs     *subscription.Registry
	logger   *zap.Logger
	opts     Options
	obs      Observer
	initErr  error

	queue    *queue
	pacer    *pacer
	seq      command.Sequence
	pauseReq chan struct{}

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	readerPaused bool
	closed       bool
	running      bool
	readPipes    []driverapi.Pipe

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// 仅读循环使用
	reasm *rf24.Reassembler
	buf   [rf24.FrameSize]byte
}

// New 基于已初始化的收发器创建调度器（尚未启动）
func New(r *radio.Radio, commands *command.Registry, subs *subscription.Registry, logger *zap.Logger, opts Options) *Scheduler {
	s := newScheduler(commands, subs, logger, opts)
	s.radio = r
	s.drv = r.Driver()
	s.pipes = radio.NewPipeManager(s.drv, s.obs.PipesReprogrammed)
	return s
}

// NewOffline 初始化失败时的占位调度器：状态为离线，所有操作返回 ErrOffline
func NewOffline(initErr error, commands *command.Registry, subs *subscription.Registry, logger *zap.Logger, opts Options) *Scheduler {
	s := newScheduler(commands, subs, logger, opts)
	s.initErr = initErr
	return s
}

func newScheduler(commands *command.Registry, subs *subscription.Registry, logger *zap.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = defaultResponseTimeout
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if subs == nil {
		subs = subscription.NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		commands:  commands,
		subs:      subs,
		logger:    logger.With(zap.String("component", "link")),
		opts:      opts,
		obs:       opts.Observer,
		queue:     newQueue(opts.QueueLimit),
		pacer:     newPacer(opts.TxRate, opts.TxBurst),
		pauseReq:  make(chan struct{}, 1),
		state:     Listening,
		readPipes: append([]driverapi.Pipe(nil), opts.ReadPipes...),
		ctx:       ctx,
		cancel:    cancel,
		stopCh:    make(chan struct{}),
		reasm:     rf24.NewReassembler(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start 下发读管道并启动读写循环；ctx 取消时自动 Stop。
// 读管道下发失败按初始化失败处理：转为离线、释放驱动，返回 ErrOffline。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.initErr != nil {
		initErr := s.initErr
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrOffline, initErr)
	}
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	pipes := s.readPipes
	s.mu.Unlock()

	if err := s.pipes.SetReadPipes(pipes); err != nil {
		initErr := &radio.InitError{Step: "read_pipes", Err: err}
		s.mu.Lock()
		s.initErr = initErr
		s.mu.Unlock()
		s.logger.Error("provision read pipes failed, radio offline", zap.Error(err))
		s.Stop()
		return fmt.Errorf("%w: %w", ErrOffline, initErr)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.obs.StateChanged(Listening)

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()
	s.logger.Info("link started",
		zap.Int("read_pipes", len(pipes)),
		zap.Stringer("write_pipe", s.opts.WritePipe),
		zap.Duration("poll_interval", s.opts.PollInterval))
	return nil
}

// Stop 通知两个循环退出并等待，随后释放驱动（只执行一次）
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()

		close(s.stopCh)
		s.cancel()
		for _, it := range s.queue.close() {
			it.finish(ErrStopped)
		}
		s.wg.Wait()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		if s.radio != nil {
			_ = s.radio.Close()
		}
		s.logger.Info("link stopped")
	})
}

// Done 停止后关闭
func (s *Scheduler) Done() <-chan struct{} { return s.stopCh }

// NextMessageID 下一个消息号（按 256 回绕）
func (s *Scheduler) NextMessageID() uint8 { return s.seq.Next() }

// Subscriptions 订阅表
func (s *Scheduler) Subscriptions() *subscription.Registry { return s.subs }

// Commands 指令注册表
func (s *Scheduler) Commands() *command.Registry { return s.commands }

// Subscribe 登记监听器
func (s *Scheduler) Subscribe(l subscription.Listener) string { return s.subs.Subscribe(l) }

// Enqueue 指令入队，由写循环在下一个写窗口按 FIFO 发往 pipe
func (s *Scheduler) Enqueue(cmd command.Command, target uint16, messageID uint8, pipe driverapi.Pipe) error {
	if s.initFailure() != nil {
		return ErrOffline
	}
	if cmd.IsError() {
		return ErrNotTransmittable
	}
	if cmd.Len() > rf24.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", rf24.ErrPayloadTooLarge, cmd.Len())
	}
	it := &item{
		kind:       kindTransmit,
		cmd:        cmd,
		target:     target,
		messageID:  messageID,
		pipe:       pipe,
		enqueuedAt: s.opts.Now(),
	}
	if err := s.queue.push(it); err != nil {
		return err
	}
	s.obs.QueueDepth(s.queue.len())
	return nil
}

// EnqueueGlobal 发往全局写管道
func (s *Scheduler) EnqueueGlobal(cmd command.Command, target uint16, messageID uint8) error {
	return s.Enqueue(cmd, target, messageID, s.opts.WritePipe)
}

// Request 发送指令并等待 (messageId, target) 相同的应答，超时返回 ErrResponseTimeout。
// 返回的消息已脱离读缓冲区。
func (s *Scheduler) Request(ctx context.Context, cmd command.Command, target uint16, pipe driverapi.Pipe) (*command.Message, error) {
	if s.initFailure() != nil {
		return nil, ErrOffline
	}
	id := s.NextMessageID()
	resp := make(chan *command.Message, 1)
	expired := make(chan struct{})
	subID := s.subs.Subscribe(subscription.Funcs{
		Match: func(m *command.Message) bool {
			return m.MessageID == id && m.Target == target
		},
		OnDeliver: func(m *command.Message) { resp <- m.Clone() },
		OnTimeout: func() { close(expired) },
		MaxWait:   s.opts.ResponseTimeout,
	})
	if err := s.Enqueue(cmd, target, id, pipe); err != nil {
		s.subs.Unsubscribe(subID)
		return nil, err
	}
	select {
	case m := <-resp:
		return m, nil
	case <-expired:
		return nil, fmt.Errorf("%w: msg_id=%d target=%d", ErrResponseTimeout, id, target)
	case <-ctx.Done():
		s.subs.Unsubscribe(subID)
		return nil, ctx.Err()
	case <-s.stopCh:
		s.subs.Unsubscribe(subID)
		return nil, ErrStopped
	}
}

// Reconfigure 在下一个写窗口内重新下发射频参数
func (s *Scheduler) Reconfigure(ctx context.Context, settings radio.Settings) error {
	if s.initFailure() != nil {
		return ErrOffline
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.control(ctx, &item{kind: kindReconfigure, settings: settings})
}

// SetReadPipes 替换读管道集合，在下一个写窗口结束时生效
func (s *Scheduler) SetReadPipes(ctx context.Context, pipes []driverapi.Pipe) error {
	if s.initFailure() != nil {
		return ErrOffline
	}
	if len(pipes) > driverapi.MaxReadPipes {
		return fmt.Errorf("%w: %d", radio.ErrTooManyPipes, len(pipes))
	}
	return s.control(ctx, &item{kind: kindReadPipes, pipes: append([]driverapi.Pipe(nil), pipes...)})
}

func (s *Scheduler) control(ctx context.Context, it *item) error {
	it.result = make(chan error, 1)
	it.enqueuedAt = s.opts.Now()
	if err := s.queue.push(it); err != nil {
		return err
	}
	select {
	case err := <-it.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrStopped
	}
}

// Status 当前链路状态
func (s *Scheduler) Status() Status {
	initErr := s.initFailure()
	st := Status{
		Online:        initErr == nil,
		QueueDepth:    s.queue.len(),
		QueueLimit:    s.opts.QueueLimit,
		Subscriptions: s.subs.Len(),
		WritePipe:     s.opts.WritePipe.String(),
		CheckedAt:     s.opts.Now(),
	}
	if initErr != nil {
		st.Message = initErr.Error()
		st.State = "offline"
		return st
	}
	s.mu.Lock()
	st.Running = s.running
	st.State = s.state.String()
	for _, p := range s.readPipes {
		st.ReadPipes = append(st.ReadPipes, p.String())
	}
	s.mu.Unlock()

	cfg := s.radio.Settings()
	st.Channel = cfg.Channel
	st.PALevel = cfg.PALevel.String()
	st.CRCLength = cfg.CRC.String()
	st.DataRate = cfg.DataRate.String()
	return st
}

// State 当前状态
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState 调用方须持有 mu
func (s *Scheduler) setState(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.obs.StateChanged(st)
}

// initFailure 初始化失败原因，nil 表示在线
func (s *Scheduler) initFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
