package stub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
)

// Name 配置中 radio.driver 的取值
const Name = "stub"

func init() {
	radio.RegisterDriver(Name, func(logger *zap.Logger) (driverapi.Driver, error) {
		return New(WithEcho()), nil
	})
}

var ErrClosed = errors.New("stub driver closed")

// Driver 主机侧模拟收发器：记录调用序列与发送帧，可注入接收数据，
// 并检测半双工违规（监听中发送、未监听时读、并发调用驱动）。
type Driver struct {
	mu        sync.Mutex
	opened    bool
	closes    int
	listening bool
	writePipe driverapi.Pipe
	readPipes [driverapi.MaxReadPipes + 1]driverapi.Pipe

	rx     [][]byte
	writes [][]byte
	calls  []string

	violations []string
	active     atomic.Int32

	echo       bool
	writeDelay time.Duration
	failOpen   error
	failStep   map[string]error
	dropNext   int
	onWrite    func(frame []byte)
}

// Option 构造选项
type Option func(*Driver)

// WithEcho 每次发送成功后把同一帧以上行同步字注入接收队列，模拟设备应答
func WithEcho() Option { return func(d *Driver) { d.echo = true } }

// WithWriteDelay 模拟空口发送耗时
func WithWriteDelay(delay time.Duration) Option { return func(d *Driver) { d.writeDelay = delay } }

// WithFailOpen Open 返回该错误
func WithFailOpen(err error) Option { return func(d *Driver) { d.failOpen = err } }

// WithFailStep 指定调用（如 "SetPALevel"）返回错误
func WithFailStep(step string, err error) Option {
	return func(d *Driver) {
		if d.failStep == nil {
			d.failStep = map[string]error{}
		}
		d.failStep[step] = err
	}
}

// New 创建模拟驱动
func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) enter(call string) func() {
	if d.active.Add(1) > 1 {
		d.mu.Lock()
		d.violations = append(d.violations, "concurrent "+call)
		d.mu.Unlock()
	}
	return func() { d.active.Add(-1) }
}

// record 调用方须持有 mu
func (d *Driver) record(call string) error {
	d.calls = append(d.calls, call)
	if err := d.failStep[call]; err != nil {
		return err
	}
	if call != "Open" && !d.opened {
		return ErrClosed
	}
	return nil
}

func (d *Driver) Open() error {
	defer d.enter("Open")()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "Open")
	if d.failOpen != nil {
		return d.failOpen
	}
	d.opened = true
	return nil
}

func (d *Driver) Close() error {
	defer d.enter("Close")()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "Close")
	d.closes++
	d.opened = false
	d.listening = false
	return nil
}

func (d *Driver) SetChannel(uint8) error {
	defer d.enter("SetChannel")()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("SetChannel")
}

func (d *Driver) SetRetries(uint8, uint8) error {
	defer d.enter("SetRetries")()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("SetRetries")
}

func (d *Driver) SetCRCLength(driverapi.CRCLength) error {
	defer d.enter("SetCRCLength")()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("SetCRCLength")
}

func (d *Driver) SetPALevel(driverapi.PALevel) error {
	defer d.enter("SetPALevel")()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("SetPALevel")
}

func (d *Driver) SetDataRate(driverapi.DataRate) error {
	defer d.enter("SetDataRate")()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("SetDataRate")
}

func (d *Driver) OpenReadingPipe(slot uint8, addr driverapi.Pipe) error {
	defer d.enter("OpenReadingPipe")()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("OpenReadingPipe"); err != nil {
		return err
	}
	if slot < 1 || slot > driverapi.MaxReadPipes {
		return fmt.Errorf("reading pipe slot %d out of range", slot)
	}
	if d.listening {
		d.violations = append(d.violations, "OpenReadingPipe while listening")
	}
	d.readPipes[slot] = addr
	return nil
}

func (d *Driver) OpenWritingPipe(addr driverapi.Pipe) error {
	defer d.enter("OpenWritingPipe")()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("OpenWritingPipe"); err != nil {
		return err
	}
	d.writePipe = addr
	return nil
}

func (d *Driver) StartListening() error {
	defer d.enter("StartListening")()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("StartListening"); err != nil {
		return err
	}
	d.listening = true
	return nil
}

func (d *Driver) StopListening() error {
	defer d.enter("StopListening")()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("StopListening"); err != nil {
		return err
	}
	d.listening = false
	return nil
}

func (d *Driver) Available() (bool, error) {
	defer d.enter("Available")()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return false, ErrClosed
	}
	if !d.listening {
		d.violations = append(d.violations, "Available while not listening")
	}
	return len(d.rx) > 0, nil
}

// Read 拷贝队首数据块，块比 buf 长时剩余部分留给下一次读（短读）
func (d *Driver) Read(buf []byte) (int, error) {
	defer d.enter("Read")()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return 0, ErrClosed
	}
	if !d.listening {
		d.violations = append(d.violations, "Read while not listening")
	}
	if len(d.rx) == 0 {
		return 0, nil
	}
	n := copy(buf, d.rx[0])
	if n < len(d.rx[0]) {
		d.rx[0] = d.rx[0][n:]
	} else {
		d.rx = d.rx[1:]
	}
	return n, nil
}

func (d *Driver) Write(buf []byte) (bool, error) {
	defer d.enter("Write")()
	d.mu.Lock()
	if err := d.record("Write"); err != nil {
		d.mu.Unlock()
		return false, err
	}
	if d.listening {
		d.violations = append(d.violations, "Write while listening")
	}
	delay := d.writeDelay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dropNext > 0 {
		d.dropNext--
		return false, nil
	}
	frame := append([]byte(nil), buf...)
	d.writes = append(d.writes, frame)
	if d.onWrite != nil {
		d.onWrite(frame)
	}
	if d.echo {
		if f, err := rf24.Decode(frame); err == nil {
			if up, err := rf24.EncodeUplink(f.MessageID, f.Target, f.CommandID, f.Payload); err == nil {
				d.rx = append(d.rx, up[:])
			}
		}
	}
	return true, nil
}

// InjectRx 注入接收数据（一次 Read 最多取走一块）
func (d *Driver) InjectRx(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = append(d.rx, append([]byte(nil), p...))
}

// InjectFrame 以上行同步字编码一帧并注入
func (d *Driver) InjectFrame(messageID uint8, target uint16, commandID uint8, payload []byte) error {
	raw, err := rf24.EncodeUplink(messageID, target, commandID, payload)
	if err != nil {
		return err
	}
	d.InjectRx(raw[:])
	return nil
}

// DropNext 接下来 n 次发送返回未确认
func (d *Driver) DropNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropNext = n
}

// OnWrite 每次成功发送后回调（持有驱动锁，回调内不得调用驱动方法）
func (d *Driver) OnWrite(fn func(frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onWrite = fn
}

// Writes 已成功发送的帧
func (d *Driver) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.writes))
	copy(out, d.writes)
	return out
}

// Calls 调用序列
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CountCalls 某方法的调用次数
func (d *Driver) CountCalls(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Violations 半双工违规记录
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Listening 当前是否处于监听
func (d *Driver) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

// Closes Close 被调用的次数
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// PendingRx 尚未读取的数据块数
func (d *Driver) PendingRx() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rx)
}

// ReadPipe 槽位当前地址
func (d *Driver) ReadPipe(slot uint8) driverapi.Pipe {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readPipes[slot]
}

// WritePipe 当前写管道
func (d *Driver) WritePipe() driverapi.Pipe {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writePipe
}
