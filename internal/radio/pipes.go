package radio

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
)

var (
	ErrTransmitFailed = errors.New("transmit failed")
	ErrTooManyPipes   = errors.New("too many read pipes")
)

// PipeManager 维护当前已下发的读管道集合，只在集合变化时重新编程。
// 非并发安全：只允许当前持有收发器的循环调用。
type PipeManager struct {
	drv        driverapi.Driver
	current    []driverapi.Pipe
	programmed bool
	reprograms int
	onChange   func()
}

// NewPipeManager onChange 在每次实际重新编程后回调，可为 nil
func NewPipeManager(drv driverapi.Driver, onChange func()) *PipeManager {
	return &PipeManager{drv: drv, onChange: onChange}
}

// SetReadPipes 与当前集合逐个比较：不同则停止监听、按顺序写入槽位 1..N；
// 相同则只恢复监听。两种情况最后都处于监听状态。
func (m *PipeManager) SetReadPipes(desired []driverapi.Pipe) error {
	if len(desired) > driverapi.MaxReadPipes {
		return fmt.Errorf("%w: %d", ErrTooManyPipes, len(desired))
	}
	if m.programmed && equalPipes(m.current, desired) {
		return m.drv.StartListening()
	}
	if err := m.drv.StopListening(); err != nil {
		return fmt.Errorf("stop listening: %w", err)
	}
	m.programmed = false
	for i, p := range desired {
		if err := m.drv.OpenReadingPipe(uint8(i+1), p); err != nil {
			return fmt.Errorf("open reading pipe %d %s: %w", i+1, p, err)
		}
	}
	m.current = append(m.current[:0], desired...)
	m.programmed = true
	m.reprograms++
	if m.onChange != nil {
		m.onChange()
	}
	return m.drv.StartListening()
}

// TransmitOn 停止监听、打开写管道并阻塞发送一帧；不恢复监听。
// 发送失败直接返回，不在本层重试（重传由硬件自动完成）。
func (m *PipeManager) TransmitOn(pipe driverapi.Pipe, frame []byte) error {
	if err := m.drv.StopListening(); err != nil {
		return fmt.Errorf("%w: stop listening: %v", ErrTransmitFailed, err)
	}
	if err := m.drv.OpenWritingPipe(pipe); err != nil {
		return fmt.Errorf("%w: open writing pipe %s: %v", ErrTransmitFailed, pipe, err)
	}
	ok, err := m.drv.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransmitFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: no ack on %s", ErrTransmitFailed, pipe)
	}
	return nil
}

// Current 当前已下发的读管道（副本）
func (m *PipeManager) Current() []driverapi.Pipe {
	return append([]driverapi.Pipe(nil), m.current...)
}

// Reprograms 实际重新编程次数
func (m *PipeManager) Reprograms() int { return m.reprograms }

func equalPipes(a, b []driverapi.Pipe) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
