package link

import (
	"time"

	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
)

// Observer 调度器指标回调，实现不得阻塞
type Observer interface {
	FrameReceived(result string)
	FrameSent(ok bool)
	BatchDone(size int)
	QueueDepth(n int)
	StateChanged(s State)
	PipesReprogrammed()
}

type nopObserver struct{}

func (nopObserver) FrameReceived(string) {}
func (nopObserver) FrameSent(bool)       {}
func (nopObserver) BatchDone(int)        {}
func (nopObserver) QueueDepth(int)       {}
func (nopObserver) StateChanged(State)   {}
func (nopObserver) PipesReprogrammed()   {}

// NopObserver 空实现
func NopObserver() Observer { return nopObserver{} }

// Direction 帧方向
type Direction string

const (
	DirRx Direction = "rx"
	DirTx Direction = "tx"
)

// FrameEvent 收发帧流水
type FrameEvent struct {
	At        time.Time
	Direction Direction
	MessageID uint8
	Target    uint16
	CommandID uint8
	Payload   []byte
	Pipe      driverapi.Pipe
	Result    string
	Err       string
}

// Journal 帧流水落盘，Record 不得阻塞
type Journal interface {
	Record(ev FrameEvent)
}

// DeadLetters 发送失败的帧，DeadLetter 不得阻塞
type DeadLetters interface {
	DeadLetter(ev FrameEvent)
}
