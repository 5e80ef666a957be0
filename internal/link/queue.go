package link

import (
	"sync"
	"time"

	"github.com/taoyao-code/rf24-gateway/internal/command"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
)

type itemKind uint8

const (
	kindTransmit itemKind = iota
	kindReconfigure
	kindReadPipes
)

// item 队列元素：待发送指令，或需要在写窗口内执行的控制操作
type item struct {
	kind       itemKind
	cmd        command.Command
	target     uint16
	messageID  uint8
	pipe       driverapi.Pipe
	enqueuedAt time.Time

	settings radio.Settings
	pipes    []driverapi.Pipe
	result   chan error
}

func (it *item) finish(err error) {
	if it.result != nil {
		it.result <- err
	}
}

// queue 无界 FIFO；Take 阻塞，Poll 非阻塞
type queue struct {
	mu     sync.Mutex
	items  []*item
	limit  int
	closed bool
	notify chan struct{}
}

func newQueue(limit int) *queue {
	return &queue{limit: limit, notify: make(chan struct{}, 1)}
}

func (q *queue) push(it *item) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrStopped
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// poll 取出队首，队列为空或已关闭时返回 false
func (q *queue) poll() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return nil, false
	}
	it := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return it, true
}

// take 阻塞直到取到元素；stop 关闭后返回 false
func (q *queue) take(stop <-chan struct{}) (*item, bool) {
	for {
		if it, ok := q.poll(); ok {
			return it, true
		}
		select {
		case <-stop:
			return nil, false
		case <-q.notify:
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close 拒绝后续入队，返回未处理的元素
func (q *queue) close() []*item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}
