package subscription

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/rf24-gateway/internal/command"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingListener struct {
	target    uint16
	timeout   time.Duration
	delivered atomic.Int32
	timedOut  atomic.Int32
}

func (l *countingListener) Matches(msg *command.Message) bool { return msg.Target == l.target }
func (l *countingListener) Delivered(*command.Message)        { l.delivered.Add(1) }
func (l *countingListener) TimedOut()                         { l.timedOut.Add(1) }
func (l *countingListener) Timeout() time.Duration            { return l.timeout }

func msgFor(target uint16) *command.Message {
	return &command.Message{MessageID: 1, Target: target}
}

func TestRegistry_OneShot(t *testing.T) {
	r := NewRegistry()
	l := &countingListener{target: 7, timeout: time.Second}
	r.Subscribe(l)
	require.Equal(t, 1, r.Len())

	assert.False(t, r.Dispatch(msgFor(8)))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Dispatch(msgFor(7)))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Dispatch(msgFor(7)))
	assert.Equal(t, int32(1), l.delivered.Load())
}

func TestRegistry_Persistent(t *testing.T) {
	r := NewRegistry()
	l := &countingListener{target: 7}
	r.Subscribe(l)

	for i := 0; i < 5; i++ {
		assert.True(t, r.Dispatch(msgFor(7)))
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(5), l.delivered.Load())

	assert.Zero(t, r.SweepExpired(time.Now().Add(24*time.Hour)))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_TimeoutEviction(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithNow(clock.Now))
	l := &countingListener{target: 7, timeout: 100 * time.Millisecond}
	r.Subscribe(l)

	clock.Advance(100 * time.Millisecond)
	assert.Zero(t, r.Sweep(), "等于超时时长不清理")
	assert.Zero(t, l.timedOut.Load())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, int32(1), l.timedOut.Load())
	assert.Equal(t, 0, r.Len())

	clock.Advance(time.Second)
	assert.Zero(t, r.Sweep())
	assert.Equal(t, int32(1), l.timedOut.Load())
	assert.False(t, r.Dispatch(msgFor(7)))
	assert.Zero(t, l.delivered.Load())
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := NewRegistry()
	l := &countingListener{target: 1, timeout: time.Nanosecond}
	id := r.Subscribe(l)
	assert.True(t, r.Unsubscribe(id))
	assert.False(t, r.Unsubscribe(id))
	assert.Zero(t, r.SweepExpired(time.Now().Add(time.Hour)))
	assert.Zero(t, l.timedOut.Load())
}

func TestRegistry_Funcs(t *testing.T) {
	var got *command.Message
	r := NewRegistry()
	r.Subscribe(Funcs{
		Match:     func(m *command.Message) bool { return m.MessageID == 9 },
		OnDeliver: func(m *command.Message) { got = m.Clone() },
		MaxWait:   time.Minute,
	})
	r.Subscribe(Funcs{MaxWait: time.Minute})

	assert.True(t, r.Dispatch(&command.Message{MessageID: 9, Payload: []byte{1}}))
	require.NotNil(t, got)
	assert.Equal(t, []byte{1}, got.Payload)
	assert.Equal(t, 1, r.Len())
}

// 分发与超时清理并发时，一次性订阅恰好收到一次回调
func TestRegistry_DeliverXorTimeout(t *testing.T) {
	for i := 0; i < 200; i++ {
		r := NewRegistry()
		l := &countingListener{target: 3, timeout: time.Nanosecond}
		r.Subscribe(l)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Dispatch(msgFor(3))
		}()
		go func() {
			defer wg.Done()
			r.SweepExpired(time.Now().Add(time.Second))
		}()
		wg.Wait()

		assert.Equal(t, int32(1), l.delivered.Load()+l.timedOut.Load())
		assert.Equal(t, 0, r.Len())
	}
}

func TestRegistry_Observer(t *testing.T) {
	var mu sync.Mutex
	events := map[string]int{}
	r := NewRegistry(WithObserver(ObserverFunc(func(op, status string) {
		mu.Lock()
		events[op+":"+status]++
		mu.Unlock()
	})))
	r.Subscribe(&countingListener{target: 1, timeout: time.Nanosecond})
	r.Dispatch(msgFor(2))
	r.SweepExpired(time.Now().Add(time.Second))

	assert.Equal(t, 1, events["subscribe:ok"])
	assert.Equal(t, 1, events["dispatch:unmatched"])
	assert.Equal(t, 1, events["sweep:expired"])
}
