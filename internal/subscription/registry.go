package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/rf24-gateway/internal/command"
)

// Listener 对未来某条上行消息的关注。
// Timeout <= 0 表示常驻订阅：匹配后不移除，也不会超时。
type Listener interface {
	Matches(msg *command.Message) bool
	Delivered(msg *command.Message)
	TimedOut()
	Timeout() time.Duration
}

// Funcs 基于函数的 Listener 实现，nil 回调忽略
type Funcs struct {
	Match     func(msg *command.Message) bool
	OnDeliver func(msg *command.Message)
	OnTimeout func()
	MaxWait   time.Duration
}

func (f Funcs) Matches(msg *command.Message) bool {
	return f.Match != nil && f.Match(msg)
}

func (f Funcs) Delivered(msg *command.Message) {
	if f.OnDeliver != nil {
		f.OnDeliver(msg)
	}
}

func (f Funcs) TimedOut() {
	if f.OnTimeout != nil {
		f.OnTimeout()
	}
}

func (f Funcs) Timeout() time.Duration { return f.MaxWait }

// Observer 订阅事件回调（指标）
type Observer interface {
	Record(operation, status string)
}

type ObserverFunc func(operation, status string)

func (f ObserverFunc) Record(operation, status string) {
	if f != nil {
		f(operation, status)
	}
}

func NopObserver() Observer {
	return ObserverFunc(func(string, string) {})
}

type entry struct {
	listener     Listener
	registeredAt time.Time
}

func (e *entry) oneShot() bool { return e.listener.Timeout() > 0 }

func (e *entry) expired(now time.Time) bool {
	ttl := e.listener.Timeout()
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.registeredAt) > ttl
}

// Registry 并发安全的订阅表：id -> (listener, 注册时间)。
// 一次性订阅的“送达”与“超时”互斥且只发生一次，由 LoadAndDelete 的归属保证。
type Registry struct {
	entries  sync.Map
	size     atomic.Int64
	observer Observer
	now      func() time.Time
}

type Option func(*Registry)

func WithObserver(observer Observer) Option {
	return func(r *Registry) {
		if observer != nil {
			r.observer = observer
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		observer: NopObserver(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe 登记监听器，返回订阅 id
func (r *Registry) Subscribe(l Listener) string {
	id := uuid.NewString()
	r.entries.Store(id, &entry{listener: l, registeredAt: r.now()})
	r.size.Add(1)
	r.observer.Record("subscribe", "ok")
	return id
}

// Unsubscribe 取消订阅，不触发任何回调；返回是否存在
func (r *Registry) Unsubscribe(id string) bool {
	if _, ok := r.entries.LoadAndDelete(id); ok {
		r.size.Add(-1)
		r.observer.Record("unsubscribe", "ok")
		return true
	}
	return false
}

// Dispatch 将消息交给所有匹配的监听器，一次性订阅匹配后移除。
// 返回是否至少有一个监听器匹配。msg 只在本次调用内有效。
func (r *Registry) Dispatch(msg *command.Message) bool {
	matched := false
	r.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if !e.listener.Matches(msg) {
			return true
		}
		if e.oneShot() {
			if _, ok := r.entries.LoadAndDelete(key); !ok {
				// 已被超时清理或其他分发抢先移除
				return true
			}
			r.size.Add(-1)
		}
		matched = true
		e.listener.Delivered(msg)
		if e.oneShot() {
			r.observer.Record("dispatch", "delivered_once")
		} else {
			r.observer.Record("dispatch", "delivered")
		}
		return true
	})
	if !matched {
		r.observer.Record("dispatch", "unmatched")
	}
	return matched
}

// SweepExpired 移除 now − 注册时间 > timeout 的一次性订阅并通知未到达，返回移除数
func (r *Registry) SweepExpired(now time.Time) int {
	n := 0
	r.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if !e.expired(now) {
			return true
		}
		if _, ok := r.entries.LoadAndDelete(key); !ok {
			return true
		}
		r.size.Add(-1)
		n++
		e.listener.TimedOut()
		r.observer.Record("sweep", "expired")
		return true
	})
	return n
}

// Sweep 以注册表自身时钟清理
func (r *Registry) Sweep() int { return r.SweepExpired(r.now()) }

// Len 当前订阅数
func (r *Registry) Len() int { return int(r.size.Load()) }
