package eventbus

import (
	"fmt"
	"sync"

	"cashier/pkg/logger"
)

// Listener 事件监听函数
type Listener func(payload any)

// Subscription 订阅句柄，用于 Off 取消订阅
type Subscription struct {
	topic string
	id    uint64
}

// Topic 返回订阅的事件名
func (s Subscription) Topic() string { return s.topic }

type entry struct {
	id   uint64
	fn   Listener
	once bool
}

// Bus 进程内发布/订阅通道
// 单个监听器 panic 不会影响同一次 Emit 中的其他监听器
type Bus struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[string][]entry
	log       logger.Logger
}

// New 创建事件总线
func New(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		listeners: make(map[string][]entry),
		log:       log,
	}
}

// On 订阅事件
func (b *Bus) On(topic string, fn Listener) Subscription {
	return b.add(topic, fn, false)
}

// Once 订阅事件，触发一次后自动取消
func (b *Bus) Once(topic string, fn Listener) Subscription {
	return b.add(topic, fn, true)
}

func (b *Bus) add(topic string, fn Listener, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.listeners[topic] = append(b.listeners[topic], entry{id: b.seq, fn: fn, once: once})
	return Subscription{topic: topic, id: b.seq}
}

// Off 取消订阅，重复调用无副作用
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub.topic, sub.id)
}

func (b *Bus) remove(topic string, id uint64) {
	list := b.listeners[topic]
	for i, e := range list {
		if e.id == id {
			b.listeners[topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.listeners[topic]) == 0 {
		delete(b.listeners, topic)
	}
}

// Emit 同步发布事件
func (b *Bus) Emit(topic string, payload any) {
	b.mu.Lock()
	list := make([]entry, len(b.listeners[topic]))
	copy(list, b.listeners[topic])
	for _, e := range list {
		if e.once {
			b.remove(topic, e.id)
		}
	}
	b.mu.Unlock()

	for _, e := range list {
		b.call(topic, e.fn, payload)
	}
}

func (b *Bus) call(topic string, fn Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event listener panicked", "event", topic, "panic", fmt.Sprint(r))
		}
	}()
	fn(payload)
}

// Clear 清除指定事件的监听器，不传参数时清除全部
func (b *Bus) Clear(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(topics) == 0 {
		b.listeners = make(map[string][]entry)
		return
	}
	for _, t := range topics {
		delete(b.listeners, t)
	}
}

// ListenerCount 返回某个事件的监听器数量
func (b *Bus) ListenerCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[topic])
}
