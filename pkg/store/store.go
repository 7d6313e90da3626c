package store

import "sync"

// Store 可观察的状态容器
// 每次 SetState 都会同步通知所有订阅者
type Store[T any] struct {
	mu    sync.RWMutex
	state T
	seq   uint64
	subs  []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// New 创建状态容器
func New[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// GetState 返回当前状态
func (s *Store[T]) GetState() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState 基于旧状态计算新状态，并通知订阅者
func (s *Store[T]) SetState(update func(prev T) T) {
	s.mu.Lock()
	s.state = update(s.state)
	next := s.state
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
}

// Subscribe 订阅状态变化，返回取消订阅函数
func (s *Store[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Destroy 清空订阅者，状态仍可读取
func (s *Store[T]) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = nil
}

// Patch 局部更新：在旧状态的副本上修改指定字段
func (s *Store[T]) Patch(mutate func(st *T)) {
	s.SetState(func(prev T) T {
		next := prev
		mutate(&next)
		return next
	})
}
