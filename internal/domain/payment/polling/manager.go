package polling

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/pkg/logger"
)

// 默认值
const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 100
	DefaultMaxDuration = 10 * time.Minute
)

// Task 单次查单
type Task func(ctx context.Context) (*model.PayResult, error)

// Callbacks 轮询回调，OnFinished 每个会话恰好调用一次
type Callbacks struct {
	OnStatusChange func(*model.PayResult)
	OnSuccess      func(*model.PayResult)
	OnFail         func(*model.PayResult)
	OnFinished     func()
}

// Observer 每轮查单结果：pending / processing / success / fail / cancel / refunded / error
type Observer interface {
	ObservePoll(outcome string)
}

// Options 轮询上限，0 表示不限制
type Options struct {
	MaxAttempts int
	MaxDuration time.Duration
	Observer    Observer
}

type session struct {
	cancel     context.CancelFunc
	cb         Callbacks
	finishOnce sync.Once
}

// Manager 单飞轮询：新的 Start 会先停止正在进行的会话
type Manager struct {
	mu      sync.Mutex
	current *session
	opts    Options
	log     logger.Logger
}

func NewManager(opts Options, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{opts: opts, log: log}
}

// Start 每隔 interval 执行一次 task，直到终态、达到上限或 Stop
func (m *Manager) Start(task Task, cb Callbacks, interval time.Duration) {
	m.Stop()

	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, cb: cb}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	go m.loop(ctx, s, task, interval)
}

// Stop 停止当前会话并触发 OnFinished，未运行时无操作
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		m.finish(s)
	}
}

// Running 是否有进行中的会话
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

func (m *Manager) active(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == s
}

// finish 释放会话，OnFinished 只执行一次
func (m *Manager) finish(s *session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()

	s.cancel()
	s.finishOnce.Do(func() {
		if s.cb.OnFinished != nil {
			m.safeCall("onFinished", s.cb.OnFinished)
		}
	})
}

func (m *Manager) loop(ctx context.Context, s *session, task Task, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	started := time.Now()
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		attempts++
		res, err := m.runTask(ctx, task)

		// Stop 之后返回的结果直接丢弃
		if !m.active(s) {
			return
		}

		if err != nil {
			m.observe("error")
			m.log.Warn("polling task failed, will retry", "attempt", attempts, "error", err)
		} else if res != nil {
			m.observe(string(res.Status))
			switch {
			case res.Status == model.StatusSuccess:
				m.dispatch(s.cb.OnSuccess, res)
				m.finish(s)
				return
			case res.Status.IsTerminal():
				m.dispatch(s.cb.OnFail, res)
				m.finish(s)
				return
			default:
				m.dispatch(s.cb.OnStatusChange, res)
				if !m.active(s) {
					return
				}
			}
		}

		if m.opts.MaxAttempts > 0 && attempts >= m.opts.MaxAttempts {
			m.log.Warn("polling stopped, max attempts reached", "attempts", attempts)
			m.finish(s)
			return
		}
		if m.opts.MaxDuration > 0 && time.Since(started) >= m.opts.MaxDuration {
			m.log.Warn("polling stopped, max duration reached", "elapsed", time.Since(started))
			m.finish(s)
			return
		}

		timer.Reset(interval)
	}
}

func (m *Manager) runTask(ctx context.Context, task Task) (res *model.PayResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("polling task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (m *Manager) dispatch(fn func(*model.PayResult), res *model.PayResult) {
	if fn == nil {
		return
	}
	m.safeCall("callback", func() { fn(res) })
}

func (m *Manager) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("polling callback panicked",
				"callback", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

func (m *Manager) observe(outcome string) {
	if m.opts.Observer != nil {
		m.opts.Observer.ObservePoll(outcome)
	}
}
