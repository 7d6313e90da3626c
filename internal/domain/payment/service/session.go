package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cashier/pkg/logger"

	"github.com/google/uuid"
)

// DefaultSessionTTL 会话空闲超时
const DefaultSessionTTL = 30 * time.Minute

// Session 一次收银会话，独占一个 PaymentContext
type Session struct {
	ID        string
	Context   *PaymentContext
	CreatedAt time.Time
	lastSeen  atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen 最近一次访问时间
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SessionGauge 活跃会话数上报
type SessionGauge interface {
	SetActiveSessions(n int)
}

// SessionManager 管理多个相互独立的收银会话
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	build    func() *PaymentContext
	ttl      time.Duration
	log      logger.Logger
	gauge    SessionGauge

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionManager build 负责构造已注册好策略和插件的 PaymentContext
func NewSessionManager(build func() *PaymentContext, ttl time.Duration, log logger.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		build:    build,
		ttl:      ttl,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// SetGauge 设置活跃会话数上报，需在使用前调用
func (m *SessionManager) SetGauge(g SessionGauge) {
	m.gauge = g
}

func (m *SessionManager) report() {
	if m.gauge != nil {
		m.gauge.SetActiveSessions(m.Len())
	}
}

// Create 新建会话
func (m *SessionManager) Create() *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		Context:   m.build(),
		CreatedAt: now,
	}
	s.touch(now)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.report()

	m.log.Debug("payment session created", "session_id", s.ID)
	return s
}

// Get 查找会话并刷新访问时间
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(time.Now())
	}
	return s, ok
}

// Remove 销毁会话
func (m *SessionManager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Context.Destroy()
		m.report()
		m.log.Debug("payment session destroyed", "session_id", id)
	}
	return ok
}

// Len 会话数量
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep 销毁空闲超过 TTL 且未在轮询的会话，返回清理数量
func (m *SessionManager) Sweep(now time.Time) int {
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) < m.ttl || s.Context.Polling() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Context.Destroy()
	}
	if len(expired) > 0 {
		m.report()
		m.log.Info("expired payment sessions swept", "count", len(expired))
	}
	return len(expired)
}

// StartSweeper 后台定期清理，ctx 取消或 Close 后退出
func (m *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case now := <-ticker.C:
				m.Sweep(now)
			}
		}
	}()
}

// Close 停止清理协程并销毁全部会话
func (m *SessionManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Context.Destroy()
	}
	m.report()
}
