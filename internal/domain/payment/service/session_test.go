package service

import (
	"context"
	"testing"
	"time"

	"cashier/internal/domain/payment/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessions(t *testing.T, ttl time.Duration) *SessionManager {
	t.Helper()
	m := NewSessionManager(func() *PaymentContext {
		c := NewPaymentContext(Config{PollInterval: time.Hour})
		c.Register(&stubStrategy{name: "wechat"})
		return c
	}, ttl, nil)
	t.Cleanup(m.Close)
	return m
}

func TestSessionManager_Lifecycle(t *testing.T) {
	m := newSessions(t, time.Minute)

	s := m.Create()
	require.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	other := m.Create()
	assert.NotSame(t, s.Context, other.Context)

	assert.True(t, m.Remove(s.ID))
	assert.True(t, s.Context.Destroyed())
	assert.False(t, m.Remove(s.ID))

	_, ok = m.Get(s.ID)
	assert.False(t, ok)
}

func TestSessionManager_Sweep(t *testing.T) {
	m := newSessions(t, time.Minute)

	idle := m.Create()
	polling := m.Create()
	fresh := m.Create()
	require.NoError(t, polling.Context.StartPolling("wechat", "O1"))

	past := time.Now().Add(-2 * time.Minute)
	idle.touch(past)
	polling.touch(past)

	assert.Equal(t, 1, m.Sweep(time.Now()))
	assert.True(t, idle.Context.Destroyed())

	_, ok := m.Get(polling.ID)
	assert.True(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestSessionManager_SweeperAndClose(t *testing.T) {
	m := newSessions(t, 10*time.Millisecond)
	s := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartSweeper(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Context.Destroyed())

	kept := m.Create()
	m.Close()
	assert.True(t, kept.Context.Destroyed())
	assert.Equal(t, model.StatusIdle, kept.Context.State().Status)
}

type gaugeRecorder struct{ values []int }

func (g *gaugeRecorder) SetActiveSessions(n int) { g.values = append(g.values, n) }

func TestSessionManager_Gauge(t *testing.T) {
	m := newSessions(t, time.Minute)
	g := &gaugeRecorder{}
	m.SetGauge(g)

	a := m.Create()
	m.Create()
	m.Remove(a.ID)
	m.Close()

	assert.Equal(t, []int{1, 2, 1, 0}, g.values)
}
