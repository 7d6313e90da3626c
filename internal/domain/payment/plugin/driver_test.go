package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newState() *model.ContextState {
	return model.NewContextState(nil, "wechat", model.PayParams{OrderID: "O1", Amount: 100}, nil)
}

func recorder(calls *[]string, name string) Hook {
	return func(context.Context, *model.ContextState) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestDriver_Order(t *testing.T) {
	var calls []string
	d := NewDriver([]*Plugin{
		{Name: "a", OnBeforePay: recorder(&calls, "a")},
		{Name: "skip"},
		{Name: "b", OnBeforePay: recorder(&calls, "b")},
	}, DriverOptions{})

	require.NoError(t, d.Implant(context.Background(), HookBeforePay, newState()))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestDriver_Critical(t *testing.T) {
	cause := errors.New("risk denied")

	t.Run("critical failure stops the checkpoint", func(t *testing.T) {
		var calls []string
		d := NewDriver([]*Plugin{
			{Name: "risk", OnBeforePay: func(context.Context, *model.ContextState) error { return cause }},
			{Name: "after", OnBeforePay: recorder(&calls, "after")},
		}, DriverOptions{})

		err := d.Implant(context.Background(), HookBeforePay, newState())

		var pe *payerr.PayError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, payerr.PluginError, pe.Code)
		assert.Equal(t, "risk", pe.Plugin)
		assert.Equal(t, "onBeforePay", pe.Hook)
		assert.ErrorIs(t, err, cause)
		assert.Empty(t, calls)
	})

	t.Run("pay error returned by plugin keeps its code", func(t *testing.T) {
		d := NewDriver([]*Plugin{{
			Name: "validator",
			OnBeforeSign: func(context.Context, *model.ContextState) error {
				return payerr.New(payerr.ParamInvalid, "currency not allowed")
			},
		}}, DriverOptions{})

		err := d.Implant(context.Background(), HookBeforeSign, newState())
		var pe *payerr.PayError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, payerr.ParamInvalid, pe.Code)
		assert.Equal(t, "validator", pe.Plugin)
	})

	t.Run("non-critical failure is logged and skipped", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		var calls []string
		d := NewDriver([]*Plugin{
			{Name: "analytics", NonCritical: true, OnBeforePay: func(context.Context, *model.ContextState) error { return cause }},
			{Name: "after", OnBeforePay: recorder(&calls, "after")},
		}, DriverOptions{Logger: logger.FromZap(zap.New(core))})

		require.NoError(t, d.Implant(context.Background(), HookBeforePay, newState()))
		assert.Equal(t, []string{"after"}, calls)
		assert.Equal(t, 1, logs.FilterField(zap.String("plugin", "analytics")).Len())
	})

	t.Run("panic counts as failure", func(t *testing.T) {
		d := NewDriver([]*Plugin{{
			Name:        "buggy",
			OnCompleted: func(context.Context, *model.ContextState) error { panic("nil map") },
		}}, DriverOptions{})

		err := d.Implant(context.Background(), HookCompleted, newState())
		assert.True(t, payerr.Is(err, payerr.PluginError))
		assert.Contains(t, err.Error(), "panicked")
	})
}

func TestDriver_Timeout(t *testing.T) {
	block := func(ctx context.Context, _ *model.ContextState) error {
		<-ctx.Done()
		return nil
	}

	t.Run("critical timeout is plugin error", func(t *testing.T) {
		d := NewDriver([]*Plugin{{Name: "slow", Timeout: 20 * time.Millisecond, OnBeforeInvoke: block}}, DriverOptions{})

		start := time.Now()
		err := d.Implant(context.Background(), HookBeforeInvoke, newState())
		assert.True(t, payerr.Is(err, payerr.PluginError))
		assert.Contains(t, err.Error(), "timed out")
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("non-critical timeout continues", func(t *testing.T) {
		var calls []string
		d := NewDriver([]*Plugin{
			{Name: "slow", NonCritical: true, Timeout: 20 * time.Millisecond, OnBeforeInvoke: block},
			{Name: "next", OnBeforeInvoke: recorder(&calls, "next")},
		}, DriverOptions{})

		require.NoError(t, d.Implant(context.Background(), HookBeforeInvoke, newState()))
		assert.Equal(t, []string{"next"}, calls)
	})
}

func TestDriver_TimedOutHookWritesDiscarded(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	d := NewDriver([]*Plugin{
		{Name: "late", NonCritical: true, Timeout: 5 * time.Millisecond, OnBeforeSign: func(_ context.Context, pc *model.ContextState) error {
			defer close(finished)
			<-release
			pc.State["late"] = true
			pc.Params.Description = "late"
			pc.Abort("too late")
			return nil
		}},
		{Name: "next", OnBeforeSign: func(_ context.Context, pc *model.ContextState) error {
			pc.State["next"] = true
			return nil
		}},
	}, DriverOptions{})

	pc := newState()
	require.NoError(t, d.Implant(context.Background(), HookBeforeSign, pc))

	// 超时钩子在流程结束后才写入
	close(release)
	<-finished

	assert.Equal(t, map[string]any{"next": true}, pc.State)
	assert.Empty(t, pc.Params.Description)
	assert.False(t, pc.Aborted())
}

func TestDriver_ReturnedHookWritesKept(t *testing.T) {
	d := NewDriver([]*Plugin{
		{Name: "a", OnBeforeSign: func(_ context.Context, pc *model.ContextState) error {
			pc.State["a"] = 1
			pc.Params.Description = "from a"
			return nil
		}},
		{Name: "b", OnBeforeSign: func(_ context.Context, pc *model.ContextState) error {
			pc.State["b"] = pc.State["a"]
			return nil
		}},
	}, DriverOptions{})

	pc := newState()
	require.NoError(t, d.Implant(context.Background(), HookBeforeSign, pc))
	assert.Equal(t, map[string]any{"a": 1, "b": 1}, pc.State)
	assert.Equal(t, "from a", pc.Params.Description)
}

func TestDriver_Abort(t *testing.T) {
	var calls []string
	d := NewDriver([]*Plugin{
		{Name: "auth", NonCritical: true, OnBeforePay: func(_ context.Context, pc *model.ContextState) error {
			pc.Abort("not logged in")
			return nil
		}},
		{Name: "after", OnBeforePay: recorder(&calls, "after")},
	}, DriverOptions{})

	err := d.Implant(context.Background(), HookBeforePay, newState())

	var pe *payerr.PayError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, payerr.PluginInterrupt, pe.Code)
	assert.Equal(t, "auth", pe.Plugin)
	assert.Contains(t, pe.Message, "not logged in")
	assert.Empty(t, calls)
}

func TestDriver_HookArgs(t *testing.T) {
	var (
		gotStatus model.Status
		gotResult *model.PayResult
		gotErr    error
		gotRaw    any
	)
	result := &model.PayResult{Status: model.StatusFail}
	cause := errors.New("x")

	d := NewDriver([]*Plugin{{
		Name: "spy",
		OnAfterInvoke: func(_ context.Context, _ *model.ContextState, raw any) error {
			gotRaw = raw
			return nil
		},
		OnStateChange: func(_ context.Context, _ *model.ContextState, s model.Status) error {
			gotStatus = s
			return nil
		},
		OnFail: func(_ context.Context, _ *model.ContextState, r *model.PayResult, err error) error {
			gotResult, gotErr = r, err
			return nil
		},
	}}, DriverOptions{})

	ctx := context.Background()
	pc := newState()
	require.NoError(t, d.Implant(ctx, HookAfterInvoke, pc, "raw"))
	require.NoError(t, d.Implant(ctx, HookStateChange, pc, model.StatusPending))
	require.NoError(t, d.Implant(ctx, HookFail, pc, result, cause))

	assert.Equal(t, "raw", gotRaw)
	assert.Equal(t, model.StatusPending, gotStatus)
	assert.Same(t, result, gotResult)
	assert.Same(t, cause, gotErr)

	require.NoError(t, d.Implant(ctx, HookFail, pc, nil, cause))
	assert.Nil(t, gotResult)
}

type hookObserver struct {
	mu    sync.Mutex
	calls []string
	errs  int
}

func (o *hookObserver) ObserveHook(plugin, hook string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, plugin+"."+hook)
	if err != nil {
		o.errs++
	}
}

func TestDriver_ObserverAndAudit(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := &hookObserver{}

	d := NewDriver([]*Plugin{
		{Name: "token", OnBeforeSign: func(_ context.Context, pc *model.ContextState) error {
			pc.Params.Extra = map[string]any{"token": "abc"}
			pc.State["signedBy"] = "token"
			return nil
		}},
		{Name: "noisy", NonCritical: true, OnBeforeSign: func(context.Context, *model.ContextState) error {
			return errors.New("ignored")
		}},
	}, DriverOptions{Logger: logger.FromZap(zap.New(core)), Debug: true, Observer: obs})

	require.NoError(t, d.Implant(context.Background(), HookBeforeSign, newState()))

	assert.Equal(t, []string{"token.onBeforeSign", "noisy.onBeforeSign"}, obs.calls)
	assert.Equal(t, 1, obs.errs)

	audits := logs.FilterMessage("plugin modified context").FilterField(zap.String("plugin", "token"))
	fields := []any{}
	for _, e := range audits.All() {
		fields = append(fields, e.ContextMap()["field"])
	}
	assert.ElementsMatch(t, []any{"params.extra.token", "state.signedBy"}, fields)
}

func TestDriver_PluginsCopy(t *testing.T) {
	list := []*Plugin{{Name: "a"}}
	d := NewDriver(list, DriverOptions{})
	list[0] = &Plugin{Name: "b"}

	assert.Equal(t, "a", d.Plugins()[0].Name)
}
