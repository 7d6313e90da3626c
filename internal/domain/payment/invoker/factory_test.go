package invoker

import (
	"context"
	"testing"

	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type namedInvoker struct {
	name    string
	channel string
}

func (n *namedInvoker) Invoke(context.Context, any) (any, error) { return n.name, nil }

func ctorFor(name string) Constructor {
	return func(channel string, _ logger.Logger) Invoker {
		return &namedInvoker{name: name, channel: channel}
	}
}

func always(string) bool { return true }

func TestFactory_Create(t *testing.T) {
	t.Run("explicit type wins over higher priority match", func(t *testing.T) {
		f := NewFactory()
		f.Register("web", ctorFor("web"), always, 100)
		f.Register("bridge", ctorFor("bridge"), always, 0)

		inv, err := f.Create("bridge", "wechat", nil)
		require.NoError(t, err)
		assert.Equal(t, "bridge", inv.(*namedInvoker).name)
		assert.Equal(t, "wechat", inv.(*namedInvoker).channel)
	})

	t.Run("higher priority wins under auto-detect", func(t *testing.T) {
		f := NewFactory()
		f.Register("low", ctorFor("low"), always, 10)
		f.Register("high", ctorFor("high"), always, 20)

		inv, err := f.Create(TypeAuto, "wechat", nil)
		require.NoError(t, err)
		assert.Equal(t, "high", inv.(*namedInvoker).name)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		f := NewFactory()
		f.Register("first", ctorFor("first"), always, 5)
		f.Register("second", ctorFor("second"), always, 5)

		assert.Equal(t, []string{"first", "second"}, f.Types())
		inv, err := f.Create("", "alipay", nil)
		require.NoError(t, err)
		assert.Equal(t, "first", inv.(*namedInvoker).name)
	})

	t.Run("unknown explicit type warns and falls back", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := NewFactory()
		f.Register("web", ctorFor("web"), always, 0)

		inv, err := f.Create("tiktok-mini", "wechat", logger.FromZap(zap.New(core)))
		require.NoError(t, err)
		assert.Equal(t, "web", inv.(*namedInvoker).name)
		assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
	})

	t.Run("panicking matcher counts as no match", func(t *testing.T) {
		f := NewFactory()
		f.Register("broken", ctorFor("broken"), func(string) bool { panic("undefined global") }, 50)
		f.Register("fallback", ctorFor("fallback"), always, 0)

		inv, err := f.Create("", "wechat", nil)
		require.NoError(t, err)
		assert.Equal(t, "fallback", inv.(*namedInvoker).name)
	})

	t.Run("no match fails with NoInvokerFound", func(t *testing.T) {
		f := NewFactory()
		f.Register("never", ctorFor("never"), func(string) bool { return false }, 0)

		_, err := f.Create("missing", "unionpay", nil)
		assert.True(t, payerr.Is(err, payerr.NoInvokerFound))
		assert.Contains(t, err.Error(), "unionpay")
	})

	t.Run("reset clears registrations", func(t *testing.T) {
		f := NewFactory()
		f.Register("web", ctorFor("web"), always, 0)
		f.Reset()

		_, err := f.Create("", "wechat", nil)
		assert.True(t, payerr.Is(err, payerr.NoInvokerFound))
	})
}
