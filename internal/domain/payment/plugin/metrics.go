package plugin

import (
	"context"
	"sync"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
)

// PaymentMetrics 支付指标上报
type PaymentMetrics interface {
	AttemptStarted(strategy string)
	Settled(strategy, status string)
	Failed(strategy, code string)
	AttemptFinished(strategy string, elapsed time.Duration)
}

// NewMetricsPlugin 非关键插件，指标上报失败不影响支付
func NewMetricsPlugin(m PaymentMetrics) *Plugin {
	var started sync.Map // attemptID -> time.Time

	settled := func(_ context.Context, pc *model.ContextState, status model.Status) error {
		m.Settled(pc.StrategyName, string(status))
		return nil
	}

	return &Plugin{
		Name:        "metrics",
		NonCritical: true,
		Timeout:     time.Second,
		OnBeforePay: func(_ context.Context, pc *model.ContextState) error {
			started.Store(pc.AttemptID, time.Now())
			m.AttemptStarted(pc.StrategyName)
			return nil
		},
		OnStateChange: settled,
		OnSuccess: func(ctx context.Context, pc *model.ContextState, result *model.PayResult) error {
			return settled(ctx, pc, result.Status)
		},
		OnFail: func(ctx context.Context, pc *model.ContextState, result *model.PayResult, err error) error {
			if result != nil {
				return settled(ctx, pc, result.Status)
			}
			m.Failed(pc.StrategyName, string(payerr.CodeOf(err)))
			return nil
		},
		OnCompleted: func(_ context.Context, pc *model.ContextState) error {
			if v, ok := started.LoadAndDelete(pc.AttemptID); ok {
				m.AttemptFinished(pc.StrategyName, time.Since(v.(time.Time)))
			}
			return nil
		},
	}
}
