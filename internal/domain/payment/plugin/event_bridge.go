package plugin

import (
	"context"

	"cashier/internal/domain/payment/model"
)

// EventBridgeName 默认事件桥插件名
const EventBridgeName = "event-bridge"

// NewEventBridgePlugin 将 onBeforePay / onBeforeInvoke 转发为 beforePay / payStart 事件
func NewEventBridgePlugin() *Plugin {
	return &Plugin{
		Name:    EventBridgeName,
		Enforce: EnforcePre,
		OnBeforePay: func(_ context.Context, pc *model.ContextState) error {
			if pc.Host != nil {
				pc.Host.Emit(model.EventBeforePay, pc.Params)
			}
			return nil
		},
		OnBeforeInvoke: func(_ context.Context, pc *model.ContextState) error {
			if pc.Host != nil {
				pc.Host.Emit(model.EventPayStart, model.PayStart{StrategyName: pc.StrategyName})
			}
			return nil
		},
	}
}
