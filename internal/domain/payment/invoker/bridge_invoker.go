package invoker

import (
	"context"
	"strings"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"
)

// TypeBridge 原生支付桥 (App / 小程序 requestPayment)
const TypeBridge = "bridge"

// Bridge 原生支付调用，用户取消时错误信息包含 "cancel"
type Bridge func(ctx context.Context, channel string, payload any) (map[string]any, error)

// BridgeInvoker 通过回调式原生支付桥发起支付
type BridgeInvoker struct {
	channel string
	bridge  Bridge
	log     logger.Logger
}

// NewBridgeConstructor bridge 为 nil 表示当前运行时没有原生支付能力
func NewBridgeConstructor(bridge Bridge) Constructor {
	return func(channel string, log logger.Logger) Invoker {
		return &BridgeInvoker{channel: channel, bridge: bridge, log: log}
	}
}

func (i *BridgeInvoker) Invoke(ctx context.Context, payload any) (any, error) {
	if i.bridge == nil {
		return nil, payerr.New(payerr.NotSupported, "native payment bridge unavailable for channel %s", i.channel)
	}

	res, err := i.bridge(ctx, i.channel, payload)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "cancel") {
			i.log.Info("payment cancelled by user", "channel", i.channel)
			return &model.PayResult{Status: model.StatusCancel, Message: err.Error(), Raw: err.Error()}, nil
		}
		return nil, payerr.Wrap(payerr.ProviderInternalError, err, "native bridge failed for channel %s", i.channel)
	}
	return res, nil
}
