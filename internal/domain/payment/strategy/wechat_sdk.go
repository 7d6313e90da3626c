package strategy

import (
	"context"
	"errors"
	"fmt"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/native"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

// WechatSDKConfig 直连微信支付 APIv3 的商户配置
type WechatSDKConfig struct {
	AppID                string
	MchID                string
	MchCertificateSerial string
	// MchPrivateKey PEM 格式商户私钥
	MchPrivateKey string
	APIv3Key      string
	NotifyURL     string
}

type wechatNativeAPI interface {
	Prepay(ctx context.Context, req native.PrepayRequest) (*native.PrepayResponse, *core.APIResult, error)
	QueryOrderByOutTradeNo(ctx context.Context, req native.QueryOrderByOutTradeNoRequest) (*payments.Transaction, *core.APIResult, error)
}

// NewWechatSDKStrategy Native 下单拿到 code_url，web 执行器展示二维码
//
// 创建客户端时会下载平台证书，需要能访问微信支付。
func NewWechatSDKStrategy(ctx context.Context, cfg WechatSDKConfig) (*RemoteStrategy, error) {
	if cfg.MchID == "" {
		return nil, errors.New("wechat pay config missing")
	}

	mchPrivateKey, err := utils.LoadPrivateKey(cfg.MchPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load wechat merchant key: %w", err)
	}
	client, err := core.NewClient(ctx,
		option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.MchCertificateSerial, mchPrivateKey, cfg.APIv3Key),
	)
	if err != nil {
		return nil, fmt.Errorf("create wechat pay client: %w", err)
	}
	return newWechatSDKStrategy(&native.NativeApiService{Client: client}, cfg), nil
}

func newWechatSDKStrategy(api wechatNativeAPI, cfg WechatSDKConfig) *RemoteStrategy {
	sign := func(ctx context.Context, params model.PayParams) (map[string]any, error) {
		currency := params.Currency
		if currency == "" {
			currency = "CNY"
		}
		resp, _, err := api.Prepay(ctx, native.PrepayRequest{
			Appid:       core.String(cfg.AppID),
			Mchid:       core.String(cfg.MchID),
			Description: core.String(firstNonEmpty(params.Description, params.OrderID)),
			OutTradeNo:  core.String(params.OrderID),
			NotifyUrl:   core.String(cfg.NotifyURL),
			Amount: &native.Amount{
				Total:    core.Int64(params.Amount),
				Currency: core.String(currency),
			},
		})
		if err != nil {
			return nil, payerr.Wrap(payerr.ProviderInternalError, err, "wechat native prepay")
		}
		if resp == nil || resp.CodeUrl == nil {
			return nil, payerr.New(payerr.ProviderInternalError, "wechat native prepay returned no code_url")
		}
		return map[string]any{"out_trade_no": params.OrderID, "code_url": *resp.CodeUrl}, nil
	}

	query := func(ctx context.Context, orderID string) (*model.PayResult, error) {
		tx, _, err := api.QueryOrderByOutTradeNo(ctx, native.QueryOrderByOutTradeNoRequest{
			OutTradeNo: core.String(orderID),
			Mchid:      core.String(cfg.MchID),
		})
		if err != nil {
			return nil, payerr.Wrap(payerr.ProviderInternalError, err, "wechat order query")
		}

		state := deref(tx.TradeState)
		status, ok := mapTradeStatus(state)
		if !ok {
			return nil, payerr.New(payerr.Unknown, "unrecognized trade state %q for order %s", state, orderID)
		}
		return &model.PayResult{
			Status:        status,
			TransactionID: deref(tx.TransactionId),
			Message:       deref(tx.TradeStateDesc),
			Raw:           tx,
		}, nil
	}

	return NewRemoteStrategy(RemoteConfig{
		Name:      "wechat",
		Normalize: normalizeWechat,
		Sign:      sign,
		Query:     query,
	}, nil)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
