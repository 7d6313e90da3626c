package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"

	"github.com/smartwalle/alipay/v3"
)

const (
	alipayWapProductCode = "QUICK_WAP_WAY"
	alipayCodeSuccess    = "10000"
	alipayTradeNotExist  = "ACQ.TRADE_NOT_EXIST"
)

// AlipaySDKConfig 直连支付宝开放平台的商户配置
type AlipaySDKConfig struct {
	AppID        string
	PrivateKey   string
	PublicKey    string
	IsProduction bool
	NotifyURL    string
	// ReturnURL 支付完成后的跳转地址，可被 Extra["return_url"] 覆盖
	ReturnURL string
}

type alipayAPI interface {
	TradeWapPay(param alipay.TradeWapPay) (*url.URL, error)
	TradeQuery(ctx context.Context, param alipay.TradeQuery) (*alipay.TradeQueryRsp, error)
}

// NewAlipaySDKStrategy 由服务端签出 Wap 支付链接并查单，web 执行器负责跳转
func NewAlipaySDKStrategy(cfg AlipaySDKConfig) (*RemoteStrategy, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay config missing")
	}

	client, err := alipay.New(cfg.AppID, cfg.PrivateKey, cfg.IsProduction)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}
	// 支付宝公钥用于验证响应签名
	if err = client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, fmt.Errorf("load alipay public key: %w", err)
	}
	return newAlipaySDKStrategy(client, cfg), nil
}

func newAlipaySDKStrategy(api alipayAPI, cfg AlipaySDKConfig) *RemoteStrategy {
	sign := func(_ context.Context, params model.PayParams) (map[string]any, error) {
		p := alipay.TradeWapPay{}
		p.NotifyURL = cfg.NotifyURL
		p.ReturnURL = firstNonEmpty(params.ExtraString("return_url"), cfg.ReturnURL)
		p.Subject = firstNonEmpty(params.Description, params.OrderID)
		p.OutTradeNo = params.OrderID
		p.TotalAmount = yuan(params.Amount)
		p.ProductCode = alipayWapProductCode

		u, err := api.TradeWapPay(p)
		if err != nil {
			return nil, payerr.Wrap(payerr.ProviderInternalError, err, "alipay wap pay")
		}
		return map[string]any{"out_trade_no": params.OrderID, "pay_url": u.String()}, nil
	}

	query := func(ctx context.Context, orderID string) (*model.PayResult, error) {
		rsp, err := api.TradeQuery(ctx, alipay.TradeQuery{OutTradeNo: orderID})
		if err != nil {
			// 买家打开收银台之前交易还不存在
			if strings.Contains(err.Error(), alipayTradeNotExist) {
				return &model.PayResult{Status: model.StatusPending}, nil
			}
			return nil, payerr.Wrap(payerr.ProviderInternalError, err, "alipay trade query")
		}
		if string(rsp.Code) != alipayCodeSuccess {
			if rsp.SubCode == alipayTradeNotExist {
				return &model.PayResult{Status: model.StatusPending, Message: rsp.SubMsg, Raw: rsp}, nil
			}
			return nil, payerr.New(payerr.ProviderInternalError, "alipay trade query: %s %s", rsp.SubCode, rsp.SubMsg)
		}

		status, ok := mapTradeStatus(string(rsp.TradeStatus))
		if !ok {
			return nil, payerr.New(payerr.Unknown, "unrecognized trade status %q for order %s", rsp.TradeStatus, orderID)
		}
		return &model.PayResult{Status: status, TransactionID: rsp.TradeNo, Raw: rsp}, nil
	}

	return NewRemoteStrategy(RemoteConfig{
		Name:      "alipay",
		Normalize: normalizeAlipay,
		Sign:      sign,
		Query:     query,
	}, nil)
}
