package strategy

import (
	"strings"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
)

// NewWechatStrategy 微信支付：JSAPI / 小程序 / H5 / Native
func NewWechatStrategy(signURL, queryURL string, http HTTPClient) *RemoteStrategy {
	return NewRemoteStrategy(RemoteConfig{
		Name:      "wechat",
		SignURL:   signURL,
		QueryURL:  queryURL,
		Transform: wechatTransform,
		Normalize: normalizeWechat,
	}, http)
}

func wechatTransform(p model.PayParams) map[string]any {
	currency := p.Currency
	if currency == "" {
		currency = "CNY"
	}
	body := map[string]any{
		"out_trade_no": p.OrderID,
		"description":  p.Description,
		"amount": map[string]any{
			"total":    p.Amount,
			"currency": currency,
		},
	}
	if openID := p.ExtraString("openid"); openID != "" {
		body["payer"] = map[string]any{"openid": openID}
	}
	return body
}

// normalizeWechat 小程序/JSBridge 回调格式: {"errMsg": "requestPayment:ok"}
func normalizeWechat(raw any) (*model.PayResult, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, payerr.New(payerr.InvokeFailed, "unexpected wechat result type %T", raw)
	}

	msg, _ := m["errMsg"].(string)
	if msg == "" {
		msg, _ = m["err_msg"].(string)
	}
	lower := strings.ToLower(msg)

	switch {
	case strings.HasSuffix(lower, ":ok"):
		txID, _ := m["transaction_id"].(string)
		return success(txID, raw), nil
	case strings.Contains(lower, "cancel"):
		return &model.PayResult{Status: model.StatusCancel, Message: msg, Raw: raw}, nil
	default:
		return fail(msg, raw), nil
	}
}
