package strategy

import (
	"fmt"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
)

// NewAlipayStrategy 支付宝：App / 小程序 / Wap
func NewAlipayStrategy(signURL, queryURL string, http HTTPClient) *RemoteStrategy {
	return NewRemoteStrategy(RemoteConfig{
		Name:      "alipay",
		SignURL:   signURL,
		QueryURL:  queryURL,
		Transform: alipayTransform,
		Normalize: normalizeAlipay,
	}, http)
}

func alipayTransform(p model.PayParams) map[string]any {
	subject := p.Description
	if subject == "" {
		subject = p.OrderID
	}
	return map[string]any{
		"out_trade_no": p.OrderID,
		"total_amount": yuan(p.Amount),
		"subject":      subject,
	}
}

// yuan 分转为支付宝要求的元字符串
func yuan(fen int64) string {
	return fmt.Sprintf("%d.%02d", fen/100, fen%100)
}

// normalizeAlipay resultStatus 取值见支付宝客户端返回码
func normalizeAlipay(raw any) (*model.PayResult, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, payerr.New(payerr.InvokeFailed, "unexpected alipay result type %T", raw)
	}

	code := fmt.Sprint(m["resultStatus"])
	memo, _ := m["memo"].(string)

	switch code {
	case "9000":
		txID, _ := m["trade_no"].(string)
		return success(txID, raw), nil
	case "8000", "6004":
		return &model.PayResult{Status: model.StatusProcessing, Message: memo, Raw: raw}, nil
	case "6001":
		return &model.PayResult{Status: model.StatusCancel, Message: memo, Raw: raw}, nil
	default:
		if memo == "" {
			memo = "alipay result " + code
		}
		return fail(memo, raw), nil
	}
}
