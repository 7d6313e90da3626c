package strategy

import (
	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
)

func success(transactionID string, raw any) *model.PayResult {
	return &model.PayResult{Status: model.StatusSuccess, TransactionID: transactionID, Raw: raw}
}

func fail(message string, raw any) *model.PayResult {
	return &model.PayResult{Status: model.StatusFail, Message: message, Raw: raw}
}

func validateParams(p model.PayParams) error {
	if p.OrderID == "" {
		return payerr.New(payerr.ParamInvalid, "order_id is required")
	}
	if p.Amount <= 0 {
		return payerr.New(payerr.ParamInvalid, "amount must be positive, got %d", p.Amount)
	}
	return nil
}

// passthrough 执行器已归一化的结果直接透传
func passthrough(raw any) (*model.PayResult, bool) {
	switch v := raw.(type) {
	case *model.PayResult:
		return v, v != nil
	case model.PayResult:
		return &v, true
	}
	return nil, false
}
