package strategy

import (
	"context"

	"cashier/internal/domain/payment/model"
)

// HTTPClient 策略访问商户后端使用的 HTTP 客户端，响应体按 JSON 解码到 out
type HTTPClient interface {
	Get(ctx context.Context, url string, out any) error
	Post(ctx context.Context, url string, body any, out any) error
}

// Strategy 支付渠道策略：参数转换与签名、结果归一化、查单
type Strategy interface {
	// Name 策略名，同时作为注册键
	Name() string

	// Prepare 请求后端签名，返回交给执行器的支付参数
	Prepare(ctx context.Context, params model.PayParams, http HTTPClient) (any, error)

	// Process 将执行器的原始结果归一化为 PayResult
	Process(raw any) (*model.PayResult, error)

	// GetPaySt 查询订单支付状态
	GetPaySt(ctx context.Context, orderID string) (*model.PayResult, error)
}
