package strategy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
)

// Normalizer 将执行器返回的原始结果转换为 PayResult
type Normalizer func(raw any) (*model.PayResult, error)

// RemoteConfig 远程签名策略配置
type RemoteConfig struct {
	Name string
	// SignURL 商户后端签名/预下单接口 (POST)
	SignURL string
	// QueryURL 商户后端查单接口 (GET ?order_id=)
	QueryURL  string
	Transform func(model.PayParams) map[string]any
	Normalize Normalizer

	// Sign / Query 非空时替代 HTTP 签名与查单，直连支付平台时使用
	Sign  func(ctx context.Context, params model.PayParams) (map[string]any, error)
	Query func(ctx context.Context, orderID string) (*model.PayResult, error)
}

// RemoteStrategy 签名和查单都委托给商户后端的策略
type RemoteStrategy struct {
	cfg  RemoteConfig
	http HTTPClient
}

// NewRemoteStrategy http 仅用于查单，签名使用 Prepare 传入的客户端
func NewRemoteStrategy(cfg RemoteConfig, http HTTPClient) *RemoteStrategy {
	if cfg.Transform == nil {
		cfg.Transform = defaultTransform
	}
	return &RemoteStrategy{cfg: cfg, http: http}
}

func (s *RemoteStrategy) Name() string { return s.cfg.Name }

func (s *RemoteStrategy) Prepare(ctx context.Context, params model.PayParams, http HTTPClient) (any, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if s.cfg.Sign != nil {
		signed, err := s.cfg.Sign(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("sign %s order %s: %w", s.cfg.Name, params.OrderID, err)
		}
		return signed, nil
	}
	if http == nil {
		http = s.http
	}

	var signed map[string]any
	if err := http.Post(ctx, s.cfg.SignURL, s.cfg.Transform(params), &signed); err != nil {
		return nil, fmt.Errorf("sign %s order %s: %w", s.cfg.Name, params.OrderID, err)
	}
	return signed, nil
}

func (s *RemoteStrategy) Process(raw any) (*model.PayResult, error) {
	if r, ok := passthrough(raw); ok {
		return r, nil
	}
	if s.cfg.Normalize == nil {
		return nil, payerr.New(payerr.InvalidConfig, "strategy %s has no result normalizer", s.cfg.Name)
	}
	return s.cfg.Normalize(raw)
}

type queryResponse struct {
	Status        string        `json:"status"`
	TradeState    string        `json:"trade_state"`
	TradeStatus   string        `json:"trade_status"`
	TransactionID string        `json:"transaction_id"`
	Message       string        `json:"message"`
	Action        *model.Action `json:"action,omitempty"`
}

func (s *RemoteStrategy) GetPaySt(ctx context.Context, orderID string) (*model.PayResult, error) {
	if s.cfg.Query != nil {
		res, err := s.cfg.Query(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("query %s order %s: %w", s.cfg.Name, orderID, err)
		}
		return res, nil
	}
	if s.http == nil {
		return nil, payerr.New(payerr.InvalidConfig, "strategy %s has no http client for queries", s.cfg.Name)
	}

	var resp queryResponse
	u := s.cfg.QueryURL + "?order_id=" + url.QueryEscape(orderID)
	if err := s.http.Get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("query %s order %s: %w", s.cfg.Name, orderID, err)
	}

	raw := firstNonEmpty(resp.Status, resp.TradeState, resp.TradeStatus)
	status, ok := mapTradeStatus(raw)
	if !ok {
		return nil, payerr.New(payerr.Unknown, "unrecognized trade status %q for order %s", raw, orderID)
	}
	return &model.PayResult{
		Status:        status,
		TransactionID: resp.TransactionID,
		Message:       resp.Message,
		Action:        resp.Action,
		Raw:           resp,
	}, nil
}

// mapTradeStatus 兼容通用状态、微信 trade_state 和支付宝 trade_status
func mapTradeStatus(s string) (model.Status, bool) {
	if st := model.Status(strings.ToLower(s)); st.Valid() {
		return st, true
	}
	switch strings.ToUpper(s) {
	case "SUCCESS", "TRADE_SUCCESS", "TRADE_FINISHED", "PAID":
		return model.StatusSuccess, true
	case "NOTPAY", "USERPAYING", "WAIT_BUYER_PAY":
		return model.StatusPending, true
	case "ACCEPT":
		return model.StatusProcessing, true
	case "REFUND":
		return model.StatusRefunded, true
	case "CLOSED", "REVOKED", "PAYERROR", "TRADE_CLOSED":
		return model.StatusFail, true
	}
	return "", false
}

func defaultTransform(p model.PayParams) map[string]any {
	body := map[string]any{
		"order_id": p.OrderID,
		"amount":   p.Amount,
	}
	if p.Currency != "" {
		body["currency"] = p.Currency
	}
	if p.Description != "" {
		body["description"] = p.Description
	}
	for k, v := range p.Extra {
		if _, exists := body[k]; !exists {
			body[k] = v
		}
	}
	return body
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func asMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	return m, ok && m != nil
}
