package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
)

// MockScenario 模拟场景
type MockScenario string

const (
	ScenarioSuccess MockScenario = "success"
	ScenarioFail    MockScenario = "fail"
	ScenarioCancel  MockScenario = "cancel"
	ScenarioPending MockScenario = "pending"
	ScenarioError   MockScenario = "error" // Prepare 直接报错
)

// MockConfig 模拟策略配置
type MockConfig struct {
	Latency       time.Duration
	Scenario      MockScenario
	TransactionID string
	// PendingRounds pending 场景下查单返回 pending 的次数，之后返回 success
	PendingRounds int
}

// MockStrategy 模拟策略，用于联调和压测
type MockStrategy struct {
	cfg MockConfig

	mu      sync.Mutex
	queries map[string]int
}

func NewMockStrategy(cfg MockConfig) *MockStrategy {
	if cfg.Scenario == "" {
		cfg.Scenario = ScenarioSuccess
	}
	return &MockStrategy{cfg: cfg, queries: make(map[string]int)}
}

func (s *MockStrategy) Name() string { return "mock" }

func (s *MockStrategy) Prepare(ctx context.Context, params model.PayParams, _ HTTPClient) (any, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.cfg.Scenario == ScenarioError {
		return nil, payerr.New(payerr.ProviderInternalError, "mock backend refused to sign order %s", params.OrderID)
	}
	return map[string]any{
		"order_id":   params.OrderID,
		"amount":     params.Amount,
		"_mock_sign": "signed_by_mock",
		"_scenario":  string(s.cfg.Scenario),
	}, nil
}

func (s *MockStrategy) Process(raw any) (*model.PayResult, error) {
	switch s.cfg.Scenario {
	case ScenarioFail:
		return fail("mock payment failed", raw), nil
	case ScenarioCancel:
		return &model.PayResult{Status: model.StatusCancel, Message: "user cancelled", Raw: raw}, nil
	case ScenarioPending:
		return &model.PayResult{
			Status: model.StatusPending,
			Raw:    raw,
			Action: &model.Action{Type: model.ActionQRCode, Value: "weixin://wxpay/mock"},
		}, nil
	default:
		return success(s.transactionID(), raw), nil
	}
}

func (s *MockStrategy) GetPaySt(ctx context.Context, orderID string) (*model.PayResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	switch s.cfg.Scenario {
	case ScenarioSuccess:
		return success("MOCK_TRX_"+orderID, map[string]any{"status": "paid"}), nil
	case ScenarioPending:
		s.mu.Lock()
		s.queries[orderID]++
		n := s.queries[orderID]
		s.mu.Unlock()
		if n <= s.cfg.PendingRounds {
			return &model.PayResult{Status: model.StatusPending, Message: "user is paying"}, nil
		}
		return success("MOCK_TRX_"+orderID, map[string]any{"rounds": n}), nil
	default:
		return fail("order not paid or not found", nil), nil
	}
}

func (s *MockStrategy) transactionID() string {
	if s.cfg.TransactionID != "" {
		return s.cfg.TransactionID
	}
	return fmt.Sprintf("MOCK_%d", time.Now().UnixNano())
}

func (s *MockStrategy) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.cfg.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
