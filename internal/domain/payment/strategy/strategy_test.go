package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient is a mock of HTTPClient
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Get(ctx context.Context, url string, out any) error {
	args := m.Called(ctx, url, out)
	return args.Error(0)
}

func (m *MockHTTPClient) Post(ctx context.Context, url string, body any, out any) error {
	args := m.Called(ctx, url, body, out)
	return args.Error(0)
}

func TestMockStrategy(t *testing.T) {
	ctx := context.Background()
	params := model.PayParams{OrderID: "O1", Amount: 100}

	t.Run("success scenario", func(t *testing.T) {
		s := NewMockStrategy(MockConfig{TransactionID: "T1"})

		payload, err := s.Prepare(ctx, params, nil)
		require.NoError(t, err)
		assert.Equal(t, "signed_by_mock", payload.(map[string]any)["_mock_sign"])

		res, err := s.Process(payload)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSuccess, res.Status)
		assert.Equal(t, "T1", res.TransactionID)
	})

	t.Run("error scenario fails prepare", func(t *testing.T) {
		s := NewMockStrategy(MockConfig{Scenario: ScenarioError})
		_, err := s.Prepare(ctx, params, nil)
		assert.True(t, payerr.Is(err, payerr.ProviderInternalError))
	})

	t.Run("pending scenario resolves after rounds", func(t *testing.T) {
		s := NewMockStrategy(MockConfig{Scenario: ScenarioPending, PendingRounds: 2})

		res, err := s.Process(nil)
		require.NoError(t, err)
		assert.Equal(t, model.ActionQRCode, res.Action.Type)

		for i := 0; i < 2; i++ {
			r, err := s.GetPaySt(ctx, "O1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusPending, r.Status)
		}
		r, err := s.GetPaySt(ctx, "O1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSuccess, r.Status)
		assert.Equal(t, "MOCK_TRX_O1", r.TransactionID)
	})

	t.Run("latency honours context", func(t *testing.T) {
		s := NewMockStrategy(MockConfig{Latency: time.Minute})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.Prepare(cctx, params, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRemoteStrategy_Prepare(t *testing.T) {
	ctx := context.Background()

	t.Run("posts transformed params to sign url", func(t *testing.T) {
		httpClient := new(MockHTTPClient)
		s := NewWechatStrategy("/payment/wechat", "/payment/wechat/query", nil)

		params := model.PayParams{OrderID: "O1", Amount: 100, Extra: map[string]any{"openid": "oid"}}
		httpClient.On("Post", ctx, "/payment/wechat", mock.MatchedBy(func(body map[string]any) bool {
			return body["out_trade_no"] == "O1" && body["payer"].(map[string]any)["openid"] == "oid"
		}), mock.Anything).Run(func(args mock.Arguments) {
			out := args.Get(3).(*map[string]any)
			*out = map[string]any{"paySign": "abc"}
		}).Return(nil)

		payload, err := s.Prepare(ctx, params, httpClient)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"paySign": "abc"}, payload)
		httpClient.AssertExpectations(t)
	})

	t.Run("rejects invalid params before calling backend", func(t *testing.T) {
		httpClient := new(MockHTTPClient)
		s := NewAlipayStrategy("/payment/alipay", "/payment/alipay/query", httpClient)

		_, err := s.Prepare(ctx, model.PayParams{OrderID: "O1"}, httpClient)
		assert.True(t, payerr.Is(err, payerr.ParamInvalid))
		httpClient.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("backend failure is wrapped", func(t *testing.T) {
		httpClient := new(MockHTTPClient)
		s := NewAlipayStrategy("/payment/alipay", "/payment/alipay/query", httpClient)
		httpClient.On("Post", ctx, "/payment/alipay", mock.Anything, mock.Anything).Return(errors.New("502"))

		_, err := s.Prepare(ctx, model.PayParams{OrderID: "O1", Amount: 1}, nil)
		assert.EqualError(t, err, "sign alipay order O1: 502")
	})
}

func TestRemoteStrategy_GetPaySt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		resp   queryResponse
		status model.Status
	}{
		{"generic status", queryResponse{Status: "pending"}, model.StatusPending},
		{"wechat trade state", queryResponse{TradeState: "SUCCESS", TransactionID: "W1"}, model.StatusSuccess},
		{"alipay trade status", queryResponse{TradeStatus: "WAIT_BUYER_PAY"}, model.StatusPending},
		{"closed", queryResponse{TradeState: "CLOSED"}, model.StatusFail},
		{"refund", queryResponse{TradeState: "REFUND"}, model.StatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpClient := new(MockHTTPClient)
			s := NewWechatStrategy("/sign", "/query", httpClient)
			httpClient.On("Get", ctx, "/query?order_id=O+1", mock.Anything).Run(func(args mock.Arguments) {
				*args.Get(2).(*queryResponse) = tt.resp
			}).Return(nil)

			res, err := s.GetPaySt(ctx, "O 1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.resp.TransactionID, res.TransactionID)
		})
	}

	t.Run("unknown trade status is an error", func(t *testing.T) {
		httpClient := new(MockHTTPClient)
		s := NewWechatStrategy("/sign", "/query", httpClient)
		httpClient.On("Get", ctx, "/query?order_id=O1", mock.Anything).Run(func(args mock.Arguments) {
			*args.Get(2).(*queryResponse) = queryResponse{Status: "weird"}
		}).Return(nil)

		_, err := s.GetPaySt(ctx, "O1")
		assert.True(t, payerr.Is(err, payerr.Unknown))
	})
}

func TestNormalizeWechat(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		status model.Status
	}{
		{"ok", map[string]any{"errMsg": "requestPayment:ok"}, model.StatusSuccess},
		{"cancel", map[string]any{"errMsg": "requestPayment:fail cancel"}, model.StatusCancel},
		{"fail", map[string]any{"errMsg": "requestPayment:fail no permission"}, model.StatusFail},
		{"jsbridge", map[string]any{"err_msg": "get_brand_wcpay_request:ok"}, model.StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := normalizeWechat(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
		})
	}

	_, err := normalizeWechat("oops")
	assert.True(t, payerr.Is(err, payerr.InvokeFailed))
}

func TestNormalizeAlipay(t *testing.T) {
	tests := []struct {
		code   any
		status model.Status
	}{
		{"9000", model.StatusSuccess},
		{float64(9000), model.StatusSuccess},
		{"8000", model.StatusProcessing},
		{"6004", model.StatusProcessing},
		{"6001", model.StatusCancel},
		{"4000", model.StatusFail},
	}
	for _, tt := range tests {
		res, err := normalizeAlipay(map[string]any{"resultStatus": tt.code, "memo": "m"})
		require.NoError(t, err)
		assert.Equal(t, tt.status, res.Status, "code %v", tt.code)
	}
}

func TestRemoteStrategy_ProcessPassthrough(t *testing.T) {
	s := NewAlipayStrategy("/sign", "/query", nil)
	in := &model.PayResult{Status: model.StatusPending, Action: &model.Action{Type: model.ActionURLJump, Value: "https://x"}}

	res, err := s.Process(in)
	require.NoError(t, err)
	assert.Same(t, in, res)
}

func TestAlipayTransform(t *testing.T) {
	body := alipayTransform(model.PayParams{OrderID: "O1", Amount: 1205})
	assert.Equal(t, "12.05", body["total_amount"])
	assert.Equal(t, "O1", body["subject"])
}
