package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cashier/internal/domain/payment/invoker"
	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/service"
	"cashier/internal/domain/payment/strategy"
	"cashier/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) Create(ctx context.Context, entry *model.JournalEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockJournal) ListByOrder(ctx context.Context, orderID string, limit int) ([]model.JournalEntry, error) {
	args := m.Called(ctx, orderID, limit)
	entries, _ := args.Get(0).([]model.JournalEntry)
	return entries, args.Error(1)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, scenario strategy.MockScenario, journal *mockJournal) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := service.NewSessionManager(func() *service.PaymentContext {
		invokers := invoker.NewFactory()
		invokers.Register(invoker.TypeServer, invoker.NewServerInvoker, invoker.ServerMatcher, 0)
		pc := service.NewPaymentContext(service.Config{
			Invokers:     invokers,
			PollInterval: 5 * time.Millisecond,
		})
		pc.Register(strategy.NewMockStrategy(strategy.MockConfig{
			Scenario:      scenario,
			TransactionID: "TRX_1",
			PendingRounds: 1000,
		}))
		return pc
	}, time.Minute, nil)
	t.Cleanup(sessions.Close)

	var h *PaymentHandler
	if journal != nil {
		h = NewPaymentHandler(sessions, journal)
	} else {
		h = NewPaymentHandler(sessions, nil)
	}

	r := gin.New()
	g := r.Group("/api/v1/payment/sessions")
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetState)
	g.DELETE("/:id", h.DestroySession)
	g.POST("/:id/pay", h.Pay)
	g.POST("/:id/polling", h.StartPolling)
	g.DELETE("/:id/polling", h.StopPolling)
	g.POST("/:id/reset", h.Reset)
	r.GET("/api/v1/payment/journal/:order_id", h.ListJournal)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	var data struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.SessionID)
	return data.SessionID
}

func payBody(strategyName, orderID string) gin.H {
	return gin.H{
		"strategy": strategyName,
		"params":   gin.H{"orderId": orderID, "amount": 100},
	}
}

func TestPaymentHandler_PaySuccess(t *testing.T) {
	r := setupRouter(t, strategy.ScenarioSuccess, nil)
	id := createSession(t, r)

	status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/pay", payBody("mock", "O1"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, response.CodeSuccess, env.Code)

	var result model.PayResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.Equal(t, "TRX_1", result.TransactionID)

	status, env = do(t, r, http.MethodGet, "/api/v1/payment/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	var view StateView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.StatusSuccess, view.Status)
	assert.False(t, view.Loading)
	assert.Empty(t, view.Error)

	status, _ = do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, status)
	_, env = do(t, r, http.MethodGet, "/api/v1/payment/sessions/"+id, nil)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.StatusIdle, view.Status)
	assert.Nil(t, view.Result)
}

func TestPaymentHandler_PayErrors(t *testing.T) {
	t.Run("unknown strategy", func(t *testing.T) {
		r := setupRouter(t, strategy.ScenarioSuccess, nil)
		id := createSession(t, r)

		status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/pay", payBody("paypal", "O1"))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, response.ErrPayInvalidConfig, env.Code)
	})

	t.Run("provider error", func(t *testing.T) {
		r := setupRouter(t, strategy.ScenarioError, nil)
		id := createSession(t, r)

		status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/pay", payBody("mock", "O1"))
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, response.ErrPayProviderInternal, env.Code)
		var detail ErrorDetail
		require.NoError(t, json.Unmarshal(env.Data, &detail))
		assert.EqualValues(t, "PROVIDER_INTERNAL_ERROR", detail.ErrorCode)

		_, env = do(t, r, http.MethodGet, "/api/v1/payment/sessions/"+id, nil)
		var view StateView
		require.NoError(t, json.Unmarshal(env.Data, &view))
		assert.Equal(t, model.StatusFail, view.Status)
		assert.NotEmpty(t, view.Error)
		assert.EqualValues(t, "PROVIDER_INTERNAL_ERROR", view.ErrorCode)
	})

	t.Run("missing order id", func(t *testing.T) {
		r := setupRouter(t, strategy.ScenarioSuccess, nil)
		id := createSession(t, r)

		status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/pay", gin.H{
			"strategy": "mock",
			"params":   gin.H{"amount": 1},
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, response.ErrInvalidParam, env.Code)
	})

	t.Run("session not found", func(t *testing.T) {
		r := setupRouter(t, strategy.ScenarioSuccess, nil)

		status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions/nope/pay", payBody("mock", "O1"))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, response.ErrSessionNotFound, env.Code)
	})
}

func TestPaymentHandler_Polling(t *testing.T) {
	r := setupRouter(t, strategy.ScenarioPending, nil)
	id := createSession(t, r)

	status, env := do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/polling", gin.H{
		"strategy": "mock",
		"orderId":  "O1",
	})
	require.Equal(t, http.StatusOK, status)
	var view StateView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.Polling)

	require.Eventually(t, func() bool {
		_, env := do(t, r, http.MethodGet, "/api/v1/payment/sessions/"+id, nil)
		var v StateView
		return json.Unmarshal(env.Data, &v) == nil && v.Status == model.StatusPending
	}, time.Second, 5*time.Millisecond)

	status, env = do(t, r, http.MethodDelete, "/api/v1/payment/sessions/"+id+"/polling", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.False(t, view.Polling)

	status, env = do(t, r, http.MethodPost, "/api/v1/payment/sessions/"+id+"/polling", gin.H{
		"strategy": "paypal",
		"orderId":  "O1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.ErrPayInvalidConfig, env.Code)
}

func TestPaymentHandler_DestroySession(t *testing.T) {
	r := setupRouter(t, strategy.ScenarioSuccess, nil)
	id := createSession(t, r)

	status, _ := do(t, r, http.MethodDelete, "/api/v1/payment/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := do(t, r, http.MethodDelete, "/api/v1/payment/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.ErrSessionNotFound, env.Code)

	status, _ = do(t, r, http.MethodGet, "/api/v1/payment/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPaymentHandler_ListJournal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := setupRouter(t, strategy.ScenarioSuccess, nil)
		status, _ := do(t, r, http.MethodGet, "/api/v1/payment/journal/O1", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("entries", func(t *testing.T) {
		journal := new(mockJournal)
		journal.On("ListByOrder", mock.Anything, "O1", 10).Return([]model.JournalEntry{
			{OrderID: "O1", Status: "pending"},
			{OrderID: "O1", Status: "success"},
		}, nil)
		r := setupRouter(t, strategy.ScenarioSuccess, journal)

		status, env := do(t, r, http.MethodGet, "/api/v1/payment/journal/O1?limit=10", nil)
		require.Equal(t, http.StatusOK, status)
		var entries []model.JournalEntry
		require.NoError(t, json.Unmarshal(env.Data, &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "success", entries[1].Status)
		journal.AssertExpectations(t)
	})

	t.Run("bad limit", func(t *testing.T) {
		r := setupRouter(t, strategy.ScenarioSuccess, new(mockJournal))
		status, env := do(t, r, http.MethodGet, "/api/v1/payment/journal/O1?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, response.ErrInvalidParam, env.Code)
	})

	t.Run("query error", func(t *testing.T) {
		journal := new(mockJournal)
		journal.On("ListByOrder", mock.Anything, "O1", 50).Return(nil, errors.New("db down"))
		r := setupRouter(t, strategy.ScenarioSuccess, journal)

		status, env := do(t, r, http.MethodGet, "/api/v1/payment/journal/O1", nil)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, response.ErrServerInternal, env.Code)
	})
}
