package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) Config {
	return Config{
		Timeout:      2 * time.Second,
		MaxRetries:   0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Breaker: BreakerConfig{
			Name:         name,
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      time.Minute,
			FailureRatio: 0.5,
			MinRequests:  3,
		},
	}
}

func TestClient_GetAndPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/query", r.URL.Path)
			assert.Equal(t, "O1", r.URL.Query().Get("order_id"))
			_, _ = w.Write([]byte(`{"status":"success","transaction_id":"T1"}`))
		case http.MethodPost:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_ = json.NewEncoder(w).Encode(map[string]any{"echo": body["order_id"]})
		}
	}))
	defer server.Close()

	cfg := testConfig("get-post")
	cfg.BaseURL = server.URL
	c := New(cfg, nil)

	t.Run("get with base url", func(t *testing.T) {
		var out struct {
			Status        string `json:"status"`
			TransactionID string `json:"transaction_id"`
		}
		require.NoError(t, c.Get(context.Background(), "/query?order_id=O1", &out))
		assert.Equal(t, "success", out.Status)
		assert.Equal(t, "T1", out.TransactionID)
	})

	t.Run("post json", func(t *testing.T) {
		var out map[string]any
		require.NoError(t, c.Post(context.Background(), server.URL+"/sign", map[string]any{"order_id": "O1"}, &out))
		assert.Equal(t, "O1", out["echo"])
	})
}

func TestClient_ClientErrorNotCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad order`))
	}))
	defer server.Close()

	c := New(testConfig("client-error"), nil)
	for i := 0; i < 5; i++ {
		err := c.Get(context.Background(), server.URL, nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.Equal(t, "bad order", se.Body)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClient_BreakerTrips(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(testConfig("trip"), nil)
	for i := 0; i < 3; i++ {
		require.Error(t, c.Get(context.Background(), server.URL, nil))
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	err := c.Get(context.Background(), server.URL, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := testConfig("retry")
	cfg.MaxRetries = 2
	c := New(cfg, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Post(context.Background(), server.URL, map[string]string{"a": "b"}, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c := New(testConfig("decode"), nil)
	var out map[string]any
	err := c.Get(context.Background(), server.URL, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "cashier-http", cfg.Breaker.Name)
	assert.Equal(t, uint32(5), cfg.Breaker.MinRequests)
	assert.Equal(t, 0.5, cfg.Breaker.FailureRatio)
}
