package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"cashier/pkg/logger"

	"github.com/sony/gobreaker/v2"
)

// Config HTTP 客户端配置
type Config struct {
	// BaseURL 非空时，相对路径会拼接在其后
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Breaker      BreakerConfig
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Name string
	// MaxRequests 半开状态允许通过的请求数
	MaxRequests uint32
	Interval    time.Duration
	// Timeout 打开状态持续多久后进入半开
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		Breaker: BreakerConfig{
			Name:         "cashier-http",
			MaxRequests:  1,
			Interval:     60 * time.Second,
			Timeout:      30 * time.Second,
			FailureRatio: 0.5,
			MinRequests:  5,
		},
	}
}

// ErrCircuitOpen 熔断器打开时直接拒绝请求
var ErrCircuitOpen = gobreaker.ErrOpenState

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client 带重试和熔断的 JSON 客户端，供支付策略请求商户后端
type Client struct {
	http    *http.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[*http.Response]
	log     logger.Logger
}

func New(cfg Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = def.Breaker
	}

	bc := cfg.Breaker
	settings := gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		log:     log,
	}
}

// State 熔断器当前状态
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Get 发送 GET 请求并将 JSON 响应解码到 out
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

// Post 以 JSON 发送 body 并将响应解码到 out
func (c *Client) Post(ctx context.Context, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}
	return c.doJSON(ctx, http.MethodPost, url, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, out any) error {
	target := c.resolve(url)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.do(ctx, method, target, payload)
		if err != nil {
			return nil, err
		}
		// 5xx 计入熔断失败
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, statusError(resp)
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %w", method, target, statusError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response from %s: %w", target, err)
	}
	return nil
}

// do 执行请求，网络错误和 5xx (501 除外) 按指数退避重试
func (c *Client) do(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryWaitMin * time.Duration(1<<uint(attempt-1))
			if wait > c.cfg.RetryWaitMax {
				wait = c.cfg.RetryWaitMax
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("create %s request: %w", method, err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if retryable(err) && attempt < c.cfg.MaxRetries {
				c.log.Debug("http request failed, retrying", "url", url, "attempt", attempt+1, "error", err)
				continue
			}
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		}

		if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented && attempt < c.cfg.MaxRetries {
			resp.Body.Close()
			c.log.Debug("http server error, retrying", "url", url, "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) resolve(url string) string {
	if c.cfg.BaseURL == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(url, "/")
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
