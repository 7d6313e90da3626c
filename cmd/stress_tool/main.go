package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cashier/pkg/utils"
)

var (
	baseURL    = flag.String("url", "http://localhost:8080", "cashier 服务地址")
	totalPays  = flag.Int("n", 2000, "并发支付次数")
	orders     = flag.Int("orders", 50, "订单数量，多次支付共享同一订单以触发防重")
	strategyNm = flag.String("strategy", "mock", "支付策略")
	token      = flag.String("token", "", "JWT，服务开启鉴权时需要")
	secret     = flag.String("secret", "", "JWT 密钥，设置后自动签发压测用 token")

	httpClient *http.Client
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	flag.Parse()

	if *token == "" && *secret != "" {
		t, _, err := utils.GenerateToken(*secret, "stress-tool", "", time.Hour)
		if err != nil {
			fmt.Printf("签发 token 失败: %v\n", err)
			return
		}
		*token = t
	}

	fmt.Printf("开始压测：%d 次支付，%d 个订单，策略 %s\n", *totalPays, *orders, *strategyNm)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = make(map[string]int)
	)

	start := time.Now()
	for i := 0; i < *totalPays; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := payOnce(fmt.Sprintf("STRESS_%d", i%*orders))
			mu.Lock()
			counts[outcome]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	duration := time.Since(start)
	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", *totalPays)
	fmt.Printf("QPS: %.2f\n", float64(*totalPays)/duration.Seconds())
	for outcome, n := range counts {
		fmt.Printf("%-24s %d\n", outcome, n)
	}
	fmt.Println("--------------------------------------------------")
}

// payOnce 创建会话、支付、销毁会话，返回结果分类
func payOnce(orderID string) string {
	var session struct {
		SessionID string `json:"sessionId"`
	}
	if _, resp, err := call(http.MethodPost, "/api/v1/payment/sessions", nil); err != nil {
		return "create_error"
	} else if err := json.Unmarshal(resp.Data, &session); err != nil || session.SessionID == "" {
		return "create_error"
	}
	defer func() {
		_, _, _ = call(http.MethodDelete, "/api/v1/payment/sessions/"+session.SessionID, nil)
	}()

	status, resp, err := call(http.MethodPost, "/api/v1/payment/sessions/"+session.SessionID+"/pay", map[string]any{
		"strategy": *strategyNm,
		"params":   map[string]any{"orderId": orderID, "amount": 1},
	})
	if err != nil {
		return "request_error"
	}
	if resp.Code != 0 {
		return fmt.Sprintf("http_%d_code_%d", status, resp.Code)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return "decode_error"
	}
	return "status_" + result.Status
}

func call(method, path string, body any) (int, *apiResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, *baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var out apiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, &out, nil
}
