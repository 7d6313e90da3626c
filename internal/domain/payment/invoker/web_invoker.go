package invoker

import (
	"context"
	"errors"
	"sync"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"
)

// TypeWeb 网页支付：跳转或二维码
const TypeWeb = "web"

// WebHandler 某个渠道的网页支付处理
type WebHandler interface {
	Handle(ctx context.Context, payload any) (*model.PayResult, error)
}

// WebHandlerFunc 函数适配器
type WebHandlerFunc func(ctx context.Context, payload any) (*model.PayResult, error)

func (f WebHandlerFunc) Handle(ctx context.Context, payload any) (*model.PayResult, error) {
	return f(ctx, payload)
}

// WebHandlers 渠道 -> 网页支付处理
type WebHandlers struct {
	mu       sync.RWMutex
	handlers map[string]WebHandler
}

// NewWebHandlers 内置 wechat 和 alipay
func NewWebHandlers() *WebHandlers {
	h := &WebHandlers{handlers: make(map[string]WebHandler)}
	h.Register("wechat", WebHandlerFunc(wechatWeb))
	h.Register("alipay", WebHandlerFunc(alipayWeb))
	return h
}

func (h *WebHandlers) Register(channel string, handler WebHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[channel] = handler
}

func (h *WebHandlers) Get(channel string) (WebHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[channel]
	return handler, ok
}

// Matcher 渠道有网页处理时匹配
func (h *WebHandlers) Matcher() Matcher {
	return func(channel string) bool {
		_, ok := h.Get(channel)
		return ok
	}
}

// Constructor 绑定到该处理表的构造函数
func (h *WebHandlers) Constructor() Constructor {
	return func(channel string, log logger.Logger) Invoker {
		return &WebInvoker{channel: channel, handlers: h, log: log}
	}
}

// WebInvoker 将签名结果转换为前端需要执行的下一步操作
type WebInvoker struct {
	channel  string
	handlers *WebHandlers
	log      logger.Logger
}

func (i *WebInvoker) Invoke(ctx context.Context, payload any) (any, error) {
	handler, ok := i.handlers.Get(i.channel)
	if !ok {
		return nil, payerr.New(payerr.InvokeFailed, "no web handler for channel %s", i.channel)
	}

	res, err := handler.Handle(ctx, payload)
	if err != nil {
		var pe *payerr.PayError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, payerr.Wrap(payerr.InvokeFailed, err, "web invoke failed for channel %s", i.channel)
	}
	return res, nil
}

func pendingAction(t model.ActionType, value string, raw any) *model.PayResult {
	return &model.PayResult{
		Status: model.StatusPending,
		Action: &model.Action{Type: t, Value: value},
		Raw:    raw,
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// wechatWeb H5 返回 h5_url，Native 返回 code_url
func wechatWeb(_ context.Context, payload any) (*model.PayResult, error) {
	m, _ := payload.(map[string]any)
	if u := firstString(m, "h5_url", "mweb_url", "mwebUrl"); u != "" {
		return pendingAction(model.ActionURLJump, u, payload), nil
	}
	if u := firstString(m, "code_url", "codeUrl"); u != "" {
		return pendingAction(model.ActionQRCode, u, payload), nil
	}
	return nil, payerr.New(payerr.InvokeFailed, "wechat web payload has neither h5_url nor code_url")
}

// alipayWeb 扫码返回 qr_code，Wap/PC 返回跳转链接或表单
func alipayWeb(_ context.Context, payload any) (*model.PayResult, error) {
	m, _ := payload.(map[string]any)
	if u := firstString(m, "qr_code", "qrCodeUrl"); u != "" {
		return pendingAction(model.ActionQRCode, u, payload), nil
	}
	if u := firstString(m, "pay_url", "url"); u != "" {
		return pendingAction(model.ActionURLJump, u, payload), nil
	}
	if form := firstString(m, "form"); form != "" {
		return &model.PayResult{Status: model.StatusPending, Action: &model.Action{Type: model.ActionNone}, Raw: form}, nil
	}
	return nil, payerr.New(payerr.InvokeFailed, "alipay web payload has no qr_code, url or form")
}
