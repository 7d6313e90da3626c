package model

import (
	"sync"

	"cashier/pkg/eventbus"

	"github.com/google/uuid"
)

// Host 插件可见的宿主能力：订阅、发布、读取状态
type Host interface {
	On(event string, fn eventbus.Listener) eventbus.Subscription
	Emit(event string, payload any)
	State() PaymentState
}

// ContextState 单次支付尝试 (或单次轮询会话) 的运行时上下文
// 每次 Execute / StartPolling 都新建，不跨尝试复用
type ContextState struct {
	AttemptID    string
	Host         Host
	StrategyName string
	Params       PayParams

	// APIResponse 执行器返回的原始结果
	APIResponse any
	// ProviderPayload 策略 Prepare 产出、交给执行器的参数
	ProviderPayload any

	CurrentStatus Status
	Result        *PayResult

	// State 插件间共享的临时数据
	State map[string]any

	mu          sync.Mutex
	aborted     bool
	abortReason string
}

// NewContextState 创建运行时上下文，preData 会被拷贝进 State
func NewContextState(host Host, strategyName string, params PayParams, preData map[string]any) *ContextState {
	return &ContextState{
		AttemptID:    uuid.NewString(),
		Host:         host,
		StrategyName: strategyName,
		Params:       params.Clone(),
		State:        copyScratch(preData),
	}
}

// Abort 标记中断，当前插件钩子返回后流程以 PluginInterrupt 结束
func (c *ContextState) Abort(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	c.abortReason = reason
}

// Aborted 是否已被中断
func (c *ContextState) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// AbortReason 中断原因
func (c *ContextState) AbortReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortReason
}

// Snapshot 返回 State 的拷贝，用于写入 PreData
func (c *ContextState) Snapshot() map[string]any {
	return copyScratch(c.State)
}

// Fork 复制出一份独立的工作副本，供单个钩子读写
// Params 与 State 深拷贝，中断标志从原上下文继承
func (c *ContextState) Fork() *ContextState {
	aborted, reason := c.abortState()
	return &ContextState{
		AttemptID:       c.AttemptID,
		Host:            c.Host,
		StrategyName:    c.StrategyName,
		Params:          c.Params.Clone(),
		APIResponse:     c.APIResponse,
		ProviderPayload: c.ProviderPayload,
		CurrentStatus:   c.CurrentStatus,
		Result:          c.Result,
		State:           copyScratch(c.State),
		aborted:         aborted,
		abortReason:     reason,
	}
}

// Merge 把按时返回的工作副本写回上下文
func (c *ContextState) Merge(w *ContextState) {
	c.Params = w.Params
	c.APIResponse = w.APIResponse
	c.ProviderPayload = w.ProviderPayload
	c.CurrentStatus = w.CurrentStatus
	c.Result = w.Result
	c.State = w.State
	if aborted, reason := w.abortState(); aborted {
		c.Abort(reason)
	}
}

func (c *ContextState) abortState() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted, c.abortReason
}
