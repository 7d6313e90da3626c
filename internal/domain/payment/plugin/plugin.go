package plugin

import (
	"context"
	"time"

	"cashier/internal/domain/payment/model"
)

// DefaultTimeout 插件钩子默认超时
const DefaultTimeout = 10 * time.Second

// HookName 生命周期检查点
type HookName string

const (
	HookBeforePay    HookName = "onBeforePay"
	HookBeforeSign   HookName = "onBeforeSign"
	HookAfterSign    HookName = "onAfterSign"
	HookBeforeInvoke HookName = "onBeforeInvoke"
	HookAfterInvoke  HookName = "onAfterInvoke"
	HookStateChange  HookName = "onStateChange"
	HookSuccess      HookName = "onSuccess"
	HookFail         HookName = "onFail"
	HookCompleted    HookName = "onCompleted"
)

// Enforce 排序提示
type Enforce string

const (
	EnforcePre  Enforce = "pre"
	EnforcePost Enforce = "post"
)

// Hook 基础钩子签名
type Hook func(ctx context.Context, pc *model.ContextState) error

// Plugin 插件描述
//
// 默认是关键插件：钩子报错或超时会终止整个支付流程。
// NonCritical 插件的错误只记录警告。
// 钩子在独立 goroutine 中运行并持有上下文的工作副本，超时后流程继续，超时钩子的修改被丢弃。
type Plugin struct {
	Name        string
	Enforce     Enforce
	NonCritical bool
	Timeout     time.Duration

	OnBeforePay    Hook
	OnBeforeSign   Hook
	OnAfterSign    Hook
	OnBeforeInvoke Hook
	OnAfterInvoke  func(ctx context.Context, pc *model.ContextState, raw any) error
	OnStateChange  func(ctx context.Context, pc *model.ContextState, status model.Status) error
	OnSuccess      func(ctx context.Context, pc *model.ContextState, result *model.PayResult) error
	// OnFail 结算失败时 result 非空，流程出错时 err 非空
	OnFail      func(ctx context.Context, pc *model.ContextState, result *model.PayResult, err error) error
	OnCompleted Hook
}

func (p *Plugin) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

func (p *Plugin) critical() bool {
	return !p.NonCritical
}

// bind 返回插件在该检查点上的调用，未实现该钩子时返回 nil
func (p *Plugin) bind(hook HookName, pc *model.ContextState, args []any) func(context.Context) error {
	wrap := func(h Hook) func(context.Context) error {
		if h == nil {
			return nil
		}
		return func(ctx context.Context) error { return h(ctx, pc) }
	}

	switch hook {
	case HookBeforePay:
		return wrap(p.OnBeforePay)
	case HookBeforeSign:
		return wrap(p.OnBeforeSign)
	case HookAfterSign:
		return wrap(p.OnAfterSign)
	case HookBeforeInvoke:
		return wrap(p.OnBeforeInvoke)
	case HookCompleted:
		return wrap(p.OnCompleted)
	case HookAfterInvoke:
		if p.OnAfterInvoke == nil {
			return nil
		}
		raw := arg(args, 0)
		return func(ctx context.Context) error { return p.OnAfterInvoke(ctx, pc, raw) }
	case HookStateChange:
		if p.OnStateChange == nil {
			return nil
		}
		status, _ := arg(args, 0).(model.Status)
		return func(ctx context.Context) error { return p.OnStateChange(ctx, pc, status) }
	case HookSuccess:
		if p.OnSuccess == nil {
			return nil
		}
		result, _ := arg(args, 0).(*model.PayResult)
		return func(ctx context.Context) error { return p.OnSuccess(ctx, pc, result) }
	case HookFail:
		if p.OnFail == nil {
			return nil
		}
		result, _ := arg(args, 0).(*model.PayResult)
		err, _ := arg(args, 1).(error)
		return func(ctx context.Context) error { return p.OnFail(ctx, pc, result, err) }
	}
	return nil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
