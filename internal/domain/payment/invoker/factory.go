package invoker

import (
	"context"
	"sort"
	"sync"

	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"
)

// TypeAuto 自动探测
const TypeAuto = "auto"

// Invoker 调起具体运行时支付能力的执行器，返回未归一化的原始结果
type Invoker interface {
	Invoke(ctx context.Context, payload any) (any, error)
}

// Constructor 执行器构造函数，每次支付都新建实例
type Constructor func(channel string, log logger.Logger) Invoker

// Matcher 能力探测，返回 true 表示当前环境可用
type Matcher func(channel string) bool

type registration struct {
	typ      string
	ctor     Constructor
	match    Matcher
	priority int
}

// Factory 执行器注册表，按优先级从高到低探测，同优先级按注册顺序
type Factory struct {
	mu   sync.RWMutex
	regs []registration
}

func NewFactory() *Factory {
	return &Factory{}
}

// Register 注册执行器，priority 越大越先被探测
func (f *Factory) Register(typ string, ctor Constructor, match Matcher, priority int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.regs = append(f.regs, registration{typ: typ, ctor: ctor, match: match, priority: priority})
	sort.SliceStable(f.regs, func(i, j int) bool {
		return f.regs[i].priority > f.regs[j].priority
	})
}

// Create 解析并构造执行器
// 显式类型命中则直接使用，未命中记录警告后退回自动探测
func (f *Factory) Create(explicitType, channel string, log logger.Logger) (Invoker, error) {
	if log == nil {
		log = logger.NewNop()
	}

	f.mu.RLock()
	regs := make([]registration, len(f.regs))
	copy(regs, f.regs)
	f.mu.RUnlock()

	if explicitType != "" && explicitType != TypeAuto {
		for _, r := range regs {
			if r.typ == explicitType {
				return r.ctor(channel, log), nil
			}
		}
		log.Warn("invoker type not registered, falling back to auto-detect", "type", explicitType, "channel", channel)
	}

	for _, r := range regs {
		if safeMatch(r.match, channel) {
			log.Debug("invoker auto-detected", "type", r.typ, "channel", channel)
			return r.ctor(channel, log), nil
		}
	}

	return nil, payerr.New(payerr.NoInvokerFound, "no invoker found for channel %q", channel)
}

// safeMatch 匹配函数 panic 视为不匹配
func safeMatch(m Matcher, channel string) (ok bool) {
	if m == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return m(channel)
}

// Types 按探测顺序返回已注册的类型
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.regs))
	for _, r := range f.regs {
		types = append(types, r.typ)
	}
	return types
}

// Reset 清空注册表
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = nil
}
