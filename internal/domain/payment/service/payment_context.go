package service

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"cashier/internal/domain/payment/invoker"
	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/internal/domain/payment/plugin"
	"cashier/internal/domain/payment/polling"
	"cashier/internal/domain/payment/strategy"
	"cashier/pkg/eventbus"
	"cashier/pkg/httpclient"
	"cashier/pkg/logger"
	"cashier/pkg/store"
)

// 默认值
const (
	DefaultPollInterval  = polling.DefaultInterval
	DefaultAutoPollDelay = 3 * time.Second
)

var _ model.Host = hostView{}

// InvokerResolver 根据渠道决定执行器类型
type InvokerResolver func(channel string) string

// Config PaymentContext 构造参数
type Config struct {
	Debug  bool
	HTTP   strategy.HTTPClient
	Logger logger.Logger

	// InvokerType 固定执行器类型，空或 "auto" 表示自动探测
	InvokerType     string
	InvokerResolver InvokerResolver
	// Invokers 执行器注册表，为空时创建一个空表
	Invokers *invoker.Factory

	// Plugins 按 Use 的规则依次注册，Enforce 为 pre 的插件排在前面
	Plugins []*plugin.Plugin
	// DisableDefaultPlugins 关闭默认的事件桥插件
	DisableDefaultPlugins bool

	PollInterval    time.Duration
	AutoPollDelay   time.Duration
	PollMaxAttempts int
	PollMaxDuration time.Duration

	HookObserver plugin.Observer
	PollObserver polling.Observer
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.HTTP == nil {
		c.HTTP = httpclient.New(httpclient.DefaultConfig(), c.Logger)
	}
	if c.Invokers == nil {
		c.Invokers = invoker.NewFactory()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.AutoPollDelay <= 0 {
		c.AutoPollDelay = DefaultAutoPollDelay
	}
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = polling.DefaultMaxAttempts
	}
	if c.PollMaxDuration <= 0 {
		c.PollMaxDuration = polling.DefaultMaxDuration
	}
}

// PaymentContext 支付编排器
//
// 持有策略、插件、执行器注册表以及一份持久的 PaymentState。
// 同一实例的 Execute 结果和轮询结果都经由 settle 写入状态。
type PaymentContext struct {
	cfg      Config
	log      logger.Logger
	http     strategy.HTTPClient
	bus      *eventbus.Bus
	store    *store.Store[model.PaymentState]
	invokers *invoker.Factory
	poller   *polling.Manager

	mu         sync.RWMutex
	strategies map[string]strategy.Strategy
	plugins    []*plugin.Plugin
	driver     *plugin.Driver
	autoPoll   *time.Timer

	// pollGen 轮询会话代号，StopPolling 后旧会话的结果不再结算
	pollGen   atomic.Uint64
	destroyed atomic.Bool
}

// hostView 插件通过 ContextState.Host 看到的受限视图
type hostView struct{ c *PaymentContext }

func (h hostView) On(event string, fn eventbus.Listener) eventbus.Subscription {
	return h.c.On(event, fn)
}

func (h hostView) Emit(event string, payload any) { h.c.Emit(event, payload) }

func (h hostView) State() model.PaymentState { return h.c.State() }

func NewPaymentContext(cfg Config) *PaymentContext {
	cfg.applyDefaults()

	c := &PaymentContext{
		cfg:        cfg,
		log:        cfg.Logger,
		http:       cfg.HTTP,
		bus:        eventbus.New(cfg.Logger),
		store:      store.New(model.IdleState()),
		invokers:   cfg.Invokers,
		strategies: make(map[string]strategy.Strategy),
	}
	c.poller = polling.NewManager(polling.Options{
		MaxAttempts: cfg.PollMaxAttempts,
		MaxDuration: cfg.PollMaxDuration,
		Observer:    cfg.PollObserver,
	}, cfg.Logger)

	for _, p := range cfg.Plugins {
		c.insert(p)
	}
	if !cfg.DisableDefaultPlugins && !c.hasPlugin(plugin.EventBridgeName) {
		c.Use(plugin.NewEventBridgePlugin())
	} else {
		c.rebuildDriver()
	}
	return c
}

// Register 注册策略，同名策略会被覆盖
func (c *PaymentContext) Register(s strategy.Strategy) *PaymentContext {
	c.mu.Lock()
	_, exists := c.strategies[s.Name()]
	c.strategies[s.Name()] = s
	c.mu.Unlock()

	if exists {
		c.log.Warn("strategy overwritten", "strategy", s.Name())
	}
	c.log.Debug("strategy registered", "strategy", s.Name())
	return c
}

// Use 注册插件：pre 插入头部，其余追加到末尾，不按名称去重
func (c *PaymentContext) Use(p *plugin.Plugin) *PaymentContext {
	c.insert(p)
	c.rebuildDriver()
	return c
}

func (c *PaymentContext) insert(p *plugin.Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Enforce == plugin.EnforcePre {
		c.plugins = append([]*plugin.Plugin{p}, c.plugins...)
	} else {
		c.plugins = append(c.plugins, p)
	}
}

// Invokers 当前实例的执行器注册表
func (c *PaymentContext) Invokers() *invoker.Factory {
	return c.invokers
}

// Plugins 当前插件顺序
func (c *PaymentContext) Plugins() []*plugin.Plugin {
	return c.currentDriver().Plugins()
}

func (c *PaymentContext) hasPlugin(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.plugins {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (c *PaymentContext) rebuildDriver() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver = plugin.NewDriver(c.plugins, plugin.DriverOptions{
		Logger:   c.log,
		Debug:    c.cfg.Debug,
		Observer: c.cfg.HookObserver,
	})
}

func (c *PaymentContext) currentDriver() *plugin.Driver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driver
}

func (c *PaymentContext) strategy(name string) (strategy.Strategy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.strategies[name]
	return s, ok
}

func (c *PaymentContext) invokerType(channel string) string {
	if c.cfg.InvokerResolver != nil {
		return c.cfg.InvokerResolver(channel)
	}
	return c.cfg.InvokerType
}

// Execute 执行一次支付尝试
//
// 依次经过 onBeforePay、onBeforeSign、onAfterSign、onBeforeInvoke 检查点，
// 然后 Prepare、Invoke、onAfterInvoke、Process，最后结算。
// 任何一步失败都会归一化为 PayError，经过 onFail 后返回。
// onCompleted 无论成功失败都会执行。
func (c *PaymentContext) Execute(ctx context.Context, strategyName string, params model.PayParams) (*model.PayResult, error) {
	s, ok := c.strategy(strategyName)
	if !ok {
		return nil, payerr.New(payerr.InvalidConfig, "strategy %q not registered", strategyName)
	}

	c.store.Patch(func(st *model.PaymentState) {
		st.Loading = true
		st.Status = model.StatusIdle
		st.Error = nil
		st.Result = nil
	})

	pc := model.NewContextState(hostView{c}, strategyName, params, nil)
	driver := c.currentDriver()

	defer func() {
		if err := driver.Implant(context.WithoutCancel(ctx), plugin.HookCompleted, pc); err != nil {
			c.log.Error("onCompleted failed", "attempt_id", pc.AttemptID, "error", err)
		}
	}()

	result, err := c.run(ctx, driver, s, pc)
	if err != nil {
		perr := payerr.Normalize(err)
		if ferr := driver.Implant(context.WithoutCancel(ctx), plugin.HookFail, pc, nil, perr); ferr != nil {
			c.log.Error("onFail failed", "attempt_id", pc.AttemptID, "error", ferr)
		}
		c.store.Patch(func(st *model.PaymentState) {
			st.Status = model.StatusFail
			st.Error = perr
			st.Loading = false
			st.PreData = pc.Snapshot()
		})
		c.log.Warn("payment attempt failed", "strategy", strategyName, "order_id", params.OrderID, "error", perr)
		return nil, perr
	}

	if result.Status == model.StatusPending && pc.Params.AutoPoll {
		orderID := result.TransactionID
		if orderID == "" {
			orderID = pc.Params.OrderID
		}
		c.scheduleAutoPoll(strategyName, orderID)
	}
	return result, nil
}

func (c *PaymentContext) run(ctx context.Context, driver *plugin.Driver, s strategy.Strategy, pc *model.ContextState) (*model.PayResult, error) {
	for _, hook := range []plugin.HookName{
		plugin.HookBeforePay,
		plugin.HookBeforeSign,
		plugin.HookAfterSign,
		plugin.HookBeforeInvoke,
	} {
		if err := driver.Implant(ctx, hook, pc); err != nil {
			return nil, err
		}
	}

	payload, err := s.Prepare(ctx, pc.Params, c.http)
	if err != nil {
		return nil, err
	}
	pc.ProviderPayload = payload

	inv, err := c.invokers.Create(c.invokerType(pc.StrategyName), pc.StrategyName, c.log)
	if err != nil {
		return nil, err
	}
	raw, err := inv.Invoke(ctx, payload)
	if err != nil {
		return nil, err
	}
	pc.APIResponse = raw

	if err := driver.Implant(ctx, plugin.HookAfterInvoke, pc, raw); err != nil {
		return nil, err
	}

	result, err := s.Process(raw)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, payerr.New(payerr.InvokeFailed, "strategy %s returned no result", pc.StrategyName)
	}

	if err := c.settle(ctx, driver, pc, result, c.alive); err != nil {
		return nil, err
	}
	return result, nil
}

// settle 结算：唯一会改变持久状态中 status/result 的路径
//
// 钩子返回后再检查 live，实例已销毁或轮询会话已被停止时丢弃本次结果。
func (c *PaymentContext) settle(ctx context.Context, driver *plugin.Driver, pc *model.ContextState, result *model.PayResult, live func() bool) error {
	pc.Result = result
	pc.CurrentStatus = result.Status

	switch {
	case result.Status == model.StatusSuccess:
		if err := driver.Implant(ctx, plugin.HookSuccess, pc, result); err != nil {
			return err
		}
		if !live() {
			c.dropStale(pc, result)
			return nil
		}
		c.bus.Emit(model.EventSuccess, result)
	case result.Status.IsInFlight():
		if err := driver.Implant(ctx, plugin.HookStateChange, pc, result.Status); err != nil {
			return err
		}
		if !live() {
			c.dropStale(pc, result)
			return nil
		}
		c.bus.Emit(model.EventStatusChange, model.StatusChange{Status: result.Status, Result: result})
	default:
		if err := driver.Implant(ctx, plugin.HookFail, pc, result, nil); err != nil {
			return err
		}
		if !live() {
			c.dropStale(pc, result)
			return nil
		}
		if result.Status == model.StatusCancel {
			c.bus.Emit(model.EventCancel, result)
		} else {
			c.bus.Emit(model.EventFail, result)
		}
	}

	c.store.Patch(func(st *model.PaymentState) {
		st.Status = result.Status
		st.Loading = false
		st.Result = result
		st.PreData = pc.Snapshot()
	})
	return nil
}

func (c *PaymentContext) alive() bool { return !c.destroyed.Load() }

func (c *PaymentContext) dropStale(pc *model.ContextState, result *model.PayResult) {
	c.log.Debug("stale result dropped", "attempt_id", pc.AttemptID, "order_id", pc.Params.OrderID, "status", string(result.Status))
}

func (c *PaymentContext) scheduleAutoPoll(strategyName, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoPoll != nil {
		c.autoPoll.Stop()
	}
	c.autoPoll = time.AfterFunc(c.cfg.AutoPollDelay, func() {
		if c.destroyed.Load() {
			return
		}
		c.log.Info("auto start polling", "strategy", strategyName, "order_id", orderID)
		if err := c.StartPolling(strategyName, orderID); err != nil {
			c.log.Warn("auto polling not started", "strategy", strategyName, "error", err)
		}
	})
}

func (c *PaymentContext) cancelAutoPoll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoPoll != nil {
		c.autoPoll.Stop()
		c.autoPoll = nil
	}
}

// StartPolling 启动查单轮询，已有会话会先被停止
//
// 新建的上下文会带上上一轮尝试的 PreData，插件在 Execute 期间暂存的数据可以在轮询中读取。
func (c *PaymentContext) StartPolling(strategyName, orderID string) error {
	if c.destroyed.Load() {
		return payerr.New(payerr.InvalidConfig, "payment context destroyed")
	}
	s, ok := c.strategy(strategyName)
	if !ok {
		return payerr.New(payerr.InvalidConfig, "strategy %q not registered", strategyName)
	}
	if orderID == "" {
		return payerr.New(payerr.ParamInvalid, "order id is required for polling")
	}

	gen := c.pollGen.Add(1)
	live := func() bool { return c.alive() && c.pollGen.Load() == gen }

	pc := model.NewContextState(hostView{c}, strategyName, model.PayParams{OrderID: orderID}, c.store.GetState().PreData)
	pc.CurrentStatus = model.StatusPending
	driver := c.currentDriver()
	bg := context.Background()

	settle := func(res *model.PayResult) {
		if err := c.settle(bg, driver, pc, res, live); err != nil {
			c.log.Error("polling settlement failed", "order_id", orderID, "status", string(res.Status), "error", err)
		}
	}

	c.poller.Start(func(ctx context.Context) (*model.PayResult, error) {
		return s.GetPaySt(ctx, orderID)
	}, polling.Callbacks{
		OnStatusChange: func(res *model.PayResult) {
			settle(res.MergeOnto(c.store.GetState().Result))
		},
		OnSuccess: settle,
		OnFail:    settle,
		OnFinished: func() {
			if err := driver.Implant(bg, plugin.HookCompleted, pc); err != nil {
				c.log.Error("onCompleted failed", "attempt_id", pc.AttemptID, "error", err)
			}
			if live() {
				c.store.Patch(func(st *model.PaymentState) { st.Loading = false })
			}
		},
	}, c.cfg.PollInterval)

	// Destroy 可能在上面的检查之后才完成
	if c.destroyed.Load() {
		c.poller.Stop()
		return payerr.New(payerr.InvalidConfig, "payment context destroyed")
	}

	c.log.Debug("polling started", "strategy", strategyName, "order_id", orderID)
	return nil
}

// StopPolling 停止轮询，同时取消尚未触发的自动轮询
func (c *PaymentContext) StopPolling() {
	c.cancelAutoPoll()
	c.pollGen.Add(1)
	c.poller.Stop()
}

// Polling 是否正在轮询
func (c *PaymentContext) Polling() bool {
	return c.poller.Running()
}

// Reset 将持久状态恢复为 idle
func (c *PaymentContext) Reset() {
	c.store.Patch(func(st *model.PaymentState) {
		st.Status = model.StatusIdle
		st.Loading = false
		st.Result = nil
		st.Error = nil
	})
}

// Destroy 停止轮询并清空订阅、策略、插件，可重复调用
func (c *PaymentContext) Destroy() {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}

	c.StopPolling()
	c.bus.Clear()
	c.store.Destroy()

	c.mu.Lock()
	c.strategies = make(map[string]strategy.Strategy)
	c.plugins = nil
	c.mu.Unlock()
	c.rebuildDriver()

	c.log.Debug("payment context destroyed")
}

// Destroyed 是否已销毁
func (c *PaymentContext) Destroyed() bool {
	return c.destroyed.Load()
}

// State 当前持久状态
func (c *PaymentContext) State() model.PaymentState {
	st := c.store.GetState()
	st.PreData = maps.Clone(st.PreData)
	return st
}

// Subscribe 订阅状态变化
func (c *PaymentContext) Subscribe(fn func(model.PaymentState)) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

func (c *PaymentContext) On(event string, fn eventbus.Listener) eventbus.Subscription {
	return c.bus.On(event, fn)
}

func (c *PaymentContext) Once(event string, fn eventbus.Listener) eventbus.Subscription {
	return c.bus.Once(event, fn)
}

func (c *PaymentContext) Off(sub eventbus.Subscription) {
	c.bus.Off(sub)
}

func (c *PaymentContext) Emit(event string, payload any) {
	c.bus.Emit(event, payload)
}
