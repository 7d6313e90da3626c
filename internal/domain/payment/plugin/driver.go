package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"
)

// Observer 钩子执行观测，err 为钩子原始错误
type Observer interface {
	ObserveHook(plugin, hook string, elapsed time.Duration, err error)
}

// DriverOptions 驱动配置
type DriverOptions struct {
	Logger logger.Logger
	// Debug 开启后记录每个插件对上下文的修改
	Debug    bool
	Observer Observer
}

// Driver 按顺序在检查点上执行插件钩子
type Driver struct {
	plugins []*Plugin
	log     logger.Logger
	debug   bool
	obs     Observer
}

func NewDriver(plugins []*Plugin, opts DriverOptions) *Driver {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	list := make([]*Plugin, len(plugins))
	copy(list, plugins)
	return &Driver{plugins: list, log: opts.Logger, debug: opts.Debug, obs: opts.Observer}
}

// Plugins 返回插件列表副本
func (d *Driver) Plugins() []*Plugin {
	list := make([]*Plugin, len(d.plugins))
	copy(list, d.plugins)
	return list
}

// Implant 在检查点 hook 上依次执行所有插件
//
// args 约定：onAfterInvoke(raw)、onStateChange(model.Status)、onSuccess(*model.PayResult)、
// onFail(*model.PayResult, error)。
// 插件设置中断标志后返回 PluginInterrupt，无论该插件是否关键。
func (d *Driver) Implant(ctx context.Context, hook HookName, pc *model.ContextState, args ...any) error {
	for _, p := range d.plugins {
		// 钩子写入工作副本，按时返回才合并回 pc
		work := pc
		if pc != nil {
			work = pc.Fork()
		}
		fn := p.bind(hook, work, args)
		if fn == nil {
			continue
		}

		var before snapshot
		if d.debug && pc != nil {
			before = takeSnapshot(pc)
		}

		start := time.Now()
		returned, err := d.run(ctx, p, fn)
		if returned && pc != nil {
			pc.Merge(work)
		}
		if d.obs != nil {
			d.obs.ObserveHook(p.Name, string(hook), time.Since(start), err)
		}
		if d.debug && pc != nil {
			d.audit(p.Name, hook, before, takeSnapshot(pc))
		}

		if err != nil {
			if p.critical() {
				return pluginFailure(p.Name, hook, err)
			}
			d.log.Warn("non-critical plugin failed, error ignored", "plugin", p.Name, "hook", string(hook), "error", err)
		}

		if pc != nil && pc.Aborted() {
			e := payerr.New(payerr.PluginInterrupt, "aborted by plugin %s", p.Name)
			if reason := pc.AbortReason(); reason != "" {
				e.Message += ": " + reason
			}
			e.Plugin, e.Hook = p.Name, string(hook)
			return e
		}
	}
	return nil
}

// pluginFailure 插件主动返回的 PayError 保留原分类，其余包装为 PluginError
func pluginFailure(name string, hook HookName, err error) error {
	var pe *payerr.PayError
	if errors.As(err, &pe) {
		cp := *pe
		if cp.Plugin == "" {
			cp.Plugin, cp.Hook = name, string(hook)
		}
		return &cp
	}
	return &payerr.PayError{
		Code:    payerr.PluginError,
		Message: fmt.Sprintf("critical plugin %s failed in %s", name, hook),
		Plugin:  name,
		Hook:    string(hook),
		Err:     err,
	}
}

// run 在独立 goroutine 中执行钩子，与超时和 ctx 竞争
// returned 为 false 表示钩子仍在运行，其工作副本不可再读取
func (d *Driver) run(ctx context.Context, p *Plugin, fn func(context.Context) error) (returned bool, err error) {
	timeout := p.timeout()
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("plugin %s panicked: %v", p.Name, r)
			}
		}()
		done <- fn(hctx)
	}()

	select {
	case err := <-done:
		return true, err
	case <-hctx.Done():
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, fmt.Errorf("plugin %s timed out after %s", p.Name, timeout)
	}
}
