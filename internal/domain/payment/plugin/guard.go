package plugin

import (
	"context"
	"fmt"
	"time"

	"cashier/internal/domain/payment/model"

	"github.com/redis/go-redis/v9"
)

// GuardConfig 重复支付防护配置
type GuardConfig struct {
	Prefix string
	TTL    time.Duration
}

// 只有持有者才能释放
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewGuardPlugin 同一订单同时只允许一次支付尝试
// 锁被占用时设置中断标志，流程以 PluginInterrupt 结束；Redis 不可用时作为关键插件失败
func NewGuardPlugin(rdb redis.Cmdable, cfg GuardConfig) *Plugin {
	if cfg.Prefix == "" {
		cfg.Prefix = "cashier:guard:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	key := func(pc *model.ContextState) string { return cfg.Prefix + pc.Params.OrderID }

	return &Plugin{
		Name:    "guard",
		Enforce: EnforcePre,
		Timeout: 3 * time.Second,
		OnBeforePay: func(ctx context.Context, pc *model.ContextState) error {
			if pc.Params.OrderID == "" {
				return nil
			}
			ok, err := rdb.SetNX(ctx, key(pc), pc.AttemptID, cfg.TTL).Result()
			if err != nil {
				return fmt.Errorf("acquire guard for order %s: %w", pc.Params.OrderID, err)
			}
			if !ok {
				pc.Abort(fmt.Sprintf("another attempt for order %s is in flight", pc.Params.OrderID))
			}
			return nil
		},
		OnCompleted: func(ctx context.Context, pc *model.ContextState) error {
			if pc.Params.OrderID == "" {
				return nil
			}
			if err := releaseScript.Run(ctx, rdb, []string{key(pc)}, pc.AttemptID).Err(); err != nil {
				return fmt.Errorf("release guard for order %s: %w", pc.Params.OrderID, err)
			}
			return nil
		},
	}
}
