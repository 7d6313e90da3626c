package registry

import (
	"fmt"
	"sort"
	"sync"

	"cashier/internal/pkg/config"
	"cashier/pkg/logger"
	"cashier/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
// DB / Redis 未配置时为 nil，模块需要自行降级
type ModuleContext struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Router  *gin.Engine
	Logger  logger.Logger
	Metrics *metrics.MetricsCollector

	closers []func()
}

// OnShutdown 注册关闭时执行的清理函数，按注册的逆序执行
func (c *ModuleContext) OnShutdown(fn func()) {
	c.closers = append(c.closers, fn)
}

// Shutdown 执行清理函数
func (c *ModuleContext) Shutdown() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

var (
	mu             sync.Mutex
	moduleRegistry = make(map[string]Module)
)

// Register 注册模块
func Register(module Module) {
	mu.Lock()
	defer mu.Unlock()
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]Module, len(moduleRegistry))
	for k, v := range moduleRegistry {
		out[k] = v
	}
	return out
}

// Reset 清空注册表，仅用于测试
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	moduleRegistry = make(map[string]Module)
}

// InitModules 按优先级初始化所有模块，优先级相同时按名称排序
func InitModules(ctx *ModuleContext) error {
	mods := GetModules()
	modules := make([]Module, 0, len(mods))
	for _, m := range mods {
		modules = append(modules, m)
	}

	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})

	// 按顺序初始化
	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("module initialized", "module", module.Name())
		}
	}
	return nil
}
