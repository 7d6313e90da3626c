package payment

import (
	"context"

	"cashier/internal/domain/payment/handler"
	"cashier/internal/domain/payment/invoker"
	"cashier/internal/domain/payment/plugin"
	"cashier/internal/domain/payment/repository"
	"cashier/internal/domain/payment/service"
	"cashier/internal/domain/payment/strategy"
	"cashier/internal/pkg/config"
	"cashier/internal/pkg/middleware"
	"cashier/internal/pkg/registry"
	"cashier/internal/pkg/worker"
	"cashier/pkg/httpclient"
	"cashier/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RoleAdmin 可查询支付流水的角色
const RoleAdmin = "admin"

// PaymentModule 收银模块
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	return 20
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config
	log := ctx.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = logger.Named(log, "payment")

	// 1. 共享依赖：HTTP 客户端、执行器注册表、会话级之外的插件
	httpClient := httpclient.New(httpClientConfig(cfg.HTTPClient), log)

	invokers := invoker.NewFactory()
	web := invoker.NewWebHandlers()
	invokers.Register(invoker.TypeWeb, web.Constructor(), web.Matcher(), 10)
	invokers.Register(invoker.TypeMiniProgramJump, invoker.NewJumpConstructor(clientNavigator), invoker.JumpMatcher, 0)
	// 服务端没有原生支付桥，只有显式指定时才会选中并返回 NOT_SUPPORTED
	invokers.Register(invoker.TypeBridge, invoker.NewBridgeConstructor(nil), func(string) bool { return false }, 0)
	invokers.Register(invoker.TypeServer, invoker.NewServerInvoker, invoker.ServerMatcher, -100)

	var plugins []*plugin.Plugin
	if ctx.Metrics != nil {
		plugins = append(plugins, plugin.NewMetricsPlugin(ctx.Metrics))
	}
	if cfg.Guard.Enabled && ctx.Redis != nil {
		plugins = append(plugins, plugin.NewGuardPlugin(ctx.Redis, plugin.GuardConfig{
			Prefix: cfg.Guard.Prefix,
			TTL:    cfg.Guard.TTL,
		}))
	}

	var journal repository.JournalRepository
	if cfg.Journal.Enabled && ctx.DB != nil {
		journal = repository.NewJournalRepository(ctx.DB)

		var jm worker.Metrics
		if ctx.Metrics != nil {
			jm = ctx.Metrics
		}
		pool := worker.NewWorkerPool(journal, worker.Options{
			WorkerNum:    cfg.Journal.Workers,
			BufferSize:   cfg.Journal.BufferSize,
			MaxRetry:     cfg.Journal.MaxRetry,
			RetryBackoff: cfg.Journal.RetryBackoff,
		}, jm, log)
		pool.Start()
		ctx.OnShutdown(pool.Stop)

		plugins = append(plugins, plugin.NewJournalPlugin(pool))
	}

	strategies := buildStrategies(cfg.Strategies, httpClient, log)

	// 2. 每个会话独立的 PaymentContext
	build := func() *service.PaymentContext {
		pcfg := service.Config{
			Debug:           cfg.App.Debug,
			HTTP:            httpClient,
			Logger:          log,
			InvokerType:     cfg.Cashier.InvokerType,
			Invokers:        invokers,
			Plugins:         plugins,
			PollInterval:    cfg.Cashier.PollInterval,
			AutoPollDelay:   cfg.Cashier.AutoPollDelay,
			PollMaxAttempts: cfg.Cashier.PollMaxAttempts,
			PollMaxDuration: cfg.Cashier.PollMaxDuration,
		}
		if ctx.Metrics != nil {
			pcfg.HookObserver = ctx.Metrics
			pcfg.PollObserver = ctx.Metrics
		}
		pc := service.NewPaymentContext(pcfg)
		for _, s := range strategies {
			pc.Register(s)
		}
		return pc
	}

	sessions := service.NewSessionManager(build, cfg.Cashier.SessionTTL, log)
	if ctx.Metrics != nil {
		sessions.SetGauge(ctx.Metrics)
	}
	sweepCtx, cancel := context.WithCancel(context.Background())
	sessions.StartSweeper(sweepCtx, cfg.Cashier.SweepInterval)
	ctx.OnShutdown(func() {
		cancel()
		sessions.Close()
	})

	h := handler.NewPaymentHandler(sessions, journal)

	// 3. 路由注册
	setupRoutes(ctx.Router, h, cfg.JWT.Secret)

	log.Info("payment module initialized",
		"strategies", len(strategies),
		"plugins", len(plugins),
		"invokers", invokers.Types(),
	)
	return nil
}

// clientNavigator 服务端无法直接跳转，把跳转参数原样交给前端执行
func clientNavigator(_ context.Context, req invoker.JumpRequest) (map[string]any, error) {
	return map[string]any{
		"targetAppId": req.TargetAppID,
		"path":        req.Path,
		"extraData":   req.ExtraData,
		"envVersion":  req.EnvVersion,
	}, nil
}

func buildStrategies(cfg config.StrategiesConfig, http strategy.HTTPClient, log logger.Logger) []strategy.Strategy {
	var list []strategy.Strategy
	if cfg.Mock.Enabled {
		list = append(list, strategy.NewMockStrategy(strategy.MockConfig{
			Scenario:      strategy.MockScenario(cfg.Mock.Scenario),
			Latency:       cfg.Mock.Latency,
			PendingRounds: cfg.Mock.PendingRounds,
		}))
	}

	// 直连 SDK 优先，初始化失败时退回远程签名
	if s := wechatSDKStrategy(cfg.WechatPay, log); s != nil {
		list = append(list, s)
	} else if cfg.Wechat.Enabled() {
		list = append(list, strategy.NewWechatStrategy(cfg.Wechat.SignURL, cfg.Wechat.QueryURL, http))
	}
	if s := alipaySDKStrategy(cfg.AlipaySDK, log); s != nil {
		list = append(list, s)
	} else if cfg.Alipay.Enabled() {
		list = append(list, strategy.NewAlipayStrategy(cfg.Alipay.SignURL, cfg.Alipay.QueryURL, http))
	}
	if len(list) == 0 {
		log.Warn("no payment strategy enabled, every payment will fail with INVALID_CONFIG")
	}
	return list
}

func wechatSDKStrategy(cfg config.WechatPayConfig, log logger.Logger) strategy.Strategy {
	if !cfg.Enabled() {
		return nil
	}
	s, err := strategy.NewWechatSDKStrategy(context.Background(), strategy.WechatSDKConfig{
		AppID:                cfg.AppID,
		MchID:                cfg.MchID,
		MchCertificateSerial: cfg.MchCertificateSerial,
		MchPrivateKey:        cfg.MchPrivateKey,
		APIv3Key:             cfg.APIv3Key,
		NotifyURL:            cfg.NotifyURL,
	})
	if err != nil {
		log.Error("failed to init wechat pay strategy", "error", err)
		return nil
	}
	return s
}

func alipaySDKStrategy(cfg config.AlipayConfig, log logger.Logger) strategy.Strategy {
	if !cfg.Enabled() {
		return nil
	}
	s, err := strategy.NewAlipaySDKStrategy(strategy.AlipaySDKConfig{
		AppID:        cfg.AppID,
		PrivateKey:   cfg.PrivateKey,
		PublicKey:    cfg.PublicKey,
		IsProduction: cfg.IsProduction,
		NotifyURL:    cfg.NotifyURL,
		ReturnURL:    cfg.ReturnURL,
	})
	if err != nil {
		log.Error("failed to init alipay strategy", "error", err)
		return nil
	}
	return s
}

func httpClientConfig(c config.HTTPClientConfig) httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.BaseURL = c.BaseURL
	if c.Timeout > 0 {
		hc.Timeout = c.Timeout
	}
	if c.MaxRetries > 0 {
		hc.MaxRetries = c.MaxRetries
	}
	if c.BreakerTimeout > 0 {
		hc.Breaker.Timeout = c.BreakerTimeout
	}
	if c.BreakerMinRequests > 0 {
		hc.Breaker.MinRequests = c.BreakerMinRequests
	}
	if c.BreakerFailureRatio > 0 {
		hc.Breaker.FailureRatio = c.BreakerFailureRatio
	}
	return hc
}

func setupRoutes(r *gin.Engine, h *handler.PaymentHandler, jwtSecret string) {
	g := r.Group("/api/v1/payment")
	journal := []gin.HandlerFunc{h.ListJournal}
	if jwtSecret != "" {
		g.Use(middleware.AuthMiddleware(jwtSecret))
		// 流水涉及所有订单，仅管理员可查
		journal = append([]gin.HandlerFunc{middleware.RoleMiddleware(RoleAdmin)}, journal...)
	}

	sessions := g.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetState)
		sessions.DELETE("/:id", h.DestroySession)
		sessions.POST("/:id/pay", h.Pay)
		sessions.POST("/:id/polling", h.StartPolling)
		sessions.DELETE("/:id/polling", h.StopPolling)
		sessions.POST("/:id/reset", h.Reset)
	}

	g.GET("/journal/:order_id", journal...)
}
