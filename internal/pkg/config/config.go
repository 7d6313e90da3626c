package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	App        AppConfig        `mapstructure:"app"`
	Cashier    CashierConfig    `mapstructure:"cashier"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Journal    JournalConfig    `mapstructure:"journal"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
}

type ServerConfig struct {
	Port      string          `mapstructure:"port"`
	Mode      string          `mapstructure:"mode"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 单 IP 限流
type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// DSN postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode, d.TimeZone)
}

// URL migrate 使用的连接地址
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig Secret 为空时支付接口不鉴权
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// CashierConfig 支付编排
type CashierConfig struct {
	// InvokerType 固定执行器类型，auto 表示自动探测
	InvokerType     string        `mapstructure:"invoker_type"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	AutoPollDelay   time.Duration `mapstructure:"auto_poll_delay"`
	PollMaxAttempts int           `mapstructure:"poll_max_attempts"`
	PollMaxDuration time.Duration `mapstructure:"poll_max_duration"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// GuardConfig 重复支付保护，依赖 redis
type GuardConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// JournalConfig 支付流水，依赖数据库
type JournalConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Workers      int           `mapstructure:"workers"`
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxRetry     int           `mapstructure:"max_retry"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type HTTPClientConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
}

type StrategiesConfig struct {
	Mock   MockStrategyConfig   `mapstructure:"mock"`
	Wechat RemoteStrategyConfig `mapstructure:"wechat"`
	Alipay RemoteStrategyConfig `mapstructure:"alipay"`

	// WechatPay / AlipaySDK 直连支付平台，配置后替代同名的远程签名策略
	WechatPay WechatPayConfig `mapstructure:"wechat_pay"`
	AlipaySDK AlipayConfig    `mapstructure:"alipay_sdk"`
}

type MockStrategyConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Scenario      string        `mapstructure:"scenario"`
	Latency       time.Duration `mapstructure:"latency"`
	PendingRounds int           `mapstructure:"pending_rounds"`
}

// RemoteStrategyConfig 商户后端签名 / 查单地址，SignURL 为空表示不启用
type RemoteStrategyConfig struct {
	SignURL  string `mapstructure:"sign_url"`
	QueryURL string `mapstructure:"query_url"`
}

// Enabled 是否配置了签名地址
func (r RemoteStrategyConfig) Enabled() bool {
	return r.SignURL != ""
}

// WechatPayConfig 微信支付 APIv3 商户参数，MchID 为空表示不启用
type WechatPayConfig struct {
	AppID                string `mapstructure:"app_id"`
	MchID                string `mapstructure:"mch_id"`
	MchCertificateSerial string `mapstructure:"mch_certificate_serial"`
	MchPrivateKey        string `mapstructure:"mch_private_key"`
	APIv3Key             string `mapstructure:"api_v3_key"`
	NotifyURL            string `mapstructure:"notify_url"`
}

func (w WechatPayConfig) Enabled() bool {
	return w.MchID != ""
}

// AlipayConfig 支付宝开放平台参数，AppID 为空表示不启用
type AlipayConfig struct {
	AppID        string `mapstructure:"app_id"`
	PrivateKey   string `mapstructure:"private_key"`
	PublicKey    string `mapstructure:"public_key"`
	IsProduction bool   `mapstructure:"is_production"`
	NotifyURL    string `mapstructure:"notify_url"`
	ReturnURL    string `mapstructure:"return_url"`
}

func (a AlipayConfig) Enabled() bool {
	return a.AppID != ""
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 流水依赖数据库
	if c.Journal.Enabled && (c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "") {
		return errors.New("journal is enabled but database configuration is incomplete")
	}

	// 防重依赖 redis
	if c.Guard.Enabled && c.Redis.Addr == "" {
		return errors.New("guard is enabled but redis address is missing")
	}

	if c.Cashier.PollMaxAttempts < 0 {
		return errors.New("cashier.poll_max_attempts must not be negative")
	}

	for name, s := range map[string]RemoteStrategyConfig{"wechat": c.Strategies.Wechat, "alipay": c.Strategies.Alipay} {
		if s.Enabled() && s.QueryURL == "" {
			return fmt.Errorf("strategies.%s.query_url is required when sign_url is set", name)
		}
	}

	if w := c.Strategies.WechatPay; w.Enabled() &&
		(w.AppID == "" || w.MchCertificateSerial == "" || w.MchPrivateKey == "" || w.APIv3Key == "" || w.NotifyURL == "") {
		return errors.New("strategies.wechat_pay is incomplete: app_id, mch_certificate_serial, mch_private_key, api_v3_key and notify_url are required")
	}
	if a := c.Strategies.AlipaySDK; a.Enabled() && (a.PrivateKey == "" || a.PublicKey == "" || a.NotifyURL == "") {
		return errors.New("strategies.alipay_sdk is incomplete: private_key, public_key and notify_url are required")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.rate_limit.qps", 100)
	v.SetDefault("server.rate_limit.burst", 200)
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "Asia/Shanghai")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)

	v.SetDefault("cashier.invoker_type", "auto")
	v.SetDefault("cashier.poll_interval", 3*time.Second)
	v.SetDefault("cashier.auto_poll_delay", 3*time.Second)
	v.SetDefault("cashier.poll_max_attempts", 100)
	v.SetDefault("cashier.poll_max_duration", 10*time.Minute)
	v.SetDefault("cashier.session_ttl", 30*time.Minute)
	v.SetDefault("cashier.sweep_interval", time.Minute)

	v.SetDefault("guard.prefix", "cashier:guard:")
	v.SetDefault("guard.ttl", 5*time.Minute)

	v.SetDefault("journal.workers", 2)
	v.SetDefault("journal.buffer_size", 256)
	v.SetDefault("journal.max_retry", 3)
	v.SetDefault("journal.retry_backoff", time.Second)

	v.SetDefault("http_client.timeout", 10*time.Second)
	v.SetDefault("http_client.max_retries", 2)
	v.SetDefault("http_client.breaker_timeout", 30*time.Second)
	v.SetDefault("http_client.breaker_min_requests", 5)
	v.SetDefault("http_client.breaker_failure_ratio", 0.5)

	v.SetDefault("strategies.mock.enabled", true)
	v.SetDefault("strategies.mock.scenario", "success")
	v.SetDefault("strategies.mock.latency", 200*time.Millisecond)
	v.SetDefault("strategies.mock.pending_rounds", 2)
}

// Load 从指定目录读取配置，目录中没有配置文件时只使用默认值和环境变量
func Load(paths ...string) (*Config, error) {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// 绑定环境变量，例如 CASHIER_POLL_INTERVAL、REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 手动覆盖，以防 viper 无法正确解析环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig 加载配置到 GlobalConfig
func LoadConfig() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	GlobalConfig = *cfg
	return nil
}
