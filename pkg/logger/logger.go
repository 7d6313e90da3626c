package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局 zap 日志实例，Init 之前为 Nop
var Log = zap.NewNop()

// Logger 收银台核心使用的日志接口，参数为交替的 key/value
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Init 初始化全局日志
// debug 模式输出 Debug 及以上级别，否则只输出 Warn 及以上
func Init(debug bool) error {
	l, err := build(debug)
	if err != nil {
		return err
	}
	Log = l
	return nil
}

func build(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New 创建一个独立的 Logger
func New(debug bool) (Logger, error) {
	l, err := build(debug)
	if err != nil {
		return nil, err
	}
	return FromZap(l), nil
}

// FromZap 将 zap.Logger 包装为 Logger
func FromZap(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewNop 丢弃所有日志
func NewNop() Logger {
	return FromZap(zap.NewNop())
}

// Named 返回带名称前缀的子日志
func Named(l Logger, name string) Logger {
	if zl, ok := l.(*zapLogger); ok {
		return &zapLogger{s: zl.s.Named(name)}
	}
	return l
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
