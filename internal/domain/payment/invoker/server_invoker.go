package invoker

import (
	"context"

	"cashier/pkg/logger"
)

// TypeServer 服务端直连，签名结果原样交给策略归一化
const TypeServer = "server"

type ServerInvoker struct {
	channel string
}

func NewServerInvoker(channel string, _ logger.Logger) Invoker {
	return &ServerInvoker{channel: channel}
}

// ServerMatcher 兜底，任何渠道都匹配
func ServerMatcher(string) bool { return true }

func (i *ServerInvoker) Invoke(_ context.Context, payload any) (any, error) {
	return payload, nil
}
