package invoker

import (
	"context"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/pkg/logger"
)

// TypeMiniProgramJump 跳转第三方小程序收银台
const TypeMiniProgramJump = "mini-program-jump"

// JumpRequest 跳转参数
type JumpRequest struct {
	TargetAppID string
	Path        string
	ExtraData   map[string]any
	EnvVersion  string
}

// Navigator 执行小程序跳转
type Navigator func(ctx context.Context, req JumpRequest) (map[string]any, error)

// JumpInvoker 跳转成功仅代表用户进入了对方收银台，结果为 pending
type JumpInvoker struct {
	channel  string
	navigate Navigator
	log      logger.Logger
}

func NewJumpConstructor(navigate Navigator) Constructor {
	return func(channel string, log logger.Logger) Invoker {
		return &JumpInvoker{channel: channel, navigate: navigate, log: log}
	}
}

// JumpMatcher 跳转只能显式指定
func JumpMatcher(string) bool { return false }

func (i *JumpInvoker) Invoke(ctx context.Context, payload any) (any, error) {
	data, _ := payload.(map[string]any)

	req := JumpRequest{EnvVersion: "release"}
	req.TargetAppID, _ = data["targetAppId"].(string)
	req.Path, _ = data["path"].(string)
	req.ExtraData, _ = data["extraData"].(map[string]any)
	if v, ok := data["envVersion"].(string); ok && v != "" {
		req.EnvVersion = v
	}

	if req.TargetAppID == "" {
		return nil, payerr.New(payerr.ParamInvalid, "targetAppId is required for mini program jump")
	}
	if i.navigate == nil {
		return nil, payerr.New(payerr.NotSupported, "current runtime cannot navigate to mini program")
	}

	res, err := i.navigate(ctx, req)
	if err != nil {
		return nil, payerr.Wrap(payerr.InvokeFailed, err, "jump to %s failed", req.TargetAppID)
	}

	i.log.Info("mini program jump success", "target", req.TargetAppID)
	return &model.PayResult{
		Status:  model.StatusPending,
		Message: "jumped to external mini program",
		Raw:     res,
	}, nil
}
