package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 鉴权错误 100xx
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 支付模块错误 300xx，与支付错误分类一一对应
	ErrPayParamInvalid     = 30001
	ErrPayInvalidConfig    = 30002
	ErrPayNotSupported     = 30003
	ErrPayProviderInternal = 30004
	ErrPayInvokeFailed     = 30005
	ErrPayPluginError      = 30006
	ErrPayPluginInterrupt  = 30007
	ErrPayNoInvokerFound   = 30008
	ErrPayUnknown          = 30009
	ErrSessionNotFound     = 30010

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
