package model

// 生命周期事件
const (
	EventBeforePay    = "beforePay"    // payload: PayParams
	EventPayStart     = "payStart"     // payload: PayStart
	EventSuccess      = "success"      // payload: *PayResult
	EventFail         = "fail"         // payload: *PayResult
	EventCancel       = "cancel"       // payload: *PayResult
	EventStatusChange = "statusChange" // payload: StatusChange
)

// PayStart payStart 事件载荷
type PayStart struct {
	StrategyName string `json:"strategy_name"`
}

// StatusChange statusChange 事件载荷
type StatusChange struct {
	Status Status     `json:"status"`
	Result *PayResult `json:"result,omitempty"`
}
