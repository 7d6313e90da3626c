package model

import "maps"

// PaymentState 每个 PaymentContext 持有一份的持久状态，供 UI 或接口读取
type PaymentState struct {
	Status  Status
	Result  *PayResult
	Loading bool
	Error   error
	// PreData 最近一次尝试的插件共享数据，轮询时恢复
	PreData map[string]any
}

// IdleState 初始状态
func IdleState() PaymentState {
	return PaymentState{Status: StatusIdle}
}

// ErrorMessage 返回错误信息，无错误时为空
func (s PaymentState) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return s.Error.Error()
}

func copyScratch(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}
