package model

// ActionType 需要用户额外操作的类型
type ActionType string

const (
	ActionQRCode  ActionType = "qrcode"
	ActionURLJump ActionType = "url_jump"
	ActionNone    ActionType = "none"
)

// Action 下一步操作，例如展示二维码或跳转链接
type Action struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value"`
}

// PayResult 归一化后的支付结果
type PayResult struct {
	Status        Status  `json:"status"`
	TransactionID string  `json:"transactionId,omitempty"`
	Message       string  `json:"message,omitempty"`
	Raw           any     `json:"raw,omitempty"`
	Action        *Action `json:"action,omitempty"`
}

// MergeOnto 以 prev 为底，用当前结果的非零字段覆盖
// 轮询返回的部分结果不会抹掉之前展示的二维码等字段
func (r *PayResult) MergeOnto(prev *PayResult) *PayResult {
	if prev == nil {
		cp := *r
		return &cp
	}
	merged := *prev
	merged.Status = r.Status
	if r.TransactionID != "" {
		merged.TransactionID = r.TransactionID
	}
	if r.Message != "" {
		merged.Message = r.Message
	}
	if r.Raw != nil {
		merged.Raw = r.Raw
	}
	if r.Action != nil {
		merged.Action = r.Action
	}
	return &merged
}
