package model

import "maps"

// PayParams 调用方传入的支付参数
type PayParams struct {
	OrderID     string         `json:"orderId" binding:"required"`
	Amount      int64          `json:"amount"` // 最小货币单位，如分
	Currency    string         `json:"currency,omitempty"`
	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	AutoPoll    bool           `json:"autoPoll,omitempty"`
}

// Clone 深拷贝 Extra，插件修改副本不会影响调用方
func (p PayParams) Clone() PayParams {
	p.Extra = maps.Clone(p.Extra)
	return p
}

// ExtraString 读取 Extra 中的字符串字段
func (p PayParams) ExtraString(key string) string {
	if v, ok := p.Extra[key].(string); ok {
		return v
	}
	return ""
}
