package model

// Status 支付状态
type Status string

const (
	StatusIdle       Status = "idle" // 仅用于 PaymentState
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFail       Status = "fail"
	StatusRefunded   Status = "refunded"
	StatusCancel     Status = "cancel"
)

// IsInFlight 是否为中间态 (pending / processing)
func (s Status) IsInFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// IsTerminal 是否为终态
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFail, StatusRefunded, StatusCancel:
		return true
	}
	return false
}

// Valid 是否为合法的支付结果状态
func (s Status) Valid() bool {
	return s.IsInFlight() || s.IsTerminal()
}
