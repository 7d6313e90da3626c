package model

import baseModel "cashier/pkg/model"

// JournalEntry 支付流水，记录每次结算的结果
type JournalEntry struct {
	baseModel.BaseModel
	AttemptID     string `gorm:"type:uuid;index;not null" json:"attemptId"`
	Strategy      string `gorm:"size:32;not null" json:"strategy"`
	OrderID       string `gorm:"size:64;index;not null" json:"orderId"`
	Amount        int64  `json:"amount"`
	Currency      string `gorm:"size:8" json:"currency"`
	Status        string `gorm:"size:16;not null" json:"status"`
	TransactionID string `gorm:"size:64" json:"transactionId"`
	Message       string `gorm:"size:255" json:"message"`
}

// TableName 表名
func (JournalEntry) TableName() string {
	return "payment_journal"
}
