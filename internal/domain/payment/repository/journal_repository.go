package repository

import (
	"context"

	"cashier/internal/domain/payment/model"

	"gorm.io/gorm"
)

// JournalRepository 支付流水存储
type JournalRepository interface {
	Create(ctx context.Context, entry *model.JournalEntry) error
	ListByOrder(ctx context.Context, orderID string, limit int) ([]model.JournalEntry, error)
}

type journalRepository struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) JournalRepository {
	return &journalRepository{db: db}
}

func (r *journalRepository) Create(ctx context.Context, entry *model.JournalEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByOrder 按时间顺序返回订单的流水，limit <= 0 表示不限制
func (r *journalRepository) ListByOrder(ctx context.Context, orderID string, limit int) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	q := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
