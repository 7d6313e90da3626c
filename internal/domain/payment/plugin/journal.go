package plugin

import (
	"context"
	"errors"

	"cashier/internal/domain/payment/model"
)

// JournalSink 流水异步写入
type JournalSink interface {
	Submit(entry *model.JournalEntry) bool
}

const maxMessageLen = 255

var errJournalQueueFull = errors.New("journal queue full")

// NewJournalPlugin 每次结算写一条流水
func NewJournalPlugin(sink JournalSink) *Plugin {
	record := func(pc *model.ContextState, status model.Status, result *model.PayResult, message string) error {
		entry := &model.JournalEntry{
			AttemptID: pc.AttemptID,
			Strategy:  pc.StrategyName,
			OrderID:   pc.Params.OrderID,
			Amount:    pc.Params.Amount,
			Currency:  pc.Params.Currency,
			Status:    string(status),
			Message:   message,
		}
		if result != nil {
			entry.TransactionID = result.TransactionID
			if entry.Message == "" {
				entry.Message = result.Message
			}
		}
		if len(entry.Message) > maxMessageLen {
			entry.Message = entry.Message[:maxMessageLen]
		}
		if !sink.Submit(entry) {
			return errJournalQueueFull
		}
		return nil
	}

	return &Plugin{
		Name:        "journal",
		Enforce:     EnforcePost,
		NonCritical: true,
		OnStateChange: func(_ context.Context, pc *model.ContextState, status model.Status) error {
			return record(pc, status, pc.Result, "")
		},
		OnSuccess: func(_ context.Context, pc *model.ContextState, result *model.PayResult) error {
			return record(pc, result.Status, result, "")
		},
		OnFail: func(_ context.Context, pc *model.ContextState, result *model.PayResult, err error) error {
			if result != nil {
				return record(pc, result.Status, result, "")
			}
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			return record(pc, model.StatusFail, nil, msg)
		},
	}
}
