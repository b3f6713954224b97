package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"tally/internal/model"
)

func EncodeTransactionEvent(t *model.Transaction, recordedAt time.Time) ([]byte, error) {
	data, err := json.Marshal(model.TransactionEvent{
		Transaction: *model.NewTransactionResult(t),
		RecordedAt:  recordedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transaction event: %w", err)
	}
	return data, nil
}

func DecodeTransactionEvent(data []byte) (*model.TransactionEvent, error) {
	var event model.TransactionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decode transaction event: %w", err)
	}
	if event.Transaction.TransactionID == "" {
		return nil, fmt.Errorf("decode transaction event: missing transaction id")
	}
	return &event, nil
}
