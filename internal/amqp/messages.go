package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// TransactionGeneratedMessage announces a transaction materialized from a
// recurring rule. Consumers fetch the full row by TransactionID.
type TransactionGeneratedMessage struct {
	MessageID     string    `json:"messageId"`
	TransactionID int64     `json:"transactionId"`
	RuleID        *int64    `json:"ruleId,omitempty"`
	OwnerUserID   int64     `json:"ownerUserId"`
	Date          string    `json:"date"`
	Amount        int64     `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionGeneratedMessage builds a message with a fresh id.
func NewTransactionGeneratedMessage(tx core.Transaction) *TransactionGeneratedMessage {
	return &TransactionGeneratedMessage{
		MessageID:     uuid.NewString(),
		TransactionID: tx.ID,
		RuleID:        tx.GeneratedFromRuleID,
		OwnerUserID:   tx.OwnerUserID,
		Date:          tx.Date.String(),
		Amount:        tx.Amount,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionGeneratedMessageFromJSON creates a message from JSON bytes
func TransactionGeneratedMessageFromJSON(data []byte) (*TransactionGeneratedMessage, error) {
	var msg TransactionGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
