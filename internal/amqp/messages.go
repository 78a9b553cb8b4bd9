package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ledger sync operations.
const (
	OpSync   = "sync"
	OpDelete = "delete"
)

// LedgerSyncMessage tells the export worker that a transaction changed. It
// carries only the id; the worker reads the row from the database.
type LedgerSyncMessage struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerSyncMessage(id, operation string) *LedgerSyncMessage {
	return &LedgerSyncMessage{
		ID:        id,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerSyncMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("ledger sync message: empty id")
	}
	switch m.Operation {
	case OpSync, OpDelete:
		return nil
	default:
		return fmt.Errorf("ledger sync message: unknown operation %q", m.Operation)
	}
}

func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerSyncMessageFromJSON decodes and validates a message body.
func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
