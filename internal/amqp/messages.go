package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeSync   = "sync"
	TypeDelete = "delete"
)

// SyncMessage asks the mirror worker to refresh or remove one transaction.
// It carries identifiers only; the worker reads current data from the database.
type SyncMessage struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Version   int64     `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncMessage(id, ownerID, version int64) *SyncMessage {
	return &SyncMessage{
		Type:      TypeSync,
		ID:        id,
		OwnerID:   ownerID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func NewDeleteMessage(id, ownerID int64) *SyncMessage {
	return &SyncMessage{
		Type:      TypeDelete,
		ID:        id,
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
}

func (m *SyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncMessageFromJSON decodes and checks a message body.
func SyncMessageFromJSON(data []byte) (*SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != TypeSync && msg.Type != TypeDelete {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid transaction id %d", msg.ID)
	}
	return &msg, nil
}
