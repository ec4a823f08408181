package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"sitecost/internal/core"
)

// SnapshotPushMessage carries a whole snapshot to the push worker. The
// snapshot travels in the message because the worker has no local state.
type SnapshotPushMessage struct {
	Snapshot  core.Snapshot `json:"snapshot"`
	Reason    string        `json:"reason"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewSnapshotPushMessage(snap core.Snapshot, reason string) *SnapshotPushMessage {
	return &SnapshotPushMessage{
		Snapshot:  snap,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *SnapshotPushMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotPushMessageFromJSON(data []byte) (*SnapshotPushMessage, error) {
	var msg SnapshotPushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Snapshot.Transactions == nil && msg.Snapshot.Budgets == nil {
		return nil, fmt.Errorf("message has no snapshot")
	}
	return &msg, nil
}
